// Package storage defines the recording history sink. Every stored revision,
// deleted group and finished playback run is handed to a Backend.
package storage

import (
	"errors"

	"github.com/RecM/recm/pkg/core"
)

// Backend is the interface all history implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	RecordSave(e *core.SaveEvent) error
	RecordDelete(e *core.DeleteEvent) error
	RecordPlayback(run *core.PlaybackRun) error
}

// Queryable is an optional interface for backends that can read history
// back, newest first.
type Queryable interface {
	RecentSaves(limit int) ([]core.SaveEvent, error)
	RecentPlaybacks(limit int) ([]core.PlaybackRun, error)
}

// Multi fans every write out to several backends. Queries go to the first
// Queryable member.
type Multi []Backend

var _ Backend = Multi(nil)

func (m Multi) each(fn func(Backend) error) error {
	var errs []error
	for _, b := range m {
		if err := fn(b); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Init() error  { return m.each(Backend.Init) }
func (m Multi) Close() error { return m.each(Backend.Close) }

func (m Multi) RecordSave(e *core.SaveEvent) error {
	return m.each(func(b Backend) error { return b.RecordSave(e) })
}

func (m Multi) RecordDelete(e *core.DeleteEvent) error {
	return m.each(func(b Backend) error { return b.RecordDelete(e) })
}

func (m Multi) RecordPlayback(run *core.PlaybackRun) error {
	return m.each(func(b Backend) error { return b.RecordPlayback(run) })
}

// Queryable returns the first member that supports queries.
func (m Multi) Queryable() (Queryable, bool) {
	for _, b := range m {
		if q, ok := AsQueryable(b); ok {
			return q, true
		}
	}
	return nil, false
}

// AsQueryable reports whether b, or a member of a Multi, can answer queries.
func AsQueryable(b Backend) (Queryable, bool) {
	if m, ok := b.(Multi); ok {
		return m.Queryable()
	}
	q, ok := b.(Queryable)
	return q, ok
}

// Discard is a Backend that drops everything.
type Discard struct{}

func (Discard) Init() error                            { return nil }
func (Discard) Close() error                           { return nil }
func (Discard) RecordSave(*core.SaveEvent) error       { return nil }
func (Discard) RecordDelete(*core.DeleteEvent) error   { return nil }
func (Discard) RecordPlayback(*core.PlaybackRun) error { return nil }
