package transport

import (
	"errors"

	"github.com/RecM/recm/internal/catalog"
	"github.com/RecM/recm/internal/engine"
	"github.com/RecM/recm/pkg/core"
	"github.com/RecM/recm/pkg/streaming"
)

var errBadRequest = errors.New("bad request")

var codes = []struct {
	code string
	err  error
}{
	{streaming.CodeAlreadyExists, catalog.ErrAlreadyExists},
	{streaming.CodeNotFound, catalog.ErrNotFound},
	{streaming.CodeInvalidName, catalog.ErrInvalidName},
	{streaming.CodeEmpty, core.ErrEmptyRecording},
	{streaming.CodeNotAllowed, engine.ErrNotAllowed},
	{streaming.CodeBadRequest, errBadRequest},
	{streaming.CodeUnreadable, catalog.ErrUnreadable},
}

// partial is a handler result that is sent even though err is set.
type partial struct {
	result any
	err    error
}

// codeOf classifies err for a failed reply.
func codeOf(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return streaming.CodeInternal
}

// RemoteError is a failure reported by the server. It unwraps to the
// matching local sentinel so callers can use errors.Is across the wire.
type RemoteError struct {
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	return e.Message
}

func (e *RemoteError) Unwrap() error {
	for _, c := range codes {
		if c.code == e.Code {
			return c.err
		}
	}
	return nil
}
