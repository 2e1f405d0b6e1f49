package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/RecM/recm/pkg/core"
)

// HistoryExport is the root JSON structure
type HistoryExport struct {
	ExportedAt time.Time      `json:"exportedAt"`
	Saves      []SaveJSON     `json:"saves"`
	Deletes    []DeleteJSON   `json:"deletes"`
	Playbacks  []PlaybackJSON `json:"playbacks"`
}

type SaveJSON struct {
	Time       time.Time               `json:"time"`
	Name       string                  `json:"name"`
	Model      string                  `json:"model"`
	Revision   int                     `json:"revision"`
	Frames     int                     `json:"frames"`
	DurationMs int64                   `json:"durationMs"`
	Overwrite  bool                    `json:"overwrite"`
	Metadata   *core.RecordingMetadata `json:"metadata,omitempty"`
}

type DeleteJSON struct {
	Time    time.Time `json:"time"`
	Name    string    `json:"name"`
	Model   string    `json:"model"`
	Removed int       `json:"removed"`
}

type PlaybackJSON struct {
	SessionID        string    `json:"sessionId"`
	Recording        string    `json:"recording"`
	DisplayName      string    `json:"displayName"`
	Model            string    `json:"model,omitempty"`
	PlayerControlled bool      `json:"playerControlled"`
	Reason           string    `json:"reason"`
	StartedAt        time.Time `json:"startedAt"`
	StoppedAt        time.Time `json:"stoppedAt"`
	DurationMs       int64     `json:"durationMs"`
	TrailLength      float64   `json:"trailLength"`
	Trail            string    `json:"trail,omitempty"`
}

// exportJSON writes the history to a (optionally gzipped) JSON file
func (b *Backend) exportJSON() error {
	export := b.buildExport()

	filename := fmt.Sprintf("history_%s.json", export.ExportedAt.Format("20060102_150405"))
	if b.cfg.CompressOutput {
		filename += ".gz"
	}
	outputPath := filepath.Join(b.cfg.OutputDir, filename)

	// Ensure output directory exists
	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	var err error
	if b.cfg.CompressOutput {
		err = writeGzipJSON(outputPath, export)
	} else {
		err = writeJSON(outputPath, export)
	}
	if err != nil {
		return err
	}

	b.lastExportPath = outputPath
	return nil
}

func (b *Backend) buildExport() HistoryExport {
	export := HistoryExport{
		ExportedAt: b.now().UTC(),
		Saves:      make([]SaveJSON, 0, len(b.saves)),
		Deletes:    make([]DeleteJSON, 0, len(b.deletes)),
		Playbacks:  make([]PlaybackJSON, 0, len(b.playbacks)),
	}
	for _, s := range b.saves {
		export.Saves = append(export.Saves, SaveJSON{
			Time:       s.Time,
			Name:       s.Name,
			Model:      s.Model,
			Revision:   s.Revision,
			Frames:     s.Frames,
			DurationMs: s.Duration.Milliseconds(),
			Overwrite:  s.Overwrite,
			Metadata:   s.Metadata,
		})
	}
	for _, d := range b.deletes {
		export.Deletes = append(export.Deletes, DeleteJSON(d))
	}
	for _, r := range b.playbacks {
		export.Playbacks = append(export.Playbacks, PlaybackJSON{
			SessionID:        r.SessionID,
			Recording:        r.RecordingName,
			DisplayName:      r.DisplayName,
			Model:            r.Model,
			PlayerControlled: r.PlayerControlled,
			Reason:           string(r.Reason),
			StartedAt:        r.StartedAt,
			StoppedAt:        r.StoppedAt,
			DurationMs:       r.Duration.Milliseconds(),
			TrailLength:      r.TrailLength,
			Trail:            r.Trail,
		})
	}
	return export
}

func writeJSON(path string, data HistoryExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	return encoder.Encode(data)
}

func writeGzipJSON(path string, data HistoryExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	gzWriter := gzip.NewWriter(f)
	defer gzWriter.Close()

	encoder := json.NewEncoder(gzWriter)
	return encoder.Encode(data)
}
