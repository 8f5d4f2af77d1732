// Package spill preserves scoring progress when a rate limiter demands a
// cooldown too long to sit out.
//
// The engine writes one record per spill: everything scored so far plus the
// candidates that never made it to the model. Records live in their own
// directory, apart from the checkpoint store, and are consumed by offline
// tooling only; the pipeline itself never reads them back.
package spill

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"
	"github.com/google/uuid"

	"github.com/clipforge/clipforge/pkg/types"
)

// ReasonRateLimit is the only reason code written today.
const ReasonRateLimit = "rate_limit_exceeded"

// Record is the on-disk spill format.
type Record struct {
	// Timestamp is the wall-clock moment the spill was written, in Unix
	// seconds.
	Timestamp int64 `json:"timestamp"`

	// ScoredSegments holds every segment scored before the engine stopped.
	ScoredSegments []types.ScoredSegment `json:"scored_segments"`

	// RemainingSegments holds the candidates that were never scored.
	RemainingSegments []types.Candidate `json:"remaining_segments"`

	// Reason is a machine-readable cause code.
	Reason string `json:"reason"`
}

// Writer writes spill records into a directory. Filenames embed a timestamp
// and a random suffix, so concurrent runs never collide and records sort
// chronologically in a listing.
type Writer struct {
	dir string
}

// NewWriter returns a Writer rooted at dir. The directory is created on
// first write.
func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

// Dir returns the spill directory.
func (w *Writer) Dir() string {
	return w.dir
}

// Write persists one spill record and returns its path. The write is atomic;
// tooling scanning the directory never sees a partial record.
func (w *Writer) Write(scored []types.ScoredSegment, remaining []types.Candidate, reason string) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("spill: create dir: %w", err)
	}

	// Tooling-facing records keep empty lists as [], not null.
	if scored == nil {
		scored = []types.ScoredSegment{}
	}
	if remaining == nil {
		remaining = []types.Candidate{}
	}

	rec := Record{
		Timestamp:         time.Now().Unix(),
		ScoredSegments:    scored,
		RemainingSegments: remaining,
		Reason:            reason,
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("spill: marshal: %w", err)
	}

	name := fmt.Sprintf("spill_%d_%s.json", rec.Timestamp, uuid.NewString())
	path := filepath.Join(w.dir, name)

	pf, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return "", fmt.Errorf("spill: create pending file: %w", err)
	}
	defer func() { _ = pf.Cleanup() }()

	if _, err := pf.Write(data); err != nil {
		return "", fmt.Errorf("spill: write: %w", err)
	}
	if err := pf.CloseAtomicallyReplace(); err != nil {
		return "", fmt.Errorf("spill: replace: %w", err)
	}
	return path, nil
}
