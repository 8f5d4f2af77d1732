// Package checkpoint persists per-video pipeline progress so interrupted
// runs resume instead of recomputing.
//
// Each source video gets one JSON record named by its fingerprint plus an
// artifact directory for stage outputs (extracted audio, transcript). A
// record only counts for resumption when the stored video path and size
// still match the source and every referenced artifact file exists; anything
// else degrades to a fresh run, never an error.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"

	"github.com/clipforge/clipforge/internal/source"
	"github.com/clipforge/clipforge/pkg/types"
)

// AudioExtraction is the payload recorded after the audio stage.
type AudioExtraction struct {
	Completed bool   `json:"completed"`
	AudioPath string `json:"audio_path"`
}

// Transcription is the payload recorded after the transcript stage.
type Transcription struct {
	Completed      bool   `json:"completed"`
	TranscriptPath string `json:"transcript_path"`
	SegmentCount   int    `json:"segment_count"`
}

// Segmentation is the payload recorded after candidate building. The full
// candidate list is stored inline; it is small and avoids a second artifact
// file.
type Segmentation struct {
	Completed     bool              `json:"completed"`
	Candidates    []types.Candidate `json:"candidates"`
	SentenceCount int               `json:"sentence_count"`
	PauseCount    int               `json:"pause_count"`
}

// Scoring is the payload recorded after model scoring.
type Scoring struct {
	Completed        bool                  `json:"completed"`
	ScoredSegments   []types.ScoredSegment `json:"scored_segments"`
	HighQualityCount int                   `json:"high_quality_count"`
}

// State is the on-disk checkpoint record for one source video.
type State struct {
	LastStage   types.Stage `json:"last_stage"`
	LastUpdated time.Time   `json:"last_updated"`
	VideoPath   string      `json:"video_path"`
	VideoSize   int64       `json:"video_size"`

	AudioExtraction *AudioExtraction `json:"audio_extraction,omitempty"`
	Transcription   *Transcription   `json:"transcription,omitempty"`
	Segmentation    *Segmentation    `json:"segmentation,omitempty"`
	Scoring         *Scoring         `json:"ai_scoring,omitempty"`
}

// stageOrder is the resumable checkpoint sequence. Validation is recomputed
// every run and never appears here.
var stageOrder = []types.Stage{
	types.StageAudio,
	types.StageTranscript,
	types.StageSegmentation,
	types.StageScoring,
}

// HasCompleted reports whether the given stage and all stages before it
// finished with their artifacts intact. A vanished artifact file invalidates
// its stage and every later one, so the pipeline resumes from the earliest
// broken stage.
func (s *State) HasCompleted(stage types.Stage) bool {
	if s == nil {
		return false
	}
	for _, st := range stageOrder {
		if !s.stageIntact(st) {
			return false
		}
		if st == stage {
			return true
		}
	}
	return false
}

// stageIntact checks a single stage's payload and artifact files, without
// the transitive walk.
func (s *State) stageIntact(stage types.Stage) bool {
	switch stage {
	case types.StageAudio:
		return s.AudioExtraction != nil && s.AudioExtraction.Completed &&
			fileExists(s.AudioExtraction.AudioPath)
	case types.StageTranscript:
		return s.Transcription != nil && s.Transcription.Completed &&
			fileExists(s.Transcription.TranscriptPath)
	case types.StageSegmentation:
		return s.Segmentation != nil && s.Segmentation.Completed
	case types.StageScoring:
		return s.Scoring != nil && s.Scoring.Completed
	}
	return false
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Store reads and writes checkpoint records under a cache directory.
type Store struct {
	dir string
}

// NewStore returns a Store rooted at dir. The directory is created lazily
// on first save.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// statePath is the JSON record for a source.
func (st *Store) statePath(src source.Source) string {
	return filepath.Join(st.dir, src.Fingerprint()+".json")
}

// ArtifactDir is where stage outputs for a source live. Callers place
// extracted audio and transcripts here so Clear can remove them together.
func (st *Store) ArtifactDir(src source.Source) string {
	return filepath.Join(st.dir, src.Fingerprint())
}

// Load returns the prior state for src, or nil when none is usable. A
// missing record, a record for a moved or resized video, and a corrupt
// record all mean "fresh run"; only the corrupt case logs a warning.
func (st *Store) Load(src source.Source) (*State, error) {
	data, err := os.ReadFile(st.statePath(src))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		slog.Warn("checkpoint unreadable, starting fresh",
			"path", st.statePath(src), "err", err)
		return nil, nil
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		slog.Warn("checkpoint corrupt, starting fresh",
			"path", st.statePath(src), "err", err)
		return nil, nil
	}

	if state.VideoPath != src.Path || state.VideoSize != src.Size {
		slog.Info("checkpoint belongs to a different video, starting fresh",
			"stored_path", state.VideoPath, "stored_size", state.VideoSize,
			"path", src.Path, "size", src.Size)
		return nil, nil
	}
	return &state, nil
}

// Save atomically writes state after stage completed. The record on disk is
// always either the previous version or the new one, never a mix.
func (st *Store) Save(src source.Source, state *State, stage types.Stage) error {
	if state == nil {
		return errors.New("checkpoint: save nil state")
	}
	state.LastStage = stage
	state.LastUpdated = time.Now().UTC()
	state.VideoPath = src.Path
	state.VideoSize = src.Size

	if err := os.MkdirAll(st.dir, 0o755); err != nil {
		return fmt.Errorf("checkpoint: create cache dir: %w", err)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("checkpoint: marshal: %w", err)
	}

	path := st.statePath(src)
	pf, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("checkpoint: create pending file: %w", err)
	}
	// Cleanup is a no-op once the replace succeeded.
	defer func() { _ = pf.Cleanup() }()

	if _, err := pf.Write(data); err != nil {
		return fmt.Errorf("checkpoint: write: %w", err)
	}
	if err := pf.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("checkpoint: replace: %w", err)
	}
	return nil
}

// Clear removes the checkpoint record and the artifact directory for src.
// Clearing a source that has no state is not an error.
func (st *Store) Clear(src source.Source) error {
	if err := os.Remove(st.statePath(src)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("checkpoint: remove state: %w", err)
	}
	if err := os.RemoveAll(st.ArtifactDir(src)); err != nil {
		return fmt.Errorf("checkpoint: remove artifacts: %w", err)
	}
	return nil
}
