// Package pipeline orchestrates the clip extraction stages: audio
// extraction, transcription, segmentation, scoring, and validation.
//
// The orchestrator is checkpoint-aware. Before each resumable stage it asks
// the store whether the stage already completed for this source with its
// artifacts intact; a hit loads the cached output and skips execution. On
// success it writes a fresh checkpoint, so an interrupted run resumes from
// the first incomplete stage. Validation is cheap and always recomputed.
//
// Failures abort the run with a [StageError] naming the stage; checkpoints
// written by earlier stages are never rolled back. The one exception is a
// scoring spill: a long rate-limit cooldown ends scoring early with a
// partial list, which flows on to validation without a scoring checkpoint
// and without an error.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"

	"github.com/clipforge/clipforge/internal/checkpoint"
	"github.com/clipforge/clipforge/internal/observe"
	"github.com/clipforge/clipforge/internal/score"
	"github.com/clipforge/clipforge/internal/segment"
	"github.com/clipforge/clipforge/internal/source"
	"github.com/clipforge/clipforge/internal/validate"
	"github.com/clipforge/clipforge/pkg/media"
	"github.com/clipforge/clipforge/pkg/provider/transcribe"
	"github.com/clipforge/clipforge/pkg/types"
)

// highQualityScore is the final-score floor for the checkpoint's
// high_quality_count summary field.
const highQualityScore = 70.0

// Artifact filenames inside a source's artifact directory.
const (
	audioArtifact      = "audio.wav"
	transcriptArtifact = "transcript.json"
)

// StageError wraps a failure with the stage it happened in.
type StageError struct {
	Stage types.Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Scorer runs the scoring protocol over candidates. *score.Engine is the
// production implementation; tests substitute scripted outcomes.
type Scorer interface {
	Score(ctx context.Context, candidates []types.Candidate) (*score.Outcome, error)
}

var _ Scorer = (*score.Engine)(nil)

// Options wires a Pipeline. Store, Extractor, Transcriber, and Scorer are
// required; the rest have working zero values.
type Options struct {
	Store       *checkpoint.Store
	Extractor   media.Extractor
	Transcriber transcribe.Transcriber
	Scorer      Scorer

	// Builder produces clip candidates; its zero value applies the default
	// duration band and pause threshold.
	Builder segment.Builder

	// Validator filters scored segments; its zero value applies the
	// default similarity threshold.
	Validator validate.Validator

	// Metrics receives stage durations, cache hits, and clip counts.
	// Nil disables metric recording.
	Metrics *observe.Metrics

	// Events receives progress notifications. Nil disables dispatch.
	Events func(Event)

	// EventBuffer is the dispatch queue depth. Zero means the default.
	EventBuffer int
}

// Result is the output of one pipeline run.
type Result struct {
	// Scored is every segment the model judged, sorted by final score.
	Scored []types.ScoredSegment

	// Clips is the validated output: time-disjoint, deduplicated, still
	// sorted by final score.
	Clips []types.ScoredSegment

	Stats types.RunStats
}

// Pipeline executes runs over source videos. Safe for sequential reuse;
// concurrent runs over distinct sources need distinct Pipeline instances
// only if their Scorer is stateful.
type Pipeline struct {
	store       *checkpoint.Store
	extractor   media.Extractor
	transcriber transcribe.Transcriber
	scorer      Scorer
	builder     segment.Builder
	validator   validate.Validator
	metrics     *observe.Metrics
	events      func(Event)
	eventBuffer int
}

// New validates opts and returns a ready Pipeline.
func New(opts Options) (*Pipeline, error) {
	if opts.Store == nil {
		return nil, errors.New("pipeline: checkpoint store is required")
	}
	if opts.Extractor == nil {
		return nil, errors.New("pipeline: media extractor is required")
	}
	if opts.Transcriber == nil {
		return nil, errors.New("pipeline: transcriber is required")
	}
	if opts.Scorer == nil {
		return nil, errors.New("pipeline: scorer is required")
	}
	return &Pipeline{
		store:       opts.Store,
		extractor:   opts.Extractor,
		transcriber: opts.Transcriber,
		scorer:      opts.Scorer,
		builder:     opts.Builder,
		validator:   opts.Validator,
		metrics:     opts.Metrics,
		events:      opts.Events,
		eventBuffer: opts.EventBuffer,
	}, nil
}

// Run executes the full pipeline for one source video.
//
// The returned error is a *StageError for stage failures and a plain error
// for configuration problems such as an unresolvable source path. Cache
// integrity problems never fail a run; they degrade to re-execution.
func (p *Pipeline) Run(ctx context.Context, videoPath string) (*Result, error) {
	src, err := source.Resolve(videoPath)
	if err != nil {
		return nil, fmt.Errorf("resolve source: %w", err)
	}

	state, err := p.store.Load(src)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	if state == nil {
		state = &checkpoint.State{}
	}

	slog.Info("pipeline starting",
		"video", src.Path,
		"size", src.Size,
		"fingerprint", src.Fingerprint(),
		"resuming_from", state.LastStage,
	)

	d := newDispatcher(p.events, p.eventBuffer)
	defer d.close()

	res := &Result{}
	res.Stats.StageDurations = make(map[types.Stage]time.Duration)
	artifacts := p.store.ArtifactDir(src)

	// ── Stage: audio extraction ─────────────────────────────────────────────
	var audioPath string
	if state.HasCompleted(types.StageAudio) {
		audioPath = state.AudioExtraction.AudioPath
		p.skipStage(ctx, d, &res.Stats, types.StageAudio, audioPath)
	} else {
		audioPath = filepath.Join(artifacts, audioArtifact)
		err := p.runStage(ctx, d, &res.Stats, types.StageAudio, func(ctx context.Context) error {
			return p.extractor.Extract(ctx, src.Path, audioPath)
		})
		if err != nil {
			return nil, err
		}
		state.AudioExtraction = &checkpoint.AudioExtraction{Completed: true, AudioPath: audioPath}
		state.Transcription = nil
		state.Segmentation = nil
		state.Scoring = nil
		p.saveCheckpoint(src, state, types.StageAudio)
	}

	// ── Stage: transcription ────────────────────────────────────────────────
	var transcript *types.Transcript
	transcriptCached := state.HasCompleted(types.StageTranscript)
	if transcriptCached && !state.HasCompleted(types.StageSegmentation) {
		// Only segmentation consumes the transcript, so load it just when
		// segmentation will actually run.
		t, lerr := readTranscript(state.Transcription.TranscriptPath)
		if lerr != nil {
			slog.Warn("cached transcript unreadable, re-running transcription",
				"path", state.Transcription.TranscriptPath, "err", lerr)
			transcriptCached = false
		} else {
			transcript = t
		}
	}
	if transcriptCached {
		p.skipStage(ctx, d, &res.Stats, types.StageTranscript, state.Transcription.TranscriptPath)
	} else {
		transcriptPath := filepath.Join(artifacts, transcriptArtifact)
		err := p.runStage(ctx, d, &res.Stats, types.StageTranscript, func(ctx context.Context) error {
			t, terr := p.transcriber.Transcribe(ctx, audioPath)
			if terr != nil {
				return terr
			}
			if t == nil {
				return errors.New("transcriber returned no transcript")
			}
			if werr := writeTranscript(transcriptPath, t); werr != nil {
				return fmt.Errorf("persist transcript: %w", werr)
			}
			transcript = t
			return nil
		})
		if err != nil {
			return nil, err
		}
		state.Transcription = &checkpoint.Transcription{
			Completed:      true,
			TranscriptPath: transcriptPath,
			SegmentCount:   len(transcript.Segments),
		}
		state.Segmentation = nil
		state.Scoring = nil
		p.saveCheckpoint(src, state, types.StageTranscript)
	}

	// ── Stage: segmentation ─────────────────────────────────────────────────
	var candidates []types.Candidate
	if state.HasCompleted(types.StageSegmentation) {
		candidates = state.Segmentation.Candidates
		p.skipStage(ctx, d, &res.Stats, types.StageSegmentation,
			fmt.Sprintf("%d candidates", len(candidates)))
	} else {
		err := p.runStage(ctx, d, &res.Stats, types.StageSegmentation, func(context.Context) error {
			candidates = p.builder.Build(transcript)
			return nil
		})
		if err != nil {
			return nil, err
		}
		sentences, pauses := countSources(candidates)
		state.Segmentation = &checkpoint.Segmentation{
			Completed:     true,
			Candidates:    candidates,
			SentenceCount: sentences,
			PauseCount:    pauses,
		}
		state.Scoring = nil
		p.saveCheckpoint(src, state, types.StageSegmentation)
		if p.metrics != nil {
			p.metrics.Candidates.Add(ctx, int64(len(candidates)))
		}
	}
	res.Stats.Candidates = len(candidates)

	// ── Stage: scoring ──────────────────────────────────────────────────────
	var scored []types.ScoredSegment
	if state.HasCompleted(types.StageScoring) {
		scored = state.Scoring.ScoredSegments
		p.skipStage(ctx, d, &res.Stats, types.StageScoring,
			fmt.Sprintf("%d scored segments", len(scored)))
	} else {
		var outcome *score.Outcome
		err := p.runStage(ctx, d, &res.Stats, types.StageScoring, func(ctx context.Context) error {
			o, serr := p.scorer.Score(ctx, candidates)
			if serr != nil {
				return serr
			}
			if o == nil {
				return errors.New("scorer returned no outcome")
			}
			outcome = o
			return nil
		})
		if err != nil {
			return nil, err
		}
		scored = outcome.Segments
		res.Stats.Requests = outcome.Stats.Requests
		res.Stats.PromptTokens = outcome.Stats.PromptTokens
		res.Stats.CompletionTokens = outcome.Stats.CompletionTokens

		if outcome.Spilled {
			// Partial result: no scoring checkpoint, so the next run
			// rescores from segmentation. Validation still gets the prefix.
			res.Stats.Spilled = true
			slog.Warn("scoring spilled, validating partial results",
				"scored", len(scored), "spill", outcome.SpillPath)
		} else {
			state.Scoring = &checkpoint.Scoring{
				Completed:        true,
				ScoredSegments:   scored,
				HighQualityCount: countHighQuality(scored),
			}
			p.saveCheckpoint(src, state, types.StageScoring)
		}
	}
	res.Stats.Scored = len(scored)
	res.Scored = scored

	// ── Stage: validation (never checkpointed) ──────────────────────────────
	err = p.runStage(ctx, d, &res.Stats, types.StageValidation, func(ctx context.Context) error {
		res.Clips = p.validator.Validate(scored)
		if p.metrics != nil {
			for _, c := range res.Clips {
				p.metrics.RecordClip(ctx, string(c.Report.Verdict))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	res.Stats.Validated = len(res.Clips)

	slog.Info("pipeline finished",
		"candidates", res.Stats.Candidates,
		"scored", res.Stats.Scored,
		"clips", res.Stats.Validated,
		"requests", res.Stats.Requests,
		"cache_hits", len(res.Stats.CacheHits),
		"spilled", res.Stats.Spilled,
	)
	return res, nil
}

// ClearCache removes the checkpoint record and stage artifacts for a source.
func (p *Pipeline) ClearCache(videoPath string) error {
	src, err := source.Resolve(videoPath)
	if err != nil {
		return fmt.Errorf("resolve source: %w", err)
	}
	return p.store.Clear(src)
}

// runStage executes one stage with events, tracing, timing, and uniform
// error wrapping.
func (p *Pipeline) runStage(ctx context.Context, d *dispatcher, stats *types.RunStats, stage types.Stage, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		d.publish(Event{Stage: stage, Status: EventFailed, Err: err})
		return &StageError{Stage: stage, Err: err}
	}

	d.publish(Event{Stage: stage, Status: EventStarted})
	ctx, span := observe.StartSpan(ctx, "stage."+string(stage))
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)

	stats.StageDurations[stage] = elapsed
	if p.metrics != nil {
		p.metrics.RecordStageDuration(ctx, string(stage), elapsed.Seconds())
	}

	if err != nil {
		d.publish(Event{Stage: stage, Status: EventFailed, Err: err})
		slog.Error("stage failed", "stage", stage, "elapsed", elapsed, "err", err)
		return &StageError{Stage: stage, Err: err}
	}
	d.publish(Event{Stage: stage, Status: EventCompleted})
	slog.Info("stage completed", "stage", stage, "elapsed", elapsed)
	return nil
}

// skipStage records a checkpoint hit.
func (p *Pipeline) skipStage(ctx context.Context, d *dispatcher, stats *types.RunStats, stage types.Stage, detail string) {
	stats.CacheHits = append(stats.CacheHits, stage)
	if p.metrics != nil {
		p.metrics.RecordCacheHit(ctx, string(stage))
	}
	d.publish(Event{Stage: stage, Status: EventSkipped, Detail: detail})
	slog.Info("stage skipped, checkpoint hit", "stage", stage, "detail", detail)
}

// saveCheckpoint persists progress. A failed write degrades to an uncached
// stage instead of aborting a run whose actual work succeeded.
func (p *Pipeline) saveCheckpoint(src source.Source, state *checkpoint.State, stage types.Stage) {
	if err := p.store.Save(src, state, stage); err != nil {
		slog.Warn("checkpoint save failed, stage will re-run next time",
			"stage", stage, "err", err)
	}
}

func readTranscript(path string) (*types.Transcript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var t types.Transcript
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode transcript: %w", err)
	}
	return &t, nil
}

// writeTranscript persists the transcript artifact atomically, so a crash
// mid-write never leaves a half-written file behind a valid checkpoint.
func writeTranscript(path string, t *types.Transcript) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return err
	}
	pf, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return err
	}
	defer func() { _ = pf.Cleanup() }()
	if _, err := pf.Write(data); err != nil {
		return err
	}
	return pf.CloseAtomicallyReplace()
}

func countSources(cands []types.Candidate) (sentences, pauses int) {
	for _, c := range cands {
		switch c.Source {
		case types.SourceSentence:
			sentences++
		case types.SourcePause:
			pauses++
		}
	}
	return sentences, pauses
}

func countHighQuality(scored []types.ScoredSegment) int {
	n := 0
	for _, s := range scored {
		if s.Report.FinalScore >= highQualityScore {
			n++
		}
	}
	return n
}
