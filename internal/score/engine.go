// Package score turns clip candidates into scored segments by batching them
// through an LLM backend.
//
// The engine owns the full request lifecycle: heuristic pre-filtering,
// batching, pacing between requests, bounded retries with jittered backoff,
// rate-limit cooldown handling, response parsing, and fallback reports for
// segments the model never judged. When a server demands a cooldown longer
// than the configured threshold, the engine stops, hands everything to the
// spill writer, and returns the partial result instead of an error.
package score

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"github.com/clipforge/clipforge/internal/observe"
	"github.com/clipforge/clipforge/internal/segment"
	"github.com/clipforge/clipforge/internal/spill"
	"github.com/clipforge/clipforge/pkg/provider/llm"
	"github.com/clipforge/clipforge/pkg/types"
)

// Engine tuning defaults. Zero-valued Config fields fall back to these.
const (
	DefaultBatchSize            = 6
	DefaultInterRequestDelay    = 1500 * time.Millisecond
	DefaultMaxCooldownThreshold = 60 * time.Second
	DefaultTemperature          = 0.2
	DefaultMaxRetries           = 2
	DefaultRequestTimeout       = 120 * time.Second
)

// maxBackoff caps exponential backoff sleeps, in seconds.
const maxBackoff = 300.0

// Fallback reasons recorded in key_weaknesses when no model judgement exists.
const (
	reasonModelFailed   = "AI analysis failed"
	reasonInvalidPrompt = "invalid prompt"
)

// Config tunes the scoring engine. Zero values fall back to the package
// defaults above; PreFilterCount and MinPromptLen default inside the
// components that consume them.
type Config struct {
	// BatchSize is the number of segments embedded in one model request.
	BatchSize int

	// InterRequestDelay is enforced between batch submissions. The first
	// batch is sent immediately.
	InterRequestDelay time.Duration

	// MaxCooldownThreshold is the largest server-advertised cooldown the
	// engine will sit out. Anything longer triggers a spill.
	MaxCooldownThreshold time.Duration

	// Temperature is passed through to the model. Kept low so repeated
	// runs stay comparable.
	Temperature float64

	// PreFilterCount caps how many candidates reach the model.
	PreFilterCount int

	// MaxRetries is the retry budget per batch, on top of the first attempt.
	MaxRetries int

	// RequestTimeout bounds each individual attempt.
	RequestTimeout time.Duration

	// PromptTemplate is the rating instruction sent with every batch.
	PromptTemplate string

	// MinPromptLen is the minimum trimmed template length accepted by
	// pre-flight validation.
	MinPromptLen int

	// Credential is the API credential pre-flight checks when
	// NeedCredential is set. The engine never sends it anywhere itself;
	// the client owns authentication.
	Credential string

	// NeedCredential marks the backend as requiring a credential.
	// Local backends leave it false.
	NeedCredential bool
}

// withDefaults returns a copy of c with zero values replaced.
func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.InterRequestDelay <= 0 {
		c.InterRequestDelay = DefaultInterRequestDelay
	}
	if c.MaxCooldownThreshold <= 0 {
		c.MaxCooldownThreshold = DefaultMaxCooldownThreshold
	}
	if c.Temperature <= 0 {
		c.Temperature = DefaultTemperature
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.PromptTemplate == "" {
		c.PromptTemplate = DefaultPromptTemplate
	}
	return c
}

// Stats aggregates request accounting across one Score run.
type Stats struct {
	// Requests counts every attempt sent to the backend, retries included.
	Requests int

	PromptTokens     int
	CompletionTokens int
}

// Outcome is the result of one Score run.
type Outcome struct {
	// Segments holds every scored segment, sorted by final score descending.
	Segments []types.ScoredSegment

	// Spilled is true when the run stopped early on a long cooldown.
	// Segments then holds only the scored prefix; the remainder lives in
	// the spill record at SpillPath.
	Spilled bool

	// SpillPath is the spill record written when Spilled is true. Empty
	// when the write itself failed.
	SpillPath string

	Stats Stats
}

// Engine scores candidates through an LLM client.
//
// The client is typically a [resilience.ScorerRoute] wrapping a local and a
// remote backend, but any [llm.Client] works. Engine is not safe for
// concurrent Score calls; each pipeline run owns its own instance.
type Engine struct {
	client  llm.Client
	spiller *spill.Writer
	metrics *observe.Metrics
	cfg     Config

	// sleep and jitter are swapped out in tests to keep retry paths fast
	// and deterministic.
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(lo, hi float64) float64
}

// NewEngine returns an Engine sending requests through client. The spill
// writer receives unscored work on long cooldowns; metrics may be nil.
func NewEngine(client llm.Client, spiller *spill.Writer, metrics *observe.Metrics, cfg Config) (*Engine, error) {
	if client == nil {
		return nil, errors.New("score: client must not be nil")
	}
	return &Engine{
		client:  client,
		spiller: spiller,
		metrics: metrics,
		cfg:     cfg.withDefaults(),
		sleep:   sleepCtx,
		jitter: func(lo, hi float64) float64 {
			return lo + rand.Float64()*(hi-lo)
		},
	}, nil
}

// Score runs the full scoring protocol over candidates and returns every
// segment the model judged, sorted by final score descending.
//
// Pre-flight rejection and per-batch model failures do not return errors;
// the affected segments carry fallback reports instead. The only error
// conditions are context cancellation and spill-write details surfaced via
// logs. A long rate-limit cooldown ends the run early with Outcome.Spilled
// set and no error.
func (e *Engine) Score(ctx context.Context, candidates []types.Candidate) (*Outcome, error) {
	out := &Outcome{}
	if len(candidates) == 0 {
		return out, nil
	}

	if err := Preflight(e.cfg.PromptTemplate, e.cfg.Credential, e.cfg.MinPromptLen, e.cfg.NeedCredential); err != nil {
		slog.Error("scoring prompt rejected, falling back for all candidates",
			"err", err, "candidates", len(candidates))
		out.Segments = fallbackAll(candidates, reasonInvalidPrompt)
		types.SortByScore(out.Segments)
		return out, nil
	}

	shortlist := segment.Prefilter(candidates, e.cfg.PreFilterCount)
	batches := splitBatches(shortlist, e.cfg.BatchSize)

	for bi, batch := range batches {
		if bi > 0 {
			if err := e.sleep(ctx, e.cfg.InterRequestDelay); err != nil {
				return nil, fmt.Errorf("scoring interrupted: %w", err)
			}
		}

		resp, err := e.sendWithRetry(ctx, batch, out)
		if err != nil {
			var spillErr *spillSignal
			if errors.As(err, &spillErr) {
				remaining := shortlist[bi*e.cfg.BatchSize:]
				e.spillAndStop(ctx, out, remaining, spillErr.hint)
				return out, nil
			}
			if ctx.Err() != nil {
				return nil, fmt.Errorf("scoring interrupted: %w", ctx.Err())
			}
			slog.Warn("batch scoring failed, falling back",
				"batch", bi+1, "segments", len(batch), "err", err)
			e.recordError(ctx, errorKind(err))
			out.Segments = append(out.Segments, fallbackAll(batch, reasonModelFailed)...)
			continue
		}

		results, perr := ParseBatch(resp.Content)
		if perr != nil {
			slog.Warn("unparseable scoring response, falling back",
				"batch", bi+1, "segments", len(batch), "err", perr)
			e.recordError(ctx, "parse")
			out.Segments = append(out.Segments, fallbackAll(batch, reasonModelFailed)...)
			continue
		}

		out.Segments = append(out.Segments, matchResults(batch, results)...)

		slog.Info("batch scored",
			"batch", bi+1,
			"batches", len(batches),
			"segments", len(batch),
			"results", len(results),
			"requests", out.Stats.Requests,
			"prompt_tokens", out.Stats.PromptTokens,
			"completion_tokens", out.Stats.CompletionTokens,
		)
	}

	types.SortByScore(out.Segments)
	return out, nil
}

// spillSignal aborts the batch loop when a cooldown exceeds the threshold.
type spillSignal struct {
	hint time.Duration
}

func (s *spillSignal) Error() string {
	return fmt.Sprintf("cooldown %s exceeds threshold", s.hint)
}

// sendWithRetry submits one batch, retrying transient failures within the
// configured budget. It returns a *spillSignal error when the server demands
// a cooldown above the threshold.
func (e *Engine) sendWithRetry(ctx context.Context, batch []types.Candidate, out *Outcome) (*llm.Response, error) {
	prompt := BuildBatchPrompt(e.cfg.PromptTemplate, promptSegments(batch))
	req := llm.Request{
		System:      systemInstruction,
		Prompt:      prompt,
		Temperature: e.cfg.Temperature,
	}

	var lastErr error
	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		reqCtx, cancel := context.WithTimeout(ctx, e.cfg.RequestTimeout)
		resp, err := e.client.Complete(reqCtx, req)
		cancel()

		out.Stats.Requests++
		if err == nil {
			out.Stats.PromptTokens += resp.Usage.PromptTokens
			out.Stats.CompletionTokens += resp.Usage.CompletionTokens
			if e.metrics != nil {
				e.metrics.RecordScorerRequest(ctx, e.client.Name(), "ok")
				e.metrics.AddScorerTokens(ctx, int64(resp.Usage.PromptTokens), int64(resp.Usage.CompletionTokens))
			}
			return resp, nil
		}
		lastErr = err
		if e.metrics != nil {
			e.metrics.RecordScorerRequest(ctx, e.client.Name(), "error")
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if hint, ok := llm.RetryAfterHint(err); ok {
			if hint > e.cfg.MaxCooldownThreshold {
				return nil, &spillSignal{hint: hint}
			}
			if attempt == e.cfg.MaxRetries {
				break
			}
			wait := hint + time.Duration(e.jitter(1, 5)*float64(time.Second))
			slog.Info("rate limited, honouring cooldown",
				"retry_after", hint, "sleep", wait, "attempt", attempt+1)
			if serr := e.sleep(ctx, wait); serr != nil {
				return nil, serr
			}
			continue
		}

		if !llm.IsRetryable(err) {
			break
		}
		if attempt == e.cfg.MaxRetries {
			break
		}
		secs := math.Min(maxBackoff, math.Pow(2, float64(attempt))+e.jitter(0, 1))
		wait := time.Duration(secs * float64(time.Second))
		slog.Info("transient scoring failure, backing off",
			"sleep", wait, "attempt", attempt+1, "err", err)
		if serr := e.sleep(ctx, wait); serr != nil {
			return nil, serr
		}
	}
	return nil, lastErr
}

// spillAndStop persists scored progress plus the unscored remainder and
// finalises out as a partial result.
func (e *Engine) spillAndStop(ctx context.Context, out *Outcome, remaining []types.Candidate, hint time.Duration) {
	out.Spilled = true
	if e.spiller == nil {
		slog.Error("no spill writer configured, unscored remainder dropped",
			"remaining", len(remaining))
	} else {
		path, err := e.spiller.Write(out.Segments, remaining, spill.ReasonRateLimit)
		if err != nil {
			slog.Error("spill write failed", "err", err)
		} else {
			out.SpillPath = path
			slog.Warn("scoring stopped on long cooldown",
				"retry_after", hint,
				"scored", len(out.Segments),
				"remaining", len(remaining),
				"spill", path,
			)
		}
	}
	if e.metrics != nil {
		e.metrics.Spills.Add(ctx, 1)
	}
	types.SortByScore(out.Segments)
}

func (e *Engine) recordError(ctx context.Context, kind string) {
	if e.metrics != nil {
		e.metrics.RecordScorerError(ctx, e.client.Name(), kind)
	}
}

// splitBatches cuts list into consecutive windows of at most size elements.
func splitBatches(list []types.Candidate, size int) [][]types.Candidate {
	if len(list) == 0 {
		return nil
	}
	batches := make([][]types.Candidate, 0, (len(list)+size-1)/size)
	for start := 0; start < len(list); start += size {
		end := min(start+size, len(list))
		batches = append(batches, list[start:end])
	}
	return batches
}

// promptSegments assigns batch-local 1-based ids for the request prompt.
func promptSegments(batch []types.Candidate) []promptSegment {
	segs := make([]promptSegment, len(batch))
	for i, c := range batch {
		segs[i] = promptSegment{
			ID:       i + 1,
			Duration: c.Duration(),
			Text:     c.Text,
		}
	}
	return segs
}

// matchResults pairs parsed reports with their batch segments. Results
// carrying an id claim their segment first; results without an id fall back
// to their array position. Segments left unclaimed receive a fallback report.
func matchResults(batch []types.Candidate, results []BatchResult) []types.ScoredSegment {
	reports := make([]*types.ScoreReport, len(batch))
	for i, res := range results {
		switch {
		case res.HasID:
			idx := res.ID - 1
			if idx >= 0 && idx < len(batch) && reports[idx] == nil {
				r := res.Report
				reports[idx] = &r
			}
		case i < len(batch) && reports[i] == nil:
			r := res.Report
			reports[i] = &r
		}
	}

	scored := make([]types.ScoredSegment, 0, len(batch))
	for i, cand := range batch {
		if reports[i] == nil {
			scored = append(scored, types.ScoredSegment{
				Candidate: cand,
				Report:    types.FallbackReport(reasonModelFailed),
			})
			continue
		}
		scored = append(scored, types.ScoredSegment{Candidate: cand, Report: *reports[i]})
	}
	return scored
}

// fallbackAll builds a fallback scored segment for every candidate.
func fallbackAll(cands []types.Candidate, reason string) []types.ScoredSegment {
	segs := make([]types.ScoredSegment, 0, len(cands))
	for _, c := range cands {
		segs = append(segs, types.ScoredSegment{
			Candidate: c,
			Report:    types.FallbackReport(reason),
		})
	}
	return segs
}

// errorKind maps an error to a metrics label.
func errorKind(err error) string {
	switch {
	case llm.IsRateLimited(err):
		return "rate_limited"
	case llm.IsResourceExhausted(err):
		return "resource_exhausted"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "api"
	}
}

// sleepCtx waits for d or until ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
