// Package observe provides application-wide observability primitives for
// clipforge: OpenTelemetry metrics, tracing, structured logging helpers, and
// HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped from the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all clipforge metrics.
const meterName = "github.com/clipforge/clipforge"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// StageDuration tracks wall-clock time per pipeline stage. Use with
	// attribute.String("stage", ...).
	StageDuration metric.Float64Histogram

	// --- Scorer traffic ---

	// ScorerRequests counts scoring requests. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("status", ...)
	ScorerRequests metric.Int64Counter

	// ScorerErrors counts scoring failures after routing. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ScorerErrors metric.Int64Counter

	// ScorerTokens counts tokens reported by the scorer. Use with attribute:
	//   attribute.String("kind", "prompt"|"completion")
	ScorerTokens metric.Int64Counter

	// Spills counts rate-limit spill records written.
	Spills metric.Int64Counter

	// --- Pipeline output ---

	// Candidates counts clip candidates produced by segmentation.
	Candidates metric.Int64Counter

	// Clips counts validated output clips. Use with attribute:
	//   attribute.String("verdict", ...)
	Clips metric.Int64Counter

	// CacheHits counts stages satisfied from the checkpoint store. Use with
	// attribute.String("stage", ...).
	CacheHits metric.Int64Counter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time on the health
	// listener. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// stageBuckets defines histogram bucket boundaries (in seconds) sized for
// batch media work: extraction and transcription run seconds to minutes.
var stageBuckets = []float64{
	0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.StageDuration, err = m.Float64Histogram("clipforge.stage.duration",
		metric.WithDescription("Wall-clock duration of each pipeline stage."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(stageBuckets...),
	); err != nil {
		return nil, err
	}

	// Scorer traffic.
	if met.ScorerRequests, err = m.Int64Counter("clipforge.scorer.requests",
		metric.WithDescription("Total scoring requests by provider and status."),
	); err != nil {
		return nil, err
	}
	if met.ScorerErrors, err = m.Int64Counter("clipforge.scorer.errors",
		metric.WithDescription("Total scoring errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.ScorerTokens, err = m.Int64Counter("clipforge.scorer.tokens",
		metric.WithDescription("Total tokens reported by the scorer, by kind."),
	); err != nil {
		return nil, err
	}
	if met.Spills, err = m.Int64Counter("clipforge.scorer.spills",
		metric.WithDescription("Total rate-limit spill records written."),
	); err != nil {
		return nil, err
	}

	// Pipeline output.
	if met.Candidates, err = m.Int64Counter("clipforge.segments.candidates",
		metric.WithDescription("Total clip candidates produced by segmentation."),
	); err != nil {
		return nil, err
	}
	if met.Clips, err = m.Int64Counter("clipforge.clips.produced",
		metric.WithDescription("Total validated clips by verdict."),
	); err != nil {
		return nil, err
	}
	if met.CacheHits, err = m.Int64Counter("clipforge.cache.hits",
		metric.WithDescription("Total pipeline stages satisfied from the checkpoint store."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("clipforge.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordStageDuration records one stage execution.
func (m *Metrics) RecordStageDuration(ctx context.Context, stage string, seconds float64) {
	m.StageDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("stage", stage)),
	)
}

// RecordScorerRequest records a scoring request with the standard attribute set.
func (m *Metrics) RecordScorerRequest(ctx context.Context, provider, status string) {
	m.ScorerRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("status", status),
		),
	)
}

// RecordScorerError records a scoring failure with the standard attribute set.
func (m *Metrics) RecordScorerError(ctx context.Context, provider, kind string) {
	m.ScorerErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// AddScorerTokens records token usage reported by a scoring response.
func (m *Metrics) AddScorerTokens(ctx context.Context, prompt, completion int64) {
	if prompt > 0 {
		m.ScorerTokens.Add(ctx, prompt,
			metric.WithAttributes(attribute.String("kind", "prompt")))
	}
	if completion > 0 {
		m.ScorerTokens.Add(ctx, completion,
			metric.WithAttributes(attribute.String("kind", "completion")))
	}
}

// RecordCacheHit records a stage satisfied from the checkpoint store.
func (m *Metrics) RecordCacheHit(ctx context.Context, stage string) {
	m.CacheHits.Add(ctx, 1,
		metric.WithAttributes(attribute.String("stage", stage)),
	)
}

// RecordClip records one validated output clip.
func (m *Metrics) RecordClip(ctx context.Context, verdict string) {
	m.Clips.Add(ctx, 1,
		metric.WithAttributes(attribute.String("verdict", verdict)),
	)
}
