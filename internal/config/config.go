// Package config provides the configuration schema, loader, and provider
// registry for the clipforge pipeline.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/clipforge/clipforge/internal/resilience"
	"github.com/clipforge/clipforge/internal/score"
	"github.com/clipforge/clipforge/internal/segment"
	"github.com/clipforge/clipforge/internal/validate"
)

// LogLevel controls log verbosity for the clipforge process.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for clipforge.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader];
// fields absent from the file keep their built-in defaults.
type Config struct {
	// CacheDir holds checkpoint records and per-video stage artifacts.
	// Empty means "clipforge" under the user cache directory.
	CacheDir string `yaml:"cache_dir"`

	// SpillDir receives the spill records written when scoring stops early
	// on a long rate-limit cooldown. Empty means CacheDir/spill.
	SpillDir string `yaml:"spill_dir"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// ListenAddr, when non-empty, serves health probes and Prometheus
	// metrics over HTTP while a run executes (e.g., ":9090").
	ListenAddr string `yaml:"listen_addr"`

	// FFmpegPath is the ffmpeg binary used for audio extraction.
	// Empty means "ffmpeg" from PATH.
	FFmpegPath string `yaml:"ffmpeg_path"`

	Providers    ProvidersConfig    `yaml:"providers"`
	Segmentation SegmentationConfig `yaml:"segmentation"`
	Scoring      ScoringConfig      `yaml:"scoring"`
	Validation   ValidationConfig   `yaml:"validation"`
}

// ProvidersConfig declares which provider implementation serves each external
// dependency. Each entry selects a named factory registered in the [Registry].
type ProvidersConfig struct {
	// Scorer is the model backend that judges clip candidates.
	Scorer ProviderEntry `yaml:"scorer"`

	// LocalScorer optionally fronts Scorer with a local model. When set,
	// the remote backend only serves requests after the local one trips
	// the circuit breaker.
	LocalScorer ProviderEntry `yaml:"local_scorer"`

	// Transcriber is the speech-to-text backend.
	Transcriber ProviderEntry `yaml:"transcriber"`
}

// ProviderEntry is the common configuration block shared by all provider
// kinds. The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation
	// (e.g., "openai", "whisper").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API, if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider
	// (e.g., "gpt-4o-mini", "large-v3").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by
	// the standard fields above. Values may be strings, numbers, booleans,
	// or nested maps.
	Options map[string]any `yaml:"options"`
}

// SegmentationConfig bounds candidate clips. All values are seconds.
type SegmentationConfig struct {
	// MinDurationS and MaxDurationS bound candidate length.
	MinDurationS float64 `yaml:"min_duration_s"`
	MaxDurationS float64 `yaml:"max_duration_s"`

	// PauseThresholdS is the inter-sentence gap that splits pause windows.
	PauseThresholdS float64 `yaml:"pause_threshold_s"`
}

// ScoringConfig tunes the model scoring protocol. Zero values fall back to
// the engine defaults, so an empty block is a valid configuration.
type ScoringConfig struct {
	// BatchSize is the number of candidates per model request.
	BatchSize int `yaml:"batch_size"`

	// InterRequestDelayS is the pacing delay between consecutive requests,
	// in seconds. The first request of a run is never delayed.
	InterRequestDelayS float64 `yaml:"inter_request_delay_s"`

	// MaxCooldownThresholdS is the longest server-requested cooldown the
	// engine will sit out, in seconds. Anything longer spills.
	MaxCooldownThresholdS float64 `yaml:"max_cooldown_threshold_s"`

	// Temperature is passed through to the model.
	Temperature float64 `yaml:"temperature"`

	// PreFilterCount caps how many candidates reach the model.
	PreFilterCount int `yaml:"pre_filter_count"`

	// CircuitBreakerThreshold is the consecutive-failure count that trips
	// the local scorer when a local_scorer provider is configured.
	CircuitBreakerThreshold int `yaml:"circuit_breaker_threshold"`

	// MaxRetries is the retry budget per request for transient failures.
	MaxRetries int `yaml:"max_retries"`

	// RequestTimeoutS is the per-attempt deadline, in seconds.
	RequestTimeoutS float64 `yaml:"request_timeout_s"`

	// MinPromptChars is the minimum trimmed prompt template length the
	// pre-flight check accepts.
	MinPromptChars int `yaml:"min_prompt_chars"`

	// PromptTemplate overrides the built-in scoring prompt. Empty keeps
	// the built-in template.
	PromptTemplate string `yaml:"prompt_template"`
}

// ValidationConfig tunes final clip selection.
type ValidationConfig struct {
	// SimilarityThreshold is the Jaccard similarity at or above which a
	// lower-scored clip is dropped as a duplicate. Must lie in (0, 1].
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
}

// Default returns the built-in configuration: user cache directory, info
// logging, ffmpeg from PATH, and the documented segmentation, scoring, and
// validation parameters.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills empty fields in place. Called by the loader after
// decoding, so a sparse YAML file yields a fully populated Config.
func (c *Config) applyDefaults() {
	if c.CacheDir == "" {
		c.CacheDir = defaultCacheDir()
	}
	if c.SpillDir == "" {
		c.SpillDir = filepath.Join(c.CacheDir, "spill")
	}
	if c.LogLevel == "" {
		c.LogLevel = LogInfo
	}
	if c.FFmpegPath == "" {
		c.FFmpegPath = "ffmpeg"
	}

	if c.Segmentation.MinDurationS == 0 {
		c.Segmentation.MinDurationS = segment.DefaultMinDuration
	}
	if c.Segmentation.MaxDurationS == 0 {
		c.Segmentation.MaxDurationS = segment.DefaultMaxDuration
	}
	if c.Segmentation.PauseThresholdS == 0 {
		c.Segmentation.PauseThresholdS = segment.DefaultPauseThreshold
	}

	if c.Scoring.BatchSize == 0 {
		c.Scoring.BatchSize = score.DefaultBatchSize
	}
	if c.Scoring.InterRequestDelayS == 0 {
		c.Scoring.InterRequestDelayS = score.DefaultInterRequestDelay.Seconds()
	}
	if c.Scoring.MaxCooldownThresholdS == 0 {
		c.Scoring.MaxCooldownThresholdS = score.DefaultMaxCooldownThreshold.Seconds()
	}
	if c.Scoring.Temperature == 0 {
		c.Scoring.Temperature = score.DefaultTemperature
	}
	if c.Scoring.PreFilterCount == 0 {
		c.Scoring.PreFilterCount = segment.DefaultPrefilterCount
	}
	if c.Scoring.CircuitBreakerThreshold == 0 {
		c.Scoring.CircuitBreakerThreshold = resilience.DefaultTripThreshold
	}
	if c.Scoring.MaxRetries == 0 {
		c.Scoring.MaxRetries = score.DefaultMaxRetries
	}
	if c.Scoring.RequestTimeoutS == 0 {
		c.Scoring.RequestTimeoutS = score.DefaultRequestTimeout.Seconds()
	}
	if c.Scoring.MinPromptChars == 0 {
		c.Scoring.MinPromptChars = score.DefaultMinPromptLen
	}

	if c.Validation.SimilarityThreshold == 0 {
		c.Validation.SimilarityThreshold = validate.DefaultSimilarityThreshold
	}
}

// defaultCacheDir is "clipforge" under the OS user cache directory, with a
// working-directory fallback when the home lookup fails.
func defaultCacheDir() string {
	if base, err := os.UserCacheDir(); err == nil {
		return filepath.Join(base, "clipforge")
	}
	return ".clipforge-cache"
}

// EngineConfig converts the scoring block to the engine's native form.
// Credential and NeedCredential are provider wiring, filled by the caller.
func (s ScoringConfig) EngineConfig() score.Config {
	return score.Config{
		BatchSize:            s.BatchSize,
		InterRequestDelay:    secondsToDuration(s.InterRequestDelayS),
		MaxCooldownThreshold: secondsToDuration(s.MaxCooldownThresholdS),
		Temperature:          s.Temperature,
		PreFilterCount:       s.PreFilterCount,
		MaxRetries:           s.MaxRetries,
		RequestTimeout:       secondsToDuration(s.RequestTimeoutS),
		PromptTemplate:       s.PromptTemplate,
		MinPromptLen:         s.MinPromptChars,
	}
}

// Builder converts the segmentation block to the segment builder's form.
func (s SegmentationConfig) Builder() segment.Builder {
	return segment.Builder{
		MinDuration:    s.MinDurationS,
		MaxDuration:    s.MaxDurationS,
		PauseThreshold: s.PauseThresholdS,
	}
}

// Validator converts the validation block to the validator's form.
func (v ValidationConfig) Validator() validate.Validator {
	return validate.Validator{SimilarityThreshold: v.SimilarityThreshold}
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
