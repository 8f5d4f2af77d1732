package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"scorer":       {"openai", "anthropic", "gemini", "deepseek", "mistral", "groq", "ollama", "llamacpp", "llamafile"},
	"local_scorer": {"ollama", "llamacpp", "llamafile"},
	"transcriber":  {"whisper", "whisper-native", "openai"},
}

// hostedScorers are vendors that reject unauthenticated requests. A missing
// api_key for these only warns here; the scoring pre-flight turns it into a
// hard error before any tokens are spent.
var hostedScorers = []string{"openai", "anthropic", "gemini", "deepseek", "mistral", "groq"}

// RequiresAPIKey reports whether the named scorer vendor needs an api_key.
// Local backends (ollama, llamacpp, llamafile) do not.
func RequiresAPIKey(name string) bool {
	return slices.Contains(hostedScorers, name)
}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied. It is a convenience wrapper around
// [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. An empty document yields [Default]. Useful in tests
// where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.applyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.LogLevel != "" && !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("scorer", cfg.Providers.Scorer.Name)
	validateProviderName("local_scorer", cfg.Providers.LocalScorer.Name)
	validateProviderName("transcriber", cfg.Providers.Transcriber.Name)

	// Provider availability warnings
	if cfg.Providers.Scorer.Name == "" {
		slog.Warn("no scorer provider configured; runs will fail at the scoring stage")
	}
	if name := cfg.Providers.Scorer.Name; name != "" && cfg.Providers.Scorer.APIKey == "" &&
		slices.Contains(hostedScorers, name) {
		slog.Warn("providers.scorer has no api_key; hosted vendors reject unauthenticated requests",
			"name", name)
	}
	if cfg.Providers.Transcriber.Name == "" {
		slog.Warn("no transcriber provider configured; runs will fail at the transcript stage")
	}

	// Segmentation
	seg := cfg.Segmentation
	if seg.MinDurationS <= 0 {
		errs = append(errs, fmt.Errorf("segmentation.min_duration_s %.1f must be positive", seg.MinDurationS))
	}
	if seg.MaxDurationS <= 0 {
		errs = append(errs, fmt.Errorf("segmentation.max_duration_s %.1f must be positive", seg.MaxDurationS))
	}
	if seg.MinDurationS > 0 && seg.MaxDurationS > 0 && seg.MinDurationS >= seg.MaxDurationS {
		errs = append(errs, fmt.Errorf("segmentation.min_duration_s %.1f must be below max_duration_s %.1f",
			seg.MinDurationS, seg.MaxDurationS))
	}
	if seg.PauseThresholdS <= 0 {
		errs = append(errs, fmt.Errorf("segmentation.pause_threshold_s %.2f must be positive", seg.PauseThresholdS))
	}

	// Scoring
	sc := cfg.Scoring
	if sc.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("scoring.batch_size %d must be at least 1", sc.BatchSize))
	}
	if sc.InterRequestDelayS < 0 {
		errs = append(errs, fmt.Errorf("scoring.inter_request_delay_s %.2f must not be negative", sc.InterRequestDelayS))
	}
	if sc.MaxCooldownThresholdS <= 0 {
		errs = append(errs, fmt.Errorf("scoring.max_cooldown_threshold_s %.1f must be positive", sc.MaxCooldownThresholdS))
	}
	if sc.Temperature < 0 || sc.Temperature > 2 {
		errs = append(errs, fmt.Errorf("scoring.temperature %.2f is out of range [0, 2]", sc.Temperature))
	}
	if sc.PreFilterCount < 1 {
		errs = append(errs, fmt.Errorf("scoring.pre_filter_count %d must be at least 1", sc.PreFilterCount))
	}
	if sc.CircuitBreakerThreshold < 1 {
		errs = append(errs, fmt.Errorf("scoring.circuit_breaker_threshold %d must be at least 1", sc.CircuitBreakerThreshold))
	}
	if sc.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("scoring.max_retries %d must not be negative", sc.MaxRetries))
	}
	if sc.RequestTimeoutS <= 0 {
		errs = append(errs, fmt.Errorf("scoring.request_timeout_s %.1f must be positive", sc.RequestTimeoutS))
	}
	if sc.MinPromptChars < 1 {
		errs = append(errs, fmt.Errorf("scoring.min_prompt_chars %d must be at least 1", sc.MinPromptChars))
	}

	// Validation stage
	if v := cfg.Validation.SimilarityThreshold; v <= 0 || v > 1 {
		errs = append(errs, fmt.Errorf("validation.similarity_threshold %.2f is out of range (0, 1]", v))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
