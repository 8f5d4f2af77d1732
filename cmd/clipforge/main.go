// Command clipforge turns a long-form source video into a ranked list of
// short-form clip suggestions.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/clipforge/clipforge/internal/checkpoint"
	"github.com/clipforge/clipforge/internal/config"
	"github.com/clipforge/clipforge/internal/health"
	"github.com/clipforge/clipforge/internal/observe"
	"github.com/clipforge/clipforge/internal/pipeline"
	"github.com/clipforge/clipforge/internal/resilience"
	"github.com/clipforge/clipforge/internal/score"
	"github.com/clipforge/clipforge/internal/source"
	"github.com/clipforge/clipforge/internal/spill"
	"github.com/clipforge/clipforge/pkg/media"
	"github.com/clipforge/clipforge/pkg/provider/llm"
	"github.com/clipforge/clipforge/pkg/provider/llm/anyllm"
	oallm "github.com/clipforge/clipforge/pkg/provider/llm/openai"
	"github.com/clipforge/clipforge/pkg/provider/transcribe"
	oatranscribe "github.com/clipforge/clipforge/pkg/provider/transcribe/openai"
	"github.com/clipforge/clipforge/pkg/provider/transcribe/whisper"
)

// maxSummaryClips caps how many clips the run summary prints in full.
const maxSummaryClips = 10

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "clipforge.yaml", "path to the YAML configuration file")
	videoPath := flag.String("video", "", "path to the source video file")
	clearCache := flag.Bool("clear-cache", false, "remove checkpoints and artifacts for the video, then exit")
	flag.Parse()

	if *videoPath == "" {
		fmt.Fprintln(os.Stderr, "clipforge: -video is required")
		flag.Usage()
		return 1
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "clipforge: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "clipforge: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	slog.Info("clipforge starting",
		"config", *configPath,
		"video", *videoPath,
		"cache_dir", cfg.CacheDir,
		"log_level", cfg.LogLevel,
	)

	// ── Clear-cache mode ──────────────────────────────────────────────────────
	// Needs no providers, so it runs before any API client is constructed.
	if *clearCache {
		src, err := source.Resolve(*videoPath)
		if err != nil {
			slog.Error("cannot resolve video", "err", err)
			return 1
		}
		if err := checkpoint.NewStore(cfg.CacheDir).Clear(src); err != nil {
			slog.Error("failed to clear cache", "err", err)
			return 1
		}
		fmt.Printf("cache cleared for %s\n", src.Path)
		return 0
	}

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		slog.Error("failed to create metrics", "err", err)
		return 1
	}

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	// ── Instantiate providers ─────────────────────────────────────────────────
	scorer, transcriber, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Assemble the pipeline ─────────────────────────────────────────────────
	engineCfg := cfg.Scoring.EngineConfig()
	engineCfg.Credential = cfg.Providers.Scorer.APIKey
	engineCfg.NeedCredential = config.RequiresAPIKey(cfg.Providers.Scorer.Name)

	engine, err := score.NewEngine(scorer, spill.NewWriter(cfg.SpillDir), metrics, engineCfg)
	if err != nil {
		slog.Error("failed to create scoring engine", "err", err)
		return 1
	}

	pipe, err := pipeline.New(pipeline.Options{
		Store:       checkpoint.NewStore(cfg.CacheDir),
		Extractor:   media.NewFFmpeg(cfg.FFmpegPath),
		Transcriber: transcriber,
		Scorer:      engine,
		Builder:     cfg.Segmentation.Builder(),
		Validator:   cfg.Validation.Validator(),
		Metrics:     metrics,
		Events: func(ev pipeline.Event) {
			slog.Debug("pipeline event",
				"stage", ev.Stage, "status", ev.Status, "detail", ev.Detail, "err", ev.Err)
		},
	})
	if err != nil {
		slog.Error("failed to assemble pipeline", "err", err)
		return 1
	}

	printStartupSummary(cfg)

	// ── Run, with an optional health/metrics listener alongside ──────────────
	runCtx, finished := context.WithCancel(ctx)
	defer finished()
	g, gctx := errgroup.WithContext(runCtx)

	if cfg.ListenAddr != "" {
		srv := newHTTPServer(cfg, metrics, scorer, transcriber)
		g.Go(func() error {
			slog.Info("listener started", "addr", cfg.ListenAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("listener: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	var res *pipeline.Result
	g.Go(func() error {
		defer finished() // stops the listener once the run is over
		r, rerr := pipe.Run(gctx, *videoPath)
		if rerr != nil {
			return rerr
		}
		res = r
		return nil
	})

	if err := g.Wait(); err != nil {
		if errors.Is(err, context.Canceled) {
			slog.Warn("run interrupted")
		} else {
			slog.Error("run failed", "err", err)
		}
		return 1
	}

	printRunSummary(res)
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// client from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── Scorers ───────────────────────────────────────────────────────────────
	// openai goes through the dedicated SDK client; the remaining hosted
	// vendors share the any-llm pattern: optional APIKey + optional BaseURL.
	reg.RegisterScorer("openai", func(entry config.ProviderEntry) (llm.Client, error) {
		var opts []oallm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oallm.WithBaseURL(entry.BaseURL))
		}
		return oallm.New(entry.APIKey, entry.Model, opts...)
	})

	for _, providerName := range []string{
		"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterScorer(providerName, func(entry config.ProviderEntry) (llm.Client, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterScorer("ollama", func(entry config.ProviderEntry) (llm.Client, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	// ── Transcribers ──────────────────────────────────────────────────────────

	reg.RegisterTranscriber("whisper", func(entry config.ProviderEntry) (transcribe.Transcriber, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterTranscriber("whisper-native", func(entry config.ProviderEntry) (transcribe.Transcriber, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		var opts []whisper.NativeOption
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	reg.RegisterTranscriber("openai", func(entry config.ProviderEntry) (transcribe.Transcriber, error) {
		var opts []oatranscribe.Option
		if entry.BaseURL != "" {
			opts = append(opts, oatranscribe.WithBaseURL(entry.BaseURL))
		}
		if entry.Model != "" {
			opts = append(opts, oatranscribe.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, oatranscribe.WithLanguage(lang))
		}
		return oatranscribe.New(entry.APIKey, opts...)
	})

	for kind, names := range config.ValidProviderNames {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// buildProviders instantiates the scorer and transcriber named in cfg. When a
// local_scorer is configured, the scorer is wrapped in a circuit-breaking
// route that prefers the local backend.
func buildProviders(cfg *config.Config, reg *config.Registry) (llm.Client, transcribe.Transcriber, error) {
	if cfg.Providers.Scorer.Name == "" {
		return nil, nil, errors.New("providers.scorer is not configured")
	}
	scorer, err := reg.CreateScorer(cfg.Providers.Scorer)
	if err != nil {
		return nil, nil, fmt.Errorf("create scorer %q: %w", cfg.Providers.Scorer.Name, err)
	}
	slog.Info("provider created", "kind", "scorer", "name", cfg.Providers.Scorer.Name)

	if name := cfg.Providers.LocalScorer.Name; name != "" {
		local, err := reg.CreateScorer(cfg.Providers.LocalScorer)
		if err != nil {
			return nil, nil, fmt.Errorf("create local scorer %q: %w", name, err)
		}
		route, err := resilience.NewScorerRoute(local, scorer, resilience.CircuitBreakerConfig{
			Threshold: cfg.Scoring.CircuitBreakerThreshold,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("route local scorer %q: %w", name, err)
		}
		scorer = route
		slog.Info("provider created", "kind", "local_scorer", "name", name)
	}

	if cfg.Providers.Transcriber.Name == "" {
		return nil, nil, errors.New("providers.transcriber is not configured")
	}
	transcriber, err := reg.CreateTranscriber(cfg.Providers.Transcriber)
	if err != nil {
		return nil, nil, fmt.Errorf("create transcriber %q: %w", cfg.Providers.Transcriber.Name, err)
	}
	slog.Info("provider created", "kind", "transcriber", "name", cfg.Providers.Transcriber.Name)

	return scorer, transcriber, nil
}

// ── HTTP listener ───────────────────────────────────────────────────────────

// newHTTPServer serves liveness/readiness probes and Prometheus metrics while
// a run executes.
func newHTTPServer(cfg *config.Config, metrics *observe.Metrics, scorer llm.Client, transcriber transcribe.Transcriber) *http.Server {
	checks := []health.Checker{
		{Name: "ffmpeg", Check: func(context.Context) error {
			_, err := exec.LookPath(cfg.FFmpegPath)
			return err
		}},
		{Name: "scorer", Check: func(context.Context) error {
			if scorer == nil {
				return errors.New("no scorer configured")
			}
			return nil
		}},
		{Name: "transcriber", Check: func(context.Context) error {
			if transcriber == nil {
				return errors.New("no transcriber configured")
			}
			return nil
		}},
	}

	mux := http.NewServeMux()
	health.New(checks...).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	return &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           observe.Middleware(metrics)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// ── Summaries ───────────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        clipforge — startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("Scorer", cfg.Providers.Scorer.Name, cfg.Providers.Scorer.Model)
	printProvider("Local scorer", cfg.Providers.LocalScorer.Name, cfg.Providers.LocalScorer.Model)
	printProvider("Transcriber", cfg.Providers.Transcriber.Name, cfg.Providers.Transcriber.Model)
	printProvider("Cache dir", cfg.CacheDir, "")
	printProvider("Spill dir", cfg.SpillDir, "")
	if cfg.ListenAddr != "" {
		printProvider("Listen addr", cfg.ListenAddr, "")
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

func printRunSummary(res *pipeline.Result) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        clipforge — run summary        ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	fmt.Printf("║  Candidates      : %-19d ║\n", res.Stats.Candidates)
	fmt.Printf("║  Scored          : %-19d ║\n", res.Stats.Scored)
	fmt.Printf("║  Clips           : %-19d ║\n", res.Stats.Validated)
	fmt.Printf("║  Model requests  : %-19d ║\n", res.Stats.Requests)
	fmt.Printf("║  Cache hits      : %-19d ║\n", len(res.Stats.CacheHits))
	if res.Stats.Spilled {
		fmt.Printf("║  Spilled         : %-19s ║\n", "yes (rate limited)")
	}
	fmt.Println("╚═══════════════════════════════════════╝")

	if res.Stats.Spilled {
		fmt.Println("scoring stopped early on a rate-limit cooldown; re-run later to finish the remaining candidates")
	}

	for i, c := range res.Clips {
		if i == maxSummaryClips {
			fmt.Printf("    … and %d more\n", len(res.Clips)-maxSummaryClips)
			break
		}
		fmt.Printf("%2d. [%s - %s]  %5.1f  %-5s  %s\n",
			i+1, clock(c.Start), clock(c.End), c.Report.FinalScore, c.Report.Verdict, snippet(c.Text))
	}
}

// clock formats seconds as mm:ss, or h:mm:ss past the hour.
func clock(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second)).Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// snippet trims clip text to one summary line.
func snippet(text string) string {
	const limit = 60
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit-1]) + "…"
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}
