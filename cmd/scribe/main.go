// Command scribe is the main entry point for the scribe transcription server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/scribe/internal/app"
	"github.com/MrWong99/scribe/internal/config"
	"github.com/MrWong99/scribe/internal/observe"
	hf "github.com/MrWong99/scribe/pkg/provider/huggingface"
	"github.com/MrWong99/scribe/pkg/provider/llm"
	"github.com/MrWong99/scribe/pkg/provider/llm/anyllm"
	oallm "github.com/MrWong99/scribe/pkg/provider/llm/openai"
	"github.com/MrWong99/scribe/pkg/provider/summarizer"
	hfsum "github.com/MrWong99/scribe/pkg/provider/summarizer/huggingface"
	llmsum "github.com/MrWong99/scribe/pkg/provider/summarizer/llm"
	"github.com/MrWong99/scribe/pkg/provider/transcriber"
	"github.com/MrWong99/scribe/pkg/provider/transcriber/deepgram"
	hftr "github.com/MrWong99/scribe/pkg/provider/transcriber/huggingface"
	oatr "github.com/MrWong99/scribe/pkg/provider/transcriber/openai"
	"github.com/MrWong99/scribe/pkg/provider/transcriber/whisper"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	watch := flag.Bool("watch", true, "reload log level and pipeline defaults when the config file changes")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "scribe: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "scribe: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	var level slog.LevelVar
	level.Set(cfg.Server.LogLevel.Level())
	slog.SetDefault(newLogger(&level))

	slog.Info("scribe starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "scribe",
		ServiceVersion: version,
		Registerer:     registry,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(tctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	opts := []app.Option{
		app.WithLevelVar(&level),
		app.WithMetricsHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})),
	}
	if *watch {
		opts = append(opts, app.WithConfigWatch(*configPath))
	}
	application, err := app.New(ctx, cfg, providers, opts...)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("server ready, press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		application.Shutdown(context.Background())
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	slog.Info("shutdown signal received, stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oallm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oallm.WithBaseURL(entry.BaseURL))
		}
		if org := config.OptString(entry.Options, "organization"); org != "" {
			opts = append(opts, oallm.WithOrganization(org))
		}
		return oallm.New(entry.APIKey, entry.Model, opts...)
	})

	// The remaining backends share the same pattern: optional APIKey and
	// optional BaseURL. ollama is a local server and ignores the key.
	for _, providerName := range []string{
		"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile", "ollama",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" && providerName != "ollama" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ── Transcriber ───────────────────────────────────────────────────────────

	reg.RegisterTranscriber("whisper", func(entry config.ProviderEntry) (transcriber.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := config.OptString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterTranscriber("whisper-native", func(entry config.ProviderEntry) (transcriber.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = config.OptString(entry.Options, "model_path")
		}
		var opts []whisper.NativeOption
		if lang := config.OptString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		if n, ok := config.OptInt(entry.Options, "threads"); ok && n > 0 {
			opts = append(opts, whisper.WithNativeThreads(uint(n)))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	reg.RegisterTranscriber("huggingface", func(entry config.ProviderEntry) (transcriber.Provider, error) {
		opts := []hftr.Option{hftr.WithModel(entry.Model)}
		if lang := config.OptString(entry.Options, "language"); lang != "" {
			opts = append(opts, hftr.WithLanguage(lang))
		}
		if entry.BaseURL != "" {
			opts = append(opts, hftr.WithClientOptions(hf.WithBaseURL(entry.BaseURL)))
		}
		return hftr.New(entry.APIKey, opts...), nil
	})

	reg.RegisterTranscriber("deepgram", func(entry config.ProviderEntry) (transcriber.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		if lang := config.OptString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterTranscriber("openai", func(entry config.ProviderEntry) (transcriber.Provider, error) {
		var opts []oatr.Option
		if entry.BaseURL != "" {
			opts = append(opts, oatr.WithBaseURL(entry.BaseURL))
		}
		if lang := config.OptString(entry.Options, "language"); lang != "" {
			opts = append(opts, oatr.WithLanguage(lang))
		}
		return oatr.New(entry.APIKey, entry.Model, opts...)
	})

	// ── Summarizer ────────────────────────────────────────────────────────────

	reg.RegisterSummarizer("huggingface", func(entry config.ProviderEntry) (summarizer.Provider, error) {
		opts := []hfsum.Option{hfsum.WithModel(entry.Model)}
		if entry.BaseURL != "" {
			opts = append(opts, hfsum.WithClientOptions(hf.WithBaseURL(entry.BaseURL)))
		}
		return hfsum.New(entry.APIKey, opts...), nil
	})

	// "llm" summarises with a chat model. options.backend names the LLM
	// provider (default "openai"); the other entry fields are passed through.
	reg.RegisterSummarizer("llm", func(entry config.ProviderEntry) (summarizer.Provider, error) {
		backend := config.OptString(entry.Options, "backend")
		if backend == "" {
			backend = "openai"
		}
		p, err := reg.CreateLLM(config.ProviderEntry{
			Name:    backend,
			APIKey:  entry.APIKey,
			BaseURL: entry.BaseURL,
			Model:   entry.Model,
			Options: entry.Options,
		})
		if err != nil {
			return nil, fmt.Errorf("llm summarizer backend: %w", err)
		}
		var opts []llmsum.Option
		if t, ok := optFloat(entry.Options, "temperature"); ok {
			opts = append(opts, llmsum.WithTemperature(t))
		}
		return llmsum.New(p, opts...), nil
	})

	for kind, names := range reg.Names() {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// buildProviders instantiates all providers named in cfg using the registry
// and returns them in an [app.Providers] struct for the application to consume.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	pc := cfg.Providers
	ps := &app.Providers{}

	p, err := reg.CreateTranscriber(pc.Transcriber)
	if err != nil {
		return nil, fmt.Errorf("create transcriber %q: %w", pc.Transcriber.Name, err)
	}
	ps.Transcriber = p
	slog.Info("provider created", "kind", "transcriber", "name", pc.Transcriber.Label())

	for _, entry := range pc.TranscriberFallbacks {
		p, err := reg.CreateTranscriber(entry)
		if err != nil {
			return nil, fmt.Errorf("create transcriber fallback %q: %w", entry.Name, err)
		}
		ps.TranscriberFallbacks = append(ps.TranscriberFallbacks, p)
		slog.Info("provider created", "kind", "transcriber", "name", entry.Label(), "fallback", true)
	}

	if pc.Summarizer.Name == "" {
		return ps, nil
	}
	s, err := reg.CreateSummarizer(pc.Summarizer)
	if err != nil {
		return nil, fmt.Errorf("create summarizer %q: %w", pc.Summarizer.Name, err)
	}
	ps.Summarizer = s
	slog.Info("provider created", "kind", "summarizer", "name", pc.Summarizer.Label())

	for _, entry := range pc.SummarizerFallbacks {
		s, err := reg.CreateSummarizer(entry)
		if err != nil {
			return nil, fmt.Errorf("create summarizer fallback %q: %w", entry.Name, err)
		}
		ps.SummarizerFallbacks = append(ps.SummarizerFallbacks, s)
		slog.Info("provider created", "kind", "summarizer", "name", entry.Label(), "fallback", true)
	}
	return ps, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          scribe: startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Transcriber", cfg.Providers.Transcriber.Label())
	printRow("Fallbacks", fmt.Sprint(len(cfg.Providers.TranscriberFallbacks)))
	printRow("Summarizer", orDisabled(cfg.Providers.Summarizer.Label()))
	printRow("Segment", cfg.Pipeline.SegmentLength.String())
	printRow("Workers", fmt.Sprint(cfg.Pipeline.Workers))
	printRow("Storage", orDisabled(cfg.Storage.URL))
	switch {
	case cfg.History.PostgresDSN != "":
		printRow("History", "postgres")
	case cfg.History.MemoryCapacity > 0:
		printRow("History", fmt.Sprintf("memory (%d)", cfg.History.MemoryCapacity))
	default:
		printRow("History", "(disabled)")
	}
	printRow("Listen addr", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(kind, value string) {
	if len(value) > 19 {
		value = value[:16] + "..."
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

func orDisabled(v string) string {
	if v == "" {
		return "(disabled)"
	}
	return v
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level slog.Leveler) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optFloat extracts a number from a provider Options map.
func optFloat(opts map[string]any, key string) (float64, bool) {
	switch v := opts[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}
