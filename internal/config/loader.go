package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"transcriber": {"whisper", "whisper-native", "huggingface", "deepgram", "openai"},
	"summarizer":  {"huggingface", "llm"},
	"llm":         {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
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

// LoadFromReader decodes a YAML config from r, expands ${VAR} references,
// applies defaults and validates the result.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}

	cfg := &Config{}
	dec := yaml.NewDecoder(strings.NewReader(ExpandEnv(string(raw))))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// ExpandEnv replaces ${VAR} and ${VAR:-default} with environment values.
// Unset variables without a default expand to the empty string. A bare $ is
// left alone.
func ExpandEnv(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(ref string) string {
		m := envRef.FindStringSubmatch(ref)
		if v, ok := os.LookupEnv(m[1]); ok && v != "" {
			return v
		}
		return m[3]
	})
}

// ApplyDefaults fills zero-valued fields with their defaults. It does not
// touch fields that were set, even to invalid values.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Pipeline.SegmentLength == 0 {
		cfg.Pipeline.SegmentLength = DefaultSegmentLength
	}
	if cfg.Pipeline.Workers == 0 {
		cfg.Pipeline.Workers = DefaultWorkers
	}
	if cfg.Pipeline.FFmpegPath == "" {
		cfg.Pipeline.FFmpegPath = "ffmpeg"
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.MaxUploadBytes < 0 {
		errs = append(errs, fmt.Errorf("server.max_upload_bytes %d must not be negative", cfg.Server.MaxUploadBytes))
	}
	if cfg.Server.ShutdownTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.shutdown_timeout %s must not be negative", cfg.Server.ShutdownTimeout))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}
	if cfg.Server.StaticDir != "" {
		if info, err := os.Stat(cfg.Server.StaticDir); err != nil || !info.IsDir() {
			slog.Warn("server.static_dir is not a readable directory; static files will 404", "dir", cfg.Server.StaticDir)
		}
	}

	// Pipeline
	if cfg.Pipeline.SegmentLength != 0 && cfg.Pipeline.SegmentLength < time.Second {
		errs = append(errs, fmt.Errorf("pipeline.segment_length %s must be at least 1s", cfg.Pipeline.SegmentLength))
	}
	if cfg.Pipeline.Workers < 0 || cfg.Pipeline.Workers > MaxWorkers {
		errs = append(errs, fmt.Errorf("pipeline.workers %d is out of range [1, %d]", cfg.Pipeline.Workers, MaxWorkers))
	}

	// Summarize
	s := cfg.Summarize
	for name, v := range map[string]int{
		"window": s.Window, "overlap": s.Overlap, "concurrency": s.Concurrency,
		"max_length": s.MaxLength, "min_length": s.MinLength,
	} {
		if v < 0 {
			errs = append(errs, fmt.Errorf("summarize.%s %d must not be negative", name, v))
		}
	}
	if s.Window > 0 && s.Overlap >= s.Window {
		errs = append(errs, fmt.Errorf("summarize.overlap %d must be smaller than summarize.window %d", s.Overlap, s.Window))
	}
	if s.MaxLength > 0 && s.MinLength >= s.MaxLength {
		errs = append(errs, fmt.Errorf("summarize.min_length %d must be smaller than summarize.max_length %d", s.MinLength, s.MaxLength))
	}

	// Providers
	if cfg.Providers.Transcriber.Name == "" {
		errs = append(errs, errors.New("providers.transcriber.name is required"))
	}
	validateProviderName("transcriber", cfg.Providers.Transcriber.Name)
	for i, e := range cfg.Providers.TranscriberFallbacks {
		if e.Name == "" {
			errs = append(errs, fmt.Errorf("providers.transcriber_fallbacks[%d].name is required", i))
		}
		validateProviderName("transcriber", e.Name)
	}
	validateProviderName("summarizer", cfg.Providers.Summarizer.Name)
	for i, e := range cfg.Providers.SummarizerFallbacks {
		if e.Name == "" {
			errs = append(errs, fmt.Errorf("providers.summarizer_fallbacks[%d].name is required", i))
		}
		validateProviderName("summarizer", e.Name)
	}
	if cfg.Providers.Summarizer.Name == "" && len(cfg.Providers.SummarizerFallbacks) > 0 {
		errs = append(errs, errors.New("providers.summarizer_fallbacks requires providers.summarizer"))
	}
	if cfg.Providers.Summarizer.Name == "" {
		slog.Warn("providers.summarizer is not configured; summarisation endpoints are disabled")
	}

	// Storage
	if cfg.Storage.URL != "" {
		u, err := url.Parse(cfg.Storage.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("storage.url %q must be an absolute http(s) URL", cfg.Storage.URL))
		}
		if cfg.Storage.APIKey == "" {
			errs = append(errs, errors.New("storage.api_key is required when storage.url is set"))
		}
	}
	if cfg.Storage.MaxSizeBytes < 0 {
		errs = append(errs, fmt.Errorf("storage.max_size_bytes %d must not be negative", cfg.Storage.MaxSizeBytes))
	}

	// History
	if cfg.History.MemoryCapacity < 0 {
		errs = append(errs, fmt.Errorf("history.memory_capacity %d must not be negative", cfg.History.MemoryCapacity))
	}
	if cfg.History.PostgresDSN != "" && cfg.History.MemoryCapacity > 0 {
		slog.Warn("history.memory_capacity is ignored when history.postgres_dsn is set")
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
	slog.Warn("unknown provider name; may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
