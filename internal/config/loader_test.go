package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/scribe/internal/config"
)

const validYAML = `
server:
  listen_addr: ":9090"
  log_level: debug
  cors_origins: ["http://localhost:5173"]
pipeline:
  segment_length: 20s
  workers: 4
providers:
  transcriber:
    name: huggingface
    api_key: ${SCRIBE_TEST_HF_TOKEN}
    model: openai/whisper-large-v3
  transcriber_fallbacks:
    - name: whisper
      base_url: http://localhost:8178
  summarizer:
    name: llm
    options:
      backend: ollama
storage:
  url: https://abc.supabase.co
  api_key: ${SCRIBE_TEST_SUPABASE_KEY:-anon}
history:
  memory_capacity: 50
`

func TestLoadFromReader_Valid(t *testing.T) {
	t.Setenv("SCRIBE_TEST_HF_TOKEN", "hf_secret")

	cfg, err := config.LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("LogLevel = %q", cfg.Server.LogLevel)
	}
	if cfg.Pipeline.SegmentLength != 20*time.Second {
		t.Errorf("SegmentLength = %v, want 20s", cfg.Pipeline.SegmentLength)
	}
	if cfg.Pipeline.Workers != 4 {
		t.Errorf("Workers = %d, want 4", cfg.Pipeline.Workers)
	}
	if got := cfg.Providers.Transcriber.APIKey; got != "hf_secret" {
		t.Errorf("transcriber api_key = %q, want expanded env value", got)
	}
	if got := cfg.Storage.APIKey; got != "anon" {
		t.Errorf("storage api_key = %q, want default %q", got, "anon")
	}
	if len(cfg.Providers.TranscriberFallbacks) != 1 || cfg.Providers.TranscriberFallbacks[0].Name != "whisper" {
		t.Errorf("fallbacks = %+v", cfg.Providers.TranscriberFallbacks)
	}
	if got := config.OptString(cfg.Providers.Summarizer.Options, "backend"); got != "ollama" {
		t.Errorf("summarizer backend = %q", got)
	}
	// Defaults fill what the file left out.
	if cfg.Server.MaxUploadBytes != config.DefaultMaxUploadBytes {
		t.Errorf("MaxUploadBytes = %d, want default", cfg.Server.MaxUploadBytes)
	}
	if cfg.Pipeline.FFmpegPath != "ffmpeg" {
		t.Errorf("FFmpegPath = %q, want ffmpeg", cfg.Pipeline.FFmpegPath)
	}
}

func TestLoadFromReader_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader("providers:\n  transcriber:\n    name: whisper\n"))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.ListenAddr != config.DefaultListenAddr {
		t.Errorf("ListenAddr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("LogLevel = %q", cfg.Server.LogLevel)
	}
	if cfg.Pipeline.SegmentLength != config.DefaultSegmentLength {
		t.Errorf("SegmentLength = %v", cfg.Pipeline.SegmentLength)
	}
	if cfg.Pipeline.Workers != config.DefaultWorkers {
		t.Errorf("Workers = %d", cfg.Pipeline.Workers)
	}
	if cfg.Server.ShutdownTimeout != config.DefaultShutdownTimeout {
		t.Errorf("ShutdownTimeout = %v", cfg.Server.ShutdownTimeout)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()

	_, err := config.LoadFromReader(strings.NewReader("server:\n  listen: \":80\"\n"))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoadFromReader_EmptyNeedsTranscriber(t *testing.T) {
	t.Parallel()

	_, err := config.LoadFromReader(strings.NewReader(""))
	if err == nil || !strings.Contains(err.Error(), "providers.transcriber.name is required") {
		t.Fatalf("err = %v, want missing transcriber", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	t.Parallel()

	base := func() *config.Config {
		cfg := &config.Config{}
		cfg.Providers.Transcriber.Name = "whisper"
		config.ApplyDefaults(cfg)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"log level", func(c *config.Config) { c.Server.LogLevel = "loud" }, "server.log_level"},
		{"negative upload", func(c *config.Config) { c.Server.MaxUploadBytes = -1 }, "server.max_upload_bytes"},
		{"tls half", func(c *config.Config) { c.Server.TLS = &config.TLSConfig{CertFile: "c.pem"} }, "server.tls"},
		{"short segment", func(c *config.Config) { c.Pipeline.SegmentLength = 100 * time.Millisecond }, "pipeline.segment_length"},
		{"negative segment", func(c *config.Config) { c.Pipeline.SegmentLength = -time.Second }, "pipeline.segment_length"},
		{"too many workers", func(c *config.Config) { c.Pipeline.Workers = config.MaxWorkers + 1 }, "pipeline.workers"},
		{"negative workers", func(c *config.Config) { c.Pipeline.Workers = -2 }, "pipeline.workers"},
		{"overlap", func(c *config.Config) { c.Summarize.Window = 100; c.Summarize.Overlap = 100 }, "summarize.overlap"},
		{"lengths", func(c *config.Config) { c.Summarize.MaxLength = 40; c.Summarize.MinLength = 50 }, "summarize.min_length"},
		{"negative concurrency", func(c *config.Config) { c.Summarize.Concurrency = -1 }, "summarize.concurrency"},
		{"fallback name", func(c *config.Config) {
			c.Providers.TranscriberFallbacks = []config.ProviderEntry{{}}
		}, "providers.transcriber_fallbacks[0].name"},
		{"summarizer fallback without primary", func(c *config.Config) {
			c.Providers.SummarizerFallbacks = []config.ProviderEntry{{Name: "huggingface"}}
		}, "providers.summarizer_fallbacks requires"},
		{"storage url", func(c *config.Config) { c.Storage.URL = "abc.supabase.co"; c.Storage.APIKey = "k" }, "storage.url"},
		{"storage key", func(c *config.Config) { c.Storage.URL = "https://abc.supabase.co" }, "storage.api_key"},
		{"history capacity", func(c *config.Config) { c.History.MemoryCapacity = -1 }, "history.memory_capacity"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := base()
			tc.mutate(cfg)
			err := config.Validate(cfg)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("Validate() = %v, want error mentioning %q", err, tc.want)
			}
		})
	}
}

func TestValidate_JoinsAllErrors(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cfg.Server.LogLevel = "loud"
	cfg.Pipeline.Workers = -1
	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	msg := err.Error()
	for _, want := range []string{"server.log_level", "pipeline.workers", "providers.transcriber.name"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q does not mention %q", msg, want)
		}
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v, want os.ErrNotExist", err)
	}
}

func TestLoad_File(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "scribe.yaml")
	if err := os.WriteFile(path, []byte("providers:\n  transcriber:\n    name: deepgram\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Providers.Transcriber.Name != "deepgram" {
		t.Errorf("transcriber = %q", cfg.Providers.Transcriber.Name)
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("SCRIBE_TEST_SET", "value")
	t.Setenv("SCRIBE_TEST_EMPTY", "")

	tests := []struct {
		in, want string
	}{
		{"${SCRIBE_TEST_SET}", "value"},
		{"x-${SCRIBE_TEST_SET}-y", "x-value-y"},
		{"${SCRIBE_TEST_UNSET_VARIABLE}", ""},
		{"${SCRIBE_TEST_UNSET_VARIABLE:-fallback}", "fallback"},
		{"${SCRIBE_TEST_EMPTY:-fallback}", "fallback"},
		{"$SCRIBE_TEST_SET", "$SCRIBE_TEST_SET"},
		{"price: $5", "price: $5"},
	}
	for _, tc := range tests {
		if got := config.ExpandEnv(tc.in); got != tc.want {
			t.Errorf("ExpandEnv(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestProviderEntry_Label(t *testing.T) {
	t.Parallel()

	if got := (config.ProviderEntry{Name: "openai"}).Label(); got != "openai" {
		t.Errorf("Label = %q", got)
	}
	if got := (config.ProviderEntry{Name: "openai", Model: "whisper-1"}).Label(); got != "openai/whisper-1" {
		t.Errorf("Label = %q", got)
	}
}
