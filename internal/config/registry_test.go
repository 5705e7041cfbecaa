package config_test

import (
	"errors"
	"slices"
	"testing"

	"github.com/MrWong99/scribe/internal/config"
	"github.com/MrWong99/scribe/pkg/provider/llm"
	llmmock "github.com/MrWong99/scribe/pkg/provider/llm/mock"
	"github.com/MrWong99/scribe/pkg/provider/summarizer"
	summock "github.com/MrWong99/scribe/pkg/provider/summarizer/mock"
	"github.com/MrWong99/scribe/pkg/provider/transcriber"
	trmock "github.com/MrWong99/scribe/pkg/provider/transcriber/mock"
)

func TestRegistry_CreateTranscriber(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	want := &trmock.Provider{}
	var got config.ProviderEntry
	reg.RegisterTranscriber("fake", func(e config.ProviderEntry) (transcriber.Provider, error) {
		got = e
		return want, nil
	})

	p, err := reg.CreateTranscriber(config.ProviderEntry{Name: "fake", Model: "m"})
	if err != nil {
		t.Fatalf("CreateTranscriber: %v", err)
	}
	if p != want {
		t.Error("factory result not returned")
	}
	if got.Model != "m" {
		t.Errorf("factory got entry %+v", got)
	}
}

func TestRegistry_NotRegistered(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	if _, err := reg.CreateTranscriber(config.ProviderEntry{Name: "x"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("transcriber err = %v", err)
	}
	if _, err := reg.CreateSummarizer(config.ProviderEntry{Name: "x"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("summarizer err = %v", err)
	}
	if _, err := reg.CreateLLM(config.ProviderEntry{Name: "x"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("llm err = %v", err)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	boom := errors.New("bad key")
	reg.RegisterSummarizer("bad", func(config.ProviderEntry) (summarizer.Provider, error) { return nil, boom })
	if _, err := reg.CreateSummarizer(config.ProviderEntry{Name: "bad"}); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
}

func TestRegistry_OverwriteAndNames(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	first, second := &summock.Provider{}, &summock.Provider{}
	reg.RegisterSummarizer("s", func(config.ProviderEntry) (summarizer.Provider, error) { return first, nil })
	reg.RegisterSummarizer("s", func(config.ProviderEntry) (summarizer.Provider, error) { return second, nil })
	reg.RegisterLLM("b", func(config.ProviderEntry) (llm.Provider, error) { return &llmmock.Provider{}, nil })
	reg.RegisterLLM("a", func(config.ProviderEntry) (llm.Provider, error) { return &llmmock.Provider{}, nil })

	p, _ := reg.CreateSummarizer(config.ProviderEntry{Name: "s"})
	if p != second {
		t.Error("second registration did not overwrite the first")
	}
	names := reg.Names()
	if !slices.Equal(names["llm"], []string{"a", "b"}) {
		t.Errorf("llm names = %v, want sorted [a b]", names["llm"])
	}
	if len(names["transcriber"]) != 0 {
		t.Errorf("transcriber names = %v, want empty", names["transcriber"])
	}
}

func TestOptHelpers(t *testing.T) {
	t.Parallel()

	opts := map[string]any{"language": "de", "threads": 4, "float": 2.0, "frac": 2.5, "wrong": 3}
	if got := config.OptString(opts, "language"); got != "de" {
		t.Errorf("OptString = %q", got)
	}
	if got := config.OptString(opts, "wrong"); got != "" {
		t.Errorf("OptString on int = %q, want empty", got)
	}
	if got := config.OptString(nil, "x"); got != "" {
		t.Errorf("OptString on nil = %q", got)
	}
	if n, ok := config.OptInt(opts, "threads"); !ok || n != 4 {
		t.Errorf("OptInt threads = %d, %v", n, ok)
	}
	if n, ok := config.OptInt(opts, "float"); !ok || n != 2 {
		t.Errorf("OptInt float = %d, %v", n, ok)
	}
	if _, ok := config.OptInt(opts, "frac"); ok {
		t.Error("OptInt accepted a fractional value")
	}
	if _, ok := config.OptInt(opts, "language"); ok {
		t.Error("OptInt accepted a string")
	}
}
