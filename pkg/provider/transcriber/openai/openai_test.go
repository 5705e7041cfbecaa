package openai_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrWong99/scribe/pkg/audio"
	"github.com/MrWong99/scribe/pkg/provider/transcriber"
	"github.com/MrWong99/scribe/pkg/provider/transcriber/openai"
)

func TestNew_EmptyAPIKey(t *testing.T) {
	if _, err := openai.New("", ""); err == nil {
		t.Fatal("expected error for empty apiKey, got nil")
	}
}

func TestTranscribe_UploadsWAV(t *testing.T) {
	var gotModel, gotLang, gotName string
	var gotHead []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			http.Error(w, "not found: "+r.URL.Path, http.StatusNotFound)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotModel = r.FormValue("model")
		gotLang = r.FormValue("language")
		f, hdr, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotName = hdr.Filename
		gotHead = make([]byte, 4)
		_, _ = io.ReadFull(f, gotHead)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":" hello there "}`))
	}))
	defer srv.Close()

	p, err := openai.New("sk-test", "", openai.WithBaseURL(srv.URL), openai.WithLanguage("en"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s, err := p.NewSession(context.Background())
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer s.Close()

	text, err := s.Transcribe(context.Background(), audio.Buffer{Samples: make([]int16, 160), SampleRate: 16000})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "hello there" {
		t.Errorf("text = %q", text)
	}
	if gotModel != openai.DefaultModel || gotLang != "en" {
		t.Errorf("form = (%q, %q), want (%q, en)", gotModel, gotLang, openai.DefaultModel)
	}
	if len(gotName) < 4 || gotName[len(gotName)-4:] != ".wav" {
		t.Errorf("filename = %q, want a .wav name", gotName)
	}
	if string(gotHead) != "RIFF" {
		t.Errorf("upload starts with %q, want RIFF", gotHead)
	}
}

func TestSession_CloseThenTranscribe(t *testing.T) {
	p, _ := openai.New("sk-test", "whisper-1")
	s, err := p.NewSession(context.Background())
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	_, err = s.Transcribe(context.Background(), audio.Buffer{SampleRate: 16000})
	if !errors.Is(err, transcriber.ErrSessionClosed) {
		t.Fatalf("err = %v, want ErrSessionClosed", err)
	}
}
