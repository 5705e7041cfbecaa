package huggingface_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrWong99/scribe/pkg/provider/huggingface"
)

func TestPost_SendsAuthAndDecodes(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/org/model" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.Header.Get("X-Wait-For-Model"); got != "true" {
			t.Errorf("X-Wait-For-Model = %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != "payload" {
			t.Errorf("body = %q", body)
		}
		_, _ = w.Write([]byte(`{"text":"ok"}`))
	}))
	defer srv.Close()

	c := huggingface.New("tok", huggingface.WithBaseURL(srv.URL+"/"))
	var out struct{ Text string }
	if err := c.Post(context.Background(), "org/model", "audio/wav", []byte("payload"), &out); err != nil {
		t.Fatalf("Post: %v", err)
	}
	if out.Text != "ok" {
		t.Errorf("Text = %q, want ok", out.Text)
	}
}

func TestPost_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		body    string
		wantIs  error
		wantMsg string
	}{
		{"loading", http.StatusServiceUnavailable, `{"error":"Model is currently loading","estimated_time":20}`, huggingface.ErrModelLoading, "currently loading"},
		{"unauthorized", http.StatusUnauthorized, `{"error":"Invalid credentials"}`, nil, "Invalid credentials"},
		{"raw body", http.StatusBadGateway, "upstream died", nil, "upstream died"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			var out map[string]any
			err := huggingface.New("", huggingface.WithBaseURL(srv.URL)).Post(context.Background(), "m", "text/plain", nil, &out)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if tc.wantIs != nil && !errors.Is(err, tc.wantIs) {
				t.Errorf("err = %v, want %v", err, tc.wantIs)
			}
			if !strings.Contains(err.Error(), tc.wantMsg) {
				t.Errorf("err = %q, want it to contain %q", err, tc.wantMsg)
			}
		})
	}
}

func TestPost_EmptyModel(t *testing.T) {
	t.Parallel()
	var out any
	if err := huggingface.New("").Post(context.Background(), "", "text/plain", nil, &out); err == nil {
		t.Fatal("expected error for empty model")
	}
}
