package supabase

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrWong99/scribe/pkg/storage"
)

func newTestClient(t *testing.T, h http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL+"/", "anon-key", opts...)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestDownload(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.EscapedPath() != "/storage/v1/object/user_videos/u1/my%20clip.wav" {
			t.Errorf("path = %q", r.URL.EscapedPath())
		}
		if r.Header.Get("apikey") != "anon-key" || r.Header.Get("Authorization") != "Bearer anon-key" {
			t.Errorf("auth headers = %q / %q", r.Header.Get("apikey"), r.Header.Get("Authorization"))
		}
		_, _ = w.Write([]byte("RIFF...."))
	})

	data, err := c.Download(context.Background(), "user_videos", "u1/my clip.wav")
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if string(data) != "RIFF...." {
		t.Errorf("data = %q", data)
	}
}

func TestDownload_NotFound(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"404", http.StatusNotFound, `{"error":"not_found","message":"Object not found"}`},
		{"400 not_found", http.StatusBadRequest, `{"statusCode":"404","error":"not_found","message":"Object not found"}`},
		{"400 bucket", http.StatusBadRequest, `{"statusCode":"404","error":"Bucket not found","message":"Bucket not found"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			_, err := c.Download(context.Background(), "b", "k.wav")
			if !errors.Is(err, storage.ErrNotFound) {
				t.Fatalf("err = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestDownload_ServerError(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"statusCode":"500","error":"internal","message":"db down"}`))
	})
	_, err := c.Download(context.Background(), "b", "k.wav")
	if err == nil || errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want non-NotFound error", err)
	}
	if !strings.Contains(err.Error(), "db down") {
		t.Errorf("err = %v, want server message", err)
	}
}

func TestDownload_SizeCap(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 64)))
	}, WithMaxSize(16))
	if _, err := c.Download(context.Background(), "b", "k"); !errors.Is(err, storage.ErrTooLarge) {
		t.Fatalf("err = %v, want ErrTooLarge", err)
	}
}

func TestDownload_RejectsBadKeys(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request to %s", r.URL.Path)
	})
	for _, key := range []string{"../secret", "a/../../b", "./a"} {
		if _, err := c.Download(context.Background(), "b", key); !errors.Is(err, storage.ErrInvalidKey) {
			t.Errorf("Download(%q) error = %v, want ErrInvalidKey", key, err)
		}
	}
	if _, err := c.Download(context.Background(), "b", ""); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Download(\"\") error = %v, want ErrNotFound", err)
	}
}

func TestListBuckets(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/storage/v1/bucket" {
			t.Errorf("path = %q", r.URL.Path)
		}
		_, _ = w.Write([]byte(`[{"id":"user_videos","name":"user_videos","public":false}]`))
	})
	buckets, err := c.ListBuckets(context.Background())
	if err != nil {
		t.Fatalf("ListBuckets: %v", err)
	}
	if len(buckets) != 1 || buckets[0].Name != "user_videos" {
		t.Errorf("buckets = %+v", buckets)
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	if _, err := New("", "k"); err == nil {
		t.Error("expected error for empty URL")
	}
	if _, err := New("https://x.supabase.co", ""); err == nil {
		t.Error("expected error for empty key")
	}
	c, err := New("https://x.supabase.co/", "k")
	if err != nil {
		t.Fatal(err)
	}
	if c.baseURL != "https://x.supabase.co/storage/v1" {
		t.Errorf("baseURL = %q", c.baseURL)
	}
}
