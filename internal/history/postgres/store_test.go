package postgres_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/scribe/internal/history"
	"github.com/MrWong99/scribe/internal/history/postgres"
)

// testDSN returns the test database DSN or skips the test when
// SCRIBE_TEST_POSTGRES_DSN is unset.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("SCRIBE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("SCRIBE_TEST_POSTGRES_DSN not set, skipping PostgreSQL integration tests")
	}
	return dsn
}

func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	defer pool.Close()
	if _, err := pool.Exec(ctx, `DROP TABLE IF EXISTS transcripts`); err != nil {
		t.Fatalf("drop table: %v", err)
	}

	store, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

func TestNewStore_BadDSN(t *testing.T) {
	t.Parallel()

	if _, err := postgres.NewStore(context.Background(), "postgres://user@localhost:notaport/db"); err == nil {
		t.Fatal("expected error for malformed DSN")
	}
}

func TestStore_RecordAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	in := history.Entry{
		Source:         "meeting.wav",
		Provider:       "whisper",
		Mode:           "parallel",
		Text:           "w0 w1 w2",
		Summary:        "short",
		AudioSeconds:   40,
		TotalSegments:  3,
		FailedSegments: 1,
	}
	saved, err := store.Record(ctx, in)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if saved.ID == uuid.Nil {
		t.Fatal("Record did not assign an ID")
	}

	got, err := store.Get(ctx, saved.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Text != in.Text || got.Mode != in.Mode || got.TotalSegments != 3 || got.FailedSegments != 1 {
		t.Errorf("Get = %+v", got)
	}
	if got.AudioSeconds != 40 {
		t.Errorf("AudioSeconds = %v, want 40", got.AudioSeconds)
	}
}

func TestStore_GetUnknown(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get(context.Background(), uuid.New())
	if !errors.Is(err, history.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestStore_RecentNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i := range 4 {
		_, err := store.Record(ctx, history.Entry{
			Text:      fmt.Sprintf("t%d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("Record %d: %v", i, err)
		}
	}

	got, err := store.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 || got[0].Text != "t3" || got[1].Text != "t2" {
		t.Errorf("Recent = %+v, want [t3 t2]", got)
	}
}

func TestStore_Ping(t *testing.T) {
	store := newTestStore(t)
	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}
