// Package history keeps a log of finished transcription requests.
//
// Only the final transcript text and its counters are stored. Segments,
// audio and intermediate results are never persisted. A [Store] is optional:
// when no database is configured the application wires [Noop].
package history

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// DefaultLimit is used by [Store.Recent] callers that pass a limit ≤ 0.
const DefaultLimit = 20

// MaxLimit caps the number of entries returned by one Recent call.
const MaxLimit = 200

// ErrNotFound is returned by [Store.Get] for unknown IDs.
var ErrNotFound = errors.New("history: transcript not found")

// Entry is one finished transcription.
type Entry struct {
	ID             uuid.UUID `json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	Source         string    `json:"source"`
	Provider       string    `json:"provider"`
	Mode           string    `json:"mode"`
	Text           string    `json:"text"`
	Summary        string    `json:"summary,omitempty"`
	AudioSeconds   float64   `json:"audio_seconds"`
	TotalSegments  int       `json:"total_segments"`
	FailedSegments int       `json:"failed_segments"`
}

// Store persists [Entry] values. Implementations must be safe for concurrent
// use.
type Store interface {
	// Record stores e. A zero ID or CreatedAt is filled in and the stored
	// entry is returned.
	Record(ctx context.Context, e Entry) (Entry, error)

	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, limit int) ([]Entry, error)

	// Get returns the entry with the given ID or [ErrNotFound].
	Get(ctx context.Context, id uuid.UUID) (Entry, error)

	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error
}

// ClampLimit maps a requested limit into [1, MaxLimit].
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	}
	return limit
}

// Prepare fills in a missing ID and creation time. Store implementations call
// it before writing.
func Prepare(e Entry) Entry {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	return e
}

// Noop discards everything. Recent is always empty and Get always fails with
// [ErrNotFound].
type Noop struct{}

var _ Store = Noop{}

func (Noop) Record(_ context.Context, e Entry) (Entry, error) { return Prepare(e), nil }
func (Noop) Recent(context.Context, int) ([]Entry, error)     { return nil, nil }
func (Noop) Get(context.Context, uuid.UUID) (Entry, error)    { return Entry{}, ErrNotFound }
func (Noop) Ping(context.Context) error                       { return nil }
