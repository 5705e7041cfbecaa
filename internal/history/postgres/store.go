// Package postgres stores transcript history in PostgreSQL.
//
//	store, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
//	e, _ := store.Record(ctx, history.Entry{Text: text})
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/scribe/internal/history"
)

var _ history.Store = (*Store)(nil)

// Store is a [history.Store] backed by a single [pgxpool.Pool]. All methods
// are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to dsn, pings the server and runs [Migrate].
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("history store: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("history store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history store: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history store: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() { s.pool.Close() }

// Ping implements [history.Store].
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("history store: ping: %w", err)
	}
	return nil
}

// Record implements [history.Store].
func (s *Store) Record(ctx context.Context, e history.Entry) (history.Entry, error) {
	e = history.Prepare(e)
	const q = `
		INSERT INTO transcripts
		    (id, created_at, source, provider, mode, text, summary,
		     audio_seconds, total_segments, failed_segments)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := s.pool.Exec(ctx, q,
		e.ID,
		e.CreatedAt,
		e.Source,
		e.Provider,
		e.Mode,
		e.Text,
		e.Summary,
		e.AudioSeconds,
		e.TotalSegments,
		e.FailedSegments,
	)
	if err != nil {
		return history.Entry{}, fmt.Errorf("history store: record: %w", err)
	}
	return e, nil
}

const selectColumns = `
	SELECT id, created_at, source, provider, mode, text, summary,
	       audio_seconds, total_segments, failed_segments
	FROM   transcripts`

// Recent implements [history.Store].
func (s *Store) Recent(ctx context.Context, limit int) ([]history.Entry, error) {
	rows, err := s.pool.Query(ctx, selectColumns+`
	ORDER  BY created_at DESC
	LIMIT  $1`, history.ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("history store: recent: %w", err)
	}
	entries, err := pgx.CollectRows(rows, scanEntry)
	if err != nil {
		return nil, fmt.Errorf("history store: recent: %w", err)
	}
	return entries, nil
}

// Get implements [history.Store].
func (s *Store) Get(ctx context.Context, id uuid.UUID) (history.Entry, error) {
	rows, err := s.pool.Query(ctx, selectColumns+`
	WHERE  id = $1`, id)
	if err != nil {
		return history.Entry{}, fmt.Errorf("history store: get: %w", err)
	}
	e, err := pgx.CollectExactlyOneRow(rows, scanEntry)
	if errors.Is(err, pgx.ErrNoRows) {
		return history.Entry{}, history.ErrNotFound
	}
	if err != nil {
		return history.Entry{}, fmt.Errorf("history store: get: %w", err)
	}
	return e, nil
}

func scanEntry(row pgx.CollectableRow) (history.Entry, error) {
	var e history.Entry
	err := row.Scan(
		&e.ID,
		&e.CreatedAt,
		&e.Source,
		&e.Provider,
		&e.Mode,
		&e.Text,
		&e.Summary,
		&e.AudioSeconds,
		&e.TotalSegments,
		&e.FailedSegments,
	)
	return e, err
}
