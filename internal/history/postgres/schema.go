package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlTranscripts = `
CREATE TABLE IF NOT EXISTS transcripts (
    id              UUID             PRIMARY KEY,
    created_at      TIMESTAMPTZ      NOT NULL DEFAULT now(),
    source          TEXT             NOT NULL DEFAULT '',
    provider        TEXT             NOT NULL DEFAULT '',
    mode            TEXT             NOT NULL DEFAULT '',
    text            TEXT             NOT NULL,
    summary         TEXT             NOT NULL DEFAULT '',
    audio_seconds   DOUBLE PRECISION NOT NULL DEFAULT 0,
    total_segments  INTEGER          NOT NULL DEFAULT 0,
    failed_segments INTEGER          NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_transcripts_created_at
    ON transcripts (created_at DESC);
`

// Migrate creates the transcripts table and its index if they do not exist.
// It is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlTranscripts); err != nil {
		return fmt.Errorf("migrate transcripts: %w", err)
	}
	return nil
}
