package storage

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS faqs (
	question_norm TEXT PRIMARY KEY,
	answer        TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE TABLE IF NOT EXISTS chat_logs (
	id              UUID PRIMARY KEY,
	ts              TIMESTAMPTZ NOT NULL DEFAULT now(),
	session_id      TEXT NOT NULL,
	user_text       TEXT NOT NULL,
	answer          TEXT NOT NULL,
	source          TEXT NOT NULL,
	domain          TEXT NOT NULL DEFAULT '',
	used_rag        BOOLEAN NOT NULL DEFAULT FALSE,
	manual_override BOOLEAN NOT NULL DEFAULT FALSE,
	model           TEXT NOT NULL DEFAULT '',
	input_tokens    BIGINT NOT NULL DEFAULT 0,
	output_tokens   BIGINT NOT NULL DEFAULT 0,
	cached_tokens   BIGINT NOT NULL DEFAULT 0
)`,
	`CREATE INDEX IF NOT EXISTS chat_logs_session_ts ON chat_logs (session_id, ts)`,
}

// Migrate creates the tables if they do not exist.
func Migrate(ctx context.Context, db *DB) error {
	for _, stmt := range schema {
		if _, err := db.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
