package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS admins (
		username      TEXT PRIMARY KEY,
		password_hash TEXT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE TABLE IF NOT EXISTS projects (
		id            TEXT PRIMARY KEY,
		password_hash TEXT NOT NULL,
		name          TEXT NOT NULL,
		status        TEXT NOT NULL DEFAULT 'New',
		price         NUMERIC(14,2) NOT NULL DEFAULT 0 CHECK (price >= 0),
		paid_amount   NUMERIC(14,2) NOT NULL DEFAULT 0 CHECK (paid_amount >= 0),
		deadline      TIMESTAMPTZ NULL,
		version       BIGINT NOT NULL DEFAULT 1,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE TABLE IF NOT EXISTS project_stages (
		project_id TEXT NOT NULL REFERENCES projects(id),
		position   INT  NOT NULL,
		title      TEXT NOT NULL,
		done       BOOLEAN NOT NULL DEFAULT false,
		PRIMARY KEY (project_id, position)
	);`,
	`CREATE TABLE IF NOT EXISTS messages (
		seq             BIGSERIAL PRIMARY KEY,
		id              TEXT UNIQUE NOT NULL,
		project_id      TEXT NOT NULL REFERENCES projects(id),
		sender          TEXT NOT NULL,
		content         TEXT NOT NULL DEFAULT '',
		attachment_url  TEXT NULL,
		attachment_type TEXT NULL,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE INDEX IF NOT EXISTS messages_project_idx ON messages (project_id, created_at, seq);`,
	`CREATE TABLE IF NOT EXISTS uploads (
		object_key   TEXT PRIMARY KEY,
		url          TEXT NOT NULL,
		filename     TEXT NOT NULL,
		content_type TEXT NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE TABLE IF NOT EXISTS payments (
		event_id   TEXT PRIMARY KEY,
		project_id TEXT NOT NULL REFERENCES projects(id),
		amount     NUMERIC(14,2) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE TABLE IF NOT EXISTS todos (
		id         TEXT PRIMARY KEY,
		text       TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
}

// Migrate creates the schema. Statements are idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, s := range schema {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("migrate stmt %d: %w", i, err)
		}
	}
	return nil
}
