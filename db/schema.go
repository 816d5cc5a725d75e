package db

import (
	"context"
	"fmt"

	"devrank/logger"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS profiles (
		login                 TEXT PRIMARY KEY,
		id                    BIGINT NOT NULL,
		avatar_url            TEXT NOT NULL DEFAULT '',
		html_url              TEXT NOT NULL DEFAULT '',
		name                  TEXT NOT NULL DEFAULT '',
		company               TEXT NOT NULL DEFAULT '',
		blog                  TEXT NOT NULL DEFAULT '',
		location              TEXT NOT NULL DEFAULT '',
		email                 TEXT NOT NULL DEFAULT '',
		bio                   TEXT NOT NULL DEFAULT '',
		public_repos          INTEGER NOT NULL CHECK (public_repos >= 0),
		public_gists          INTEGER NOT NULL CHECK (public_gists >= 0),
		followers             INTEGER NOT NULL CHECK (followers >= 0),
		following             INTEGER NOT NULL CHECK (following >= 0),
		created_at            TIMESTAMPTZ NOT NULL,
		recent_activity_count INTEGER,
		activity_source       TEXT NOT NULL DEFAULT '',
		total_stars           INTEGER,
		updated_at            TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS snapshots (
		id          UUID PRIMARY KEY,
		location    TEXT NOT NULL,
		sort        TEXT NOT NULL,
		page        INTEGER NOT NULL,
		total_count INTEGER NOT NULL,
		hydration   TEXT NOT NULL,
		captured_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS snapshots_location_sort_idx
		ON snapshots (lower(location), sort, captured_at DESC)`,
	`CREATE TABLE IF NOT EXISTS snapshot_entries (
		snapshot_id  UUID NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
		position     INTEGER NOT NULL,
		login        TEXT NOT NULL REFERENCES profiles(login),
		followers    INTEGER NOT NULL,
		public_repos INTEGER NOT NULL,
		PRIMARY KEY (snapshot_id, position)
	)`,
}

// Migrate creates the snapshot tables if they do not exist
func (db *DB) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	logger.Info("Database schema is up to date")
	return nil
}
