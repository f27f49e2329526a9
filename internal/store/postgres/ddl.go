package postgres

import (
	"context"
	"database/sql"
)

// Schema statements. Compose-managed migrations apply these in production;
// EnsureSchema exists for local bootstrap.
var ddl = []string{
	`CREATE TABLE IF NOT EXISTS users (
        user_id TEXT PRIMARY KEY,
        email TEXT NOT NULL UNIQUE,
        time_zone TEXT NOT NULL DEFAULT 'UTC',
        status TEXT NOT NULL DEFAULT 'ACTIVE',
        daily_quota INTEGER NOT NULL DEFAULT 25,
        quota_used INTEGER NOT NULL DEFAULT 0,
        creation_time TIMESTAMPTZ NOT NULL DEFAULT now(),
        last_active_time TIMESTAMPTZ
    )`,
	`CREATE TABLE IF NOT EXISTS readings (
        reading_id TEXT PRIMARY KEY,
        user_id TEXT NOT NULL REFERENCES users(user_id),
        reading_type TEXT NOT NULL,
        reading_date TEXT NOT NULL,
        highlights JSONB,
        guidance JSONB,
        auspicious JSONB,
        inauspicious JSONB,
        content JSONB,
        is_saved BOOLEAN NOT NULL DEFAULT FALSE,
        is_read BOOLEAN NOT NULL DEFAULT FALSE,
        user_feedback TEXT,
        rating INTEGER,
        model_id TEXT NOT NULL DEFAULT '',
        tokens_used INTEGER NOT NULL DEFAULT 0,
        generation_ms INTEGER NOT NULL DEFAULT 0,
        prompt_version TEXT NOT NULL DEFAULT '',
        published BOOLEAN NOT NULL DEFAULT TRUE,
        generated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
        creation_time TIMESTAMPTZ NOT NULL DEFAULT now(),
        update_time TIMESTAMPTZ NOT NULL DEFAULT now(),
        UNIQUE (user_id, reading_date, reading_type)
    )`,
	`CREATE INDEX IF NOT EXISTS readings_user_date_idx
        ON readings (user_id, reading_date DESC)`,
}

// EnsureSchema creates the tables when they do not exist yet.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range ddl {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
