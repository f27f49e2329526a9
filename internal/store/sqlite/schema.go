package sqlite

import (
	"context"
	"database/sql"
)

var ddl = []string{
	`CREATE TABLE IF NOT EXISTS users (
        user_id TEXT PRIMARY KEY,
        email TEXT NOT NULL UNIQUE,
        time_zone TEXT NOT NULL,
        status TEXT NOT NULL,
        daily_quota INTEGER NOT NULL,
        quota_used INTEGER NOT NULL DEFAULT 0,
        creation_time TIMESTAMP NOT NULL,
        last_active_time TIMESTAMP
    );`,
	`CREATE TABLE IF NOT EXISTS readings (
        reading_id TEXT PRIMARY KEY,
        user_id TEXT NOT NULL,
        reading_type TEXT NOT NULL,
        reading_date TEXT NOT NULL,
        highlights TEXT,
        guidance TEXT,
        auspicious TEXT,
        inauspicious TEXT,
        content TEXT,
        is_saved BOOLEAN NOT NULL DEFAULT 0,
        is_read BOOLEAN NOT NULL DEFAULT 0,
        user_feedback TEXT,
        rating INTEGER,
        model_id TEXT NOT NULL DEFAULT '',
        tokens_used INTEGER NOT NULL DEFAULT 0,
        generation_ms INTEGER NOT NULL DEFAULT 0,
        prompt_version TEXT NOT NULL DEFAULT '',
        published BOOLEAN NOT NULL DEFAULT 1,
        generated_at TIMESTAMP NOT NULL,
        creation_time TIMESTAMP NOT NULL,
        update_time TIMESTAMP NOT NULL,
        UNIQUE (user_id, reading_date, reading_type)
    );`,
	`CREATE INDEX IF NOT EXISTS readings_user_date_idx
        ON readings (user_id, reading_date DESC);`,
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
