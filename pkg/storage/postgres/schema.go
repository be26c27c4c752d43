package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is applied statement by statement; every statement is idempotent
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id                 BIGSERIAL PRIMARY KEY,
		username           VARCHAR(30) NOT NULL,
		email              VARCHAR(255) NOT NULL,
		password_hash      VARCHAR(255) NOT NULL,
		refresh_token_hash CHAR(64),
		created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT users_email_key UNIQUE (email),
		CONSTRAINT users_username_key UNIQUE (username)
	)`,
	`CREATE TABLE IF NOT EXISTS usage_logs (
		id            BIGSERIAL PRIMARY KEY,
		user_id       BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		app_name      VARCHAR(100) NOT NULL,
		minutes_spent DOUBLE PRECISION NOT NULL CHECK (minutes_spent >= 0 AND minutes_spent <= 1440),
		date          DATE NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS usage_logs_user_date_idx ON usage_logs (user_id, date)`,
	`CREATE INDEX IF NOT EXISTS usage_logs_date_idx ON usage_logs (date)`,
	`CREATE TABLE IF NOT EXISTS risk_snapshots (
		user_id               BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		date                  DATE NOT NULL,
		value                 DOUBLE PRECISION NOT NULL,
		level                 VARCHAR(16) NOT NULL,
		weekly_total_minutes  DOUBLE PRECISION NOT NULL,
		average_daily_minutes DOUBLE PRECISION NOT NULL,
		trend                 VARCHAR(16) NOT NULL,
		created_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (user_id, date)
	)`,
}

// EnsureSchema creates the tables and indexes if they do not exist
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i, err)
		}
	}
	return nil
}
