package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pgx connection pool using the provided DSN.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 8
	cfg.MaxConnIdleTime = 5 * time.Minute
	return pgxpool.NewWithConfig(ctx, cfg)
}

// EnsureSchema creates the videos and conversion_jobs tables if needed.
// Keeping the migration in code lets docker-compose bootstrap everything.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	const stmt = `
CREATE TABLE IF NOT EXISTS videos (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	exercise TEXT NOT NULL,
	artifact_path TEXT NOT NULL,
	public_url TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	reviewer_id TEXT,
	feedback TEXT,
	reviewed_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_videos_user ON videos(user_id);
CREATE INDEX IF NOT EXISTS idx_videos_status ON videos(status);
CREATE TABLE IF NOT EXISTS conversion_jobs (
	id TEXT PRIMARY KEY,
	video_id TEXT NOT NULL,
	source_path TEXT NOT NULL,
	dest_hint TEXT NOT NULL,
	status TEXT NOT NULL,
	final_path TEXT,
	converted BOOLEAN NOT NULL DEFAULT FALSE,
	error_message TEXT,
	options JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON conversion_jobs(status);`
	_, err := pool.Exec(ctx, stmt)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
