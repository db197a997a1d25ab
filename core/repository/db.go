// Package repository exports run results to Postgres. The run tracker
// never reads from it; it is an export target only.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Querier is the subset of *sql.DB used by the repositories.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// DB wraps the Postgres connection pool.
type DB struct {
	*sql.DB
}

// NewDB connects to url and verifies the connection.
func NewDB(url string) (*DB, error) {
	conn, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	conn.SetMaxOpenConns(4)
	conn.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &DB{DB: conn}, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS community_analyses (
		community        TEXT PRIMARY KEY,
		run_id           TEXT NOT NULL,
		weather_location TEXT NOT NULL DEFAULT '',
		generated_at     TIMESTAMPTZ NOT NULL,
		total_energy_gj  DOUBLE PRECISION NOT NULL,
		heating_load_gj  DOUBLE PRECISION NOT NULL,
		files_used       INTEGER NOT NULL,
		files_selected   INTEGER NOT NULL,
		alignment_error  TEXT NOT NULL DEFAULT '',
		result_json      JSONB NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS run_artifacts (
		id         BIGSERIAL PRIMARY KEY,
		run_id     TEXT NOT NULL,
		community  TEXT NOT NULL,
		type       TEXT NOT NULL,
		uri        TEXT NOT NULL,
		meta_json  JSONB NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS run_artifacts_run_id_idx ON run_artifacts (run_id)`,
}

// Migrate creates the export tables when they do not exist.
func Migrate(ctx context.Context, q Querier) error {
	for _, stmt := range schema {
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
