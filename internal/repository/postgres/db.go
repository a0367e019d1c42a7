package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xela07ax/spaceai-agentmesh/internal/infra"
)

// NewPool открывает пул и сразу проверяет доступность базы.
func NewPool(ctx context.Context, cfg infra.DatabaseConfig) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse url: %w", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pcfg.MinConns = cfg.MinConns
	}
	pcfg.MaxConnLifetime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return pool, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS chat_sessions (
	session_id  TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL,
	status      TEXT NOT NULL,
	start_time  TIMESTAMPTZ NOT NULL,
	end_time    TIMESTAMPTZ,
	snapshot    JSONB NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS session_summaries (
	log_id      TEXT PRIMARY KEY,
	session_id  TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	summary     JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS session_summaries_created_at_idx ON session_summaries (created_at DESC);

CREATE TABLE IF NOT EXISTS access_audit (
	ts          TEXT PRIMARY KEY,
	action      TEXT NOT NULL,
	agent_id    TEXT NOT NULL,
	data_type   TEXT NOT NULL,
	summary     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS bridge_grants (
	agent_id    TEXT NOT NULL,
	data_type   TEXT NOT NULL,
	effect      TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (agent_id, data_type)
);
`

// Migrate создает таблицы, если их нет. Идемпотентно.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}
