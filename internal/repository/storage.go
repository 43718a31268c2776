package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/AlekseyZapadovnikov/tracker-analytics/conf"
)

// DBPool описывает минимальный интерфейс пула подключений к PostgreSQL.
type DBPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// Storage хранит архив прогонов анализа. Движок анализа его не читает.
type Storage struct {
	pool DBPool
}

// NewStorage создаёт пул подключений к PostgreSQL, проверяет соединение и схему.
func NewStorage(ctx context.Context, cfg *conf.DbConf) (*Storage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is nil")
	}
	connStr := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Name,
	)

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Storage{pool: pool}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema создаёт таблицы архива, если их ещё нет.
func (s *Storage) EnsureSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS analysis_runs (
	run_id        UUID PRIMARY KEY,
	project       TEXT NOT NULL,
	jql           TEXT NOT NULL DEFAULT '',
	started_at    TIMESTAMPTZ NOT NULL,
	snapshot_now  TIMESTAMPTZ NOT NULL,
	finished_at   TIMESTAMPTZ NOT NULL,
	issue_count   INTEGER NOT NULL,
	closed_count  INTEGER NOT NULL,
	warning_count INTEGER NOT NULL,
	report        JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS analysis_runs_project_idx ON analysis_runs (project, finished_at DESC);
CREATE TABLE IF NOT EXISTS analysis_run_warnings (
	run_id    UUID NOT NULL REFERENCES analysis_runs (run_id) ON DELETE CASCADE,
	kind      TEXT NOT NULL,
	issue_key TEXT NOT NULL DEFAULT '',
	message   TEXT NOT NULL
);`
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Close закрывает пул подключений, когда он больше не нужен.
func (s *Storage) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}
