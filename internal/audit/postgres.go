package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists entries to Postgres via pgxpool, grounded on
// krew-solutions-ascetic-ddd-go's asceticddd/session/pgx package:
// acquire-a-connection-per-call against a shared *pgxpool.Pool, rather
// than the teacher's database/sql-based pkg/db.Pool, since pgx is the
// driver this tree standardizes on (see the dropped-lib/pq note in
// DESIGN.md).
type PostgresStore struct {
	pool *pgxpool.Pool
}

const postgresSchema = `CREATE TABLE IF NOT EXISTS audit_log (
	id BIGSERIAL PRIMARY KEY,
	ts BIGINT NOT NULL,
	command TEXT NOT NULL,
	arg TEXT NOT NULL,
	result TEXT NOT NULL
)`

// NewPostgresStore opens a pgxpool against dsn and ensures the audit_log
// table exists, for multi-node deployments sharing one audit trail.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("audit: dsn cannot be empty")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("audit: open postgres: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("audit: ping postgres: %w", err)
	}
	if _, err := pool.Exec(pingCtx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("audit: create schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Record(ctx context.Context, e Entry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO audit_log (ts, command, arg, result) VALUES ($1, $2, $3, $4)`,
		e.Time.UnixNano(), e.Command, e.Arg, e.Result)
	return err
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
