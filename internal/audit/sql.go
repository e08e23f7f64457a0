package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLStore persists entries to a SQL database via database/sql, grounded
// on the teacher's pkg/db.Pool (pkg/db/pool.go): same
// sql.Open/SetMaxOpenConns/SetMaxIdleConns/PingContext fail-fast startup
// sequence, narrowed from a generic connection-pool component down to
// the one table this audit sink needs.
type SQLStore struct {
	db *sql.DB
}

// maxOpenConns, maxIdleConns and connMaxLifetime mirror the teacher's
// DefaultPoolConfig sizing, scaled down for an audit sink's low write
// volume.
const (
	maxOpenConns    = 4
	maxIdleConns    = 2
	connMaxLifetime = 5 * time.Minute
)

// NewSQLiteStore opens (creating if needed) a sqlite-backed audit table
// at dsn, the default driver for local/single-node runs.
func NewSQLiteStore(dsn string) (*SQLStore, error) {
	return newSQLStore("sqlite3", dsn, sqliteSchema)
}

const sqliteSchema = `CREATE TABLE IF NOT EXISTS audit_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ts INTEGER NOT NULL,
	command TEXT NOT NULL,
	arg TEXT NOT NULL,
	result TEXT NOT NULL
)`

func newSQLStore(driver, dsn, schema string) (*SQLStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("audit: dsn cannot be empty")
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", driver, err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: ping %s: %w", driver, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: create schema: %w", err)
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Record(ctx context.Context, e Entry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (ts, command, arg, result) VALUES (?, ?, ?, ?)`,
		e.Time.UnixNano(), e.Command, e.Arg, e.Result)
	return err
}

func (s *SQLStore) Close() error { return s.db.Close() }
