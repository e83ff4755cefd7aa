// Package postgres mirrors ledger rows into a Postgres table so attempts from
// every scope can be queried with SQL.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/cbcr-finder/internal/ledger"
)

const defaultTable = "ledger_rows"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// LedgerStoreConfig controls the Postgres connection pool used for ledger rows.
type LedgerStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// LedgerStore writes ledger rows into Postgres.
type LedgerStore struct {
	pool  execCloser
	table string
}

// NewLedgerStore creates a Postgres-backed LedgerStore using the provided config.
func NewLedgerStore(ctx context.Context, cfg LedgerStoreConfig) (*LedgerStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &LedgerStore{pool: pool, table: table}, nil
}

// NewLedgerStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewLedgerStoreWithPool(pool execCloser, table string) (*LedgerStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &LedgerStore{pool: pool, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *LedgerStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the mirror table when it does not exist.
func (s *LedgerStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id          BIGSERIAL PRIMARY KEY,
	run_id      TEXT NOT NULL,
	target      TEXT NOT NULL,
	period      TEXT NOT NULL,
	url         TEXT NOT NULL,
	filename    TEXT NOT NULL,
	scope       TEXT NOT NULL,
	query       TEXT NOT NULL,
	status      TEXT NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// InsertRow appends one ledger row tagged with the run that produced it.
func (s *LedgerStore) InsertRow(ctx context.Context, runID string, row ledger.Row, at time.Time) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("ledger store is not configured")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	run_id,
	target,
	period,
	url,
	filename,
	scope,
	query,
	status,
	recorded_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9
)`, s.table)

	args := []any{
		runID,
		row.Target,
		row.Period,
		row.URL,
		row.Filename,
		row.Scope,
		row.Query,
		row.Status,
		at,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert ledger row: %w", err)
	}
	return nil
}
