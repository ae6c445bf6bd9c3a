// Package sqlqueue is the durable Queue backend. It is modeled directly on
// the teacher's pgxpool-backed Store: a pooled connection, transactional
// gating via WithTransaction, and SKIP LOCKED row claiming. Table and
// column names follow the spec's Oracle-illustrative contract
// (ORACLE_TABLE, defaulting to MICRO_SVC); the engine depends only on
// "atomic claim via row locking," which pgx/Postgres demonstrates just as
// well as the spec's illustrative Oracle SQL.
package sqlqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store owns the connection pool backing the durable queue.
type Store struct {
	pool      *pgxpool.Pool
	tableName string
}

// Config configures the durable backend.
type Config struct {
	// ConnString is a pgx connection string (derived from ORACLE_DSN /
	// ORACLE_USER / ORACLE_PASSWORD by the application wiring in
	// internal/app).
	ConnString string
	// TableName is the queue table (ORACLE_TABLE, default MICRO_SVC).
	TableName   string
	MaxConns    int32
	MinConns    int32
	MaxConnLife time.Duration
}

func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnString)
	if err != nil {
		return nil, fmt.Errorf("sqlqueue: parse connection string: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLife > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLife
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("sqlqueue: connect: %w", err)
	}

	tableName := cfg.TableName
	if tableName == "" {
		tableName = "MICRO_SVC"
	}

	return &Store{pool: pool, tableName: tableName}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
