// Package storage provides the Postgres connection and repository
// implementations for the event store.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/trust-scanner/internal/config"
)

// PostgresDB wraps the pgxpool connection
type PostgresDB struct {
	pool *pgxpool.Pool
}

// NewPostgresDB creates a new Postgres database connection
func NewPostgresDB(cfg *config.DatabaseConfig) (*PostgresDB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}

	if cfg.MaxConnections > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConnections) // #nosec G115 - validated in config
	}
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &PostgresDB{pool: pool}, nil
}

// Close closes the database connection pool
func (db *PostgresDB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// Pool returns the underlying connection pool
func (db *PostgresDB) Pool() *pgxpool.Pool {
	return db.pool
}

// Ping checks if the database is reachable
func (db *PostgresDB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// Size returns the total on-disk size of the current database in bytes.
// Reported in run summaries.
func (db *PostgresDB) Size(ctx context.Context) (int64, error) {
	var size int64
	err := db.pool.QueryRow(ctx, `SELECT pg_database_size(current_database())`).Scan(&size)
	if err != nil {
		return 0, fmt.Errorf("failed to read database size: %w", err)
	}
	return size, nil
}

// AdvisoryLock is a session advisory lock pinned to a dedicated pool
// connection. The connection stays checked out until Release, so the pool
// cannot reap the locking session or run the unlock on a different one.
type AdvisoryLock struct {
	conn *pgxpool.Conn
	key  int64
}

// TryAdvisoryLock attempts to take a session advisory lock on a dedicated
// connection. Returns (nil, nil) when another session holds the lock. The
// scoring engine uses it to enforce single-writer discipline across runs.
func (db *PostgresDB) TryAdvisoryLock(ctx context.Context, key int64) (*AdvisoryLock, error) {
	conn, err := db.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, fmt.Errorf("failed to acquire advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, nil
	}
	return &AdvisoryLock{conn: conn, key: key}, nil
}

// Release unlocks on the holding session and returns its connection to
// the pool.
func (l *AdvisoryLock) Release(ctx context.Context) error {
	defer l.conn.Release()

	var released bool
	if err := l.conn.QueryRow(ctx, `SELECT pg_advisory_unlock($1)`, l.key).Scan(&released); err != nil {
		return fmt.Errorf("failed to release advisory lock: %w", err)
	}
	if !released {
		return fmt.Errorf("advisory lock %d was not held by this session", l.key)
	}
	return nil
}
