// Package storage provides the PostgreSQL-backed stores for the product
// service: products, import jobs, badge rules, size charts, API keys, the
// inbound event idempotency ledger, and the dead letter log.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	// PostgreSQL driver registration.
	_ "github.com/lib/pq"
)

const (
	connectTimeout     = 10 * time.Second
	healthCheckTimeout = 5 * time.Second
)

var (
	// ErrNilConfig is returned when a nil configuration is provided.
	ErrNilConfig = errors.New("storage config cannot be nil")

	// ErrNoDatabaseConnection is returned when a store is created without a
	// database connection.
	ErrNoDatabaseConnection = errors.New("database connection is required")
)

// Connection wraps the shared connection pool. All stores in this package
// operate through one Connection created at startup.
type Connection struct {
	db  *sql.DB
	cfg *Config
}

// NewConnection opens a pooled connection to the configured database and
// verifies it with a ping.
func NewConnection(cfg *Config) (*Connection, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid storage config: %w", err)
	}

	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("failed to connect to database at %s: %w", cfg.MaskDSN(), err)
	}

	return &Connection{db: db, cfg: cfg}, nil
}

// NewConnectionFromDB wraps an existing database handle. Integration tests
// use it to reuse a container connection.
func NewConnectionFromDB(db *sql.DB, cfg *Config) (*Connection, error) {
	if db == nil {
		return nil, ErrNoDatabaseConnection
	}

	if cfg == nil {
		cfg = LoadConfig()
	}

	return &Connection{db: db, cfg: cfg}, nil
}

// QueryContext executes a query that returns rows.
func (c *Connection) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.db.QueryContext(ctx, query, args...)
}

// QueryRowContext executes a query that returns at most one row.
func (c *Connection) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return c.db.QueryRowContext(ctx, query, args...)
}

// ExecContext executes a statement without returning rows.
func (c *Connection) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.db.ExecContext(ctx, query, args...)
}

// BeginTx starts a transaction with the given options.
func (c *Connection) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	return c.db.BeginTx(ctx, opts)
}

// HealthCheck verifies the database is reachable within a bounded deadline.
func (c *Connection) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	return nil
}

// DB exposes the underlying handle for migrations and test setup.
func (c *Connection) DB() *sql.DB {
	return c.db
}

// Close releases the connection pool. Safe to call multiple times.
func (c *Connection) Close() error {
	if c.db == nil {
		return nil
	}

	return c.db.Close()
}
