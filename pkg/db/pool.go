// Package db wraps database/sql with a validated pool configuration and the
// per-driver details the audit sink needs.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/fluxorio/symphony/pkg/core"

	// Registered database/sql drivers.
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Supported database/sql driver names.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// PoolConfig configures a database connection pool
type PoolConfig struct {
	// DSN is the database connection string
	DSN string

	// DriverName is DriverSQLite or DriverPostgres
	DriverName string

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int

	// ConnMaxLifetime is the maximum amount of time a connection may be reused
	ConnMaxLifetime time.Duration

	// ConnMaxIdleTime is the maximum amount of time a connection may be idle
	ConnMaxIdleTime time.Duration

	// PingTimeout bounds the connectivity check in NewPool. Defaults to 5s.
	PingTimeout time.Duration
}

// DefaultPoolConfig returns the default configuration for driverName.
// SQLite gets a single connection that is never recycled, so an in-memory
// database lives as long as the pool.
func DefaultPoolConfig(dsn string, driverName string) PoolConfig {
	if driverName == DriverSQLite {
		return PoolConfig{
			DSN:          dsn,
			DriverName:   driverName,
			MaxOpenConns: 1,
			MaxIdleConns: 1,
			PingTimeout:  5 * time.Second,
		}
	}
	return PoolConfig{
		DSN:             dsn,
		DriverName:      driverName,
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 10 * time.Minute,
		PingTimeout:     5 * time.Second,
	}
}

// Validate checks the configuration without opening anything.
func (c PoolConfig) Validate() error {
	switch {
	case c.DSN == "":
		return core.Errorf(core.CodeInvalidConfig, "DSN cannot be empty")
	case c.DriverName != DriverSQLite && c.DriverName != DriverPostgres:
		return core.Errorf(core.CodeInvalidConfig, "unsupported driver %q", c.DriverName)
	case c.MaxOpenConns <= 0:
		return core.Errorf(core.CodeInvalidConfig, "MaxOpenConns must be positive")
	case c.MaxIdleConns < 0:
		return core.Errorf(core.CodeInvalidConfig, "MaxIdleConns cannot be negative")
	case c.MaxIdleConns > c.MaxOpenConns:
		return core.Errorf(core.CodeInvalidConfig, "MaxIdleConns cannot exceed MaxOpenConns")
	case c.ConnMaxLifetime < 0:
		return core.Errorf(core.CodeInvalidConfig, "ConnMaxLifetime cannot be negative")
	case c.ConnMaxIdleTime < 0:
		return core.Errorf(core.CodeInvalidConfig, "ConnMaxIdleTime cannot be negative")
	}
	return nil
}

// Pool represents a database connection pool
type Pool struct {
	db     *sql.DB
	config PoolConfig
}

// NewPool opens and pings a connection pool.
// Fail-fast: an invalid configuration or an unreachable database is an error here,
// not on the first query.
func NewPool(config PoolConfig) (*Pool, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	db, err := sql.Open(config.DriverName, config.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", config.DriverName, err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	timeout := config.PingTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", config.DriverName, err)
	}

	return &Pool{
		db:     db,
		config: config,
	}, nil
}

// Driver returns the database/sql driver name.
func (p *Pool) Driver() string {
	return p.config.DriverName
}

// Placeholder returns the bind parameter for the n-th argument (1-based).
func (p *Pool) Placeholder(n int) string {
	return Placeholder(p.config.DriverName, n)
}

// Placeholder returns the bind parameter syntax of driver for the n-th argument.
func Placeholder(driver string, n int) string {
	if driver == DriverPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// Placeholders returns "p1, p2, ..., pn" for driver.
func Placeholders(driver string, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = Placeholder(driver, i+1)
	}
	return strings.Join(parts, ", ")
}

// DB returns the underlying *sql.DB
// Fail-fast: Panics if pool is nil (invalid state)
func (p *Pool) DB() *sql.DB {
	if p == nil {
		panic("pool cannot be nil")
	}
	if p.db == nil {
		panic("pool.db cannot be nil - pool not initialized")
	}
	return p.db
}

// Close closes the connection pool
func (p *Pool) Close() error {
	if p == nil {
		return core.Errorf(core.CodeInvalidState, "pool cannot be nil")
	}
	if p.db == nil {
		return core.Errorf(core.CodeInvalidState, "pool already closed")
	}
	return p.db.Close()
}

func (p *Pool) check(ctx context.Context) error {
	if p == nil {
		return core.Errorf(core.CodeInvalidState, "pool cannot be nil")
	}
	if p.db == nil {
		return core.Errorf(core.CodeInvalidState, "pool not initialized")
	}
	if ctx == nil {
		return core.Errorf(core.CodeInvalidInput, "context cannot be nil")
	}
	return nil
}

// Ping tests the connection
func (p *Pool) Ping(ctx context.Context) error {
	if err := p.check(ctx); err != nil {
		return err
	}
	return p.db.PingContext(ctx)
}

// Stats returns pool statistics
func (p *Pool) Stats() sql.DBStats {
	if p == nil || p.db == nil {
		return sql.DBStats{}
	}
	return p.db.Stats()
}

// Query executes a query that returns rows
func (p *Pool) Query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	if err := p.check(ctx); err != nil {
		return nil, err
	}
	if query == "" {
		return nil, core.Errorf(core.CodeInvalidInput, "query cannot be empty")
	}
	return p.db.QueryContext(ctx, query, args...)
}

// QueryRow executes a query that returns a single row
// Fail-fast: Panics on invalid inputs since *sql.Row cannot carry them
func (p *Pool) QueryRow(ctx context.Context, query string, args ...interface{}) *sql.Row {
	if err := p.check(ctx); err != nil {
		panic(err)
	}
	if query == "" {
		panic("query cannot be empty")
	}
	return p.db.QueryRowContext(ctx, query, args...)
}

// Exec executes a command
func (p *Pool) Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	if err := p.check(ctx); err != nil {
		return nil, err
	}
	if query == "" {
		return nil, core.Errorf(core.CodeInvalidInput, "query cannot be empty")
	}
	return p.db.ExecContext(ctx, query, args...)
}
