package sink

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fluxorio/symphony/pkg/threadpool"
)

// Pgx audits results into Postgres through a native pgx pool.
type Pgx struct {
	pool   *pgxpool.Pool
	table  string
	insert string
	lookup string
}

// ConnectPgx opens a pgx pool and checks it is reachable.
func ConnectPgx(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pgx dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect pgx: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping pgx: %w", err)
	}
	return pool, nil
}

// NewPgx audits into table on pool. An empty table means DefaultTable.
func NewPgx(pool *pgxpool.Pool, table string) (*Pgx, error) {
	if pool == nil {
		return nil, errors.New("pgx pool cannot be nil")
	}
	table, err := checkTable(table)
	if err != nil {
		return nil, err
	}
	return &Pgx{
		pool:   pool,
		table:  table,
		insert: fmt.Sprintf("INSERT INTO %s (%s) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)", table, columns),
		lookup: fmt.Sprintf("SELECT %s FROM %s WHERE job_id = $1", columns, table),
	}, nil
}

// Name implements the handler naming used in metrics.
func (s *Pgx) Name() string { return "pgx" }

// EnsureSchema creates the audit table if it does not exist.
func (s *Pgx) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	job_id TEXT NOT NULL UNIQUE,
	job_name TEXT NOT NULL,
	worker_id INTEGER NOT NULL,
	request TEXT NOT NULL,
	response TEXT NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	duration_ms BIGINT NOT NULL,
	started_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create audit table %s: %w", s.table, err)
	}
	return nil
}

// Handle implements threadpool.ResultHandler
func (s *Pgx) Handle(ctx context.Context, r threadpool.JobResult) error {
	if _, err := s.pool.Exec(ctx, s.insert, NewRecord(r).args()...); err != nil {
		return fmt.Errorf("audit job %s: %w", r.JobID, err)
	}
	return nil
}

// Lookup returns the audit record of jobID.
func (s *Pgx) Lookup(ctx context.Context, jobID string) (Record, error) {
	var rec Record
	err := s.pool.QueryRow(ctx, s.lookup, jobID).Scan(
		&rec.JobID, &rec.JobName, &rec.WorkerID, &rec.Request, &rec.Response,
		&rec.Error, &rec.DurationMs, &rec.StartedAt, &rec.FinishedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("lookup job %s: %w", jobID, err)
	}
	return rec, nil
}
