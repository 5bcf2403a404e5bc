package sink

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fluxorio/symphony/pkg/core"
	"github.com/fluxorio/symphony/pkg/db"
	"github.com/fluxorio/symphony/pkg/threadpool"
)

// SQL audits results through database/sql (sqlite3 or postgres).
type SQL struct {
	pool   *db.Pool
	table  string
	insert string
	lookup string
}

// NewSQL audits into table on pool. An empty table means DefaultTable.
func NewSQL(pool *db.Pool, table string) (*SQL, error) {
	if pool == nil {
		return nil, core.Errorf(core.CodeInvalidInput, "pool cannot be nil")
	}
	table, err := checkTable(table)
	if err != nil {
		return nil, err
	}
	driver := pool.Driver()
	return &SQL{
		pool:   pool,
		table:  table,
		insert: fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, columns, db.Placeholders(driver, 9)),
		lookup: fmt.Sprintf("SELECT %s FROM %s WHERE job_id = %s", columns, table, db.Placeholder(driver, 1)),
	}, nil
}

// Name implements the handler naming used in metrics.
func (s *SQL) Name() string { return "sql" }

// EnsureSchema creates the audit table if it does not exist.
func (s *SQL) EnsureSchema(ctx context.Context) error {
	idType := "INTEGER PRIMARY KEY AUTOINCREMENT"
	tsType := "TIMESTAMP"
	if s.pool.Driver() == db.DriverPostgres {
		idType = "BIGSERIAL PRIMARY KEY"
		tsType = "TIMESTAMPTZ"
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id %s,
	job_id TEXT NOT NULL UNIQUE,
	job_name TEXT NOT NULL,
	worker_id INTEGER NOT NULL,
	request TEXT NOT NULL,
	response TEXT NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	duration_ms BIGINT NOT NULL,
	started_at %s NOT NULL,
	finished_at %s NOT NULL
)`, s.table, idType, tsType, tsType)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create audit table %s: %w", s.table, err)
	}
	return nil
}

// Handle implements threadpool.ResultHandler
func (s *SQL) Handle(ctx context.Context, r threadpool.JobResult) error {
	if _, err := s.pool.Exec(ctx, s.insert, NewRecord(r).args()...); err != nil {
		return fmt.Errorf("audit job %s: %w", r.JobID, err)
	}
	return nil
}

// Lookup returns the audit record of jobID.
func (s *SQL) Lookup(ctx context.Context, jobID string) (Record, error) {
	var rec Record
	err := s.pool.QueryRow(ctx, s.lookup, jobID).Scan(
		&rec.JobID, &rec.JobName, &rec.WorkerID, &rec.Request, &rec.Response,
		&rec.Error, &rec.DurationMs, &rec.StartedAt, &rec.FinishedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("lookup job %s: %w", jobID, err)
	}
	return rec, nil
}
