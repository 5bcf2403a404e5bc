// Package sink holds the result handlers the watchers run: a console log,
// audit stores (database/sql and pgx) and a NATS publisher.
package sink

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/fluxorio/symphony/pkg/threadpool"
)

// ErrNotFound is returned by Lookup for an unknown job id.
var ErrNotFound = errors.New("audit record not found")

// DefaultTable is the audit table used when none is configured.
const DefaultTable = "job_results"

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

func checkTable(table string) (string, error) {
	if table == "" {
		return DefaultTable, nil
	}
	if !tableName.MatchString(table) {
		return "", fmt.Errorf("invalid audit table name %q", table)
	}
	return table, nil
}

// Record is one audited job result.
type Record struct {
	JobID      string    `json:"job_id"`
	JobName    string    `json:"job_name"`
	WorkerID   int       `json:"worker_id"`
	Request    string    `json:"request"`
	Response   string    `json:"response"`
	Error      string    `json:"error,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// NewRecord flattens a result into its audit row.
func NewRecord(r threadpool.JobResult) Record {
	return Record{
		JobID:      r.JobID,
		JobName:    r.JobName,
		WorkerID:   r.WorkerID,
		Request:    r.Request,
		Response:   r.Response,
		Error:      r.Err,
		DurationMs: r.Duration.Milliseconds(),
		StartedAt:  r.Started.UTC(),
		FinishedAt: r.Started.Add(r.Duration).UTC(),
	}
}

// columns in insert order.
const columns = "job_id, job_name, worker_id, request, response, error, duration_ms, started_at, finished_at"

func (r Record) args() []interface{} {
	return []interface{}{r.JobID, r.JobName, r.WorkerID, r.Request, r.Response, r.Error, r.DurationMs, r.StartedAt, r.FinishedAt}
}
