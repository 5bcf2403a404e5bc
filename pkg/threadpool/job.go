package threadpool

import (
	"context"
	"time"

	"github.com/fluxorio/symphony/pkg/core/failfast"
)

// JobResult is the outcome of one job. Request and Response are opaque to
// the pool; the remaining fields are stamped by the worker that ran it.
type JobResult struct {
	Request  string `json:"request"`
	Response string `json:"response"`

	JobID    string        `json:"job_id"`
	JobName  string        `json:"job_name"`
	WorkerID int           `json:"worker_id"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Err      string        `json:"error,omitempty"`
}

// Failed reports whether the job returned an error or panicked.
func (r JobResult) Failed() bool {
	return r.Err != ""
}

// Job is a unit of work executed once by a worker.
// ctx is cancelled when the job's Future is cancelled or the pool is abandoned,
// and carries the job id as its request id.
type Job interface {
	Execute(ctx context.Context) (JobResult, error)
	Name() string
}

// JobFunc adapts a function to Job.
type JobFunc func(ctx context.Context) (JobResult, error)

// Execute implements Job
func (f JobFunc) Execute(ctx context.Context) (JobResult, error) {
	return f(ctx)
}

// Name implements Job
func (f JobFunc) Name() string {
	return "JobFunc"
}

type namedJob struct {
	name string
	fn   JobFunc
}

// NewNamedJob creates a job reported under name in logs, metrics and results.
func NewNamedJob(name string, fn JobFunc) Job {
	failfast.NotNil(fn, "job function")
	return &namedJob{name: name, fn: fn}
}

func (j *namedJob) Execute(ctx context.Context) (JobResult, error) {
	return j.fn(ctx)
}

func (j *namedJob) Name() string {
	return j.name
}

// Func adapts a plain result-producing function that cannot fail.
func Func(fn func() JobResult) Job {
	failfast.NotNil(fn, "job function")
	return NewNamedJob("Func", func(context.Context) (JobResult, error) {
		return fn(), nil
	})
}
