package threadpool

import (
	"time"

	"go.opentelemetry.io/otel/trace"
)

type itemKind uint8

const (
	itemPayload itemKind = iota
	itemShutdown
)

// workItem is either a job to execute or a stop request for one worker.
type workItem struct {
	kind     itemKind
	job      Job
	id       string
	future   *Future
	enqueued time.Time
}

// resultItem is either a result to post-process or a stop request for one watcher.
type resultItem struct {
	kind   itemKind
	result JobResult
	span   trace.SpanContext
}
