package threadpool

import (
	"context"
	"sync/atomic"

	"go.opentelemetry.io/otel/trace"

	"github.com/fluxorio/symphony/pkg/core"
	"github.com/fluxorio/symphony/pkg/observability/prometheus"
)

const (
	roleWorker  = "worker"
	roleWatcher = "watcher"

	queueWork   = "work"
	queueResult = "result"

	tracerName = "github.com/fluxorio/symphony/pkg/threadpool"
)

// poolState is shared by both pools of one ThreadPool.
type poolState struct {
	ctx     context.Context
	logger  core.Logger
	metrics *prometheus.Metrics
	tracer  trace.Tracer

	submitted    atomic.Int64
	rejected     atomic.Int64
	completed    atomic.Int64
	failed       atomic.Int64
	delivered    atomic.Int64
	handled      atomic.Int64
	busyWorkers  atomic.Int64
	busyWatchers atomic.Int64
}

func (s *poolState) busy(role string, delta int) {
	if role == roleWorker {
		s.busyWorkers.Add(int64(delta))
	} else {
		s.busyWatchers.Add(int64(delta))
	}
	s.metrics.AddBusy(role, delta)
}
