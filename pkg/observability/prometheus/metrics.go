package prometheus

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// DefaultRegistry is the registry the symphony binary exposes on /metrics.
	DefaultRegistry = prometheus.NewRegistry()

	// DefaultRegisterer labels every series with the service name.
	DefaultRegisterer = prometheus.WrapRegistererWith(prometheus.Labels{"service": "symphony"}, DefaultRegistry)

	metricsOnce sync.Once
	metrics     *Metrics
)

// Job and handler outcome labels.
const (
	StatusOK    = "ok"
	StatusError = "error"
	StatusPanic = "panic"
)

// Metrics holds the thread pool and listener series.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Work side
	JobsSubmitted prometheus.Counter
	JobsRejected  prometheus.Counter
	JobsCompleted *prometheus.CounterVec
	JobDuration   prometheus.Histogram

	// Watch side
	ResultsDelivered prometheus.Counter
	ResultsHandled   *prometheus.CounterVec
	WatchDuration    prometheus.Histogram

	// Pool shape
	QueueDepth  *prometheus.GaugeVec
	PoolThreads *prometheus.GaugeVec
	BusyThreads *prometheus.GaugeVec

	// Listener
	Connections *prometheus.CounterVec
}

// GetMetrics returns the metrics registered on DefaultRegisterer.
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		DefaultRegistry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metrics = NewMetrics(DefaultRegisterer)
	})
	return metrics
}

// NewMetrics creates a metrics collection registered on registerer.
// Tests pass a fresh prometheus.NewRegistry() to stay isolated.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &Metrics{
		JobsSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "symphony_jobs_submitted_total",
			Help: "Total number of jobs accepted onto the work queue",
		}),
		JobsRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "symphony_jobs_rejected_total",
			Help: "Total number of jobs rejected because the work queue was full",
		}),
		JobsCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "symphony_jobs_completed_total",
			Help: "Total number of jobs executed by workers",
		}, []string{"status"}),
		JobDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "symphony_job_duration_seconds",
			Help:    "Job execution time in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),

		ResultsDelivered: factory.NewCounter(prometheus.CounterOpts{
			Name: "symphony_results_delivered_total",
			Help: "Total number of job results handed to the watcher pool",
		}),
		ResultsHandled: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "symphony_results_handled_total",
			Help: "Total number of result handler invocations by watchers",
		}, []string{"handler", "status"}),
		WatchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "symphony_result_watch_duration_seconds",
			Help:    "Time a watcher spent post-processing one result",
			Buckets: prometheus.DefBuckets,
		}),

		QueueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "symphony_queue_depth",
			Help: "Items waiting in a pool queue",
		}, []string{"queue"}),
		PoolThreads: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "symphony_pool_threads",
			Help: "Live worker and watcher goroutines",
		}, []string{"role"}),
		BusyThreads: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "symphony_pool_busy_threads",
			Help: "Workers executing a job or watchers processing a result",
		}, []string{"role"}),

		Connections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "symphony_connections_total",
			Help: "Connections seen by the listener",
		}, []string{"outcome"}),
	}
}

// RecordSubmitted counts a job accepted onto the work queue.
func (m *Metrics) RecordSubmitted() {
	if m == nil {
		return
	}
	m.JobsSubmitted.Inc()
}

// RecordRejected counts a job refused by a full queue.
func (m *Metrics) RecordRejected() {
	if m == nil {
		return
	}
	m.JobsRejected.Inc()
}

// RecordJob records one executed job.
func (m *Metrics) RecordJob(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.JobsCompleted.WithLabelValues(status).Inc()
	m.JobDuration.Observe(duration.Seconds())
}

// RecordDelivered counts a result placed on the result queue.
func (m *Metrics) RecordDelivered() {
	if m == nil {
		return
	}
	m.ResultsDelivered.Inc()
}

// RecordHandled records one result handler invocation.
func (m *Metrics) RecordHandled(handler, status string) {
	if m == nil {
		return
	}
	m.ResultsHandled.WithLabelValues(handler, status).Inc()
}

// RecordWatch records the total post-processing time of one result.
func (m *Metrics) RecordWatch(duration time.Duration) {
	if m == nil {
		return
	}
	m.WatchDuration.Observe(duration.Seconds())
}

// SetQueueDepth updates the depth of the "work" or "result" queue.
func (m *Metrics) SetQueueDepth(queue string, depth int) {
	if m == nil {
		return
	}
	m.QueueDepth.WithLabelValues(queue).Set(float64(depth))
}

// SetThreads updates the live goroutine count for "worker" or "watcher".
func (m *Metrics) SetThreads(role string, n int) {
	if m == nil {
		return
	}
	m.PoolThreads.WithLabelValues(role).Set(float64(n))
}

// AddBusy moves the busy gauge for role by delta.
func (m *Metrics) AddBusy(role string, delta int) {
	if m == nil {
		return
	}
	m.BusyThreads.WithLabelValues(role).Add(float64(delta))
}

// RecordConnection counts a listener connection by outcome.
func (m *Metrics) RecordConnection(outcome string) {
	if m == nil {
		return
	}
	m.Connections.WithLabelValues(outcome).Inc()
}

// Handler serves gatherer in the Prometheus exposition format.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		gatherer = DefaultRegistry
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
