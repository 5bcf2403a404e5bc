package threadpool

// Stats is a point-in-time snapshot of pool activity.
type Stats struct {
	Workers       int   `json:"workers"`
	Watchers      int   `json:"watchers"`
	BusyWorkers   int64 `json:"busy_workers"`
	BusyWatchers  int64 `json:"busy_watchers"`
	QueuedJobs    int   `json:"queued_jobs"`
	QueuedResults int   `json:"queued_results"`
	QueueCapacity int   `json:"queue_capacity"`
	Submitted     int64 `json:"submitted"`
	Rejected      int64 `json:"rejected"`
	Completed     int64 `json:"completed"`
	Failed        int64 `json:"failed"`
	Delivered     int64 `json:"delivered"`
	Handled       int64 `json:"handled"`
	Running       bool  `json:"running"`
}

// Stats returns current counters. Queue lengths include pending stop requests
// while the pool is shutting down.
func (p *ThreadPool) Stats() Stats {
	s := p.state
	return Stats{
		Workers:       p.size,
		Watchers:      p.size,
		BusyWorkers:   s.busyWorkers.Load(),
		BusyWatchers:  s.busyWatchers.Load(),
		QueuedJobs:    p.workers.queue.Size(),
		QueuedResults: p.watchers.queue.Size(),
		QueueCapacity: p.workers.queue.Capacity(),
		Submitted:     s.submitted.Load(),
		Rejected:      s.rejected.Load(),
		Completed:     s.completed.Load(),
		Failed:        s.failed.Load(),
		Delivered:     s.delivered.Load(),
		Handled:       s.handled.Load(),
		Running:       p.Running(),
	}
}
