package tcp

import "sync/atomic"

// BackpressureController bounds the number of connections in flight.
// A slot is taken on accept and given back when the connection's job
// finishes, so queued and executing connections both count.
type BackpressureController struct {
	capacity int64
	inFlight atomic.Int64
	rejected atomic.Int64
}

// NewBackpressureController creates a controller admitting at most capacity
// connections at once.
func NewBackpressureController(capacity int) *BackpressureController {
	if capacity < 1 {
		capacity = 1
	}
	return &BackpressureController{capacity: int64(capacity)}
}

// TryAcquire takes a slot without blocking.
// It returns false, and counts a rejection, when every slot is held.
func (bc *BackpressureController) TryAcquire() bool {
	for {
		current := bc.inFlight.Load()
		if current >= bc.capacity {
			bc.rejected.Add(1)
			return false
		}
		if bc.inFlight.CompareAndSwap(current, current+1) {
			return true
		}
	}
}

// Release gives a slot back.
func (bc *BackpressureController) Release() {
	if bc.inFlight.Add(-1) < 0 {
		bc.inFlight.Store(0)
	}
}

// GetMetrics returns current backpressure metrics.
func (bc *BackpressureController) GetMetrics() BackpressureMetrics {
	inFlight := bc.inFlight.Load()
	return BackpressureMetrics{
		Capacity:    bc.capacity,
		InFlight:    inFlight,
		Rejected:    bc.rejected.Load(),
		Utilization: float64(inFlight) / float64(bc.capacity) * 100,
	}
}

// BackpressureMetrics provides backpressure statistics.
type BackpressureMetrics struct {
	Capacity    int64   `json:"capacity"`
	InFlight    int64   `json:"in_flight"`
	Rejected    int64   `json:"rejected"`
	Utilization float64 `json:"utilization"` // percent of capacity
}
