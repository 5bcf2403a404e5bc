package sink

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fluxorio/symphony/pkg/threadpool"
)

// Log prints every result between connection banners.
type Log struct {
	mu sync.Mutex
	w  io.Writer
}

// NewLog writes to w, or to stdout when w is nil.
func NewLog(w io.Writer) *Log {
	if w == nil {
		w = os.Stdout
	}
	return &Log{w: w}
}

// Name implements the handler naming used in metrics.
func (l *Log) Name() string { return "log" }

// Handle implements threadpool.ResultHandler
func (l *Log) Handle(_ context.Context, r threadpool.JobResult) error {
	var b strings.Builder
	b.WriteString("---- new connection established ----\n")
	fmt.Fprintf(&b, "job %s (%s) on worker %d took %v\n", r.JobID, r.JobName, r.WorkerID, r.Duration)
	if r.Failed() {
		fmt.Fprintf(&b, "error: %s\n", r.Err)
	}
	b.WriteString(strings.TrimRight(r.Request, "\r\n"))
	b.WriteString("\n\n")
	b.WriteString(strings.TrimRight(r.Response, "\r\n"))
	b.WriteString("\n---- connection finished! ----\n")

	l.mu.Lock()
	defer l.mu.Unlock()
	_, err := io.WriteString(l.w, b.String())
	return err
}
