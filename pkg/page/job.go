package page

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/fluxorio/symphony/pkg/threadpool"
)

// Options configures the page job.
type Options struct {
	// SleepDelay is how long GET /sleep stalls before answering.
	SleepDelay time.Duration

	// ReadTimeout and WriteTimeout set connection deadlines. Zero means none.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Job answers one HTTP request on conn. It owns conn and closes it.
type Job struct {
	conn  net.Conn
	pages *Pages
	opts  Options
}

// NewJob creates the job for one accepted connection.
func NewJob(conn net.Conn, pages *Pages, opts Options) *Job {
	return &Job{conn: conn, pages: pages, opts: opts}
}

// Factory returns a constructor suitable for the TCP listener.
func Factory(pages *Pages, opts Options) func(net.Conn) threadpool.Job {
	return func(conn net.Conn) threadpool.Job {
		return NewJob(conn, pages, opts)
	}
}

// Name implements threadpool.Job
func (j *Job) Name() string {
	return "page"
}

// Execute implements threadpool.Job
func (j *Job) Execute(ctx context.Context) (threadpool.JobResult, error) {
	defer j.conn.Close()

	if j.opts.ReadTimeout > 0 {
		if err := j.conn.SetReadDeadline(time.Now().Add(j.opts.ReadTimeout)); err != nil {
			return threadpool.JobResult{}, fmt.Errorf("set read deadline: %w", err)
		}
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	if err := req.Read(bufio.NewReader(j.conn)); err != nil {
		return threadpool.JobResult{}, fmt.Errorf("read request from %s: %w", j.conn.RemoteAddr(), err)
	}
	result := threadpool.JobResult{Request: req.String()}

	if err := j.route(ctx, req, resp); err != nil {
		return result, err
	}

	if j.opts.WriteTimeout > 0 {
		if err := j.conn.SetWriteDeadline(time.Now().Add(j.opts.WriteTimeout)); err != nil {
			return result, fmt.Errorf("set write deadline: %w", err)
		}
	}
	w := bufio.NewWriter(j.conn)
	if err := resp.Write(w); err != nil {
		return result, fmt.Errorf("write response: %w", err)
	}
	if err := w.Flush(); err != nil {
		return result, fmt.Errorf("write response: %w", err)
	}

	result.Response = resp.String()
	return result, nil
}

func (j *Job) route(ctx context.Context, req *fasthttp.Request, resp *fasthttp.Response) error {
	resp.Header.SetContentType("text/html; charset=utf-8")

	if !req.Header.IsGet() {
		resp.SetStatusCode(fasthttp.StatusNotFound)
		resp.SetBody(j.pages.NotFound)
		return nil
	}

	switch string(req.URI().Path()) {
	case "/":
		resp.SetStatusCode(fasthttp.StatusOK)
		resp.SetBody(j.pages.Hello)
	case "/sleep":
		if err := sleep(ctx, j.opts.SleepDelay); err != nil {
			return err
		}
		resp.SetStatusCode(fasthttp.StatusOK)
		resp.SetBody(j.pages.Hello)
	default:
		resp.SetStatusCode(fasthttp.StatusNotFound)
		resp.SetBody(j.pages.NotFound)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("sleep interrupted: %w", ctx.Err())
	}
}
