package tcp

import (
	"bufio"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"math/big"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	client "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/fluxorio/symphony/pkg/core"
	"github.com/fluxorio/symphony/pkg/observability/prometheus"
	"github.com/fluxorio/symphony/pkg/threadpool"
)

func newTestTLSConfig(t *testing.T) *tls.Config {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	tpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "localhost"},
		NotBefore:    time.Now().Add(-time.Minute),
		NotAfter:     time.Now().Add(10 * time.Minute),
		KeyUsage:     x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, tpl, tpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("CreateCertificate: %v", err)
	}

	cert := tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  key,
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
	}
}

// echoFactory answers one line with "echo: <line>".
func echoFactory(conn net.Conn) threadpool.Job {
	return threadpool.NewNamedJob("echo", func(ctx context.Context) (threadpool.JobResult, error) {
		defer conn.Close()
		conn.SetDeadline(time.Now().Add(2 * time.Second))
		line, err := bufio.NewReader(conn).ReadString('\n')
		if err != nil {
			return threadpool.JobResult{}, err
		}
		line = strings.TrimSpace(line)
		resp := "echo: " + line + "\n"
		if _, err := conn.Write([]byte(resp)); err != nil {
			return threadpool.JobResult{Request: line}, err
		}
		return threadpool.JobResult{Request: line, Response: resp}, nil
	})
}

// holdFactory keeps each connection open until release is closed.
func holdFactory(release <-chan struct{}) JobFactory {
	return func(conn net.Conn) threadpool.Job {
		return threadpool.NewNamedJob("hold", func(ctx context.Context) (threadpool.JobResult, error) {
			defer conn.Close()
			<-release
			return threadpool.JobResult{}, nil
		})
	}
}

type stubSubmitter struct {
	err error
}

func (s stubSubmitter) TrySubmit(threadpool.Job) error {
	return s.err
}

// waitingSubmitter blocks every hand-off until closed is closed, like a pool
// with a full queue that is then shut down.
type waitingSubmitter struct {
	entered chan struct{}
	closed  chan struct{}
}

func (s waitingSubmitter) TrySubmit(threadpool.Job) error {
	s.entered <- struct{}{}
	<-s.closed
	return threadpool.ErrPoolClosed
}

func newTestPool(t *testing.T, size int, handlers ...threadpool.ResultHandler) *threadpool.ThreadPool {
	t.Helper()
	opts := []threadpool.Option{threadpool.WithLogger(core.NopLogger())}
	if len(handlers) > 0 {
		opts = append(opts, threadpool.WithResultHandlers(handlers...))
	}
	p, err := threadpool.New(size, opts...)
	if err != nil {
		t.Fatalf("threadpool.New: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

// startListener runs l.Start in the background and waits for it to bind.
func startListener(t *testing.T, l *Listener) (string, <-chan error) {
	t.Helper()

	startErrCh := make(chan error, 1)
	go func() { startErrCh <- l.Start() }()

	// Wait until listener is up and we have an actual port.
	var addr string
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		addr = l.ListeningAddr()
		if addr != "" {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if addr == "" {
		_ = l.Stop()
		t.Fatalf("listener did not start listening in time")
	}
	t.Cleanup(func() { _ = l.Stop() })
	return addr, startErrCh
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func exchange(t *testing.T, conn net.Conn, line string) string {
	t.Helper()
	conn.SetDeadline(time.Now().Add(2 * time.Second))
	if _, err := conn.Write([]byte(line + "\n")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	reply, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	return reply
}

// expectClosed asserts the server side closed conn without answering.
func expectClosed(t *testing.T, conn net.Conn) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	n, err := conn.Read(buf)
	if err == nil || n != 0 {
		t.Fatalf("expected closed connection, read %d bytes, err %v", n, err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		t.Fatalf("connection was left open")
	}
}

func testConfig() Config {
	cfg := DefaultConfig("127.0.0.1:0")
	cfg.Logger = core.NopLogger()
	return cfg
}

func TestNewListener_FailFast_NilPoolPanics(t *testing.T) {
	t.Parallel()
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected panic for nil pool")
		}
	}()
	_ = NewListener(testConfig(), nil, echoFactory)
}

func TestNewListener_FailFast_NilFactoryPanics(t *testing.T) {
	t.Parallel()
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected panic for nil factory")
		}
	}()
	_ = NewListener(testConfig(), stubSubmitter{}, nil)
}

func TestNewListener_FailFast_NegativeLimitsPanic(t *testing.T) {
	t.Parallel()
	for name, mutate := range map[string]func(*Config){
		"max conns":   func(c *Config) { c.MaxConns = -1 },
		"serve limit": func(c *Config) { c.ServeLimit = -1 },
	} {
		t.Run(name, func(t *testing.T) {
			defer func() {
				if r := recover(); r == nil {
					t.Fatalf("expected panic for negative %s", name)
				}
			}()
			cfg := testConfig()
			mutate(&cfg)
			_ = NewListener(cfg, stubSubmitter{}, echoFactory)
		})
	}
}

func TestListener_HandsConnectionsToPool(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	pool := newTestPool(t, 2, threadpool.ResultHandlerFunc(func(_ context.Context, r threadpool.JobResult) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, r.Request)
		return nil
	}))

	l := NewListener(testConfig(), pool, echoFactory)
	addr, startErrCh := startListener(t, l)

	conn, err := net.DialTimeout("tcp", addr, 500*time.Millisecond)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	if reply := exchange(t, conn, "hello"); reply != "echo: hello\n" {
		t.Fatalf("reply = %q, want %q", reply, "echo: hello\n")
	}

	waitFor(t, "job to finish", func() bool { return l.Metrics().Active == 0 })
	if err := pool.Close(); err != nil {
		t.Fatalf("pool close: %v", err)
	}
	mu.Lock()
	if len(seen) != 1 || seen[0] != "hello" {
		t.Errorf("handled requests = %v, want [hello]", seen)
	}
	mu.Unlock()

	if m := l.Metrics(); m.Accepted != 1 || m.Rejected != 0 {
		t.Errorf("metrics = %+v, want 1 accepted and 0 rejected", m)
	}

	if err := l.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	select {
	case err := <-startErrCh:
		if err != nil {
			t.Fatalf("start returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("start did not exit after stop")
	}
	select {
	case <-l.Done():
	default:
		t.Errorf("Done() not closed after Start returned")
	}
}

func TestListener_ServeLimitStopsAccepting(t *testing.T) {
	pool := newTestPool(t, 2)
	cfg := testConfig()
	cfg.ServeLimit = 2

	l := NewListener(cfg, pool, echoFactory)
	addr, startErrCh := startListener(t, l)

	for i := 0; i < 2; i++ {
		conn, err := net.DialTimeout("tcp", addr, 500*time.Millisecond)
		if err != nil {
			t.Fatalf("dial %d failed: %v", i, err)
		}
		exchange(t, conn, "ping")
		conn.Close()
	}

	select {
	case err := <-startErrCh:
		if err != nil {
			t.Fatalf("start returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("start did not exit after the serve limit")
	}

	if got := l.Metrics().Accepted; got != 2 {
		t.Errorf("accepted = %d, want 2", got)
	}
	if conn, err := net.DialTimeout("tcp", addr, 500*time.Millisecond); err == nil {
		conn.Close()
		t.Errorf("dial succeeded after the serve limit was reached")
	}
}

func TestListener_MaxConns_FailFastRejects(t *testing.T) {
	pool := newTestPool(t, 2)
	reg := client.NewRegistry()
	metrics := prometheus.NewMetrics(reg)

	cfg := testConfig()
	cfg.MaxConns = 1
	cfg.Metrics = metrics

	release := make(chan struct{})
	l := NewListener(cfg, pool, holdFactory(release))
	addr, _ := startListener(t, l)

	first, err := net.DialTimeout("tcp", addr, 500*time.Millisecond)
	if err != nil {
		close(release)
		t.Fatalf("dial failed: %v", err)
	}
	defer first.Close()
	waitFor(t, "first connection to be handed off", func() bool { return l.Metrics().Active == 1 })

	second, err := net.DialTimeout("tcp", addr, 500*time.Millisecond)
	if err != nil {
		close(release)
		t.Fatalf("dial failed: %v", err)
	}
	defer second.Close()
	expectClosed(t, second)

	m := l.Metrics()
	if m.Rejected != 1 || m.Backpressure == nil || m.Backpressure.Rejected != 1 {
		t.Errorf("metrics = %+v, want 1 rejected", m)
	}
	if got := testutil.ToFloat64(metrics.Connections.WithLabelValues(OutcomeRejected)); got != 1 {
		t.Errorf("rejected connections metric = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.Connections.WithLabelValues(OutcomeAccepted)); got != 1 {
		t.Errorf("accepted connections metric = %v, want 1", got)
	}

	close(release)
	waitFor(t, "slot to be released", func() bool {
		m := l.Metrics()
		return m.Active == 0 && m.Backpressure.InFlight == 0
	})

	third, err := net.DialTimeout("tcp", addr, 500*time.Millisecond)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer third.Close()
	waitFor(t, "third connection to be accepted", func() bool { return l.Metrics().Accepted == 2 })
}

func TestListener_RejectsWhenPoolIsFull(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConns = 4
	l := NewListener(cfg, stubSubmitter{err: threadpool.ErrQueueFull}, echoFactory)
	addr, _ := startListener(t, l)

	conn, err := net.DialTimeout("tcp", addr, 500*time.Millisecond)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()
	expectClosed(t, conn)

	waitFor(t, "rejection", func() bool { return l.Metrics().Rejected == 1 })
	m := l.Metrics()
	if m.Accepted != 0 || m.Active != 0 || m.Backpressure.InFlight != 0 {
		t.Errorf("metrics = %+v, want nothing in flight", m)
	}
}

func TestListener_ClosedPoolStopsAccepting(t *testing.T) {
	l := NewListener(testConfig(), stubSubmitter{err: threadpool.ErrPoolClosed}, echoFactory)
	addr, startErrCh := startListener(t, l)

	conn, err := net.DialTimeout("tcp", addr, 500*time.Millisecond)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	select {
	case err := <-startErrCh:
		if !errors.Is(err, threadpool.ErrPoolClosed) {
			t.Fatalf("start error = %v, want ErrPoolClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("start did not exit after the pool closed")
	}
}

func TestListener_StopDuringBlockedHandOff(t *testing.T) {
	pool := waitingSubmitter{entered: make(chan struct{}, 1), closed: make(chan struct{})}
	l := NewListener(testConfig(), pool, echoFactory)
	addr, startErrCh := startListener(t, l)

	conn, err := net.DialTimeout("tcp", addr, 500*time.Millisecond)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	select {
	case <-pool.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("connection was never handed off")
	}
	if err := l.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	close(pool.closed)

	select {
	case err := <-startErrCh:
		if err != nil {
			t.Fatalf("start error = %v, want nil after Stop", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("start did not exit")
	}
	expectClosed(t, conn)
}

func TestListener_StartTwice(t *testing.T) {
	l := NewListener(testConfig(), stubSubmitter{}, echoFactory)
	startListener(t, l)

	if err := l.Start(); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("second Start() error = %v, want ErrAlreadyStarted", err)
	}
}

func TestListener_StopBeforeStart(t *testing.T) {
	l := NewListener(testConfig(), stubSubmitter{}, echoFactory)
	if err := l.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- l.Start() }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("start returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("start did not return for a stopped listener")
	}
	if l.ListeningAddr() != "" {
		t.Errorf("stopped listener bound to %s", l.ListeningAddr())
	}
}

func TestListener_BadAddress(t *testing.T) {
	cfg := testConfig()
	cfg.Addr = "256.0.0.1:bad"
	l := NewListener(cfg, stubSubmitter{}, echoFactory)
	if err := l.Start(); err == nil {
		t.Fatalf("expected listen error")
	}
}

func TestListener_TLS_Works(t *testing.T) {
	pool := newTestPool(t, 1)
	cfg := testConfig()
	cfg.TLSConfig = newTestTLSConfig(t)

	l := NewListener(cfg, pool, echoFactory)
	addr, _ := startListener(t, l)

	c, err := tls.Dial("tcp", addr, &tls.Config{InsecureSkipVerify: true})
	if err != nil {
		t.Fatalf("tls dial failed: %v", err)
	}
	defer c.Close()

	if reply := exchange(t, c, "secure"); reply != "echo: secure\n" {
		t.Fatalf("reply over TLS = %q", reply)
	}
}
