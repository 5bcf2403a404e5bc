package admin

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fluxorio/symphony/pkg/core"
	"github.com/fluxorio/symphony/pkg/threadpool"
)

const (
	tailWriteWait  = 5 * time.Second
	tailPongWait   = 60 * time.Second
	tailPingPeriod = tailPongWait * 9 / 10

	// DefaultTailBuffer is the per-client backlog before results are dropped.
	DefaultTailBuffer = 64
)

// Tail streams job results to websocket clients. It is a
// threadpool.ResultHandler: register it with the pool and serve it on
// /ws/results. A client that falls behind by more than its buffer loses
// results instead of slowing the watchers down.
type Tail struct {
	upgrader websocket.Upgrader
	buffer   int
	logger   core.Logger

	mu      sync.RWMutex
	clients map[*tailClient]struct{}
	closed  bool

	dropped atomic.Int64
}

type tailClient struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

// NewTail creates a hub with buffer results of backlog per client.
func NewTail(buffer int, logger core.Logger) *Tail {
	if buffer < 1 {
		buffer = DefaultTailBuffer
	}
	if logger == nil {
		logger = core.NewDefaultLogger()
	}
	return &Tail{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		buffer:  buffer,
		logger:  logger,
		clients: make(map[*tailClient]struct{}),
	}
}

// Name implements threadpool.ResultHandler naming for metrics
func (t *Tail) Name() string {
	return "tail"
}

// Handle implements threadpool.ResultHandler
func (t *Tail) Handle(_ context.Context, r threadpool.JobResult) error {
	data, err := core.JSONEncode(r)
	if err != nil {
		return err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	for c := range t.clients {
		select {
		case c.send <- data:
		default:
			t.dropped.Add(1)
		}
	}
	return nil
}

// ServeHTTP upgrades the request and streams results until the client leaves.
func (t *Tail) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		t.logger.Warnf("websocket upgrade failed: %v", err)
		return
	}

	c := &tailClient{
		conn: conn,
		send: make(chan []byte, t.buffer),
		done: make(chan struct{}),
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(tailWriteWait))
		conn.Close()
		return
	}
	t.clients[c] = struct{}{}
	t.mu.Unlock()
	t.logger.Debugf("tail client connected from %s", r.RemoteAddr)

	go t.writePump(c)
	t.readPump(c)
}

// readPump discards client frames and notices disconnects.
func (t *Tail) readPump(c *tailClient) {
	defer t.remove(c)

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(tailPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(tailPongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				t.logger.Debugf("tail client read error: %v", err)
			}
			return
		}
	}
}

func (t *Tail) writePump(c *tailClient) {
	ticker := time.NewTicker(tailPingPeriod)
	defer func() {
		ticker.Stop()
		t.remove(c)
	}()

	for {
		select {
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(tailWriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(tailWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (t *Tail) remove(c *tailClient) {
	c.once.Do(func() {
		t.mu.Lock()
		delete(t.clients, c)
		t.mu.Unlock()
		close(c.done)
		c.conn.Close()
	})
}

// Clients returns the number of connected clients.
func (t *Tail) Clients() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.clients)
}

// Dropped returns how many results were skipped for slow clients.
func (t *Tail) Dropped() int64 {
	return t.dropped.Load()
}

// Close disconnects every client and refuses new ones.
func (t *Tail) Close() {
	t.mu.Lock()
	t.closed = true
	clients := make([]*tailClient, 0, len(t.clients))
	for c := range t.clients {
		clients = append(clients, c)
	}
	t.mu.Unlock()

	for _, c := range clients {
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(tailWriteWait))
		t.remove(c)
	}
}
