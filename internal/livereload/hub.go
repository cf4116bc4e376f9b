package livereload

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	ws "nhooyr.io/websocket"
)

// ReloadMessage is sent to every client when watched files change.
const ReloadMessage = "reload"

// Hub accepts live-reload websocket clients and broadcasts reload messages.
type Hub struct {
	mu    sync.Mutex
	conns map[*Conn]struct{}
	opts  Options
}

// NewHub creates a Hub with no clients.
func NewHub(opts ...Option) *Hub {
	return &Hub{
		conns: make(map[*Conn]struct{}),
		opts:  applyOptions(opts),
	}
}

// ServeHTTP upgrades the request and holds the connection until the client
// goes away or the hub closes it. Client messages are discarded.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := ws.Accept(w, r, nil)
	if err != nil {
		h.opts.Logger.Debug("live reload upgrade failed", "error", err)
		return
	}

	ctx := c.CloseRead(context.Background())
	conn := wrapConn(ctx, c, h.opts)
	h.register(conn)
	defer h.unregister(conn)

	<-ctx.Done()
	conn.ForceClose()
}

func (h *Hub) register(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c] = struct{}{}
}

func (h *Hub) unregister(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, c)
}

func (h *Hub) snapshot() []*Conn {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*Conn, 0, len(h.conns))
	for c := range h.conns {
		out = append(out, c)
	}
	return out
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Broadcast sends msg to every client and returns how many received it.
// Clients that fail the write are dropped.
func (h *Hub) Broadcast(ctx context.Context, msg string) int {
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		delivered int
	)
	for _, c := range h.snapshot() {
		wg.Add(1)
		go func(c *Conn) {
			defer wg.Done()
			if err := c.Send(ctx, msg); err != nil {
				h.opts.Logger.Debug("dropping live reload client", "error", err)
				c.ForceClose()
				h.unregister(c)
				return
			}
			mu.Lock()
			delivered++
			mu.Unlock()
		}(c)
	}
	wg.Wait()
	return delivered
}

// Notify broadcasts a reload for the changed paths. It matches the callback
// signature expected by Watcher.
func (h *Hub) Notify(paths []string) {
	n := h.Broadcast(context.Background(), ReloadMessage)
	h.opts.Logger.Info("files changed, reloading clients", "files", len(paths), "clients", n)
}

// CloseAll sends a close frame to every client. It waits for each close to
// complete or for ctx to expire.
func (h *Hub) CloseAll(ctx context.Context) {
	conns := h.snapshot()
	if len(conns) == 0 {
		return
	}

	h.opts.Logger.Info("closing live reload clients", slog.Int("count", len(conns)))

	var wg sync.WaitGroup
	for _, c := range conns {
		wg.Add(1)
		go func(c *Conn) {
			defer wg.Done()
			_ = c.Close(ctx, ws.StatusGoingAway, "server shutting down")
		}(c)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		h.opts.Logger.Warn("shutdown timeout reached, some live reload clients may not have closed cleanly")
	}
}
