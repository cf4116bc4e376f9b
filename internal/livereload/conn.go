package livereload

import (
	"context"
	"log/slog"
	"sync"
	"time"

	ws "nhooyr.io/websocket"
)

// Conn is one browser tab listening for reload messages. A background
// goroutine pings the peer; an unanswered ping drops the connection.
type Conn struct {
	inner  *ws.Conn
	opts   Options
	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex
	closed bool
}

// wrapConn starts the ping loop for c. ctx must come from c.CloseRead (or
// another active reader) so pongs are processed.
func wrapConn(ctx context.Context, c *ws.Conn, opts Options) *Conn {
	ctx, cancel := context.WithCancel(ctx)
	conn := &Conn{
		inner:  c,
		opts:   opts,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go conn.pingLoop(ctx)
	return conn
}

// Send writes a text message within the configured write timeout.
func (c *Conn) Send(ctx context.Context, msg string) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.WriteTimeout)
	defer cancel()
	return c.inner.Write(ctx, ws.MessageText, []byte(msg))
}

// Close sends a close frame within ctx's deadline. Repeated calls are no-ops.
func (c *Conn) Close(ctx context.Context, code ws.StatusCode, reason string) error {
	if !c.markClosed() {
		return nil
	}
	c.cancel()

	select {
	case <-c.done:
	case <-ctx.Done():
	}
	return c.inner.Close(code, reason)
}

// ForceClose drops the connection without a close handshake.
func (c *Conn) ForceClose() {
	if !c.markClosed() {
		return
	}
	c.cancel()
	c.inner.CloseNow()
}

func (c *Conn) markClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.closed = true
	return true
}

func (c *Conn) pingLoop(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, pingCancel := context.WithTimeout(ctx, c.opts.PongTimeout)
			err := c.inner.Ping(pingCtx)
			pingCancel()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				c.opts.Logger.Debug("live reload client stopped answering pings", slog.String("error", err.Error()))
				c.inner.CloseNow()
				return
			}
		}
	}
}
