package livereload

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	ws "nhooyr.io/websocket"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupHub(t *testing.T, opts ...Option) (*Hub, string) {
	t.Helper()
	hub := NewHub(append([]Option{WithLogger(quietLogger())}, opts...)...)
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)
	return hub, "ws" + srv.URL[4:] // http -> ws
}

func dial(t *testing.T, ctx context.Context, url string) *ws.Conn {
	t.Helper()
	c, _, err := ws.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	t.Cleanup(func() { c.CloseNow() })
	return c
}

func waitForCount(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if hub.Count() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d clients, have %d", want, hub.Count())
}

func TestHub_BroadcastReachesAllClients(t *testing.T) {
	hub, url := setupHub(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	clients := []*ws.Conn{dial(t, ctx, url), dial(t, ctx, url)}
	waitForCount(t, hub, 2)

	if n := hub.Broadcast(ctx, ReloadMessage); n != 2 {
		t.Fatalf("expected 2 deliveries, got %d", n)
	}
	for i, c := range clients {
		typ, data, err := c.Read(ctx)
		if err != nil {
			t.Fatalf("client %d read: %v", i, err)
		}
		if typ != ws.MessageText || string(data) != ReloadMessage {
			t.Errorf("client %d: expected text %q, got %v %q", i, ReloadMessage, typ, data)
		}
	}
}

func TestHub_NotifySendsReload(t *testing.T) {
	hub, url := setupHub(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := dial(t, ctx, url)
	waitForCount(t, hub, 1)

	hub.Notify([]string{"src/main.ts"})

	_, data, err := c.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != ReloadMessage {
		t.Errorf("expected %q, got %q", ReloadMessage, data)
	}
}

func TestHub_ClientDisconnectUnregisters(t *testing.T) {
	hub, url := setupHub(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := dial(t, ctx, url)
	waitForCount(t, hub, 1)

	c.Close(ws.StatusNormalClosure, "bye")
	waitForCount(t, hub, 0)
}

func TestHub_CloseAll(t *testing.T) {
	hub, url := setupHub(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	const numConns = 3
	clients := make([]*ws.Conn, 0, numConns)
	for i := 0; i < numConns; i++ {
		clients = append(clients, dial(t, ctx, url))
	}
	waitForCount(t, hub, numConns)

	closed := make(chan ws.StatusCode, numConns)
	for _, c := range clients {
		go func(c *ws.Conn) {
			_, _, err := c.Read(ctx)
			closed <- ws.CloseStatus(err)
		}(c)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer shutdownCancel()
	hub.CloseAll(shutdownCtx)

	for i := 0; i < numConns; i++ {
		select {
		case code := <-closed:
			if code != ws.StatusGoingAway {
				t.Errorf("expected StatusGoingAway, got %v", code)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for close frame")
		}
	}
	waitForCount(t, hub, 0)
}

func TestHub_BroadcastWithNoClients(t *testing.T) {
	hub := NewHub(WithLogger(quietLogger()))
	if n := hub.Broadcast(context.Background(), ReloadMessage); n != 0 {
		t.Errorf("expected 0 deliveries, got %d", n)
	}
	hub.CloseAll(context.Background())
}
