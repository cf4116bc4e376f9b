package health

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"
)

// mockHTTPProber is a configurable mock for HTTPProber.
type mockHTTPProber struct {
	mu        sync.Mutex
	responses map[string]mockResponse // keyed by URL
	requests  []*http.Request
}

type mockResponse struct {
	statusCode int
	err        error
}

func (m *mockHTTPProber) Do(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	resp, ok := m.responses[req.URL.String()]
	if !ok {
		return nil, errors.New("connection refused")
	}
	if resp.err != nil {
		return nil, resp.err
	}
	return &http.Response{
		StatusCode: resp.statusCode,
		Body:       io.NopCloser(strings.NewReader("")),
	}, nil
}

func (m *mockHTTPProber) set(url string, r mockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[url] = r
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	return u
}

func TestChecker_InitialStateUnknown(t *testing.T) {
	c := NewChecker([]*url.URL{mustURL(t, "http://localhost:8000")}, &mockHTTPProber{}, time.Hour, nil)
	snap := c.Snapshot()
	if len(snap) != 1 || snap[0].Status != StatusUnknown {
		t.Fatalf("expected one unknown target, got %+v", snap)
	}
}

func TestChecker_ReachableOnAnyStatus(t *testing.T) {
	for _, code := range []int{200, 404, 405, 500} {
		client := &mockHTTPProber{responses: map[string]mockResponse{
			"http://localhost:8000/": {statusCode: code},
		}}
		c := NewChecker([]*url.URL{mustURL(t, "http://localhost:8000")}, client, time.Hour, nil)
		c.checkAll(context.Background())

		st := c.Snapshot()[0]
		if st.Status != StatusReachable {
			t.Errorf("code %d: expected reachable, got %s", code, st.Status)
		}
		if st.HTTPCode == nil || *st.HTTPCode != code {
			t.Errorf("code %d: expected recorded code, got %v", code, st.HTTPCode)
		}
		if st.LastChecked == nil || st.LastStateChange == nil {
			t.Errorf("code %d: expected timestamps set", code)
		}
	}
}

func TestChecker_UnreachableOnTransportError(t *testing.T) {
	client := &mockHTTPProber{responses: map[string]mockResponse{}}
	c := NewChecker([]*url.URL{mustURL(t, "http://localhost:8000")}, client, time.Hour, nil)
	c.checkAll(context.Background())

	st := c.Snapshot()[0]
	if st.Status != StatusUnreachable {
		t.Fatalf("expected unreachable, got %s", st.Status)
	}
	if !strings.Contains(st.Error, "connection refused") {
		t.Errorf("expected error recorded, got %q", st.Error)
	}
	if st.HTTPCode != nil {
		t.Errorf("expected no HTTP code, got %d", *st.HTTPCode)
	}
}

func TestChecker_UsesHeadAgainstOrigin(t *testing.T) {
	client := &mockHTTPProber{responses: map[string]mockResponse{}}
	c := NewChecker([]*url.URL{mustURL(t, "http://localhost:8000")}, client, time.Hour, nil)
	c.checkAll(context.Background())

	if len(client.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(client.requests))
	}
	req := client.requests[0]
	if req.Method != http.MethodHead {
		t.Errorf("expected HEAD, got %s", req.Method)
	}
	if req.URL.String() != "http://localhost:8000/" {
		t.Errorf("unexpected probe URL %s", req.URL)
	}
}

func TestChecker_LogsTransitions(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	client := &mockHTTPProber{responses: map[string]mockResponse{}}
	c := NewChecker([]*url.URL{mustURL(t, "http://localhost:8000")}, client, time.Hour, logger)

	c.checkAll(context.Background())
	if !strings.Contains(logs.String(), "backend unreachable") {
		t.Errorf("expected unreachable warning, got %q", logs.String())
	}
	firstChange := *c.Snapshot()[0].LastStateChange

	logs.Reset()
	c.checkAll(context.Background())
	if strings.Contains(logs.String(), "backend unreachable") {
		t.Error("expected no repeated warning without a transition")
	}
	if !c.Snapshot()[0].LastStateChange.Equal(firstChange) {
		t.Error("LastStateChange moved without a transition")
	}

	client.set("http://localhost:8000/", mockResponse{statusCode: 200})
	c.checkAll(context.Background())
	if !strings.Contains(logs.String(), "backend reachable") {
		t.Errorf("expected reachable info, got %q", logs.String())
	}
}

func TestChecker_SnapshotSorted(t *testing.T) {
	c := NewChecker([]*url.URL{
		mustURL(t, "http://localhost:9000"),
		mustURL(t, "http://localhost:8000"),
	}, &mockHTTPProber{responses: map[string]mockResponse{}}, time.Hour, nil)

	snap := c.Snapshot()
	if snap[0].Target != "http://localhost:8000" || snap[1].Target != "http://localhost:9000" {
		t.Errorf("expected sorted targets, got %+v", snap)
	}
}

func TestChecker_RunStopsOnCancel(t *testing.T) {
	client := &mockHTTPProber{responses: map[string]mockResponse{}}
	c := NewChecker([]*url.URL{mustURL(t, "http://localhost:8000")}, client, 10*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if c.Snapshot()[0].Status != StatusUnreachable {
		t.Errorf("expected at least one probe to have run")
	}
}

func TestChecker_RunWithoutTargetsReturns(t *testing.T) {
	c := NewChecker(nil, &mockHTTPProber{}, time.Hour, nil)
	done := make(chan struct{})
	go func() {
		c.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run should return immediately with no targets")
	}
}
