package health

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"
)

// HTTPProber abstracts *http.Client for testability.
type HTTPProber interface {
	Do(req *http.Request) (*http.Response, error)
}

// Status is the reachability of a backend origin.
type Status string

const (
	StatusUnknown     Status = "unknown"
	StatusReachable   Status = "reachable"
	StatusUnreachable Status = "unreachable"
)

// TargetState is the last observed state of one backend origin.
type TargetState struct {
	Target          string     `json:"target"`
	Status          Status     `json:"status"`
	HTTPCode        *int       `json:"httpCode,omitempty"`
	ResponseTimeMs  int64      `json:"responseTimeMs"`
	Error           string     `json:"error,omitempty"`
	LastChecked     *time.Time `json:"lastChecked,omitempty"`
	LastStateChange *time.Time `json:"lastStateChange,omitempty"`
}

// Checker periodically probes backend origins. Its results are informational:
// the proxy forwards requests regardless of what the checker last saw.
type Checker struct {
	targets  []string
	client   HTTPProber
	interval time.Duration
	logger   *slog.Logger

	mu     sync.RWMutex
	states map[string]TargetState
}

// NewChecker creates a checker for targets. If logger is nil, a no-op logger is used.
func NewChecker(targets []*url.URL, client HTTPProber, interval time.Duration, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	c := &Checker{
		client:   client,
		interval: interval,
		logger:   logger,
		states:   make(map[string]TargetState, len(targets)),
	}
	for _, t := range targets {
		key := t.String()
		c.targets = append(c.targets, key)
		c.states[key] = TargetState{Target: key, Status: StatusUnknown}
	}
	sort.Strings(c.targets)
	return c
}

// Run performs an immediate check on start, then checks at the configured
// interval. It returns when ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	if len(c.targets) == 0 {
		return
	}
	c.checkAll(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.checkAll(ctx)
		}
	}
}

// Snapshot returns the current state of every target, sorted by target.
func (c *Checker) Snapshot() []TargetState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]TargetState, 0, len(c.targets))
	for _, t := range c.targets {
		out = append(out, c.states[t])
	}
	return out
}

func (c *Checker) checkAll(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(len(c.targets))
	for _, target := range c.targets {
		go func(target string) {
			defer wg.Done()
			c.apply(target, c.probe(ctx, target))
		}(target)
	}
	wg.Wait()
}

const maxErrorLen = 256

type probeResult struct {
	status         Status
	httpCode       *int
	responseTimeMs int64
	err            string
}

// probe sends HEAD / to the origin. Any HTTP response, whatever its status,
// proves the backend is listening.
func (c *Checker) probe(ctx context.Context, target string) probeResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target+"/", nil)
	if err != nil {
		return probeResult{status: StatusUnreachable, err: truncate(err.Error())}
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		return probeResult{status: StatusUnreachable, responseTimeMs: elapsed, err: truncate(err.Error())}
	}
	defer resp.Body.Close()

	code := resp.StatusCode
	return probeResult{status: StatusReachable, httpCode: &code, responseTimeMs: elapsed}
}

func (c *Checker) apply(target string, res probeResult) {
	now := time.Now()

	c.mu.Lock()
	st := c.states[target]
	previous := st.Status
	st.Status = res.status
	st.HTTPCode = res.httpCode
	st.ResponseTimeMs = res.responseTimeMs
	st.Error = res.err
	st.LastChecked = &now
	if res.status != previous {
		st.LastStateChange = &now
	}
	c.states[target] = st
	c.mu.Unlock()

	if res.status == previous {
		c.logger.Debug("backend probe completed", "target", target, "status", string(res.status), "responseTimeMs", res.responseTimeMs)
		return
	}
	if res.status == StatusUnreachable {
		c.logger.Warn("backend unreachable, proxied requests will fail", "target", target, "error", res.err)
		return
	}
	c.logger.Info("backend reachable", "target", target, "from", string(previous))
}

func truncate(s string) string {
	if len(s) > maxErrorLen {
		return s[:maxErrorLen]
	}
	return s
}
