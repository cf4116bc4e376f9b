package livereload

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"
)

// testCallback captures change batches for assertions.
type testCallback struct {
	mu      sync.Mutex
	batches [][]string
	callsCh chan struct{}
}

func newTestCallback() *testCallback {
	return &testCallback{callsCh: make(chan struct{}, 100)}
}

func (tc *testCallback) fn(paths []string) {
	tc.mu.Lock()
	tc.batches = append(tc.batches, paths)
	tc.mu.Unlock()
	tc.callsCh <- struct{}{}
}

func (tc *testCallback) waitForCall(t *testing.T, timeout time.Duration) {
	t.Helper()
	select {
	case <-tc.callsCh:
	case <-time.After(timeout):
		t.Fatal("timed out waiting for callback")
	}
}

func (tc *testCallback) count() int {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return len(tc.batches)
}

func (tc *testCallback) last() []string {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.batches[len(tc.batches)-1]
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func startWatcher(t *testing.T, root string, cb *testCallback) {
	t.Helper()
	w := NewWatcher(root, cb.fn, quietLogger(), WithDebounce(50*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-errCh; err != nil {
			t.Errorf("Run() returned error: %v", err)
		}
	})

	// Give watcher time to start
	time.Sleep(100 * time.Millisecond)
}

func TestWatcher_FileModificationTriggersCallback(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "index.html")
	writeFile(t, target, "<html></html>")

	cb := newTestCallback()
	startWatcher(t, root, cb)

	writeFile(t, target, "<html><body>v2</body></html>")
	cb.waitForCall(t, 2*time.Second)

	paths := cb.last()
	if !slices.Contains(paths, target) {
		t.Errorf("expected %s in batch, got %v", target, paths)
	}
}

func TestWatcher_DebounceRapidWrites(t *testing.T) {
	root := t.TempDir()
	cb := newTestCallback()
	startWatcher(t, root, cb)

	for i := 0; i < 5; i++ {
		writeFile(t, filepath.Join(root, "a.js"), strings.Repeat("x", i+1))
		time.Sleep(5 * time.Millisecond)
	}
	cb.waitForCall(t, 2*time.Second)
	time.Sleep(200 * time.Millisecond)

	if got := cb.count(); got != 1 {
		t.Errorf("expected 1 debounced callback, got %d", got)
	}
}

func TestWatcher_NewDirectoryIsWatched(t *testing.T) {
	root := t.TempDir()
	cb := newTestCallback()
	startWatcher(t, root, cb)

	sub := filepath.Join(root, "src", "components")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	cb.waitForCall(t, 2*time.Second)
	time.Sleep(100 * time.Millisecond)

	target := filepath.Join(sub, "App.tsx")
	writeFile(t, target, "export {}")

	deadline := time.After(2 * time.Second)
	for {
		select {
		case <-cb.callsCh:
			if slices.Contains(cb.last(), target) {
				return
			}
		case <-deadline:
			t.Fatalf("no change reported for %s", target)
		}
	}
}

func TestWatcher_SkipsNodeModules(t *testing.T) {
	root := t.TempDir()
	nm := filepath.Join(root, "node_modules", "pkg")
	if err := os.MkdirAll(nm, 0o755); err != nil {
		t.Fatal(err)
	}

	cb := newTestCallback()
	startWatcher(t, root, cb)

	writeFile(t, filepath.Join(nm, "index.js"), "module.exports = 1")
	time.Sleep(300 * time.Millisecond)

	if got := cb.count(); got != 0 {
		t.Errorf("expected no callbacks for node_modules writes, got %d: %v", got, cb.batches)
	}
}

func TestWatcher_MissingRootFails(t *testing.T) {
	w := NewWatcher(filepath.Join(t.TempDir(), "missing"), func([]string) {}, quietLogger())
	if err := w.Run(context.Background()); err == nil {
		t.Error("expected error for missing root")
	}
}
