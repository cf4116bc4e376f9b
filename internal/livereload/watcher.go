package livereload

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ChangeCallback receives the files changed during one debounce window.
type ChangeCallback func(paths []string)

// DefaultSkipDirs are never watched.
var DefaultSkipDirs = []string{"node_modules", ".git", "dist"}

// Watcher monitors a directory tree and reports debounced batches of changes.
type Watcher struct {
	root     string
	callback ChangeCallback
	logger   *slog.Logger
	debounce time.Duration
	skip     map[string]struct{}

	mu      sync.Mutex
	pending map[string]struct{}
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets the debounce duration. Default is 100ms.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// WithSkipDirs replaces the directory names excluded from watching.
func WithSkipDirs(names ...string) WatcherOption {
	return func(w *Watcher) {
		w.skip = make(map[string]struct{}, len(names))
		for _, n := range names {
			w.skip[n] = struct{}{}
		}
	}
}

// NewWatcher creates a watcher for the tree rooted at root.
func NewWatcher(root string, callback ChangeCallback, logger *slog.Logger, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		root:     root,
		callback: callback,
		logger:   logger,
		debounce: 100 * time.Millisecond,
		pending:  make(map[string]struct{}),
	}
	WithSkipDirs(DefaultSkipDirs...)(w)
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run watches every directory under root, adding directories created later,
// and invokes the callback once per debounce window. It blocks until ctx is
// cancelled, then returns nil.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	if err := w.addTree(fsw, w.root); err != nil {
		return err
	}

	reloadCh := make(chan struct{}, 1)
	var debounceTimer *time.Timer

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if event.Op == fsnotify.Chmod {
				continue
			}
			if w.skipped(event.Name) {
				continue
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(fsw, event.Name); err != nil {
						w.logger.Warn("failed to watch new directory", "path", event.Name, "error", err)
					}
				}
			}

			w.mu.Lock()
			w.pending[event.Name] = struct{}{}
			w.mu.Unlock()

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(w.debounce, func() {
				select {
				case reloadCh <- struct{}{}:
				default:
				}
			})

		case <-reloadCh:
			if paths := w.drain(); len(paths) > 0 {
				w.callback(paths)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("fsnotify error", "error", err)
		}
	}
}

func (w *Watcher) addTree(fsw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root {
			if _, skip := w.skip[d.Name()]; skip {
				return filepath.SkipDir
			}
		}
		return fsw.Add(path)
	})
}

// skipped reports whether path lies inside an excluded directory.
func (w *Watcher) skipped(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return false
	}
	for dir := rel; dir != "." && dir != string(filepath.Separator) && dir != ""; dir = filepath.Dir(dir) {
		if _, skip := w.skip[filepath.Base(dir)]; skip {
			return true
		}
	}
	return false
}

func (w *Watcher) drain() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.pending))
	for p := range w.pending {
		out = append(out, p)
	}
	w.pending = make(map[string]struct{})
	sort.Strings(out)
	return out
}
