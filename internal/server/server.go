package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/rathix/devproxy/internal/livereload"
	"github.com/rathix/devproxy/internal/proxy"
)

const shutdownTimeout = 10 * time.Second

// Config describes a dev server.
type Config struct {
	Addr         string
	Files        fs.FS
	Base         string
	Table        *proxy.Table
	ProxyOptions []proxy.Option
	LiveReload   *livereload.Hub // nil disables live reload
	Backends     BackendStatus   // nil omits backend state from the status endpoint
	Version      string
	Logger       *slog.Logger
}

// Server is the development HTTP server. Each request is checked against the
// internal endpoints, then the proxy table, then served from local files.
type Server struct {
	cfg     Config
	handler http.Handler
	logger  *slog.Logger
}

// New assembles the request pipeline for cfg.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Server{cfg: cfg, logger: logger}

	var inject func([]byte) []byte
	if cfg.LiveReload != nil {
		script := livereload.ClientScript()
		inject = func(html []byte) []byte { return livereload.Inject(html, script) }
	}
	static := NewBaseHandler(cfg.Base, NewStaticHandler(cfg.Files, inject))

	opts := append([]proxy.Option{proxy.WithLogger(logger)}, cfg.ProxyOptions...)
	proxied := proxy.NewHandler(cfg.Table, static, opts...)

	internal := map[string]http.Handler{StatusEndpoint: http.HandlerFunc(s.handleStatus)}
	if cfg.LiveReload != nil {
		internal[livereload.Endpoint] = cfg.LiveReload
	}

	// Internal endpoints match the exact path. Nothing here cleans the path
	// before the proxy table sees it.
	s.handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h, ok := internal[r.URL.Path]; ok {
			if r.Method != http.MethodGet && r.Method != http.MethodHead {
				w.Header().Set("Allow", "GET, HEAD")
				http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
				return
			}
			h.ServeHTTP(w, r)
			return
		}
		proxied.ServeHTTP(w, r)
	})
	return s
}

// Handler returns the server's root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe listens on the configured address and serves until ctx is
// cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then closes live
// reload clients and drains in-flight requests.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelDebug),
	}

	serverError := make(chan error, 1)
	go func() {
		s.logger.Info("Listening (HTTP)", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverError <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if s.cfg.LiveReload != nil {
			s.cfg.LiveReload.CloseAll(shutdownCtx)
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		s.logger.Info("Server stopped")
		return nil
	case err := <-serverError:
		return fmt.Errorf("server error: %w", err)
	}
}
