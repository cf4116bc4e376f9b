package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"time"

	"github.com/google/uuid"
)

// DefaultDialTimeout bounds how long a forwarded request waits for the
// backend to accept a connection.
const DefaultDialTimeout = 5 * time.Second

// forwardedHeaders are stripped by httputil's Rewrite hook. They are put back
// so the backend sees exactly what the client sent.
var forwardedHeaders = []string{"Forwarded", "X-Forwarded-For", "X-Forwarded-Host", "X-Forwarded-Proto"}

type options struct {
	logger      *slog.Logger
	transport   http.RoundTripper
	dialTimeout time.Duration
}

// Option configures a Handler.
type Option func(*options)

// WithLogger sets the logger used for forwarded exchanges.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithTransport replaces the round tripper used to reach backends.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.transport = rt }
}

// WithDialTimeout sets the backend connect timeout. Ignored when a custom
// transport is supplied.
func WithDialTimeout(d time.Duration) Option {
	return func(o *options) { o.dialTimeout = d }
}

// Handler consults a Table for every request. Matching requests are forwarded
// to the rule's backend; everything else is passed to the fallback handler.
type Handler struct {
	table    *Table
	fallback http.Handler
	proxies  map[string]*httputil.ReverseProxy
	logger   *slog.Logger
}

// NewHandler builds a Handler for table. A nil fallback answers 404.
func NewHandler(table *Table, fallback http.Handler, opts ...Option) *Handler {
	o := options{dialTimeout: DefaultDialTimeout}
	for _, fn := range opts {
		fn(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if o.transport == nil {
		o.transport = newTransport(o.dialTimeout)
	}
	if fallback == nil {
		fallback = http.NotFoundHandler()
	}

	h := &Handler{
		table:    table,
		fallback: fallback,
		proxies:  make(map[string]*httputil.ReverseProxy, len(table.rules)),
		logger:   o.logger,
	}
	for _, rule := range table.rules {
		h.proxies[rule.Prefix] = h.newReverseProxy(rule, o.transport)
	}
	return h
}

func newTransport(dialTimeout time.Duration) *http.Transport {
	// Environment proxies are ignored: backends are local development servers.
	return &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   dialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
}

func (h *Handler) newReverseProxy(rule Rule, transport http.RoundTripper) *httputil.ReverseProxy {
	target := rule.Target
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			// SetURL points the request at target and clears Out.Host, so the
			// Host header becomes the target's host.
			pr.SetURL(target)
			for _, name := range forwardedHeaders {
				if v, ok := pr.In.Header[name]; ok {
					pr.Out.Header[name] = v
				}
			}
		},
		Transport:     transport,
		FlushInterval: -1,
		ErrorLog:      slog.NewLogLogger(h.logger.Handler(), slog.LevelDebug),
		ErrorHandler:  h.errorHandler(rule),
	}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rule, ok := h.table.Match(r.URL.Path)
	if !ok {
		h.fallback.ServeHTTP(w, r)
		return
	}

	id := uuid.NewString()
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w}
	h.proxies[rule.Prefix].ServeHTTP(rec, r.WithContext(withRequestID(r.Context(), id)))

	h.logger.Debug("proxied request",
		"id", id,
		"method", r.Method,
		"path", r.URL.Path,
		"target", rule.Target.String(),
		"status", rec.status(),
		"durationMs", time.Since(start).Milliseconds(),
	)
}

// errorHandler surfaces backend failures to the client. Nothing is retried.
func (h *Handler) errorHandler(rule Rule) func(http.ResponseWriter, *http.Request, error) {
	return func(w http.ResponseWriter, r *http.Request, err error) {
		id := requestID(r.Context())
		if r.Context().Err() != nil && errors.Is(err, context.Canceled) {
			h.logger.Debug("client cancelled proxied request", "id", id, "path", r.URL.Path)
			return
		}

		status := http.StatusBadGateway
		if isTimeout(err) {
			status = http.StatusGatewayTimeout
		}
		h.logger.Warn("proxy request failed",
			"id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"target", rule.Target.String(),
			"status", status,
			"error", err,
		)
		http.Error(w, fmt.Sprintf("devproxy: %s %s -> %s: %v", r.Method, r.URL.Path, rule.Target, err), status)
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

type requestIDKey struct{}

func withRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// statusRecorder captures the status code written through it. Unwrap keeps
// http.ResponseController (flush, hijack for upgrades) working.
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.code == 0 {
		s.code = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.code == 0 {
		s.code = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

func (s *statusRecorder) Flush() {
	_ = http.NewResponseController(s.ResponseWriter).Flush()
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

func (s *statusRecorder) status() int {
	if s.code == 0 {
		return http.StatusOK
	}
	return s.code
}
