package livereload

import (
	"log/slog"
	"time"
)

const (
	// DefaultPingInterval is the default interval between server-sent pings.
	DefaultPingInterval = 15 * time.Second

	// DefaultPongTimeout is the maximum time to wait for a pong reply.
	DefaultPongTimeout = 10 * time.Second

	// DefaultWriteTimeout bounds a single reload message write.
	DefaultWriteTimeout = 5 * time.Second
)

// Options configures live-reload client connections.
type Options struct {
	PingInterval time.Duration
	PongTimeout  time.Duration
	WriteTimeout time.Duration
	Logger       *slog.Logger
}

// Option is a functional option for configuring client connections.
type Option func(*Options)

// WithPingInterval sets the interval between server-sent pings.
func WithPingInterval(d time.Duration) Option {
	return func(o *Options) { o.PingInterval = d }
}

// WithPongTimeout sets the maximum time to wait for a pong reply.
func WithPongTimeout(d time.Duration) Option {
	return func(o *Options) { o.PongTimeout = d }
}

// WithWriteTimeout sets the deadline for a single message write.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *Options) { o.WriteTimeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

func applyOptions(opts []Option) Options {
	o := Options{
		PingInterval: DefaultPingInterval,
		PongTimeout:  DefaultPongTimeout,
		WriteTimeout: DefaultWriteTimeout,
		Logger:       slog.Default(),
	}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}
