package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/rathix/devproxy/internal/config"
	"github.com/rathix/devproxy/internal/health"
	"github.com/rathix/devproxy/internal/livereload"
	"github.com/rathix/devproxy/internal/proxy"
	"github.com/rathix/devproxy/internal/server"
)

// ServeCmd runs the dev server.
type ServeCmd struct {
	Host         string `help:"Listen host." env:"DEVPROXY_HOST"`
	Port         int    `help:"Listen port." env:"DEVPROXY_PORT"`
	Base         string `help:"Public base path the app is served under." env:"DEVPROXY_BASE"`
	NoLiveReload bool   `help:"Disable browser reload on file changes." env:"DEVPROXY_NO_LIVE_RELOAD"`
}

// apply overlays explicitly set flags onto cfg.
func (c *ServeCmd) apply(cfg *config.Config) {
	if c.Host != "" {
		cfg.Server.Host = c.Host
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}
	if c.Base != "" {
		cfg.Server.Base = c.Base
	}
	if c.NoLiveReload {
		disabled := false
		cfg.LiveReload.Enabled = &disabled
	}
}

func (c *ServeCmd) Run(ctx context.Context, g *Globals) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	c.apply(cfg)
	logger := g.Logger

	table, err := cfg.ProxyTable()
	if err != nil {
		return err
	}
	root := cfg.Server.Root
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return fmt.Errorf("project root %q is not a directory", root)
	}

	dialTimeout := cfg.Health.DialTimeoutDuration()
	var hub *livereload.Hub
	if cfg.LiveReload.IsEnabled() {
		hub = livereload.NewHub(livereload.WithLogger(logger))
		watcher := livereload.NewWatcher(root, hub.Notify, logger,
			livereload.WithDebounce(cfg.LiveReload.DebounceDuration()))
		go func() {
			if err := watcher.Run(ctx); err != nil {
				logger.Warn("live reload watcher stopped", "error", err)
			}
		}()
	}

	checker := health.NewChecker(table.Targets(), &http.Client{Timeout: dialTimeout}, cfg.Health.IntervalDuration(), logger)
	go checker.Run(ctx)

	for _, r := range table.Rules() {
		logger.Info("proxy rule", "prefix", r.Prefix, "target", r.Target.String())
	}
	logger.Info("starting dev server",
		"version", g.BuildVersion,
		"addr", cfg.Server.Addr(),
		"root", root,
		"base", cfg.Server.Base,
		"liveReload", hub != nil)

	srv := server.New(server.Config{
		Addr:         cfg.Server.Addr(),
		Files:        os.DirFS(root),
		Base:         cfg.Server.Base,
		Table:        table,
		ProxyOptions: []proxy.Option{proxy.WithDialTimeout(dialTimeout)},
		LiveReload:   hub,
		Backends:     checker,
		Version:      g.BuildVersion,
		Logger:       logger,
	})
	return srv.ListenAndServe(ctx)
}
