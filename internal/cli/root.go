// Package cli parses the devproxy command line and runs the selected
// command.
//
// Settings resolve in order: flag, DEVPROXY_* environment variable, config
// file, built-in default.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"github.com/rathix/devproxy/internal/config"
)

// Globals are the flags shared by every command.
type Globals struct {
	Config    string `short:"c" help:"Path to the YAML config file." env:"DEVPROXY_CONFIG" placeholder:"PATH"`
	LogFormat string `help:"Log format (json or text)." enum:"json,text" default:"json" env:"DEVPROXY_LOG_FORMAT"`
	LogLevel  string `help:"Minimum log level." enum:"debug,info,warn,error" default:"info" env:"DEVPROXY_LOG_LEVEL"`
	Root      string `help:"Project root directory." env:"DEVPROXY_ROOT" placeholder:"DIR"`

	BuildVersion string       `kong:"-"`
	Stdout       io.Writer    `kong:"-"`
	Logger       *slog.Logger `kong:"-"`
}

// CLI is the root command.
type CLI struct {
	Globals

	Serve   ServeCmd   `cmd:"" default:"1" help:"Run the dev server (default)."`
	Recipe  RecipeCmd  `cmd:"" help:"Render, check, plan and build the container image recipe."`
	Version VersionCmd `cmd:"" help:"Show version information."`
}

// Execute parses args and runs the selected command.
func Execute(ctx context.Context, args []string, version string, stdout, stderr io.Writer) error {
	cli := CLI{Globals: Globals{BuildVersion: version, Stdout: stdout}}
	parser, err := kong.New(&cli,
		kong.Name("devproxy"),
		kong.Description("Frontend dev server that forwards backend API paths, plus the image recipe that runs it."),
		kong.Writers(stdout, stderr),
		kong.BindTo(ctx, (*context.Context)(nil)),
	)
	if err != nil {
		return err
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	cli.Logger = setupLogger(cli.LogFormat, cli.LogLevel, stderr)
	slog.SetDefault(cli.Logger)
	return kctx.Run(&cli.Globals)
}

// loadConfig finds and reads the config file. Validation problems are logged
// and the offending entries fall back to defaults; a file that cannot be
// parsed is fatal.
func (g *Globals) loadConfig() (*config.Config, error) {
	path := config.Find(g.Config)
	if g.Config != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
	}
	cfg, errs := config.Load(path)
	if cfg == nil {
		return nil, fmt.Errorf("load config %s: %w", path, errors.Join(errs...))
	}
	for _, e := range errs {
		g.Logger.Warn("config validation warning", "error", e)
	}
	if path != "" {
		g.Logger.Debug("config loaded", "path", path)
	}
	if g.Root != "" {
		cfg.Server.Root = g.Root
	}
	return cfg, nil
}

// VersionCmd prints the build version.
type VersionCmd struct{}

func (c *VersionCmd) Run(g *Globals) error {
	_, err := fmt.Fprintf(g.Stdout, "devproxy version %s\n", g.BuildVersion)
	return err
}
