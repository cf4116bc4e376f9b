package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"

	"github.com/rathix/devproxy/internal/proxy"
)

const (
	DefaultHost           = "0.0.0.0"
	DefaultPort           = 5173
	DefaultRoot           = "."
	DefaultBase           = "/"
	DefaultDebounce       = 100 * time.Millisecond
	DefaultHealthInterval = 30 * time.Second
	DefaultDialTimeout    = proxy.DefaultDialTimeout
	DefaultNodeMajor      = 20
	DefaultVariant        = "slim"
	DefaultWorkdir        = "/app"
	DefaultManifest       = "package.json"
	DefaultTag            = "devproxy-frontend:dev"

	// LocalFile is looked up in the working directory when no path is given.
	LocalFile = "devproxy.yaml"
)

// Default returns a Config with every field set to its default.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Find resolves which config file to read. An explicit path always wins.
// Otherwise ./devproxy.yaml, then $XDG_CONFIG_HOME/devproxy/config.yaml.
// It returns "" when no file exists.
func Find(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if _, err := os.Stat(LocalFile); err == nil {
		return LocalFile
	}
	if p, err := xdg.SearchConfigFile(filepath.Join("devproxy", "config.yaml")); err == nil {
		return p
	}
	return ""
}

// Load reads and parses a YAML configuration file at path.
// If path is empty, does not exist, or is empty, it returns the defaults with no errors.
// If the YAML is malformed, it returns nil config with a parse error.
// For validation errors, it returns a valid config with invalid entries reset
// or stripped plus errors describing what was changed.
func Load(path string) (*Config, []error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, []error{fmt.Errorf("failed to read config file: %w", err)}
	}

	if len(strings.TrimSpace(string(data))) == 0 {
		return Default(), nil
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, []error{fmt.Errorf("failed to parse config YAML: %w", err)}
	}

	validationErrors := validate(&cfg)
	applyDefaults(&cfg)
	return &cfg, validationErrors
}

func validate(cfg *Config) []error {
	var errs []error

	if cfg.Server.Port != 0 && (cfg.Server.Port < 1 || cfg.Server.Port > 65535) {
		errs = append(errs, fmt.Errorf("server.port: %d out of range, using %d", cfg.Server.Port, DefaultPort))
		cfg.Server.Port = 0
	}

	// Validate proxy entries in prefix order so overlap reports are stable.
	if cfg.Proxy != nil {
		prefixes := make([]string, 0, len(cfg.Proxy))
		for p := range cfg.Proxy {
			prefixes = append(prefixes, p)
		}
		sort.Strings(prefixes)

		accepted := make([]string, 0, len(prefixes))
		for _, prefix := range prefixes {
			if _, err := proxy.ParseRule(prefix, cfg.Proxy[prefix].Target); err != nil {
				errs = append(errs, fmt.Errorf("proxy[%q]: %w", prefix, err))
				delete(cfg.Proxy, prefix)
				continue
			}
			if clash := overlapping(prefix, accepted); clash != "" {
				errs = append(errs, fmt.Errorf("proxy[%q]: overlaps %q", prefix, clash))
				delete(cfg.Proxy, prefix)
				continue
			}
			accepted = append(accepted, prefix)
		}
	}

	for field, raw := range map[string]*string{
		"liveReload.debounce": &cfg.LiveReload.Debounce,
		"health.interval":     &cfg.Health.Interval,
		"health.dialTimeout":  &cfg.Health.DialTimeout,
	} {
		if *raw == "" {
			continue
		}
		d, err := time.ParseDuration(*raw)
		if err != nil || d <= 0 {
			errs = append(errs, fmt.Errorf("%s: invalid duration %q, using default", field, *raw))
			*raw = ""
		}
	}
	if cfg.Health.Interval != "" {
		if d, _ := time.ParseDuration(cfg.Health.Interval); d < time.Second {
			errs = append(errs, fmt.Errorf("health.interval: must be at least 1s, got %q", cfg.Health.Interval))
			cfg.Health.Interval = ""
		}
	}

	if cfg.Image.NodeMajor < 0 {
		errs = append(errs, fmt.Errorf("image.nodeMajor: must be positive, got %d", cfg.Image.NodeMajor))
		cfg.Image.NodeMajor = 0
	}
	if m := cfg.Image.Manifest; m != "" && filepath.Base(m) != m {
		errs = append(errs, fmt.Errorf("image.manifest: must be a file name in the project root, got %q", m))
		cfg.Image.Manifest = ""
	}

	sort.Slice(errs, func(i, j int) bool { return errs[i].Error() < errs[j].Error() })
	return errs
}

func overlapping(prefix string, accepted []string) string {
	for _, a := range accepted {
		if strings.HasPrefix(prefix, a) || strings.HasPrefix(a, prefix) {
			return a
		}
	}
	return ""
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = DefaultHost
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultPort
	}
	if cfg.Server.Root == "" {
		cfg.Server.Root = DefaultRoot
	}
	if cfg.Server.Base == "" {
		cfg.Server.Base = DefaultBase
	}
	if cfg.Proxy == nil {
		cfg.Proxy = make(ProxyMap)
		for _, r := range proxy.DefaultRules() {
			cfg.Proxy[r.Prefix] = ProxyTarget{Target: r.Target.String()}
		}
	}
	if cfg.LiveReload.Debounce == "" {
		cfg.LiveReload.Debounce = DefaultDebounce.String()
	}
	if cfg.Health.Interval == "" {
		cfg.Health.Interval = DefaultHealthInterval.String()
	}
	if cfg.Health.DialTimeout == "" {
		cfg.Health.DialTimeout = DefaultDialTimeout.String()
	}
	if cfg.Image.NodeMajor == 0 {
		cfg.Image.NodeMajor = DefaultNodeMajor
	}
	if cfg.Image.Variant == "" {
		cfg.Image.Variant = DefaultVariant
	}
	if cfg.Image.Workdir == "" {
		cfg.Image.Workdir = DefaultWorkdir
	}
	if cfg.Image.Manifest == "" {
		cfg.Image.Manifest = DefaultManifest
	}
	if cfg.Image.Tag == "" {
		cfg.Image.Tag = DefaultTag
	}
}

// ProxyTable builds the immutable rule table described by the config.
func (c *Config) ProxyTable() (*proxy.Table, error) {
	rules := make([]proxy.Rule, 0, len(c.Proxy))
	for prefix, t := range c.Proxy {
		r, err := proxy.ParseRule(prefix, t.Target)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return proxy.NewTable(rules)
}
