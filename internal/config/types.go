package config

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration parsed from the YAML config file.
type Config struct {
	Server     ServerConfig     `yaml:"server"     json:"server"`
	Proxy      ProxyMap         `yaml:"proxy"      json:"proxy"`
	LiveReload LiveReloadConfig `yaml:"liveReload" json:"liveReload"`
	Health     HealthConfig     `yaml:"health"     json:"health"`
	Image      ImageConfig      `yaml:"image"      json:"image"`
}

// ServerConfig controls where the dev server listens and what it serves.
type ServerConfig struct {
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`
	Root string `yaml:"root" json:"root"`
	Base string `yaml:"base" json:"base"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// ProxyMap maps a path prefix to its backend target. A nil map means the
// default rules apply; an empty map disables proxying.
type ProxyMap map[string]ProxyTarget

// ProxyTarget is a backend origin. In YAML it is either a bare string or a
// mapping with a "target" key:
//
//	proxy:
//	  /transcribe: http://localhost:8000
//	  /process_content:
//	    target: http://localhost:8000
type ProxyTarget struct {
	Target string `yaml:"target" json:"target"`
}

// UnmarshalYAML accepts the scalar and mapping forms.
func (p *ProxyTarget) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		p.Target = node.Value
		return nil
	case yaml.MappingNode:
		type plain ProxyTarget
		var v plain
		if err := node.Decode(&v); err != nil {
			return err
		}
		*p = ProxyTarget(v)
		return nil
	default:
		return fmt.Errorf("line %d: proxy target must be a string or a mapping", node.Line)
	}
}

// LiveReloadConfig controls browser reloads on source changes.
type LiveReloadConfig struct {
	Enabled  *bool  `yaml:"enabled"  json:"enabled"`
	Debounce string `yaml:"debounce" json:"debounce"`
}

// IsEnabled reports whether live reload is on. It defaults to true.
func (l LiveReloadConfig) IsEnabled() bool {
	return l.Enabled == nil || *l.Enabled
}

// DebounceDuration returns the parsed debounce window.
func (l LiveReloadConfig) DebounceDuration() time.Duration {
	d, err := time.ParseDuration(l.Debounce)
	if err != nil {
		return DefaultDebounce
	}
	return d
}

// HealthConfig controls backend reachability probing.
type HealthConfig struct {
	Interval    string `yaml:"interval"    json:"interval"`
	DialTimeout string `yaml:"dialTimeout" json:"dialTimeout"`
}

// IntervalDuration returns the parsed probe interval.
func (h HealthConfig) IntervalDuration() time.Duration {
	d, err := time.ParseDuration(h.Interval)
	if err != nil {
		return DefaultHealthInterval
	}
	return d
}

// DialTimeoutDuration returns the parsed backend connect timeout.
func (h HealthConfig) DialTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(h.DialTimeout)
	if err != nil {
		return DefaultDialTimeout
	}
	return d
}

// ImageConfig parameterises the container image recipe.
type ImageConfig struct {
	NodeMajor int    `yaml:"nodeMajor" json:"nodeMajor"`
	Variant   string `yaml:"variant"   json:"variant"`
	Workdir   string `yaml:"workdir"   json:"workdir"`
	Manifest  string `yaml:"manifest"  json:"manifest"`
	Tag       string `yaml:"tag"       json:"tag"`
}
