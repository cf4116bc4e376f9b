// Package recipe produces, checks and builds the container image that runs
// the frontend dev server: a pinned slim Node base, dependencies installed
// from the manifest alone, then the source tree, then the dev server bound to
// every interface.
package recipe

import (
	"fmt"
	"strconv"
	"strings"
)

// ManifestFile is the npm dependency manifest.
const ManifestFile = "package.json"

// DevPort is the port the dev server listens on inside the container.
const DevPort = 5173

// LockFiles never reach the build context. Dependencies resolve from the
// manifest alone.
var LockFiles = []string{
	"package-lock.json",
	"npm-shrinkwrap.json",
	"yarn.lock",
	"pnpm-lock.yaml",
}

// Options parameterise the default recipe.
type Options struct {
	NodeMajor int
	Variant   string // slim or alpine
	Workdir   string
	Manifest  string
	Port      int
}

// DefaultOptions returns the options for node:20-slim serving on 5173.
func DefaultOptions() Options {
	return Options{
		NodeMajor: 20,
		Variant:   "slim",
		Workdir:   "/app",
		Manifest:  ManifestFile,
		Port:      DevPort,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.NodeMajor <= 0 {
		o.NodeMajor = d.NodeMajor
	}
	if o.Variant == "" {
		o.Variant = d.Variant
	}
	if o.Workdir == "" {
		o.Workdir = d.Workdir
	}
	if o.Manifest == "" {
		o.Manifest = d.Manifest
	}
	if o.Port <= 0 {
		o.Port = d.Port
	}
	return o
}

// Recipe is an ordered list of build steps ending in the startup command.
// Manifest names the dependency manifest the third step must copy; empty
// means ManifestFile.
type Recipe struct {
	Steps    []Step
	Manifest string
}

// Default returns the seven-step dev server recipe. Zero-valued options fall
// back to DefaultOptions.
func Default(opts Options) *Recipe {
	o := opts.withDefaults()
	port := strconv.Itoa(o.Port)
	return &Recipe{Manifest: o.Manifest, Steps: []Step{
		{Kind: KindFrom, Args: []string{fmt.Sprintf("node:%d-%s", o.NodeMajor, o.Variant)}},
		{Kind: KindWorkdir, Args: []string{o.Workdir}},
		{Kind: KindCopy, Args: []string{o.Manifest, "./"}},
		{Kind: KindRun, Args: []string{"npm", "install", "--include=optional"}},
		{Kind: KindCopy, Args: []string{".", "."}},
		{Kind: KindExpose, Args: []string{port}},
		{Kind: KindCmd, JSON: true, Args: []string{"npm", "run", "dev", "--", "--host", "0.0.0.0", "--port", port}},
	}}
}

// ManifestName returns the manifest file the recipe installs from.
func (r *Recipe) ManifestName() string {
	if r.Manifest == "" {
		return ManifestFile
	}
	return r.Manifest
}

// first returns the first step of kind k.
func (r *Recipe) first(k Kind) (Step, bool) {
	for _, s := range r.Steps {
		if s.Kind == k {
			return s, true
		}
	}
	return Step{}, false
}

// BaseImage returns the FROM reference.
func (r *Recipe) BaseImage() string {
	s, ok := r.first(KindFrom)
	if !ok || len(s.Args) == 0 {
		return ""
	}
	return s.Args[0]
}

// Workdir returns the WORKDIR path, or "/" when none is set.
func (r *Recipe) Workdir() string {
	s, ok := r.first(KindWorkdir)
	if !ok || len(s.Args) == 0 {
		return "/"
	}
	return s.Args[0]
}

// ExposedPort returns the first EXPOSE port without its protocol.
func (r *Recipe) ExposedPort() (int, bool) {
	s, ok := r.first(KindExpose)
	if !ok || len(s.Args) == 0 {
		return 0, false
	}
	port, _, _ := strings.Cut(s.Args[0], "/")
	n, err := strconv.Atoi(port)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Cmd returns the startup command arguments.
func (r *Recipe) Cmd() []string {
	s, ok := r.first(KindCmd)
	if !ok {
		return nil
	}
	return append([]string(nil), s.Args...)
}
