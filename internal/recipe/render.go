package recipe

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"text/template"
)

var dockerfileTemplate = template.Must(template.New("Dockerfile").Parse(
	`{{range $i, $s := .Steps}}{{if or (eq $i 2) (eq $i 4) (eq $i 5)}}
{{end}}{{$s}}
{{end}}`))

// Render writes r as a Dockerfile.
func Render(w io.Writer, r *Recipe) error {
	if err := dockerfileTemplate.Execute(w, r); err != nil {
		return fmt.Errorf("render dockerfile: %w", err)
	}
	return nil
}

// baseIgnore keeps installed modules, build output and VCS state out of the
// context. Lock files are appended after it.
var baseIgnore = []string{
	"node_modules",
	"dist",
	".git",
	"npm-debug.log*",
	".dockerignore",
}

// IgnorePatterns returns the .dockerignore entries for the recipe: the
// defaults, every lock file, then extra in order with duplicates removed.
// Negations that would re-include a lock file are dropped.
func IgnorePatterns(extra []string) []string {
	out := append(append([]string{}, baseIgnore...), LockFiles...)
	for _, p := range extra {
		p = strings.TrimSpace(p)
		if p == "" || slices.Contains(out, p) {
			continue
		}
		if neg, ok := strings.CutPrefix(p, "!"); ok && reincludesLockFile(neg) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// WriteIgnore writes patterns one per line.
func WriteIgnore(w io.Writer, patterns []string) error {
	for _, p := range patterns {
		if _, err := fmt.Fprintln(w, p); err != nil {
			return err
		}
	}
	return nil
}
