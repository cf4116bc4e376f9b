package recipe

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/opencontainers/go-digest"
)

// stepOrder is the only accepted instruction sequence: base, workdir,
// manifest copy, install, source copy, port, command.
var stepOrder = []Kind{KindFrom, KindWorkdir, KindCopy, KindRun, KindCopy, KindExpose, KindCmd}

// pinnedTag accepts a major (optionally minor/patch) version followed by a
// slim or alpine variant, e.g. 20-slim, 20.11-bookworm-slim, 20-alpine3.19.
var pinnedTag = regexp.MustCompile(`^\d+(\.\d+){0,2}(-[a-z0-9]+)*-(slim|alpine[0-9.]*)$`)

// Validate reports every way r breaks the build contract. The returned error
// wraps ErrInvalidRecipe once per violation.
func Validate(r *Recipe) error {
	if r == nil {
		return fmt.Errorf("%w: nil recipe", ErrInvalidRecipe)
	}
	if err := checkOrder(r.Steps); err != nil {
		return err
	}

	var errs []error
	add := func(i int, format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: step %d (%s): %s", ErrInvalidRecipe, i+1, r.Steps[i].Kind, fmt.Sprintf(format, args...)))
	}

	if msg := checkBase(r.Steps[0]); msg != "" {
		add(0, "%s", msg)
	}
	if wd := r.Steps[1]; len(wd.Args) != 1 || !strings.HasPrefix(wd.Args[0], "/") {
		add(1, "workdir must be a single absolute path")
	}
	for _, msg := range checkManifestCopy(r.Steps[2], r.ManifestName()) {
		add(2, "%s", msg)
	}
	for _, msg := range checkInstall(r.Steps[3]) {
		add(3, "%s", msg)
	}
	if msg := checkSourceCopy(r.Steps[4]); msg != "" {
		add(4, "%s", msg)
	}

	exposed, ok := r.ExposedPort()
	if !ok || len(r.Steps[5].Args) != 1 {
		add(5, "must expose exactly one numeric port")
	}
	cmdPort, cmdMsgs := checkCmd(r.Steps[6])
	for _, msg := range cmdMsgs {
		add(6, "%s", msg)
	}
	if ok && cmdPort != 0 && cmdPort != exposed {
		add(6, "dev server port %d does not match exposed port %d", cmdPort, exposed)
	}

	return errors.Join(errs...)
}

func checkOrder(steps []Step) error {
	if len(steps) != len(stepOrder) {
		return fmt.Errorf("%w: expected %d steps, got %d", ErrInvalidRecipe, len(stepOrder), len(steps))
	}
	var errs []error
	for i, want := range stepOrder {
		if steps[i].Kind != want {
			errs = append(errs, fmt.Errorf("%w: step %d: expected %s, got %s", ErrInvalidRecipe, i+1, want, steps[i].Kind))
		}
	}
	return errors.Join(errs...)
}

func checkBase(s Step) string {
	if len(s.Args) != 1 {
		return "base image must be a single reference without a stage name"
	}
	ref := s.Args[0]
	if name, dgst, found := strings.Cut(ref, "@"); found {
		if _, err := digest.Parse(dgst); err != nil {
			return fmt.Sprintf("invalid base image digest: %v", err)
		}
		ref = name
	}
	// The tag follows the last colon that comes after the last slash, so a
	// registry port is not mistaken for one.
	slash := strings.LastIndex(ref, "/")
	colon := strings.LastIndex(ref, ":")
	if colon <= slash {
		return fmt.Sprintf("base image %q is not pinned to a version", s.Args[0])
	}
	repo, tag := ref[:colon], ref[colon+1:]
	if path.Base(repo) != "node" {
		return fmt.Sprintf("base image %q is not a node image", s.Args[0])
	}
	if !pinnedTag.MatchString(tag) {
		return fmt.Sprintf("base image tag %q must pin a major version and a slim or alpine variant", tag)
	}
	return ""
}

func checkManifestCopy(s Step, manifest string) []string {
	var msgs []string
	if flagValue(s.Flags, "--from") != "" {
		msgs = append(msgs, "manifest must be copied from the build context")
	}
	if len(s.Args) < 2 {
		return append(msgs, "copy needs a source and a destination")
	}
	srcs, dest := s.Args[:len(s.Args)-1], s.Args[len(s.Args)-1]
	if !strings.HasSuffix(dest, "/") && dest != "." {
		msgs = append(msgs, fmt.Sprintf("destination %q must be a directory", dest))
	}

	hasManifest := false
	for _, src := range srcs {
		if src == manifest || src == "./"+manifest {
			hasManifest = true
		}
		for _, lock := range LockFiles {
			if matched, _ := path.Match(strings.TrimPrefix(src, "./"), lock); matched {
				msgs = append(msgs, fmt.Sprintf("source %q copies lock file %s", src, lock))
			}
		}
		if src == "." || strings.HasSuffix(src, "/") {
			msgs = append(msgs, fmt.Sprintf("source %q copies more than the manifest", src))
		}
	}
	if !hasManifest {
		msgs = append(msgs, "manifest "+manifest+" is not copied")
	}
	return msgs
}

func checkInstall(s Step) []string {
	words := s.words()
	if len(words) < 2 || words[0] != "npm" {
		return []string{"dependencies must be installed with npm"}
	}
	var msgs []string
	switch words[1] {
	case "install", "i":
	case "ci":
		msgs = append(msgs, "npm ci requires a lock file; use npm install")
	default:
		msgs = append(msgs, fmt.Sprintf("npm %s does not install dependencies", words[1]))
	}
	for _, w := range words[2:] {
		switch {
		case w == "--no-optional", w == "--omit=optional", w == "--production", w == "--omit=dev",
			strings.HasPrefix(w, "--only="):
			msgs = append(msgs, fmt.Sprintf("flag %s excludes dependencies", w))
		case w == "&&", w == ";", w == "||":
			msgs = append(msgs, "install step must run a single command")
		}
	}
	return msgs
}

func checkSourceCopy(s Step) string {
	if flagValue(s.Flags, "--from") != "" {
		return "source must be copied from the build context"
	}
	if len(s.Args) != 2 || (s.Args[0] != "." && s.Args[0] != "./") || (s.Args[1] != "." && s.Args[1] != "./") {
		return "must copy the whole context into the workdir with COPY . ."
	}
	return ""
}

// checkCmd returns the port the dev server is told to use (DevPort when
// unspecified) and any problems with the command.
func checkCmd(s Step) (int, []string) {
	if !s.JSON {
		return 0, []string{"command must use exec form"}
	}
	if len(s.Args) == 0 {
		return 0, []string{"command is empty"}
	}
	var msgs []string
	if host := flagValue(s.Args, "--host"); host != "0.0.0.0" {
		msgs = append(msgs, "dev server must bind 0.0.0.0")
	}
	port := DevPort
	if raw := flagValue(s.Args, "--port"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return 0, append(msgs, fmt.Sprintf("invalid port %q", raw))
		}
		port = n
	}
	return port, msgs
}

// flagValue finds --name=value or --name value in words.
func flagValue(words []string, name string) string {
	for i, w := range words {
		if v, ok := strings.CutPrefix(w, name+"="); ok {
			return v
		}
		if w == name && i+1 < len(words) {
			return words[i+1]
		}
	}
	return ""
}
