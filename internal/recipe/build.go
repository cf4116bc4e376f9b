package recipe

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	docker "github.com/fsouza/go-dockerclient"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// DockerfileName is the generated Dockerfile's name inside the build
// context. The generated .dockerignore lists it, so the daemon drops it
// before COPY . . runs.
const DockerfileName = ".devproxy.Dockerfile"

// ImageBuilder abstracts *docker.Client for testability.
type ImageBuilder interface {
	BuildImage(opts docker.BuildImageOptions) error
}

// Builder sends a recipe and its context to an image builder.
type Builder struct {
	client ImageBuilder
	output io.Writer
	logger *slog.Logger
	pull   bool
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithOutput receives the daemon's build log.
func WithOutput(w io.Writer) BuilderOption {
	return func(b *Builder) { b.output = w }
}

// WithBuildLogger sets the logger. If nil, a no-op logger is used.
func WithBuildLogger(l *slog.Logger) BuilderOption {
	return func(b *Builder) { b.logger = l }
}

// WithPull always fetches the base image before building.
func WithPull(pull bool) BuilderOption {
	return func(b *Builder) { b.pull = pull }
}

// NewBuilder creates a Builder around client.
func NewBuilder(client ImageBuilder, opts ...BuilderOption) *Builder {
	b := &Builder{client: client, output: io.Discard}
	for _, o := range opts {
		o(b)
	}
	if b.logger == nil {
		b.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if b.output == nil {
		b.output = io.Discard
	}
	return b
}

// NewDockerBuilder connects to the daemon named by DOCKER_HOST and friends.
func NewDockerBuilder(opts ...BuilderOption) (*Builder, error) {
	client, err := docker.NewClientFromEnv()
	if err != nil {
		return nil, fmt.Errorf("connect to docker: %w", err)
	}
	return NewBuilder(client, opts...), nil
}

// Build validates r, then streams bc plus the rendered Dockerfile to the
// daemon and tags the result. Any failing step, dependency installation
// included, aborts the build and leaves no tagged image.
func (b *Builder) Build(ctx context.Context, r *Recipe, bc *BuildContext, tag string) error {
	if err := Validate(r); err != nil {
		return err
	}
	var dockerfile bytes.Buffer
	if err := Render(&dockerfile, r); err != nil {
		return err
	}
	var ignore bytes.Buffer
	if err := WriteIgnore(&ignore, append(IgnorePatterns(bc.Patterns), DockerfileName)); err != nil {
		return err
	}
	extra := map[string][]byte{
		DockerfileName: dockerfile.Bytes(),
		IgnoreFile:     ignore.Bytes(),
	}

	pr, pw := io.Pipe()
	writeErr := make(chan error, 1)
	go func() {
		err := bc.WriteTar(pw, extra)
		pw.CloseWithError(err)
		writeErr <- err
	}()

	start := time.Now()
	b.logger.Info("building image", "tag", tag, "base", r.BaseImage(), "files", len(bc.Files), "context", bc.Digest())
	err := b.client.BuildImage(docker.BuildImageOptions{
		Context:        ctx,
		Name:           tag,
		Dockerfile:     DockerfileName,
		InputStream:    pr,
		OutputStream:   b.output,
		RmTmpContainer: true,
		Pull:           b.pull,
		Labels: map[string]string{
			ocispec.AnnotationBaseImageName: r.BaseImage(),
		},
	})
	pr.CloseWithError(io.ErrClosedPipe)
	if werr := <-writeErr; werr != nil && err == nil {
		err = werr
	}
	if err != nil {
		b.logger.Warn("image build failed", "tag", tag, "error", err)
		return fmt.Errorf("%w: %w", ErrBuildFailed, err)
	}
	b.logger.Info("image built", "tag", tag, "duration", time.Since(start).Round(time.Millisecond))
	return nil
}
