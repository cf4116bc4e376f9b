package recipe

import (
	"errors"
	"testing"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

func TestImageConfig(t *testing.T) {
	img, err := ImageConfig(Default(DefaultOptions()))
	if err != nil {
		t.Fatal(err)
	}

	if img.OS != "linux" {
		t.Errorf("expected linux, got %q", img.OS)
	}
	if img.Config.WorkingDir != "/app" {
		t.Errorf("expected /app, got %q", img.Config.WorkingDir)
	}
	if _, ok := img.Config.ExposedPorts["5173/tcp"]; !ok || len(img.Config.ExposedPorts) != 1 {
		t.Errorf("expected only 5173/tcp exposed, got %v", img.Config.ExposedPorts)
	}
	if len(img.Config.Cmd) != 8 || img.Config.Cmd[5] != "0.0.0.0" {
		t.Errorf("unexpected cmd %v", img.Config.Cmd)
	}
	if img.Config.Labels[ocispec.AnnotationBaseImageName] != "node:20-slim" {
		t.Errorf("unexpected base label %v", img.Config.Labels)
	}
}

func TestImageConfigWithoutPort(t *testing.T) {
	r := Default(DefaultOptions())
	r.Steps[5].Args = nil
	if _, err := ImageConfig(r); !errors.Is(err, ErrInvalidRecipe) {
		t.Errorf("expected ErrInvalidRecipe, got %v", err)
	}
}
