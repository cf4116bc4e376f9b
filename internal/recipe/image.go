package recipe

import (
	"fmt"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// ImageConfig returns the OCI runtime configuration the recipe produces.
func ImageConfig(r *Recipe) (ocispec.Image, error) {
	port, ok := r.ExposedPort()
	if !ok {
		return ocispec.Image{}, fmt.Errorf("%w: no exposed port", ErrInvalidRecipe)
	}
	return ocispec.Image{
		Platform: ocispec.Platform{OS: "linux"},
		Config: ocispec.ImageConfig{
			WorkingDir:   r.Workdir(),
			ExposedPorts: map[string]struct{}{fmt.Sprintf("%d/tcp", port): {}},
			Cmd:          r.Cmd(),
			Labels: map[string]string{
				ocispec.AnnotationBaseImageName: r.BaseImage(),
			},
		},
	}, nil
}
