package recipe

import "errors"

var (
	// ErrInvalidRecipe is returned when a recipe breaks the build contract.
	ErrInvalidRecipe = errors.New("invalid recipe")

	// ErrManifestMissing is returned when the dependency manifest is absent
	// from the build context.
	ErrManifestMissing = errors.New("dependency manifest missing")

	// ErrBuildFailed is returned when the image build does not complete.
	ErrBuildFailed = errors.New("image build failed")
)
