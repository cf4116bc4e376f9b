package recipe

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Manifest is the subset of package.json the build relies on.
type Manifest struct {
	Name                 string            `json:"name"`
	Version              string            `json:"version"`
	Scripts              map[string]string `json:"scripts"`
	Dependencies         map[string]string `json:"dependencies"`
	DevDependencies      map[string]string `json:"devDependencies"`
	OptionalDependencies map[string]string `json:"optionalDependencies"`
}

// ReadManifest parses the manifest name in root.
func ReadManifest(root, name string) (*Manifest, error) {
	if name == "" {
		name = ManifestFile
	}
	data, err := os.ReadFile(filepath.Join(root, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s not found in %s", ErrManifestMissing, name, root)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	return &m, nil
}

// Check verifies the manifest can start the dev server.
func (m *Manifest) Check() error {
	if m.Scripts["dev"] == "" {
		return fmt.Errorf("%w: manifest has no \"dev\" script", ErrInvalidRecipe)
	}
	return nil
}

// DependencyCount is the number of packages npm install resolves directly,
// optional ones included.
func (m *Manifest) DependencyCount() int {
	return len(m.Dependencies) + len(m.DevDependencies) + len(m.OptionalDependencies)
}
