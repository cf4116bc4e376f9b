package recipe

import (
	"fmt"

	"github.com/opencontainers/go-digest"
)

// PlannedStep is a step with its cache key. Key changes whenever the step,
// any earlier step, or the content of the step's inputs changes.
type PlannedStep struct {
	Index  int
	Step   Step
	Inputs []File
	Key    digest.Digest
}

// Plan computes chained cache keys for r against bc. A COPY source that
// matches nothing in the context is an error, as it would fail the build.
func Plan(r *Recipe, bc *BuildContext) ([]PlannedStep, error) {
	planned := make([]PlannedStep, 0, len(r.Steps))
	var parent digest.Digest
	for i, s := range r.Steps {
		ps := PlannedStep{Index: i + 1, Step: s}
		if s.Kind == KindCopy && len(s.Args) > 1 && flagValue(s.Flags, "--from") == "" {
			for _, src := range s.Args[:len(s.Args)-1] {
				matched := bc.Select(src)
				if len(matched) == 0 {
					return nil, fmt.Errorf("%w: step %d: %s matches no files in the build context", ErrInvalidRecipe, i+1, src)
				}
				ps.Inputs = append(ps.Inputs, matched...)
			}
		}
		ps.Key = stepKey(parent, s, ps.Inputs)
		parent = ps.Key
		planned = append(planned, ps)
	}
	return planned, nil
}

func stepKey(parent digest.Digest, s Step, inputs []File) digest.Digest {
	d := digest.Canonical.Digester()
	h := d.Hash()
	fmt.Fprintf(h, "parent %s\n%s\n", parent, s)
	for _, f := range inputs {
		fmt.Fprintf(h, "%s %o %s\n", f.Path, f.Mode.Perm(), f.Digest)
	}
	return d.Digest()
}
