package recipe

import (
	"fmt"
	"io"
	"strings"

	"github.com/moby/buildkit/frontend/dockerfile/parser"
)

// Parse reads a Dockerfile into a Recipe so it can be validated. Every
// instruction is kept, including ones the recipe never uses, so Validate can
// report them.
func Parse(r io.Reader) (*Recipe, error) {
	res, err := parser.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecipe, err)
	}

	rec := &Recipe{}
	for _, node := range res.AST.Children {
		step := Step{
			Kind:  Kind(strings.ToUpper(node.Value)),
			Flags: append([]string(nil), node.Flags...),
			JSON:  node.Attributes["json"],
		}
		for n := node.Next; n != nil; n = n.Next {
			step.Args = append(step.Args, n.Value)
		}
		if len(node.Heredocs) > 0 {
			return nil, fmt.Errorf("%w: line %d: heredocs are not supported", ErrInvalidRecipe, node.StartLine)
		}
		rec.Steps = append(rec.Steps, step)
	}
	return rec, nil
}
