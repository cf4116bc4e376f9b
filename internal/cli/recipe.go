package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rathix/devproxy/internal/config"
	"github.com/rathix/devproxy/internal/recipe"
)

// newImageBuilder is replaced in tests.
var newImageBuilder = recipe.NewDockerBuilder

// RecipeCmd groups the image recipe commands.
type RecipeCmd struct {
	Dockerfile RecipeDockerfileCmd `cmd:"" help:"Print the Dockerfile."`
	Ignore     RecipeIgnoreCmd     `cmd:"" help:"Print the .dockerignore entries."`
	Check      RecipeCheckCmd      `cmd:"" help:"Validate a Dockerfile and the project manifest."`
	Plan       RecipePlanCmd       `cmd:"" help:"List each step with its inputs and cache key."`
	Config     RecipeConfigCmd     `cmd:"" help:"Print the OCI image config as JSON."`
	Build      RecipeBuildCmd      `cmd:"" help:"Build and tag the image with the local Docker daemon."`
}

func recipeOptions(cfg *config.Config) recipe.Options {
	return recipe.Options{
		NodeMajor: cfg.Image.NodeMajor,
		Variant:   cfg.Image.Variant,
		Workdir:   cfg.Image.Workdir,
		Manifest:  cfg.Image.Manifest,
		Port:      cfg.Server.Port,
	}
}

// loadRecipe returns the config and the recipe it describes.
func loadRecipe(g *Globals) (*config.Config, *recipe.Recipe, error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	return cfg, recipe.Default(recipeOptions(cfg)), nil
}

// collect gathers the build context using the project's .dockerignore on
// top of the recipe's own exclusions.
func collect(cfg *config.Config) (*recipe.BuildContext, error) {
	extra, err := recipe.LoadIgnoreFile(cfg.Server.Root)
	if err != nil {
		return nil, err
	}
	return recipe.CollectContext(cfg.Server.Root, cfg.Image.Manifest, recipe.IgnorePatterns(extra))
}

// RecipeDockerfileCmd prints the rendered Dockerfile.
type RecipeDockerfileCmd struct{}

func (c *RecipeDockerfileCmd) Run(g *Globals) error {
	_, r, err := loadRecipe(g)
	if err != nil {
		return err
	}
	return recipe.Render(g.Stdout, r)
}

// RecipeIgnoreCmd prints the .dockerignore for the project.
type RecipeIgnoreCmd struct{}

func (c *RecipeIgnoreCmd) Run(g *Globals) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	extra, err := recipe.LoadIgnoreFile(cfg.Server.Root)
	if err != nil {
		return err
	}
	return recipe.WriteIgnore(g.Stdout, recipe.IgnorePatterns(extra))
}

// RecipeCheckCmd validates a Dockerfile, or the generated recipe when no
// file is given, and the project manifest.
type RecipeCheckCmd struct {
	File string `arg:"" optional:"" type:"existingfile" help:"Dockerfile to check."`
}

func (c *RecipeCheckCmd) Run(g *Globals) error {
	cfg, r, err := loadRecipe(g)
	if err != nil {
		return err
	}
	name := "generated recipe"
	if c.File != "" {
		data, err := os.ReadFile(c.File)
		if err != nil {
			return err
		}
		if r, err = recipe.Parse(bytes.NewReader(data)); err != nil {
			return err
		}
		r.Manifest = cfg.Image.Manifest
		name = c.File
	}
	if err := recipe.Validate(r); err != nil {
		return err
	}

	m, err := recipe.ReadManifest(cfg.Server.Root, cfg.Image.Manifest)
	if err != nil {
		return err
	}
	if err := m.Check(); err != nil {
		return err
	}
	_, err = fmt.Fprintf(g.Stdout, "%s: ok (%d steps, %d direct dependencies)\n", name, len(r.Steps), m.DependencyCount())
	return err
}

// RecipePlanCmd prints the step plan.
type RecipePlanCmd struct{}

func (c *RecipePlanCmd) Run(g *Globals) error {
	cfg, r, err := loadRecipe(g)
	if err != nil {
		return err
	}
	bc, err := collect(cfg)
	if err != nil {
		return err
	}
	plan, err := recipe.Plan(r, bc)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(g.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STEP\tKEY\tINPUTS\tINSTRUCTION")
	for _, ps := range plan {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", ps.Index, ps.Key.Encoded()[:12], len(ps.Inputs), ps.Step)
	}
	fmt.Fprintf(tw, "\ncontext\t%s\t%d\t\n", bc.Digest().Encoded()[:12], len(bc.Files))
	return tw.Flush()
}

// RecipeConfigCmd prints the image's runtime config.
type RecipeConfigCmd struct{}

func (c *RecipeConfigCmd) Run(g *Globals) error {
	_, r, err := loadRecipe(g)
	if err != nil {
		return err
	}
	img, err := recipe.ImageConfig(r)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(g.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(img)
}

// RecipeBuildCmd builds the image.
type RecipeBuildCmd struct {
	Tag  string `short:"t" help:"Image tag." env:"DEVPROXY_IMAGE_TAG"`
	Pull bool   `help:"Always pull the base image."`
}

func (c *RecipeBuildCmd) Run(ctx context.Context, g *Globals) error {
	cfg, r, err := loadRecipe(g)
	if err != nil {
		return err
	}
	tag := cfg.Image.Tag
	if c.Tag != "" {
		tag = c.Tag
	}

	m, err := recipe.ReadManifest(cfg.Server.Root, cfg.Image.Manifest)
	if err != nil {
		return err
	}
	if err := m.Check(); err != nil {
		return err
	}
	bc, err := collect(cfg)
	if err != nil {
		return err
	}

	builder, err := newImageBuilder(
		recipe.WithOutput(g.Stdout),
		recipe.WithBuildLogger(g.Logger),
		recipe.WithPull(c.Pull),
	)
	if err != nil {
		return err
	}
	return builder.Build(ctx, r, bc, tag)
}
