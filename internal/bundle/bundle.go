package bundle

import (
	"context"
	"errors"
	"log/slog"

	"github.com/cruciblehq/bundlegen/internal/catalog"
	"github.com/cruciblehq/bundlegen/internal/compat"
	"github.com/cruciblehq/bundlegen/internal/image"
	"github.com/cruciblehq/bundlegen/internal/matcher"
	"github.com/cruciblehq/bundlegen/internal/metadata"
	"github.com/cruciblehq/bundlegen/internal/paths"
	"github.com/cruciblehq/bundlegen/internal/platform"
	"github.com/cruciblehq/bundlegen/internal/walker"
	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// Controls bundle generation.
type Options struct {
	Platform          *platform.Config // Target device.
	App               *metadata.App    // Application requirements.
	Image             *ocispec.Image   // Image configuration; optional.
	Rootfs            *image.Rootfs    // Unpacked image; optional.
	Output            string           // Bundle directory receiving config.json and the plan.
	DependencyWalking bool             // Expand declared libraries through the catalog.
	Catalog           string           // Catalog path. Defaults to the one beside the platform template.
	Mode              matcher.Mode     // Library matching mode.
	Workers           int              // Parallel catalog lookups while walking.
}

// Returned after successful generation.
type Result struct {
	Config   string        // Path of the written runtime configuration.
	Digest   digest.Digest // Digest of the runtime configuration.
	Plan     *Plan
	Warnings []error // Soft failures, in the order they occurred.
}

// Generates the bundle configuration.
//
// The application is checked against the platform first; an incompatible
// application stops the run before anything is read or written. The
// declared libraries are then expanded through the catalog (when walking
// is enabled), matched against the image and the device, and turned into
// the runtime configuration, which is written into the output directory.
//
// A missing catalog is not fatal: the declared libraries are used as they
// are and a warning is added to the result. Every other failure is returned
// as an error and the caller is expected to discard the output directory.
func Run(ctx context.Context, opts Options) (*Result, error) {
	slog.Info("generating bundle",
		"platform", opts.Platform.Name,
		"app", opts.App.ID,
		"output", opts.Output,
		"mode", opts.Mode,
		"walking", opts.DependencyWalking,
	)

	var compatOpts []compat.Option
	if opts.Image != nil {
		compatOpts = append(compatOpts, compat.WithImagePlatform(image.Platform(opts.Image)))
	}
	if err := compat.Check(opts.Platform, opts.App, compatOpts...); err != nil {
		return nil, err
	}

	p := &pipeline{opts: opts}
	return p.run(ctx)
}

// State of a single run.
type pipeline struct {
	opts     Options
	warnings []error
}

func (p *pipeline) run(ctx context.Context) (*Result, error) {
	closure, cat, catPath, err := p.walk(ctx)
	if err != nil {
		return nil, err
	}

	var inv matcher.Inventory
	if p.opts.Rootfs != nil {
		inv = p.opts.Rootfs
	}

	resolved, err := matcher.Resolve(closure, cat, p.opts.Mode, inv)
	if err != nil {
		return nil, err
	}
	libs := matcher.Sorted(resolved)

	var imgConfig *ocispec.ImageConfig
	if p.opts.Image != nil {
		imgConfig = &p.opts.Image.Config
	}

	out, err := Generate(Input{
		Platform:  p.opts.Platform,
		App:       p.opts.App,
		Image:     imgConfig,
		Libraries: libs,
		Rootfs:    p.opts.Rootfs,
	})
	if err != nil {
		return nil, err
	}
	for _, s := range out.Shadowed {
		p.warn(s)
	}

	plan := &Plan{
		Platform:          p.opts.Platform.Name,
		App:               p.opts.App.ID,
		Mode:              p.opts.Mode,
		DependencyWalking: p.opts.DependencyWalking,
		Catalog:           catPath,
		Roots:             closure.Roots,
		Libraries:         libs,
		Unresolved:        closure.Unresolved,
		Removed:           out.Removed,
		Shadowed:          out.Shadowed,
	}

	dgst, err := Write(p.opts.Output, out.Spec, plan)
	if err != nil {
		return nil, err
	}

	slog.Info("bundle generated",
		"config", paths.Config(p.opts.Output),
		"digest", dgst,
		"host", len(plan.HostLibraries()),
		"image", len(plan.ImageLibraries()),
	)

	return &Result{
		Config:   paths.Config(p.opts.Output),
		Digest:   dgst,
		Plan:     plan,
		Warnings: p.warnings,
	}, nil
}

// Computes the library closure. Returns the catalog and its path when one
// was used.
func (p *pipeline) walk(ctx context.Context) (*walker.Closure, *catalog.Catalog, string, error) {
	roots := p.opts.App.Roots()

	if !p.opts.DependencyWalking {
		return walker.Roots(roots), nil, "", nil
	}

	path := p.opts.Catalog
	if path == "" {
		path = p.opts.Platform.CatalogPath()
	}
	if path == "" {
		p.warn(catalog.ErrCatalogNotFound)
		return walker.Roots(roots), nil, "", nil
	}

	cat, err := catalog.Load(path)
	if errors.Is(err, catalog.ErrCatalogNotFound) {
		p.warn(err)
		return walker.Roots(roots), nil, "", nil
	}
	if err != nil {
		return nil, nil, "", err
	}

	closure, err := walker.Walk(ctx, roots, cat, walker.WithWorkers(p.opts.Workers))
	if err != nil {
		return nil, nil, "", err
	}
	for _, w := range closure.Unresolved {
		p.warn(w)
	}

	return closure, cat, path, nil
}

func (p *pipeline) warn(err error) {
	slog.Debug("warning recorded", "warning", err)
	p.warnings = append(p.warnings, err)
}
