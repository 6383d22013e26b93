package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/cruciblehq/bundlegen/internal/bundle"
	"github.com/cruciblehq/bundlegen/internal/image"
	"github.com/cruciblehq/bundlegen/internal/matcher"
	"github.com/cruciblehq/bundlegen/internal/metadata"
	"github.com/cruciblehq/bundlegen/internal/paths"
	"github.com/cruciblehq/bundlegen/internal/platform"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/spf13/afero"
)

// Represents the 'bundlegen generate' command.
type GenerateCmd struct {
	Output          string `arg:"" name:"outputdir" type:"path" help:"Bundle directory. The unpacked image is read from its rootfs subdirectory."`
	Platform        string `short:"p" required:"" env:"RDK_PLATFORM" help:"Platform name to generate the bundle for."`
	SearchPath      string `short:"s" name:"searchpath" env:"RDK_PLATFORM_SEARCHPATH" help:"Where to search for platform templates, as a list of directories." placeholder:"DIRS"`
	AppMetadata     string `short:"a" name:"appmetadata" type:"path" help:"Path to metadata json for the app (if not embedded inside the image)."`
	Catalog         string `name:"catalog" type:"path" help:"Library catalog. Defaults to <platform>_libs.json beside the platform template."`
	ImageLayout     string `name:"image-layout" type:"path" help:"OCI image layout the rootfs was unpacked from; supplies image defaults."`
	NoDepWalking    bool   `short:"n" name:"nodepwalking" help:"Disable dependency walking through the library catalog."`
	LibMatchingMode string `short:"m" name:"libmatchingmode" enum:"${modes}" default:"normal" help:"Library matching mode (${enum})."`
	Workers         int    `default:"4" help:"Catalog lookups run in parallel while walking dependencies."`
}

// Executes the generate command.
//
// Loads the platform template, the image and the application metadata,
// then runs the bundle pipeline. When anything fails after the bundle
// directory started being modified, the directory is removed so no partial
// bundle is left behind. Warnings are reported once, at the end.
func (c *GenerateCmd) Run(ctx context.Context) (err error) {
	out, err := filepath.Abs(c.Output)
	if err != nil {
		return err
	}

	mode, err := matcher.ParseMode(c.LibMatchingMode)
	if err != nil {
		return err
	}

	p, err := platform.Load(c.Platform, paths.TemplateDirs(c.SearchPath))
	if err != nil {
		return err
	}

	img, err := c.imageConfig(p)
	if err != nil {
		return err
	}

	rootfs, err := image.OpenRootfs(paths.Rootfs(out), p.LibrarySearchPaths)
	if errors.Is(err, image.ErrRootfsNotFound) {
		slog.Warn("no image rootfs, library presence is taken from the catalog only", "path", paths.Rootfs(out))
		rootfs, err = nil, nil
	}
	if err != nil {
		return err
	}

	// From here on the bundle directory is modified.
	defer func() {
		if err != nil {
			discard(out)
		}
	}()

	var fsys afero.Fs
	if rootfs != nil {
		fsys = rootfs.Fs()
	}
	app, err := metadata.Select(c.AppMetadata, fsys)
	if err != nil {
		return err
	}

	result, err := bundle.Run(ctx, bundle.Options{
		Platform:          p,
		App:               app,
		Image:             img,
		Rootfs:            rootfs,
		Output:            out,
		DependencyWalking: !c.NoDepWalking,
		Catalog:           c.Catalog,
		Mode:              mode,
		Workers:           c.Workers,
	})
	if err != nil {
		return err
	}

	for _, w := range result.Warnings {
		slog.Warn(w.Error())
	}

	slog.Info(fmt.Sprintf("successfully generated bundle at %s", out),
		"libraries", len(result.Plan.Libraries),
		"config", result.Digest,
	)
	return nil
}

// Reads the image configuration when an image layout was given.
func (c *GenerateCmd) imageConfig(p *platform.Config) (*ocispec.Image, error) {
	if c.ImageLayout == "" {
		return nil, nil
	}
	layout, err := image.OpenLayout(c.ImageLayout)
	if err != nil {
		return nil, err
	}
	return layout.Config(p.Platform)
}

// Removes the bundle directory after a failed run.
func discard(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		slog.Error("cannot remove incomplete bundle", "path", dir, "error", err)
		return
	}
	slog.Info("incomplete bundle removed", "path", dir)
}
