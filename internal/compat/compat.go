package compat

import (
	"fmt"
	"log/slog"

	"github.com/containerd/platforms"
	"github.com/cruciblehq/bundlegen/internal/metadata"
	"github.com/cruciblehq/bundlegen/internal/platform"
	"github.com/docker/go-units"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// Configures [Check].
type Option func(*options)

type options struct {
	image *ocispec.Platform
}

// Also requires the image to be built for the device's OS and architecture.
// Ignored when the platform template does not describe its OS and CPU.
func WithImagePlatform(p ocispec.Platform) Option {
	return func(o *options) { o.image = &p }
}

// Checks the application requirements against the device.
//
// Graphics libraries, plugin dependencies and capabilities are all looked
// up in the device's capability set: the union of its capabilities,
// graphics libraries and plugin libraries (see [platform.Config.Provides]).
// A library listed only under graphicsLibraries therefore satisfies a
// capability of the same name, and the reverse.
//
// Returns nil when every requirement is met, otherwise an
// [*IncompatibleError] listing all of them. The check has no side effects.
func Check(p *platform.Config, app *metadata.App, opts ...Option) error {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	var unmet []string

	for _, lib := range app.GfxLibs {
		if !p.Provides(lib) {
			unmet = append(unmet, fmt.Sprintf("graphics library %q not available", lib))
		}
	}
	for _, lib := range app.PluginDependencies {
		if !p.Provides(lib) {
			unmet = append(unmet, fmt.Sprintf("plugin %q not available", lib))
		}
	}
	for _, c := range app.Capabilities {
		if !p.Provides(c) {
			unmet = append(unmet, fmt.Sprintf("capability %q not available", c))
		}
	}

	if app.Graphics && !p.Hardware.Graphics {
		unmet = append(unmet, "graphics required but the device has no GPU")
	}

	// A template without network options does not restrict the type.
	if t := app.NetworkType(); t != "" && len(p.Network.Options) > 0 && !p.SupportsNetwork(t) {
		unmet = append(unmet, fmt.Sprintf("network type %q not supported", t))
	}

	if limit := p.MaxRAM(); limit > 0 && app.RAM() > limit {
		unmet = append(unmet, fmt.Sprintf("requires %s of RAM, device allows %s",
			units.BytesSize(float64(app.RAM())), units.BytesSize(float64(limit))))
	}

	if o.image != nil && p.Platform != nil && !platforms.Only(*p.Platform).Match(*o.image) {
		unmet = append(unmet, fmt.Sprintf("image built for %s, device is %s",
			platforms.Format(*o.image), platforms.Format(*p.Platform)))
	}

	if len(unmet) > 0 {
		return &IncompatibleError{Platform: p.Name, Unmet: unmet}
	}

	slog.Debug("application is compatible", "platform", p.Name, "app", app.ID)
	return nil
}

// Reports whether the application can run on the device.
func Compatible(p *platform.Config, app *metadata.App, opts ...Option) bool {
	return Check(p, app, opts...) == nil
}
