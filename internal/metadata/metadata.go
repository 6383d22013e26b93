package metadata

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"slices"

	"github.com/cruciblehq/bundlegen/internal/schema"
	"github.com/docker/go-units"
	specs "github.com/opencontainers/runtime-spec/specs-go"
	"github.com/spf13/afero"
)

// Location of embedded metadata, relative to the image rootfs.
const RootfsFile = "/appmetadata.json"

// Application requirements. Treated as immutable once loaded.
type App struct {
	ID                 string        `json:"id,omitempty"`
	Version            string        `json:"version,omitempty"`
	EntryPoint         string        `json:"entryPoint,omitempty"`
	Args               []string      `json:"args,omitempty"`
	Env                []string      `json:"env,omitempty"`
	WorkingDir         string        `json:"workingDir,omitempty"`
	GfxLibs            []string      `json:"gfxLibs,omitempty"`
	PluginDependencies []string      `json:"pluginDependencies,omitempty"`
	Graphics           bool          `json:"graphics,omitempty"`
	Capabilities       []string      `json:"capabilities,omitempty"`
	Network            *Network      `json:"network,omitempty"`
	Resources          Resources     `json:"resources"`
	Mounts             []specs.Mount `json:"mounts,omitempty"`

	// Top-level fields not described above, kept as found.
	Extra map[string]json.RawMessage `json:"-"`

	source string
	ram    int64
}

// Network access requested by the application.
type Network struct {
	Type string `json:"type"` // "open", "nat" or "private".
}

// Resource requirements.
type Resources struct {
	RAM string `json:"ram,omitempty"` // Human readable, e.g. "256M".
}

// Top-level keys decoded into App fields.
var known = []string{
	"id", "version", "entryPoint", "args", "env", "workingDir", "gfxLibs",
	"pluginDependencies", "graphics", "capabilities", "network", "resources",
	"mounts",
}

// Reads and validates the metadata file at path.
func Load(path string) (*App, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNoMetadata, path)
		}
		return nil, err
	}
	return Parse(path, data)
}

// Builds the metadata from the document in data. The name is used in error
// messages and recorded as the metadata source.
func Parse(name string, data []byte) (*App, error) {
	app, err := schema.Decode[App](schema.AppMetadata, name, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMetadata, err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidMetadata, name, err)
	}
	for key, raw := range fields {
		if slices.Contains(known, key) {
			continue
		}
		if app.Extra == nil {
			app.Extra = make(map[string]json.RawMessage)
		}
		app.Extra[key] = raw
	}

	if app.Resources.RAM != "" {
		app.ram, err = units.RAMInBytes(app.Resources.RAM)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: resources.ram: %w", ErrInvalidMetadata, name, err)
		}
	}

	app.source = name
	return app, nil
}

// Reads the metadata embedded in an image rootfs.
//
// Returns an error wrapping [ErrNoMetadata] when the rootfs has none.
func FromRootfs(rootfs afero.Fs) (*App, error) {
	data, err := afero.ReadFile(rootfs, RootfsFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s not found in rootfs", ErrNoMetadata, RootfsFile)
		}
		return nil, err
	}
	return Parse(RootfsFile, data)
}

// Picks the metadata for a build.
//
// An external file, when given, takes precedence over metadata embedded in
// the rootfs. The embedded copy is removed from the rootfs either way so it
// does not ship in the bundle. Returns an error wrapping [ErrNoMetadata] when
// neither source exists. The rootfs may be nil.
func Select(external string, rootfs afero.Fs) (*App, error) {
	var embedded bool
	if rootfs != nil {
		ok, err := afero.Exists(rootfs, RootfsFile)
		if err != nil {
			return nil, err
		}
		embedded = ok
	}

	var (
		app *App
		err error
	)
	switch {
	case external != "":
		if embedded {
			slog.Info("metadata found in image, using external file instead", "path", external)
		}
		app, err = Load(external)
	case embedded:
		app, err = FromRootfs(rootfs)
	default:
		return nil, fmt.Errorf("%w: not found in image and no file given", ErrNoMetadata)
	}
	if err != nil {
		return nil, err
	}

	if embedded {
		if err := rootfs.Remove(RootfsFile); err != nil {
			return nil, fmt.Errorf("removing %s from rootfs: %w", RootfsFile, err)
		}
	}

	slog.Debug("application metadata loaded", "source", app.source, "id", app.ID)
	return app, nil
}

// Returns where the metadata was read from.
func (a *App) Source() string {
	return a.source
}

// Returns the libraries the application declares, graphics libraries and
// plugin dependencies together. Sorted, without duplicates.
func (a *App) Roots() []string {
	roots := slices.Concat(a.GfxLibs, a.PluginDependencies)
	slices.Sort(roots)
	return slices.Compact(roots)
}

// Returns the RAM the application needs in bytes; zero when not declared.
func (a *App) RAM() int64 {
	return a.ram
}

// Returns the requested network type, or empty when the application does
// not ask for network access.
func (a *App) NetworkType() string {
	if a.Network == nil {
		return ""
	}
	return a.Network.Type
}

// Reports whether the application needs the device's graphics stack, either
// explicitly or by declaring graphics libraries.
func (a *App) NeedsGraphics() bool {
	return a.Graphics || len(a.GfxLibs) > 0
}
