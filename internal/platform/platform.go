package platform

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/cruciblehq/bundlegen/internal/schema"
	"github.com/docker/go-units"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	specs "github.com/opencontainers/runtime-spec/specs-go"
)

// Template file extensions, in lookup order.
var extensions = []string{".json", ".yaml", ".yml"}

// Suffix of the library catalog stored beside a template.
const catalogSuffix = "_libs.json"

// Device description. Treated as immutable once loaded.
type Config struct {
	Name               string            `json:"name"`
	Capabilities       []string          `json:"capabilities,omitempty"`
	LibrarySearchPaths []string          `json:"librarySearchPaths"`
	GraphicsLibraries  []string          `json:"graphicsLibraries,omitempty"`
	PluginLibraries    []string          `json:"pluginLibraries,omitempty"`
	Platform           *ocispec.Platform `json:"platform,omitempty"` // OS and CPU of the device.
	Hardware           Hardware          `json:"hardware"`
	Network            Network           `json:"network"`
	Mounts             []specs.Mount     `json:"mounts,omitempty"` // Added to every bundle.
	Env                []string          `json:"env,omitempty"`    // Added to every bundle.
	GPU                GPU               `json:"gpu"`
	OCITemplate        specs.Spec        `json:"ociTemplate"`

	path   string // File the template was read from.
	maxRAM int64  // Parsed Hardware.MaxRAM; zero when unlimited.
}

// Hardware limits of the device.
type Hardware struct {
	Graphics bool   `json:"graphics"`
	MaxRAM   string `json:"maxRam,omitempty"` // Human readable, e.g. "512M".
}

// Network modes the device supports.
type Network struct {
	Options []string `json:"options,omitempty"`
}

// Additions for applications that use graphics.
type GPU struct {
	Mounts  []specs.Mount       `json:"mounts,omitempty"`
	Env     []string            `json:"env,omitempty"`
	Devices []specs.LinuxDevice `json:"devices,omitempty"`
}

// Searches dirs for the template of the named platform and loads it.
//
// Within each directory the extensions .json, .yaml and .yml are tried in
// that order; the first directory holding a match wins.
func Load(name string, dirs []string) (*Config, error) {
	path, err := Find(name, dirs)
	if err != nil {
		return nil, err
	}
	return LoadFile(path)
}

// Returns the path of the template for the named platform.
func Find(name string, dirs []string) (string, error) {
	if name == "" || filepath.Base(name) != name {
		return "", fmt.Errorf("%w: invalid platform name %q", ErrInvalidPlatform, name)
	}

	for _, dir := range dirs {
		for _, ext := range extensions {
			path := filepath.Join(dir, name+ext)
			info, err := os.Stat(path)
			if err == nil && info.Mode().IsRegular() {
				return path, nil
			}
			if err != nil && !errors.Is(err, fs.ErrNotExist) {
				slog.Warn("cannot inspect platform template", "path", path, "error", err)
			}
		}
	}

	return "", fmt.Errorf("%w: %s (searched %d directories)", ErrPlatformNotFound, name, len(dirs))
}

// Loads the template at path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrPlatformNotFound, path)
		}
		return nil, err
	}

	cfg, err := Parse(path, data)
	if err != nil {
		return nil, err
	}

	cfg.path = path

	slog.Debug("platform template loaded", "platform", cfg.Name, "path", path)
	return cfg, nil
}

// Builds a template from the document in data. The name is used in error
// messages and selects the format: ".yaml" and ".yml" are read as YAML,
// anything else as JSON.
func Parse(name string, data []byte) (*Config, error) {
	cfg, err := schema.Decode[Config](schema.Platform, name, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPlatform, err)
	}

	if cfg.Hardware.MaxRAM != "" {
		cfg.maxRAM, err = units.RAMInBytes(cfg.Hardware.MaxRAM)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: hardware.maxRam: %w", ErrInvalidPlatform, name, err)
		}
	}

	return cfg, nil
}

// Returns the file the template was loaded from; empty for templates built
// in memory.
func (c *Config) Path() string {
	return c.path
}

// Returns the path of the library catalog stored beside the template, or
// empty when the template was not loaded from a file.
func (c *Config) CatalogPath() string {
	if c.path == "" {
		return ""
	}
	return filepath.Join(filepath.Dir(c.path), c.Name+catalogSuffix)
}

// Returns the RAM available to applications in bytes; zero when the device
// declares no limit.
func (c *Config) MaxRAM() int64 {
	return c.maxRAM
}

// Returns everything the device offers: declared capabilities plus the
// graphics and plugin libraries it ships. Sorted, without duplicates.
func (c *Config) CapabilitySet() []string {
	set := slices.Concat(c.Capabilities, c.GraphicsLibraries, c.PluginLibraries)
	slices.Sort(set)
	return slices.Compact(set)
}

// Reports whether the device offers the named capability or library.
func (c *Config) Provides(name string) bool {
	return slices.Contains(c.Capabilities, name) ||
		slices.Contains(c.GraphicsLibraries, name) ||
		slices.Contains(c.PluginLibraries, name)
}

// Reports whether the device supports the given network mode.
func (c *Config) SupportsNetwork(mode string) bool {
	return slices.Contains(c.Network.Options, mode)
}
