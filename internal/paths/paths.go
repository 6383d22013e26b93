package paths

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
)

const (

	// Subdirectory of each XDG data directory holding platform templates.
	templatesDir = "bundlegen/templates"

	// Default permission mode for directories.
	DefaultDirMode os.FileMode = 0755

	// Default permission mode for files.
	DefaultFileMode os.FileMode = 0644

	// Name of the runtime configuration inside a bundle.
	ConfigFile = "config.json"

	// Name of the mount plan written beside the runtime configuration.
	PlanFile = "bundlegen.plan.json"

	// Root filesystem directory inside a bundle.
	RootfsDir = "rootfs"
)

// Returns the directories searched for platform templates, in order.
//
// Each entry of explicit may itself be a list separated by the OS path list
// separator (as in $PATH). Empty entries and duplicates are dropped.
//
//	Linux:   <explicit...>, $XDG_DATA_HOME/bundlegen/templates, $XDG_DATA_DIRS/bundlegen/templates
//	macOS:   <explicit...>, ~/Library/Application Support/bundlegen/templates, ...
func TemplateDirs(explicit ...string) []string {
	var dirs []string
	seen := make(map[string]bool)

	add := func(dir string) {
		if dir == "" {
			return
		}
		dir = filepath.Clean(dir)
		if !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}

	for _, e := range explicit {
		for _, dir := range strings.Split(e, string(os.PathListSeparator)) {
			add(dir)
		}
	}

	add(filepath.Join(xdg.DataHome, templatesDir))
	for _, dir := range xdg.DataDirs {
		add(filepath.Join(dir, templatesDir))
	}

	return dirs
}

// Path to the runtime configuration of the bundle rooted at dir.
func Config(dir string) string {
	return filepath.Join(dir, ConfigFile)
}

// Path to the mount plan of the bundle rooted at dir.
func Plan(dir string) string {
	return filepath.Join(dir, PlanFile)
}

// Path to the root filesystem of the bundle rooted at dir.
func Rootfs(dir string) string {
	return filepath.Join(dir, RootfsDir)
}
