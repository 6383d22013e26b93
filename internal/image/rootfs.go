package image

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"

	"github.com/spf13/afero"
)

// Unpacked root filesystem of an image.
//
// Paths are absolute as seen from inside the container. Library names that
// are not absolute are looked up in the search directories of the target
// device.
type Rootfs struct {
	fs          afero.Fs
	searchPaths []string
}

// Creates a rootfs backed by fsys, whose root is the image root.
func NewRootfs(fsys afero.Fs, searchPaths []string) *Rootfs {
	return &Rootfs{fs: fsys, searchPaths: searchPaths}
}

// Opens the rootfs unpacked at dir.
func OpenRootfs(dir string, searchPaths []string) (*Rootfs, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrRootfsNotFound, dir)
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrRootfsNotFound, dir)
	}
	return NewRootfs(afero.NewBasePathFs(afero.NewOsFs(), dir), searchPaths), nil
}

// Returns the underlying file system.
func (r *Rootfs) Fs() afero.Fs {
	return r.fs
}

// Reports whether the image ships a copy of the named library.
func (r *Rootfs) Contains(name string) bool {
	return len(r.Copies(name)) > 0
}

// Returns every path at which the image ships the named library, in search
// path order.
func (r *Rootfs) Copies(name string) []string {
	if path.IsAbs(name) {
		if r.Exists(name) {
			return []string{path.Clean(name)}
		}
		return nil
	}

	var out []string
	for _, dir := range r.searchPaths {
		p := path.Join(dir, name)
		if r.Exists(p) {
			out = append(out, p)
		}
	}
	return out
}

// Reports whether p exists. Symbolic links are not followed, so a link
// whose target lies outside the rootfs still counts.
func (r *Rootfs) Exists(p string) bool {
	var err error
	if l, ok := r.fs.(afero.Lstater); ok {
		_, _, err = l.LstatIfPossible(p)
	} else {
		_, err = r.fs.Stat(p)
	}
	return err == nil
}

// Deletes the file at p. A missing file is not an error.
func (r *Rootfs) Remove(p string) error {
	err := r.fs.Remove(p)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing %s from rootfs: %w", p, err)
	}
	slog.Debug("removed from rootfs", "path", p)
	return nil
}
