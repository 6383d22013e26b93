package bundle

import (
	"fmt"

	"github.com/containerd/errdefs"
)

var (
	ErrNoEntryPoint        = fmt.Errorf("no entry point in application metadata or image config: %w", errdefs.ErrInvalidArgument)
	ErrInvalidTemplate     = fmt.Errorf("invalid OCI template: %w", errdefs.ErrInvalidArgument)
	ErrFileSystemOperation = fmt.Errorf("file system operation failed: %w", errdefs.ErrUnknown)
)

// A mount replaced by a later one with the same destination.
//
// Reported as a warning; the later mount is kept.
type ShadowedMount struct {
	Destination string `json:"destination"`
	Layer       string `json:"layer"`      // Layer that supplied the replaced mount.
	ShadowedBy  string `json:"shadowedBy"` // Layer that supplied the kept mount.
}

func (s ShadowedMount) Error() string {
	return fmt.Sprintf("mount at %s from %s is replaced by %s", s.Destination, s.Layer, s.ShadowedBy)
}
