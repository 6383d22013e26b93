package matcher

import (
	"fmt"

	"github.com/containerd/errdefs"
)

var (
	ErrInvalidMode = fmt.Errorf("invalid library matching mode: %w", errdefs.ErrInvalidArgument)
)

// Raised when the device must provide a library that it does not have.
type MissingHostLibraryError struct {
	Library string
	Mode    Mode
}

func (e *MissingHostLibraryError) Error() string {
	return fmt.Sprintf("library %q is required from the device in %s mode but the device does not provide it", e.Library, e.Mode)
}

// Classifies the error as not found.
func (e *MissingHostLibraryError) Is(target error) bool {
	return target == errdefs.ErrNotFound
}
