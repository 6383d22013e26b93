package compat

import (
	"fmt"
	"strings"

	"github.com/containerd/errdefs"
)

// Raised when a device does not meet the requirements of an application.
type IncompatibleError struct {
	Platform string   // Device name.
	Unmet    []string // Requirements the device does not meet, in check order.
}

func (e *IncompatibleError) Error() string {
	return fmt.Sprintf("application is not compatible with platform %q: %s", e.Platform, strings.Join(e.Unmet, "; "))
}

// Classifies the error as a failed precondition.
func (e *IncompatibleError) Is(target error) bool {
	return target == errdefs.ErrFailedPrecondition
}
