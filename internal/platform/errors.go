package platform

import (
	"fmt"

	"github.com/containerd/errdefs"
)

var (
	ErrPlatformNotFound = fmt.Errorf("platform template not found: %w", errdefs.ErrNotFound)
	ErrInvalidPlatform  = fmt.Errorf("invalid platform template: %w", errdefs.ErrInvalidArgument)
)
