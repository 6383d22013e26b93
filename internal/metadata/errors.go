package metadata

import (
	"fmt"

	"github.com/containerd/errdefs"
)

var (
	ErrNoMetadata      = fmt.Errorf("no application metadata: %w", errdefs.ErrNotFound)
	ErrInvalidMetadata = fmt.Errorf("invalid application metadata: %w", errdefs.ErrInvalidArgument)
)
