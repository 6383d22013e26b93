package image

import (
	"fmt"

	"github.com/containerd/errdefs"
)

var (
	ErrInvalidLayout      = fmt.Errorf("invalid OCI image layout: %w", errdefs.ErrInvalidArgument)
	ErrEmptyIndex         = fmt.Errorf("empty image index: %w", errdefs.ErrNotFound)
	ErrNoMatchingManifest = fmt.Errorf("no manifest for platform: %w", errdefs.ErrNotFound)
	ErrBlobCorrupt        = fmt.Errorf("blob does not match its descriptor: %w", errdefs.ErrDataLoss)
	ErrRootfsNotFound     = fmt.Errorf("image rootfs not found: %w", errdefs.ErrNotFound)
)
