package catalog

import (
	"fmt"

	"github.com/containerd/errdefs"
)

var (
	ErrCatalogNotFound  = fmt.Errorf("library catalog not found: %w", errdefs.ErrNotFound)
	ErrMalformedCatalog = fmt.Errorf("malformed library catalog: %w", errdefs.ErrInvalidArgument)
)
