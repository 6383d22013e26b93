package schema

import (
	"fmt"

	"github.com/containerd/errdefs"
)

var (
	ErrInvalidDocument = fmt.Errorf("invalid document: %w", errdefs.ErrInvalidArgument)
	ErrSchema          = fmt.Errorf("schema error: %w", errdefs.ErrInternal)
)
