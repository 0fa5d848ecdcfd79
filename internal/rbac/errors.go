package rbac

import (
	"fmt"

	"github.com/blasbase/blasbase/internal/shared"
)

// ErrUnknownPermission indicates a permission id that is not in the catalogue.
var ErrUnknownPermission = fmt.Errorf("unknown permission: %w", shared.ErrValidation)
