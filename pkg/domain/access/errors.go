package access

import (
	"fmt"
	"strings"

	"github.com/dealgrid/api/pkg/domain/permission"
	"github.com/dealgrid/api/pkg/domain/shared"
)

// ForbiddenError reports a privilege-escalation attempt: an administrator
// tried to grant permissions they do not themselves hold. It carries the
// exact forbidden keys so callers can explain the denial.
type ForbiddenError struct {
	AdminUserID shared.ID
	Missing     []permission.Key
}

// NewForbiddenError builds a ForbiddenError for the given admin and keys.
func NewForbiddenError(adminUserID shared.ID, missing []permission.Key) *ForbiddenError {
	return &ForbiddenError{AdminUserID: adminUserID, Missing: missing}
}

// Error implements the error interface.
func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("administrator %s does not hold: %s",
		e.AdminUserID, strings.Join(permission.ToStrings(e.Missing), ", "))
}

// Unwrap maps the error onto the forbidden sentinel.
func (e *ForbiddenError) Unwrap() error {
	return shared.ErrForbidden
}
