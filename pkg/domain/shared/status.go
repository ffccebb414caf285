package shared

import "fmt"

// Status is the lifecycle state shared by soft-deletable entities.
// Transitions happen only through the owning entity's named methods
// (Deactivate, Disable, ...), never by writing the field directly.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// String returns the string form of the status.
func (s Status) String() string {
	return string(s)
}

// IsActive reports whether the status is active.
func (s Status) IsActive() bool {
	return s == StatusActive
}

// ParseStatus parses a string into a Status.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusActive, StatusInactive:
		return Status(s), nil
	default:
		return "", fmt.Errorf("%w: unknown status %q", ErrValidation, s)
	}
}
