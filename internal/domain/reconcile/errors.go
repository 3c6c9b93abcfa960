package reconcile

import (
	"errors"
	"strings"
)

var (
	ErrBatchNotFound         = errors.New("batch not found")
	ErrInvalidTransition     = errors.New("invalid batch status transition")
	ErrTargetNotFound        = errors.New("target not found")
	ErrNoOrganizations       = errors.New("no organizations returned by target")
	ErrOrganizationNotFound  = errors.New("organization not found on target")
	ErrAmbiguousOrganization = errors.New("multiple organizations found; set org name on the target to disambiguate")
)

// ValidationError rejects an upload as a whole.
type ValidationError struct {
	Message string
	Missing []string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func NewMissingColumnsError(missing []string, required []string) *ValidationError {
	return &ValidationError{
		Message: "CSV missing required columns: " + strings.Join(missing, ", ") + ". Required: " + strings.Join(required, ","),
		Missing: missing,
	}
}
