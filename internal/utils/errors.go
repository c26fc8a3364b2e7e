package utils

import (
	"errors"
	"fmt"
)

// ValidationError reports input that breaks a data contract, such as a
// timeline page whose dates arrive out of order or duplicated.
type ValidationError struct {
	Message string
}

// Error returns the error message string.
func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationErrorf creates a ValidationError with a formatted message.
func NewValidationErrorf(format string, args ...interface{}) error {
	return &ValidationError{
		Message: fmt.Sprintf(format, args...),
	}
}

// IsValidation reports whether err is, or wraps, a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// NotFoundError reports a lookup for a record that does not exist, keyed by
// the resource kind and its identifier.
type NotFoundError struct {
	Resource string
	ID       string
}

// Error returns the error message string.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// NewNotFoundError creates a NotFoundError for the given resource and id.
func NewNotFoundError(resource, id string) error {
	return &NotFoundError{
		Resource: resource,
		ID:       id,
	}
}

// IsNotFound reports whether err is, or wraps, a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
