package domain

import "errors"

// ValidationError is a client error: the request can never succeed as sent.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

var (
	ErrNotFound = errors.New("post not found")

	ErrInvalidID     = &ValidationError{Reason: "invalid post ID"}
	ErrMissingFields = &ValidationError{Reason: "title and content are required"}
	ErrImageRequired = &ValidationError{Reason: "blog image is required"}
)

// IsValidation reports whether err is, or wraps, a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
