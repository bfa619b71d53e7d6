package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrConfiguration = errors.New("configuration error")
	ErrValidation    = errors.New("validation error")
	ErrPersistence   = errors.New("persistence error")
	ErrBackend       = errors.New("backend error")
	ErrNotFound      = errors.New("not found")
	ErrForbidden     = errors.New("forbidden")

	// ErrTimeout is reported as a backend failure.
	ErrTimeout = fmt.Errorf("%w: timeout", ErrBackend)

	ErrUnsupportedType = fmt.Errorf("%w: unsupported generation type", ErrConfiguration)
	ErrUnknownTool     = fmt.Errorf("%w: unknown tool", ErrConfiguration)
)

// Validation returns an ErrValidation carrying msg.
func Validation(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}

// Validationf is Validation with formatting.
func Validationf(format string, args ...any) error {
	return Validation(fmt.Sprintf(format, args...))
}

// Persistence wraps a store failure.
func Persistence(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}

// Backend wraps a generation or quality backend failure.
func Backend(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrBackend, op, err)
}

func NotFound(what string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, what)
}

func Forbidden(msg string) error {
	return fmt.Errorf("%w: %s", ErrForbidden, msg)
}
