package domain

import "errors"

// Error kinds. Services wrap these with fmt.Errorf("...: %w", ErrX) and the
// HTTP layer maps them to status codes with errors.Is.
var (
	ErrNotFound           = errors.New("not found")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidInput       = errors.New("invalid input")
	ErrConflict           = errors.New("conflict")
	ErrUnsupportedMedia   = errors.New("unsupported media")
	ErrTooLarge           = errors.New("payload too large")
)
