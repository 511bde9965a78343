package domain

import "errors"

// Sentinel errors for the domain layer. These provide consistent, checkable
// errors for common business logic failures.
var (
	ErrNotFound           = errors.New("requested resource not found")
	ErrForbidden          = errors.New("operation not permitted for this user")
	ErrEmptyMessage       = errors.New("message has no text, media, sticker or gif")
	ErrInvalidCredentials = errors.New("invalid credentials provided")

	// ErrStaleVersion signals a lost compare-and-swap on a message mutation.
	// Callers re-read the message and retry.
	ErrStaleVersion = errors.New("message was modified concurrently")
)
