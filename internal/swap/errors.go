package swap

import "errors"

var (
	ErrRequestNotFound = errors.New("swap request not found")
	ErrForbidden       = errors.New("user is not the authorized party for this operation")
	ErrInvalidState    = errors.New("operation not valid in the current state")
	ErrExpired         = errors.New("swap request has expired")

	// ErrConflict marks a lost concurrency race. Unlike ErrInvalidState the
	// caller may retry after re-reading current state.
	ErrConflict = errors.New("concurrent update conflict, retry with fresh state")
)
