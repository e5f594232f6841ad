package shared

import "errors"

var (
	// ErrUnauthenticated indicates a missing or rejected session.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden indicates the current role may not perform the action.
	ErrForbidden = errors.New("forbidden")
)
