package shared

import "errors"

// ErrNotFound reports a document that does not exist or is not visible to the caller.
var ErrNotFound = errors.New("not found")

// ErrInvalidCredentials reports a failed sign in.
var ErrInvalidCredentials = errors.New("invalid email or password")

var (
	ErrCSRFTokenMissing  = errors.New("csrf: token missing")
	ErrCSRFTokenMismatch = errors.New("csrf: token mismatch")
)
