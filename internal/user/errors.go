package user

import "errors"

// ErrNotFound is returned by services when an authenticated subject no longer
// resolves to a stored user.
var ErrNotFound = errors.New("user not found")
