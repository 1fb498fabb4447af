package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrAuth is returned for any failed or malformed handshake response.
	ErrAuth = errors.New("auth: authentication failed")

	// ErrTokenExpired is returned when a step needs a token that is absent
	// or already expired. The caller must log in again.
	ErrTokenExpired = errors.New("auth: token absent or expired")

	// ErrMissingAccount is returned when password login is attempted
	// without an email or password configured. It wraps ErrAuth.
	ErrMissingAccount = fmt.Errorf("%w: account email or password not configured", ErrAuth)
)
