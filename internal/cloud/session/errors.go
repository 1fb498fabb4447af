package session

import "errors"

var (
	// ErrNotConnected is returned by operations that need a live session.
	ErrNotConnected = errors.New("session: not connected")

	// ErrLoginInProgress is returned when Login is called while another
	// login is running.
	ErrLoginInProgress = errors.New("session: login already in progress")

	// ErrLoggedOut is returned by a login that was cancelled by Logout.
	ErrLoggedOut = errors.New("session: logged out during login")

	// ErrNoHostIdentity is returned when the account has no host identity
	// id, so there is no topic namespace to subscribe to.
	ErrNoHostIdentity = errors.New("session: account has no host identity")

	// ErrUnknownDevice is returned for a device name not in the directory.
	ErrUnknownDevice = errors.New("session: unknown device")

	// ErrHostOnly is returned when a member account commands a field
	// reserved for the host account.
	ErrHostOnly = errors.New("session: field can only be set by the host account")

	// ErrMaxLoginAttempts is the terminal error reported after too many
	// consecutive failed logins. It needs a credential fix and a restart.
	ErrMaxLoginAttempts = errors.New("session: maximum failed login attempts reached")
)
