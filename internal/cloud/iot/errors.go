package iot

import "errors"

var (
	// ErrConnectionFailed is returned when the broker cannot be reached or
	// rejects the signed session.
	ErrConnectionFailed = errors.New("iot: connection failed")

	// ErrConnectTimeout is returned when the handshake signals do not arrive
	// within the connect timeout. It wraps ErrConnectionFailed.
	ErrConnectTimeout = errors.New("iot: connection handshake timed out")

	// ErrNotConnected is returned when publishing without a live session.
	// Publishes are never queued.
	ErrNotConnected = errors.New("iot: not connected")

	// ErrPublishFailed is returned when the transport rejects a publish.
	ErrPublishFailed = errors.New("iot: publish failed")

	// ErrAlreadyConnected is returned by Connect on a session that is not
	// disconnected.
	ErrAlreadyConnected = errors.New("iot: session already active")

	// ErrProtocol marks a malformed inbound topic or payload. Such messages
	// are logged and dropped; the error never leaves this package.
	ErrProtocol = errors.New("iot: protocol error")
)
