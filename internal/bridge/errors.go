package bridge

import "errors"

var (
	// ErrInvalidCommand is returned for payloads that are not a usable command.
	ErrInvalidCommand = errors.New("bridge: invalid command")

	// ErrNotClimate is returned for commands addressed to a non-climate device.
	ErrNotClimate = errors.New("bridge: device is not a climate device")
)
