package connection

import "errors"

var (
	// ErrUnreachable is returned when a probe could not reach the device.
	ErrUnreachable = errors.New("connection: device unreachable")

	// ErrInProgress is returned when a probe for the same device is running.
	ErrInProgress = errors.New("connection: probe already in progress")

	// ErrUnsupportedProtocol is returned for a device without TCP or RTU parameters.
	ErrUnsupportedProtocol = errors.New("connection: unsupported protocol")
)
