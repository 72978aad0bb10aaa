package control

import "errors"

// Domain errors for device control.
var (
	// ErrInvalidIntent is returned when an intent is unknown or the status it
	// would produce fails the device type's schema.
	ErrInvalidIntent = errors.New("control: invalid intent")

	// ErrUnreachable records a wire command that did not get a 200 reply.
	ErrUnreachable = errors.New("control: device unreachable")

	// ErrUnsupported records a device with no wire command for its type, or
	// no controller address.
	ErrUnsupported = errors.New("control: device not controllable")
)
