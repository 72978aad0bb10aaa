package device

import "errors"

// Domain errors for the device package.
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when a device ID does not exist.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when the ID or device code is already taken.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrInvalidDevice wraps every validation failure from ValidateDevice.
	ErrInvalidDevice = errors.New("device: invalid")

	// ErrInvalidType is returned when a device type is not recognised.
	ErrInvalidType = errors.New("device: invalid type")

	// ErrInvalidRoom is returned when a room is not recognised.
	ErrInvalidRoom = errors.New("device: invalid room")

	// ErrInvalidName is returned when a device name is empty or too long.
	ErrInvalidName = errors.New("device: invalid name")

	// ErrInvalidAddress is returned when a network address is malformed.
	ErrInvalidAddress = errors.New("device: invalid address")

	// ErrInvalidStatus is returned when a status patch fails its type schema.
	ErrInvalidStatus = errors.New("device: invalid status")
)
