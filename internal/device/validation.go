package device

import (
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	maxNameLength        = 100
	maxIDLength          = 100
	maxDeviceCodeLength  = 20
	maxDescriptionLength = 1000
	maxStatusKeys        = 100
)

var hostnameRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]*[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]*[a-zA-Z0-9])?)*$`)

var (
	validTypes map[Type]struct{}
	validRooms map[Room]struct{}
)

func init() {
	validTypes = make(map[Type]struct{}, len(AllTypes))
	for _, t := range AllTypes {
		validTypes[t] = struct{}{}
	}
	validRooms = make(map[Room]struct{}, len(AllRooms))
	for _, r := range AllRooms {
		validRooms[r] = struct{}{}
	}
}

// ValidateDevice checks every field of a device and reports all problems
// at once. The returned error wraps ErrInvalidDevice and the specific
// sentinel for each failure.
func ValidateDevice(d *Device) error {
	if d == nil {
		return ErrInvalidDevice
	}

	var errs []error
	if len(d.ID) > maxIDLength {
		errs = append(errs, fmt.Errorf("id exceeds %d characters", maxIDLength))
	}
	if err := ValidateName(d.Name); err != nil {
		errs = append(errs, err)
	}
	if err := ValidateType(d.Type); err != nil {
		errs = append(errs, err)
	}
	if err := ValidateRoom(d.Room); err != nil {
		errs = append(errs, err)
	}
	if err := ValidateAddress(d.Address); err != nil {
		errs = append(errs, err)
	}
	if d.DeviceCode != nil && utf8.RuneCountInString(*d.DeviceCode) > maxDeviceCodeLength {
		errs = append(errs, fmt.Errorf("device_code exceeds %d characters", maxDeviceCodeLength))
	}
	if utf8.RuneCountInString(d.Description) > maxDescriptionLength {
		errs = append(errs, fmt.Errorf("description exceeds %d characters", maxDescriptionLength))
	}
	if len(d.Status) > maxStatusKeys {
		errs = append(errs, fmt.Errorf("%w: exceeds %d keys", ErrInvalidStatus, maxStatusKeys))
	} else if err := ValidateStatus(d.Type, d.Status); err != nil && validType(d.Type) {
		errs = append(errs, err)
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidDevice, errors.Join(errs...))
}

// ValidateName checks a device name is present and within length limits.
func ValidateName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidName)
	}
	if utf8.RuneCountInString(trimmed) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

// ValidateType checks the device type is known.
func ValidateType(t Type) error {
	if !validType(t) {
		return fmt.Errorf("%w: %q", ErrInvalidType, t)
	}
	return nil
}

// ValidateRoom checks the room is known. Empty is allowed.
func ValidateRoom(r Room) error {
	if r == "" {
		return nil
	}
	if _, ok := validRooms[r]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidRoom, r)
	}
	return nil
}

// ValidateAddress checks a controller address of the form host or
// host:port. Empty means the device is virtual.
func ValidateAddress(addr string) error {
	if addr == "" {
		return nil
	}
	if strings.Contains(addr, "/") {
		return fmt.Errorf("%w: %q must be host[:port] without scheme or path", ErrInvalidAddress, addr)
	}

	host := addr
	if strings.Contains(addr, ":") && net.ParseIP(addr) == nil {
		h, port, err := net.SplitHostPort(addr)
		if err != nil {
			return fmt.Errorf("%w: %q: %w", ErrInvalidAddress, addr, err)
		}
		n, err := strconv.Atoi(port)
		if err != nil || n < 1 || n > 65535 {
			return fmt.Errorf("%w: %q has invalid port", ErrInvalidAddress, addr)
		}
		host = h
	}

	if net.ParseIP(host) != nil || hostnameRegex.MatchString(host) {
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
}

func validType(t Type) bool {
	_, ok := validTypes[t]
	return ok
}

// GenerateID creates a new unique device identifier.
func GenerateID() string {
	return uuid.New().String()
}
