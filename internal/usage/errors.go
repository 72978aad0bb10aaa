package usage

import "errors"

var (
	// ErrInvalidRange is returned when a date range is empty or inverted.
	ErrInvalidRange = errors.New("usage: invalid date range")
)
