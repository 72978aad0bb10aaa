package schedule

import "errors"

// Domain errors for schedule operations.
var (
	// ErrScheduleNotFound is returned when a schedule does not exist or
	// belongs to another user.
	ErrScheduleNotFound = errors.New("schedule: not found")

	// ErrInvalidSchedule wraps every schedule validation failure.
	ErrInvalidSchedule = errors.New("schedule: invalid")

	// ErrInvalidTime is returned for a time of day not in HH:MM form.
	ErrInvalidTime = errors.New("schedule: invalid time of day")

	// ErrInvalidDate is returned for a date not in YYYY-MM-DD form.
	ErrInvalidDate = errors.New("schedule: invalid date")

	// ErrInvalidWeekday is returned for a repeat day outside mon..sun.
	ErrInvalidWeekday = errors.New("schedule: invalid weekday")
)
