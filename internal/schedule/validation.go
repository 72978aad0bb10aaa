package schedule

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// MaxNameLength is the longest schedule name accepted.
const MaxNameLength = 100

// Validate checks a schedule before it is stored. Every problem is
// reported, joined under ErrInvalidSchedule.
func Validate(s *Schedule) error {
	var errs []error

	if s.DeviceID == "" {
		errs = append(errs, errors.New("device_id is required"))
	}
	if len(s.Name) > MaxNameLength {
		errs = append(errs, fmt.Errorf("name exceeds %d characters", MaxNameLength))
	}
	if s.Action != ActionOn && s.Action != ActionOff {
		errs = append(errs, fmt.Errorf("action must be on or off, got %q", s.Action))
	}
	if s.TimeOfDay.Hour < 0 || s.TimeOfDay.Hour > 23 || s.TimeOfDay.Minute < 0 || s.TimeOfDay.Minute > 59 {
		errs = append(errs, fmt.Errorf("%w: %s", ErrInvalidTime, s.TimeOfDay))
	}

	switch s.Repeat {
	case RepeatOnce, RepeatDaily:
	case RepeatWeekly:
		if len(s.RepeatDays) == 0 {
			errs = append(errs, errors.New("weekly schedules need at least one repeat day"))
		}
	default:
		errs = append(errs, fmt.Errorf("repeat must be once, daily or weekly, got %q", s.Repeat))
	}

	seen := make(map[Weekday]bool, len(s.RepeatDays))
	for _, d := range s.RepeatDays {
		if !d.Valid() {
			errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidWeekday, d))
			continue
		}
		if seen[d] {
			errs = append(errs, fmt.Errorf("%w: %q listed twice", ErrInvalidWeekday, d))
		}
		seen[d] = true
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidSchedule, errors.Join(errs...))
	}
	return nil
}

// ParseWeekdays converts day names into Weekdays, rejecting unknown names.
func ParseWeekdays(names []string) ([]Weekday, error) {
	days := make([]Weekday, 0, len(names))
	for _, n := range names {
		d := Weekday(n)
		if !d.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidWeekday, n)
		}
		days = append(days, d)
	}
	return days, nil
}

// GenerateID returns a new schedule ID.
func GenerateID() string {
	return uuid.NewString()
}
