package schedule

import "time"

// DueInstant returns the absolute instant at which s is due for the
// occurrence current at now, with civil values interpreted in loc.
//
//   - once: date (or today when unset) at the time of day
//   - daily: today at the time of day
//   - weekly: the first listed weekday searched forward from today,
//     today included even if its time has already passed
//
// ok is false for a weekly schedule with no days.
func DueInstant(s *Schedule, now time.Time, loc *time.Location) (time.Time, bool) {
	today := DateOf(now, loc)

	switch s.Repeat {
	case RepeatDaily:
		return today.At(s.TimeOfDay, loc), true

	case RepeatWeekly:
		days := make(map[time.Weekday]bool, len(s.RepeatDays))
		for _, d := range s.RepeatDays {
			if wd, ok := weekdays[d]; ok {
				days[wd] = true
			}
		}
		if len(days) == 0 {
			return time.Time{}, false
		}
		for offset := 0; offset < 7; offset++ {
			day := today.AddDays(offset)
			if days[day.Weekday()] {
				return day.At(s.TimeOfDay, loc), true
			}
		}
		return time.Time{}, false

	default:
		day := today
		if s.Date != nil {
			day = *s.Date
		}
		return day.At(s.TimeOfDay, loc), true
	}
}
