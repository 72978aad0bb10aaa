package schedule

import (
	"errors"
	"testing"
	"time"
)

var ict = time.FixedZone("ICT", 7*60*60)

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		in      string
		want    TimeOfDay
		wantErr bool
	}{
		{"07:00", TimeOfDay{7, 0}, false},
		{"23:59", TimeOfDay{23, 59}, false},
		{" 6:05 ", TimeOfDay{6, 5}, false},
		{"07:00:30", TimeOfDay{7, 0}, false},
		{"24:00", TimeOfDay{}, true},
		{"07:60", TimeOfDay{}, true},
		{"07:5", TimeOfDay{}, true},
		{"7", TimeOfDay{}, true},
		{"ab:cd", TimeOfDay{}, true},
		{"", TimeOfDay{}, true},
	}
	for _, tt := range tests {
		got, err := ParseTimeOfDay(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseTimeOfDay(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidTime) {
				t.Errorf("ParseTimeOfDay(%q) error = %v, want ErrInvalidTime", tt.in, err)
			}
			continue
		}
		if got != tt.want {
			t.Errorf("ParseTimeOfDay(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2026-03-01")
	if err != nil {
		t.Fatalf("ParseDate() error = %v", err)
	}
	if d != (Date{2026, time.March, 1}) || d.String() != "2026-03-01" {
		t.Errorf("ParseDate() = %v", d)
	}

	for _, bad := range []string{"2026-02-30", "01/03/2026", ""} {
		if _, err := ParseDate(bad); !errors.Is(err, ErrInvalidDate) {
			t.Errorf("ParseDate(%q) error = %v, want ErrInvalidDate", bad, err)
		}
	}
}

func TestDate_At(t *testing.T) {
	d := Date{2026, time.March, 1}
	got := d.At(TimeOfDay{7, 0}, ict)
	want := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) || got.Location() != time.UTC {
		t.Errorf("At() = %v, want %v in UTC", got, want)
	}
}

func TestDateOf_UsesLocation(t *testing.T) {
	// 2026-03-01 20:00 UTC is already 2 March in ICT.
	instant := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	if got := DateOf(instant, ict); got != (Date{2026, time.March, 2}) {
		t.Errorf("DateOf() = %v, want 2026-03-02", got)
	}
	if got := DateOf(instant, time.UTC); got != (Date{2026, time.March, 1}) {
		t.Errorf("DateOf(UTC) = %v, want 2026-03-01", got)
	}
}

func TestDueInstant(t *testing.T) {
	// Sunday 2026-03-01 07:02 in ICT.
	now := time.Date(2026, 3, 1, 0, 2, 0, 0, time.UTC)
	seven := TimeOfDay{7, 0}
	day := func(y int, m time.Month, d int) *Date { return &Date{y, m, d} }

	tests := []struct {
		name   string
		sched  Schedule
		want   time.Time
		wantOK bool
	}{
		{
			name:   "once with date",
			sched:  Schedule{Repeat: RepeatOnce, TimeOfDay: seven, Date: day(2026, 3, 5)},
			want:   time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC),
			wantOK: true,
		},
		{
			name:   "once without date is today",
			sched:  Schedule{Repeat: RepeatOnce, TimeOfDay: seven},
			want:   time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
			wantOK: true,
		},
		{
			name:   "daily is today",
			sched:  Schedule{Repeat: RepeatDaily, TimeOfDay: TimeOfDay{22, 30}},
			want:   time.Date(2026, 3, 1, 15, 30, 0, 0, time.UTC),
			wantOK: true,
		},
		{
			name:   "weekly includes today even when passed",
			sched:  Schedule{Repeat: RepeatWeekly, TimeOfDay: TimeOfDay{6, 0}, RepeatDays: []Weekday{Sunday}},
			want:   time.Date(2026, 2, 28, 23, 0, 0, 0, time.UTC),
			wantOK: true,
		},
		{
			name:   "weekly searches forward",
			sched:  Schedule{Repeat: RepeatWeekly, TimeOfDay: seven, RepeatDays: []Weekday{Wednesday, Monday}},
			want:   time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
			wantOK: true,
		},
		{
			name:   "weekly wraps to saturday",
			sched:  Schedule{Repeat: RepeatWeekly, TimeOfDay: seven, RepeatDays: []Weekday{Saturday}},
			want:   time.Date(2026, 3, 7, 0, 0, 0, 0, time.UTC),
			wantOK: true,
		},
		{
			name:   "weekly with no days",
			sched:  Schedule{Repeat: RepeatWeekly, TimeOfDay: seven},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DueInstant(&tt.sched, now, ict)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && !got.Equal(tt.want) {
				t.Errorf("DueInstant() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDueInstant_LocalMidnightBoundary(t *testing.T) {
	// 23:30 UTC on 28 Feb is 06:30 on Sunday 1 March in ICT; a daily
	// 07:00 schedule is due later that local day, not on 28 Feb.
	now := time.Date(2026, 2, 28, 23, 30, 0, 0, time.UTC)
	s := Schedule{Repeat: RepeatDaily, TimeOfDay: TimeOfDay{7, 0}}

	got, ok := DueInstant(&s, now, ict)
	if !ok {
		t.Fatal("ok = false")
	}
	want := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("DueInstant() = %v, want %v", got, want)
	}
	if now.Sub(got) >= 0 {
		t.Error("schedule should still be pending")
	}
}
