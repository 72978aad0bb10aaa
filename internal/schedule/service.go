package schedule

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/nerrad567/gray-logic-home/internal/device"
)

// Logger is the logging interface used by the schedule package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// DeviceLookup resolves the device a schedule targets.
type DeviceLookup interface {
	Get(ctx context.Context, id string) (*device.Device, error)
}

// CreateRequest is the user input for a new schedule.
type CreateRequest struct {
	DeviceID   string   `json:"device_id"`
	Name       string   `json:"name,omitempty"`
	Action     string   `json:"action"`
	TimeOfDay  string   `json:"time_of_day"`
	Date       string   `json:"date,omitempty"`
	Repeat     string   `json:"repeat,omitempty"`
	RepeatDays []string `json:"repeat_days,omitempty"`
	IsActive   *bool    `json:"is_active,omitempty"`
}

// UpdateRequest carries the fields to change; nil fields are left alone.
// An empty Date clears the date.
type UpdateRequest struct {
	DeviceID   *string   `json:"device_id,omitempty"`
	Name       *string   `json:"name,omitempty"`
	Action     *string   `json:"action,omitempty"`
	TimeOfDay  *string   `json:"time_of_day,omitempty"`
	Date       *string   `json:"date,omitempty"`
	Repeat     *string   `json:"repeat,omitempty"`
	RepeatDays *[]string `json:"repeat_days,omitempty"`
	IsActive   *bool     `json:"is_active,omitempty"`
}

// Service manages schedules on behalf of users.
type Service struct {
	repo    Repository
	devices DeviceLookup
	loc     *time.Location
	logger  Logger
	now     func() time.Time
}

// NewService creates a schedule service. Civil times are read in loc.
func NewService(repo Repository, devices DeviceLookup, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		repo:    repo,
		devices: devices,
		loc:     loc,
		logger:  noopLogger{},
		now:     time.Now,
	}
}

// SetLogger sets the logger.
func (s *Service) SetLogger(logger Logger) { s.logger = logger }

// SetClock replaces the time source.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// Create validates and stores a new schedule owned by userID.
//
// A once schedule created without a date is pinned to the next occurrence
// of its time of day: today if it has not passed yet, otherwise tomorrow.
// An empty name is generated from the action, device and time.
func (s *Service) Create(ctx context.Context, userID string, req CreateRequest) (*Schedule, error) {
	sched := &Schedule{
		ID:       GenerateID(),
		DeviceID: req.DeviceID,
		UserID:   userID,
		Name:     req.Name,
		Action:   Action(req.Action),
		Repeat:   Repeat(req.Repeat),
		IsActive: true,
	}
	if sched.Repeat == "" {
		sched.Repeat = RepeatOnce
	}
	if req.IsActive != nil {
		sched.IsActive = *req.IsActive
	}

	var errs []error
	if tod, err := ParseTimeOfDay(req.TimeOfDay); err != nil {
		errs = append(errs, err)
	} else {
		sched.TimeOfDay = tod
	}
	if req.Date != "" {
		if d, err := ParseDate(req.Date); err != nil {
			errs = append(errs, err)
		} else {
			sched.Date = &d
		}
	}
	if days, err := ParseWeekdays(req.RepeatDays); err != nil {
		errs = append(errs, err)
	} else {
		sched.RepeatDays = days
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSchedule, errors.Join(errs...))
	}
	if err := Validate(sched); err != nil {
		return nil, err
	}

	dev, err := s.devices.Get(ctx, sched.DeviceID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if sched.Repeat == RepeatOnce && sched.Date == nil {
		day := DateOf(now, s.loc)
		if day.At(sched.TimeOfDay, s.loc).Before(now) {
			day = day.AddDays(1)
		}
		sched.Date = &day
	}
	if sched.Name == "" {
		sched.Name = defaultName(sched.Action, dev.Name, sched.TimeOfDay)
	}

	stamp := now.UTC().Truncate(time.Second)
	sched.CreatedAt = stamp
	sched.UpdatedAt = stamp

	if err := s.repo.Create(ctx, sched); err != nil {
		return nil, err
	}
	s.logger.Info("schedule created",
		"id", sched.ID, "device_id", sched.DeviceID, "action", sched.Action,
		"time", sched.TimeOfDay.String(), "repeat", sched.Repeat)
	return sched, nil
}

// Get returns a schedule. A non-empty userID restricts the lookup to that
// user's schedules.
func (s *Service) Get(ctx context.Context, id, userID string) (*Schedule, error) {
	sched, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if userID != "" && sched.UserID != userID {
		return nil, ErrScheduleNotFound
	}
	return sched, nil
}

// List returns schedules matching filter.
func (s *Service) List(ctx context.Context, filter Filter) ([]Schedule, error) {
	return s.repo.List(ctx, filter)
}

// Update applies req to a schedule. Changing when it fires (time, date,
// repeat policy or days) re-arms it.
func (s *Service) Update(ctx context.Context, id, userID string, req UpdateRequest) (*Schedule, error) {
	sched, err := s.Get(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	before := *sched

	var errs []error
	if req.DeviceID != nil {
		sched.DeviceID = *req.DeviceID
	}
	if req.Name != nil {
		sched.Name = *req.Name
	}
	if req.Action != nil {
		sched.Action = Action(*req.Action)
	}
	if req.TimeOfDay != nil {
		if tod, parseErr := ParseTimeOfDay(*req.TimeOfDay); parseErr != nil {
			errs = append(errs, parseErr)
		} else {
			sched.TimeOfDay = tod
		}
	}
	if req.Date != nil {
		if *req.Date == "" {
			sched.Date = nil
		} else if d, parseErr := ParseDate(*req.Date); parseErr != nil {
			errs = append(errs, parseErr)
		} else {
			sched.Date = &d
		}
	}
	if req.Repeat != nil {
		sched.Repeat = Repeat(*req.Repeat)
	}
	if req.RepeatDays != nil {
		if days, parseErr := ParseWeekdays(*req.RepeatDays); parseErr != nil {
			errs = append(errs, parseErr)
		} else {
			sched.RepeatDays = days
		}
	}
	if req.IsActive != nil {
		sched.IsActive = *req.IsActive
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSchedule, errors.Join(errs...))
	}
	if err := Validate(sched); err != nil {
		return nil, err
	}

	if sched.DeviceID != before.DeviceID {
		if _, err := s.devices.Get(ctx, sched.DeviceID); err != nil {
			return nil, err
		}
	}

	if timingChanged(&before, sched) {
		sched.IsExecuted = false
		sched.LastDueAt = nil
	}
	sched.UpdatedAt = s.now().UTC().Truncate(time.Second)

	if err := s.repo.Update(ctx, sched); err != nil {
		return nil, err
	}
	s.logger.Info("schedule updated", "id", sched.ID, "rearmed", !sched.IsExecuted && before.IsExecuted)
	return sched, nil
}

// Toggle flips whether a schedule is active.
func (s *Service) Toggle(ctx context.Context, id, userID string) (*Schedule, error) {
	sched, err := s.Get(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	sched.IsActive = !sched.IsActive
	sched.UpdatedAt = s.now().UTC().Truncate(time.Second)

	if err := s.repo.Update(ctx, sched); err != nil {
		return nil, err
	}
	s.logger.Info("schedule toggled", "id", sched.ID, "is_active", sched.IsActive)
	return sched, nil
}

// Delete removes a schedule.
func (s *Service) Delete(ctx context.Context, id, userID string) error {
	if _, err := s.Get(ctx, id, userID); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("schedule deleted", "id", id)
	return nil
}

func timingChanged(a, b *Schedule) bool {
	if a.TimeOfDay != b.TimeOfDay || a.Repeat != b.Repeat {
		return true
	}
	if (a.Date == nil) != (b.Date == nil) || (a.Date != nil && *a.Date != *b.Date) {
		return true
	}
	return !slices.Equal(a.RepeatDays, b.RepeatDays)
}

func defaultName(action Action, deviceName string, t TimeOfDay) string {
	verb := "Turn on"
	if action == ActionOff {
		verb = "Turn off"
	}
	return fmt.Sprintf("%s %s at %s", verb, deviceName, t)
}
