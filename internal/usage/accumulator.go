package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-home/internal/device"
	"github.com/nerrad567/gray-logic-home/internal/infrastructure/influxdb"
)

// Logger defines the logging interface used by the Accumulator.
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

// EnergySink receives one point per billed session. *influxdb.Client
// satisfies it.
type EnergySink interface {
	WriteUsage(p influxdb.UsagePoint)
}

// Metrics counts accumulator outcomes.
type Metrics interface {
	SessionOpened()
	SessionClosed(reason string)
}

type noopMetrics struct{}

func (noopMetrics) SessionOpened()       {}
func (noopMetrics) SessionClosed(string) {}

// Accumulator turns device on/off transitions into usage sessions and
// daily statistics.
//
// Dates are the calendar day in the site timezone at the moment of the
// transition: a session is billed to the day it ends.
type Accumulator struct {
	repo    Repository
	tariff  Tariff
	loc     *time.Location
	sink    EnergySink
	metrics Metrics
	logger  Logger
	now     func() time.Time
}

// NewAccumulator creates an accumulator. A nil loc means UTC.
func NewAccumulator(repo Repository, tariff Tariff, loc *time.Location) *Accumulator {
	if loc == nil {
		loc = time.UTC
	}
	return &Accumulator{
		repo:    repo,
		tariff:  tariff,
		loc:     loc,
		metrics: noopMetrics{},
		logger:  noopLogger{},
		now:     time.Now,
	}
}

// SetLogger sets the logger.
func (a *Accumulator) SetLogger(logger Logger) { a.logger = logger }

// SetEnergySink sets where billed sessions are mirrored. Nil disables it.
func (a *Accumulator) SetEnergySink(sink EnergySink) { a.sink = sink }

// SetMetrics sets the metrics recorder.
func (a *Accumulator) SetMetrics(m Metrics) { a.metrics = m }

// SetClock overrides the time source.
func (a *Accumulator) SetClock(now func() time.Time) { a.now = now }

// Tariff returns the tariff used for billing.
func (a *Accumulator) Tariff() Tariff { return a.tariff }

// OnTransition records a change of a device's is_on flag.
//
// off→on opens a session (closing any leftover one first, unbilled) and
// counts a turn-on. on→off closes and bills the open session. Anything
// else writes nothing.
func (a *Accumulator) OnTransition(ctx context.Context, d *device.Device, wasOn, isOn bool) error {
	if wasOn == isOn {
		return nil
	}

	now := a.now()
	date := a.dateOf(now)

	if isOn {
		_, stale, err := a.repo.OpenSession(ctx, d.ID, now, date)
		if err != nil {
			return fmt.Errorf("opening usage session for %s: %w", d.ID, err)
		}
		for _, s := range stale {
			a.logger.Warn("closed dangling usage session without billing",
				"device_id", d.ID, "session_id", s.ID, "started", s.StartTime)
			a.metrics.SessionClosed(CloseAnomaly)
		}
		a.metrics.SessionOpened()
		return nil
	}

	session, charge, err := a.repo.CloseSession(ctx, d.ID, now, date, func(elapsed time.Duration) Charge {
		return a.tariff.Bill(d.Type, elapsed)
	})
	if err != nil {
		return fmt.Errorf("closing usage session for %s: %w", d.ID, err)
	}
	if session == nil {
		a.logger.Debug("device turned off with no open session", "device_id", d.ID)
		return nil
	}
	a.metrics.SessionClosed(CloseBilled)

	if charge.Minutes > 0 && a.sink != nil {
		a.sink.WriteUsage(influxdb.UsagePoint{
			DeviceID:   d.ID,
			DeviceType: string(d.Type),
			Minutes:    charge.Minutes,
			EnergyKWh:  charge.EnergyKWh,
			Cost:       charge.Cost,
			EndedAt:    *session.EndTime,
		})
	}

	a.logger.Debug("usage session closed",
		"device_id", d.ID, "minutes", charge.Minutes, "kwh", charge.EnergyKWh, "cost", charge.Cost)
	return nil
}

// DailyStats returns a device's statistics for each day between from and
// to (inclusive), as dated in the site timezone.
func (a *Accumulator) DailyStats(ctx context.Context, deviceID string, from, to time.Time) ([]DailyStatistic, error) {
	f, t, err := a.dateRange(from, to)
	if err != nil {
		return nil, err
	}
	return a.repo.DailyStats(ctx, deviceID, f, t)
}

// RecentDailyStats returns the last days days of statistics ending today.
func (a *Accumulator) RecentDailyStats(ctx context.Context, deviceID string, days int) ([]DailyStatistic, error) {
	if days < 1 {
		days = 1
	}
	to := a.now()
	from := to.In(a.loc).AddDate(0, 0, -(days - 1))
	return a.DailyStats(ctx, deviceID, from, to)
}

// Summary totals usage for every device between from and to (inclusive).
func (a *Accumulator) Summary(ctx context.Context, from, to time.Time) (*Summary, error) {
	f, t, err := a.dateRange(from, to)
	if err != nil {
		return nil, err
	}
	devices, err := a.repo.Summary(ctx, f, t)
	if err != nil {
		return nil, err
	}

	s := &Summary{From: f, To: t, Devices: devices}
	for _, d := range devices {
		s.TotalUsageMinutes += d.TotalUsageMinutes
		s.PowerConsumption += d.PowerConsumption
		s.Cost += d.Cost
	}
	return s, nil
}

// OpenSessions lists running sessions with their usage so far.
func (a *Accumulator) OpenSessions(ctx context.Context) ([]OpenSession, error) {
	sessions, err := a.repo.OpenSessions(ctx)
	if err != nil {
		return nil, err
	}
	now := a.now()
	for i := range sessions {
		c := a.tariff.Bill(device.Type(sessions[i].DeviceType), now.Sub(sessions[i].StartTime))
		sessions[i].RunningMinutes = c.Minutes
		sessions[i].EstimatedKWh = c.EnergyKWh
		sessions[i].EstimatedCost = c.Cost
	}
	return sessions, nil
}

// CleanupStaleSessions closes sessions that have been open longer than
// maxAge without billing them, returning how many were closed.
func (a *Accumulator) CleanupStaleSessions(ctx context.Context, maxAge time.Duration) (int, error) {
	now := a.now()
	n, err := a.repo.CloseStale(ctx, now.Add(-maxAge), now)
	if err != nil {
		return 0, fmt.Errorf("closing stale sessions: %w", err)
	}
	for range n {
		a.metrics.SessionClosed(CloseStale)
	}
	if n > 0 {
		a.logger.Info("closed stale usage sessions", "count", n, "max_age", maxAge)
	}
	return n, nil
}

func (a *Accumulator) dateOf(t time.Time) string {
	return t.In(a.loc).Format(DateLayout)
}

func (a *Accumulator) dateRange(from, to time.Time) (string, string, error) {
	f, t := a.dateOf(from), a.dateOf(to)
	if f > t {
		return "", "", fmt.Errorf("%w: %s is after %s", ErrInvalidRange, f, t)
	}
	return f, t, nil
}
