package schedule

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/gray-logic-home/internal/audit"
	"github.com/nerrad567/gray-logic-home/internal/control"
	"github.com/nerrad567/gray-logic-home/internal/device"
)

// Evaluator defaults.
const (
	DefaultInterval    = 30 * time.Second
	DefaultGraceWindow = 5 * time.Minute
	DefaultWorkers     = 4
)

// Occurrence resolutions, as reported to metrics.
const (
	ResultExecuted = "executed"
	ResultSkipped  = "skipped"
	ResultFailed   = "failed"
)

// Executor applies a device transition.
type Executor interface {
	Apply(ctx context.Context, req control.Request) (*control.Result, error)
}

// Metrics records evaluator activity.
type Metrics interface {
	ScheduleResolved(result string)
	TickCompleted(loop string, t time.Time)
}

type noopMetrics struct{}

func (noopMetrics) ScheduleResolved(string)         {}
func (noopMetrics) TickCompleted(string, time.Time) {}

// EvaluatorConfig configures an Evaluator. Zero values take the defaults.
type EvaluatorConfig struct {
	Interval    time.Duration
	GraceWindow time.Duration
	Workers     int
	Location    *time.Location
}

// TickReport counts what one evaluation tick did.
type TickReport struct {
	Candidates int
	Pending    int
	Executed   int
	Skipped    int
	Failed     int
}

// Evaluator fires due schedules.
//
// Each tick loads the candidate schedules, computes every due instant and
// compares it with now:
//
//	now < due                  pending, nothing written
//	due <= now <= due + grace  executed through the Executor
//	now > due + grace          skipped: no command, no state change
//
// Executed, skipped and failed occurrences all end with MarkResolved, so an
// occurrence is attempted at most once.
type Evaluator struct {
	repo     Repository
	exec     Executor
	interval time.Duration
	grace    time.Duration
	workers  int
	loc      *time.Location
	now      func() time.Time
	logger   Logger
	metrics  Metrics

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewEvaluator creates an evaluator. Call Start to begin ticking.
func NewEvaluator(repo Repository, exec Executor, cfg EvaluatorConfig) *Evaluator {
	e := &Evaluator{
		repo:     repo,
		exec:     exec,
		interval: cfg.Interval,
		grace:    cfg.GraceWindow,
		workers:  cfg.Workers,
		loc:      cfg.Location,
		now:      time.Now,
		logger:   noopLogger{},
		metrics:  noopMetrics{},
		done:     make(chan struct{}),
	}
	if e.interval <= 0 {
		e.interval = DefaultInterval
	}
	if e.grace <= 0 {
		e.grace = DefaultGraceWindow
	}
	if e.workers <= 0 {
		e.workers = DefaultWorkers
	}
	if e.loc == nil {
		e.loc = time.UTC
	}
	return e
}

// SetLogger sets the logger.
func (e *Evaluator) SetLogger(logger Logger) { e.logger = logger }

// SetMetrics sets the metrics recorder.
func (e *Evaluator) SetMetrics(m Metrics) { e.metrics = m }

// SetClock replaces the time source.
func (e *Evaluator) SetClock(now func() time.Time) { e.now = now }

// Start runs one tick immediately and then one per interval until ctx is
// cancelled or Stop is called.
func (e *Evaluator) Start(ctx context.Context) {
	e.wg.Add(1)
	go e.loop(ctx)
	e.logger.Info("schedule evaluator started", "interval", e.interval, "grace_window", e.grace)
}

// Stop halts the loop and waits for an in-flight tick to finish.
// Safe to call multiple times.
func (e *Evaluator) Stop() {
	e.stopOnce.Do(func() {
		close(e.done)
		e.wg.Wait()
		e.logger.Info("schedule evaluator stopped")
	})
}

func (e *Evaluator) loop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.runTick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.done:
			return
		case <-ticker.C:
			e.runTick(ctx)
		}
	}
}

// runTick runs one tick to completion. Cancellation is only honoured
// between ticks so a shutdown never leaves a dispatched schedule unresolved.
func (e *Evaluator) runTick(ctx context.Context) {
	report, err := e.Tick(context.WithoutCancel(ctx))
	if err != nil {
		e.logger.Error("schedule tick failed", "error", err)
		return
	}
	if report.Executed+report.Skipped+report.Failed > 0 {
		e.logger.Info("schedule tick",
			"executed", report.Executed, "skipped", report.Skipped, "failed", report.Failed)
	}
}

// Tick evaluates every candidate schedule once. Only a failure to load the
// candidates is returned; per-schedule failures are logged and counted.
func (e *Evaluator) Tick(ctx context.Context) (TickReport, error) {
	now := e.now().UTC()

	candidates, err := e.repo.ListCandidates(ctx)
	if err != nil {
		return TickReport{}, fmt.Errorf("loading schedules: %w", err)
	}

	var pending, executed, skipped, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i := range candidates {
		sched := &candidates[i]
		g.Go(func() error {
			switch e.evaluate(gctx, sched, now) {
			case "":
				pending.Add(1)
			case ResultExecuted:
				executed.Add(1)
			case ResultSkipped:
				skipped.Add(1)
			case ResultFailed:
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // workers never return errors

	e.metrics.TickCompleted("scheduler", now)
	return TickReport{
		Candidates: len(candidates),
		Pending:    int(pending.Load()),
		Executed:   int(executed.Load()),
		Skipped:    int(skipped.Load()),
		Failed:     int(failed.Load()),
	}, nil
}

// evaluate decides one schedule. It returns "" when nothing is due.
func (e *Evaluator) evaluate(ctx context.Context, s *Schedule, now time.Time) string {
	due, ok := DueInstant(s, now, e.loc)
	if !ok {
		return ""
	}

	if s.IsExecuted {
		if !s.Repeat.Recurring() || (s.LastDueAt != nil && !due.After(*s.LastDueAt)) {
			return ""
		}
		if err := e.repo.Rearm(ctx, s.ID, now); err != nil {
			e.logger.Error("failed to re-arm schedule", "schedule_id", s.ID, "error", err)
			return ""
		}
		s.IsExecuted = false
		e.logger.Debug("schedule re-armed", "schedule_id", s.ID, "due", due)
	}

	delta := now.Sub(due)
	if delta < 0 {
		return ""
	}
	return e.resolve(ctx, s, due, now, delta)
}

// resolve executes or skips a due occurrence. The deferred MarkResolved is
// the terminal step and runs whatever happens in between, panics included.
func (e *Evaluator) resolve(ctx context.Context, s *Schedule, due, now time.Time, delta time.Duration) (result string) {
	result = ResultFailed
	var executedAt time.Time

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("schedule execution panicked", "schedule_id", s.ID, "panic", r)
			result = ResultFailed
			executedAt = time.Time{}
		}
		if err := e.repo.MarkResolved(context.WithoutCancel(ctx), s.ID, due, executedAt, now); err != nil {
			e.logger.Error("failed to mark schedule resolved", "schedule_id", s.ID, "error", err)
		}
		e.metrics.ScheduleResolved(result)
	}()

	if delta > e.grace {
		e.logger.Warn("schedule missed its grace window, skipping",
			"schedule_id", s.ID, "device_id", s.DeviceID, "due", due, "late_by", delta)
		result = ResultSkipped
		return result
	}

	res, err := e.exec.Apply(ctx, control.Request{
		DeviceID: s.DeviceID,
		Intent:   control.Intent(s.Action),
		UserID:   s.UserID,
		Source:   audit.SourceSchedule,
		Action:   "scheduled_" + string(s.Action),
		Patch:    device.ScheduleStampPatch{Action: string(s.Action), At: now},
	})
	if err != nil {
		e.logger.Error("schedule execution failed",
			"schedule_id", s.ID, "device_id", s.DeviceID, "error", err)
		return result
	}

	if res.Dispatch != nil && !res.Dispatch.Delivered() {
		e.logger.Warn("scheduled command not delivered",
			"schedule_id", s.ID, "device_id", s.DeviceID, "outcome", res.Dispatch.Outcome, "error", res.Dispatch.Error)
	}
	e.logger.Info("schedule executed",
		"schedule_id", s.ID, "device_id", s.DeviceID, "action", s.Action, "due", due)

	executedAt = now
	result = ResultExecuted
	return result
}
