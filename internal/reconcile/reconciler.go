package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/gray-logic-home/internal/audit"
	"github.com/nerrad567/gray-logic-home/internal/control"
	"github.com/nerrad567/gray-logic-home/internal/device"
	"github.com/nerrad567/gray-logic-home/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-home/internal/infrastructure/influxdb"
)

// Reconciler defaults.
const (
	DefaultInterval   = 5 * time.Second
	DefaultTimeout    = 3 * time.Second
	DefaultStatusPath = "/api/status"
	DefaultWorkers    = 8
)

// Poll results, as reported to metrics.
const (
	PollOK          = "ok"
	PollUnreachable = "unreachable"
	PollMalformed   = "malformed"
)

// maxReportSize caps a status reply.
const maxReportSize = 64 << 10

// Logger is the logging interface used by the reconciler.
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

// Devices is the registry view the reconciler reads and marks online.
type Devices interface {
	ListWithAddress(ctx context.Context) ([]device.Device, error)
	Get(ctx context.Context, id string) (*device.Device, error)
	SetOnline(ctx context.Context, ids []string, online bool) error
}

// Applier commits observed transitions.
type Applier interface {
	Apply(ctx context.Context, req control.Request) (*control.Result, error)
}

// ClimateSink receives temperature/humidity readings.
type ClimateSink interface {
	WriteClimate(p influxdb.ClimatePoint)
}

// Metrics records poll outcomes.
type Metrics interface {
	PollResult(result string)
	TickCompleted(loop string, t time.Time)
}

type noopMetrics struct{}

func (noopMetrics) PollResult(string)               {}
func (noopMetrics) TickCompleted(string, time.Time) {}

// TickReport counts what one reconcile tick did.
type TickReport struct {
	Addresses   int
	Reachable   int
	Unreachable int
	Changed     int
}

// Reconciler polls controller status endpoints and applies observed
// changes.
//
// Thread Safety: Tick is safe for concurrent use, but Start runs ticks
// sequentially.
type Reconciler struct {
	devices      Devices
	applier      Applier
	client       *http.Client
	interval     time.Duration
	statusPath   string
	workers      int
	dryThreshold float64
	now          func() time.Time
	logger       Logger
	metrics      Metrics
	climate      ClimateSink

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewReconciler creates a reconciler from the sync configuration. Zero
// values take the defaults.
func NewReconciler(devices Devices, applier Applier, cfg config.SyncConfig) *Reconciler {
	r := &Reconciler{
		devices:      devices,
		applier:      applier,
		interval:     time.Duration(cfg.Interval) * time.Second,
		statusPath:   cfg.StatusPath,
		workers:      cfg.Workers,
		dryThreshold: float64(cfg.DryThreshold),
		now:          time.Now,
		logger:       noopLogger{},
		metrics:      noopMetrics{},
		done:         make(chan struct{}),
	}

	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	r.client = &http.Client{Timeout: timeout}

	if r.interval <= 0 {
		r.interval = DefaultInterval
	}
	if r.statusPath == "" {
		r.statusPath = DefaultStatusPath
	}
	if r.workers <= 0 {
		r.workers = DefaultWorkers
	}
	if cfg.DryThreshold <= 0 {
		r.dryThreshold = DefaultDryThreshold
	}
	return r
}

// SetLogger sets the logger.
func (r *Reconciler) SetLogger(logger Logger) { r.logger = logger }

// SetMetrics sets the metrics recorder.
func (r *Reconciler) SetMetrics(m Metrics) { r.metrics = m }

// SetClimateSink enables climate readings export.
func (r *Reconciler) SetClimateSink(sink ClimateSink) { r.climate = sink }

// SetClock replaces the time source.
func (r *Reconciler) SetClock(now func() time.Time) { r.now = now }

// Start runs one tick immediately and then one per interval until ctx is
// cancelled or Stop is called.
func (r *Reconciler) Start(ctx context.Context) {
	r.wg.Add(1)
	go r.loop(ctx)
	r.logger.Info("status reconciler started", "interval", r.interval, "status_path", r.statusPath)
}

// Stop halts the loop and waits for an in-flight tick to finish.
// Safe to call multiple times.
func (r *Reconciler) Stop() {
	r.stopOnce.Do(func() {
		close(r.done)
		r.wg.Wait()
		r.logger.Info("status reconciler stopped")
	})
}

func (r *Reconciler) loop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.runTick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		case <-ticker.C:
			r.runTick(ctx)
		}
	}
}

// runTick runs one tick to completion. Polls are bounded by the request
// timeout, and cancellation is only honoured between ticks.
func (r *Reconciler) runTick(ctx context.Context) {
	report, err := r.Tick(context.WithoutCancel(ctx))
	if err != nil {
		r.logger.Error("reconcile tick failed", "error", err)
		return
	}
	if report.Changed > 0 {
		r.logger.Info("reconcile tick", "addresses", report.Addresses, "changed", report.Changed)
	}
}

// Tick polls every address once. Only a failure to list devices is
// returned; per-address failures are logged and counted.
func (r *Reconciler) Tick(ctx context.Context) (TickReport, error) {
	devices, err := r.devices.ListWithAddress(ctx)
	if err != nil {
		return TickReport{}, fmt.Errorf("listing devices: %w", err)
	}

	byAddress := GroupByAddress(devices)

	var reachable, unreachable, changed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for addr, group := range byAddress {
		g.Go(func() error {
			n, pollErr := r.syncAddress(gctx, addr, group)
			if pollErr != nil {
				unreachable.Add(1)
			} else {
				reachable.Add(1)
			}
			changed.Add(int64(n))
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // workers never return errors

	r.metrics.TickCompleted("reconciler", r.now())
	return TickReport{
		Addresses:   len(byAddress),
		Reachable:   int(reachable.Load()),
		Unreachable: int(unreachable.Load()),
		Changed:     int(changed.Load()),
	}, nil
}

// GroupByAddress buckets devices by their trimmed controller address.
// Devices without one are dropped.
func GroupByAddress(devices []device.Device) map[string][]device.Device {
	groups := make(map[string][]device.Device)
	for _, d := range devices {
		addr := strings.TrimSpace(d.Address)
		if addr == "" {
			continue
		}
		groups[addr] = append(groups[addr], d)
	}
	return groups
}

// syncAddress polls one controller and reconciles the devices behind it.
// It returns how many devices changed.
func (r *Reconciler) syncAddress(ctx context.Context, addr string, group []device.Device) (int, error) {
	ids := make([]string, len(group))
	for i := range group {
		ids[i] = group[i].ID
	}

	report, err := r.Poll(ctx, addr)
	if err != nil {
		result := PollUnreachable
		if errors.Is(err, ErrMalformedResponse) {
			result = PollMalformed
		}
		r.metrics.PollResult(result)
		r.logger.Warn("status poll failed", "address", addr, "devices", len(group), "error", err)
		if onlineErr := r.devices.SetOnline(ctx, ids, false); onlineErr != nil {
			r.logger.Error("failed to mark devices offline", "address", addr, "error", onlineErr)
		}
		return 0, err
	}
	r.metrics.PollResult(PollOK)

	if onlineErr := r.devices.SetOnline(ctx, ids, true); onlineErr != nil {
		r.logger.Error("failed to mark devices online", "address", addr, "error", onlineErr)
	}

	now := r.now()

	changed := 0
	for i := range group {
		if temp, hum := Readings(group[i].Type, report); r.climate != nil && (temp != nil || hum != nil) {
			r.climate.WriteClimate(influxdb.ClimatePoint{
				DeviceID: group[i].ID, Temperature: temp, Humidity: hum, At: now,
			})
		}

		ok, syncErr := r.syncDevice(ctx, group[i].ID, report, now)
		if syncErr != nil {
			r.logger.Error("failed to apply observed state",
				"address", addr, "device_id", group[i].ID, "error", syncErr)
			continue
		}
		if ok {
			changed++
		}
	}
	return changed, nil
}

// syncDevice reloads the device and applies the report if it disagrees
// with the recorded is_on.
func (r *Reconciler) syncDevice(ctx context.Context, id string, report Report, now time.Time) (bool, error) {
	current, err := r.devices.Get(ctx, id)
	if err != nil {
		return false, err
	}

	obs, ok := Observe(current, report, r.dryThreshold, now)
	if !ok || obs.IsOn == current.IsOn {
		return false, nil
	}

	intent := control.IntentFor(obs.IsOn)
	if _, err := r.applier.Apply(ctx, control.Request{
		DeviceID: id,
		Intent:   intent,
		Source:   audit.SourceSync,
		Action:   "sync_" + string(intent),
		Patch:    obs.Patch,
		Observed: true,
	}); err != nil {
		return false, err
	}

	r.logger.Info("device state synced from hardware",
		"device_id", id, "was_on", current.IsOn, "is_on", obs.IsOn)
	return true, nil
}

// Poll fetches and decodes the status report of one controller.
func (r *Reconciler) Poll(ctx context.Context, addr string) (Report, error) {
	u := url.URL{Scheme: "http", Host: addr, Path: r.statusPath}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreachable, err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxReportSize)) //nolint:errcheck // draining
		return nil, fmt.Errorf("%w: HTTP %d", ErrUnreachable, resp.StatusCode)
	}

	var report Report
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxReportSize)).Decode(&report); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	if report == nil {
		return nil, fmt.Errorf("%w: null report", ErrMalformedResponse)
	}
	return report, nil
}
