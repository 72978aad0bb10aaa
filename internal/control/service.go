package control

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-home/internal/audit"
	"github.com/nerrad567/gray-logic-home/internal/device"
)

// ChannelDeviceUpdates is the broadcast channel carrying device snapshots.
const ChannelDeviceUpdates = "device_updates"

// Default status values written when a device is controlled without them.
const (
	DefaultBrightness  = 100
	DefaultColor       = "#ffffff"
	DefaultFanMode     = "normal"
	DefaultACMode      = "cool"
	DefaultTemperature = 25.0
)

// Logger is the logging interface used by the control service.
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

// Registry is the device store the service mutates.
type Registry interface {
	Get(ctx context.Context, id string) (*device.Device, error)
	ApplyTransition(ctx context.Context, id string, isOn bool, patch device.StatusPatch) (old, updated *device.Device, err error)
}

// Sender issues wire commands.
type Sender interface {
	Send(ctx context.Context, dev *device.Device, intent Intent, params Params) DispatchResult
}

// UsageRecorder is notified of every committed transition.
type UsageRecorder interface {
	OnTransition(ctx context.Context, d *device.Device, wasOn, isOn bool) error
}

// LogWriter appends device log entries.
type LogWriter interface {
	Create(ctx context.Context, log *audit.DeviceLog) error
}

// Publisher fans device updates out to realtime listeners.
type Publisher interface {
	Broadcast(channel string, payload any)
}

// Metrics records applied transitions.
type Metrics interface {
	TransitionApplied(source string)
}

type noopMetrics struct{}

func (noopMetrics) TransitionApplied(string) {}

// DeviceUpdate is the payload published on ChannelDeviceUpdates.
type DeviceUpdate struct {
	Device    *device.Device `json:"device"`
	Action    string         `json:"action"`
	Source    string         `json:"source"`
	Timestamp time.Time      `json:"timestamp"`
}

// Service is the single path through which device state changes: it sends
// the wire command, commits the transition, updates usage, writes the
// device log and publishes the new snapshot.
//
// Thread Safety: Apply is safe for concurrent use; writes to one device are
// serialised by the registry.
type Service struct {
	registry        Registry
	sender          Sender
	usage           UsageRecorder
	logs            LogWriter
	publishers      []Publisher
	defaultFanSpeed int
	logger          Logger
	metrics         Metrics
	now             func() time.Time
}

// NewService creates a control service. usage and logs may be nil.
func NewService(registry Registry, sender Sender, usage UsageRecorder, logs LogWriter) *Service {
	return &Service{
		registry:        registry,
		sender:          sender,
		usage:           usage,
		logs:            logs,
		defaultFanSpeed: DefaultFanSpeed,
		logger:          noopLogger{},
		metrics:         noopMetrics{},
		now:             time.Now,
	}
}

// SetLogger sets the logger.
func (s *Service) SetLogger(logger Logger) { s.logger = logger }

// SetMetrics sets the transition recorder.
func (s *Service) SetMetrics(m Metrics) { s.metrics = m }

// SetClock replaces the time source used for published timestamps.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// SetDefaultFanSpeed sets the speed recorded for a fan switched on without one.
func (s *Service) SetDefaultFanSpeed(speed int) {
	if speed > 0 {
		s.defaultFanSpeed = speed
	}
}

// AddPublisher registers a realtime listener. Call before Apply is used.
func (s *Service) AddPublisher(p Publisher) {
	if p != nil {
		s.publishers = append(s.publishers, p)
	}
}

// RequestTransition applies a user or API request: the command is sent to
// the hardware and the new state recorded regardless of whether the
// hardware answered; the dispatch outcome is reported in the result.
//
// Returns device.ErrDeviceNotFound for an unknown device and errors wrapping
// ErrInvalidIntent for bad intents or parameters.
func (s *Service) RequestTransition(ctx context.Context, deviceID string, intent Intent, params Params, userID string) (*Result, error) {
	return s.Apply(ctx, Request{
		DeviceID: deviceID,
		Intent:   intent,
		Params:   params,
		UserID:   userID,
		Source:   audit.SourceAPI,
	})
}

// Apply runs one request through dispatch, commit, usage, log and
// broadcast. Only validation and commit failures are returned; usage, log
// and broadcast failures are logged.
func (s *Service) Apply(ctx context.Context, req Request) (*Result, error) {
	if !req.Intent.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidIntent, req.Intent)
	}

	current, err := s.registry.Get(ctx, req.DeviceID)
	if err != nil {
		return nil, err
	}

	on := req.Intent.Resolve(current.IsOn)

	var patch device.Patches
	if !req.Observed {
		defaults, defErr := s.controlDefaults(current, on, req.Params)
		if defErr != nil {
			return nil, defErr
		}
		patch = append(patch, defaults)
	}
	patch = append(patch, req.Patch)

	if valErr := device.ValidateStatus(current.Type, patch.Status()); valErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidIntent, valErr)
	}

	result := &Result{Action: req.Action}
	if result.Action == "" {
		result.Action = string(IntentFor(on))
	}

	if !req.Observed && s.sender != nil {
		dispatch := s.sender.Send(ctx, current, IntentFor(on), req.Params)
		result.Dispatch = &dispatch
	}

	// Once a command may have reached the hardware the record must land,
	// so the commit and its side effects ignore caller cancellation.
	commitCtx := context.WithoutCancel(ctx)

	old, updated, err := s.registry.ApplyTransition(commitCtx, req.DeviceID, on, patch)
	if err != nil {
		if errors.Is(err, device.ErrInvalidStatus) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidIntent, err)
		}
		return nil, fmt.Errorf("applying transition to %s: %w", req.DeviceID, err)
	}
	result.Device = updated
	result.Previous = old
	result.Changed = old.IsOn != updated.IsOn

	s.metrics.TransitionApplied(req.Source)

	if s.usage != nil {
		if usageErr := s.usage.OnTransition(commitCtx, updated, old.IsOn, updated.IsOn); usageErr != nil {
			s.logger.Error("failed to record usage", "device_id", req.DeviceID, "error", usageErr)
		}
	}

	s.writeLog(commitCtx, req, result)
	s.publish(req, result)

	s.logger.Info("device transition applied",
		"device_id", req.DeviceID,
		"action", result.Action,
		"source", req.Source,
		"is_on", updated.IsOn,
	)
	return result, nil
}

func (s *Service) writeLog(ctx context.Context, req Request, result *Result) {
	if s.logs == nil {
		return
	}
	entry := &audit.DeviceLog{
		DeviceID:  req.DeviceID,
		Action:    result.Action,
		OldStatus: audit.Snapshot(result.Previous.IsOn, result.Previous.Status),
		NewStatus: audit.Snapshot(result.Device.IsOn, result.Device.Status),
		UserID:    req.UserID,
		Source:    req.Source,
	}
	if err := s.logs.Create(ctx, entry); err != nil {
		s.logger.Error("failed to write device log", "device_id", req.DeviceID, "error", err)
	}
}

func (s *Service) publish(req Request, result *Result) {
	if len(s.publishers) == 0 {
		return
	}
	update := DeviceUpdate{
		Device:    result.Device,
		Action:    result.Action,
		Source:    req.Source,
		Timestamp: s.now().UTC(),
	}
	for _, p := range s.publishers {
		p.Broadcast(ChannelDeviceUpdates, update)
	}
}

// controlDefaults builds the per-type status for a commanded transition.
// Parameters win, then values already recorded, then the defaults.
func (s *Service) controlDefaults(d *device.Device, on bool, params Params) (device.StatusPatch, error) {
	switch {
	case d.Type.IsLighting():
		p := device.LightPatch{State: device.OnOff(on)}
		if v, ok, err := intParam(params, device.KeyBrightness); err != nil {
			return nil, err
		} else if ok {
			p.Brightness = &v
		} else if _, has := d.Status[device.KeyBrightness]; !has {
			p.Brightness = device.IntPtr(DefaultBrightness)
		}
		if v, ok := params.String(device.KeyColor); ok {
			p.Color = v
		} else if _, has := d.Status[device.KeyColor]; !has {
			p.Color = DefaultColor
		}
		return p, nil

	case d.Type == device.TypeFan:
		p := device.FanPatch{State: device.OnOff(on)}
		if v, ok, err := intParam(params, device.KeySpeed); err != nil {
			return nil, err
		} else if ok {
			p.Speed = &v
		} else if _, has := d.Status[device.KeySpeed]; !has {
			p.Speed = device.IntPtr(s.defaultFanSpeed)
		}
		if v, ok := params.String(device.KeyMode); ok {
			p.Mode = v
		} else if _, has := d.Status[device.KeyMode]; !has {
			p.Mode = DefaultFanMode
		}
		return p, nil

	case d.Type == device.TypeAC:
		p := device.ACPatch{State: device.OnOff(on)}
		if v, ok, err := floatParam(params, device.KeyTemperature); err != nil {
			return nil, err
		} else if ok {
			p.Temperature = &v
		} else if _, has := d.Status[device.KeyTemperature]; !has {
			p.Temperature = device.FloatPtr(DefaultTemperature)
		}
		if v, ok := params.String(device.KeyMode); ok {
			p.Mode = v
		} else if _, has := d.Status[device.KeyMode]; !has {
			p.Mode = DefaultACMode
		}
		return p, nil

	case d.Type == device.TypeDoor:
		return device.DoorPatch{State: pick(on, device.StateOpen, device.StateClosed)}, nil

	case d.Type == device.TypeDryer:
		return device.DryerPatch{State: pick(on, device.StateOut, device.StateIn)}, nil
	}
	return nil, nil
}

func intParam(params Params, key string) (int, bool, error) {
	if _, present := params[key]; !present {
		return 0, false, nil
	}
	v, ok := params.Int(key)
	if !ok {
		return 0, false, fmt.Errorf("%w: %s must be an integer", ErrInvalidIntent, key)
	}
	return v, true, nil
}

func floatParam(params Params, key string) (float64, bool, error) {
	if _, present := params[key]; !present {
		return 0, false, nil
	}
	v, ok := params.Float(key)
	if !ok {
		return 0, false, fmt.Errorf("%w: %s must be a number", ErrInvalidIntent, key)
	}
	return v, true, nil
}
