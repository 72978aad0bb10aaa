package control

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-home/internal/device"
	"github.com/nerrad567/gray-logic-home/internal/infrastructure/config"
)

// DefaultTimeout bounds a single wire command when none is configured.
const DefaultTimeout = 3 * time.Second

// DefaultFanSpeed is the speed sent when a fan is switched on without one.
const DefaultFanSpeed = 3

// drainLimit caps how much of a reply body is read before closing.
const drainLimit = 4096

// DispatchMetrics records wire command outcomes.
type DispatchMetrics interface {
	DispatchOutcome(deviceType, outcome string)
}

type noopDispatchMetrics struct{}

func (noopDispatchMetrics) DispatchOutcome(string, string) {}

// Dispatcher translates an on/off intent into the controller's HTTP GET
// command and sends it.
//
// Thread Safety: Send is safe for concurrent use.
type Dispatcher struct {
	client          *http.Client
	timeout         time.Duration
	defaultFanSpeed int
	logger          Logger
	metrics         DispatchMetrics
}

// NewDispatcher creates a dispatcher from the control configuration.
func NewDispatcher(cfg config.ControlConfig) *Dispatcher {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	speed := cfg.DefaultFanSpeed
	if speed <= 0 {
		speed = DefaultFanSpeed
	}
	return &Dispatcher{
		client:          &http.Client{Timeout: timeout},
		timeout:         timeout,
		defaultFanSpeed: speed,
		logger:          noopLogger{},
		metrics:         noopDispatchMetrics{},
	}
}

// SetLogger sets the logger.
func (d *Dispatcher) SetLogger(logger Logger) {
	d.logger = logger
}

// SetMetrics sets the outcome recorder.
func (d *Dispatcher) SetMetrics(m DispatchMetrics) {
	d.metrics = m
}

// Send issues the wire command for intent on dev. toggle resolves against
// dev.IsOn. It never returns an error: failures are reported in the
// result's Outcome.
func (d *Dispatcher) Send(ctx context.Context, dev *device.Device, intent Intent, params Params) DispatchResult {
	on := intent.Resolve(dev.IsOn)

	result := d.send(ctx, dev, on, params)
	d.metrics.DispatchOutcome(string(dev.Type), string(result.Outcome))

	switch result.Outcome {
	case OutcomeOK:
		d.logger.Debug("device command sent", "device_id", dev.ID, "url", result.URL)
	case OutcomeUnreachable:
		d.logger.Warn("device command failed", "device_id", dev.ID, "url", result.URL, "error", result.Err)
	case OutcomeUnsupported:
		d.logger.Debug("device command skipped", "device_id", dev.ID, "reason", result.Error)
	}
	return result
}

func (d *Dispatcher) send(ctx context.Context, dev *device.Device, on bool, params Params) DispatchResult {
	if !dev.HasHardware() {
		return unsupported("no controller address")
	}

	target, ok := d.commandURL(dev, on, params)
	if !ok {
		return unsupported(fmt.Sprintf("no command for type %q", dev.Type))
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return unreachable(target, 0, err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return unreachable(target, 0, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, drainLimit)) //nolint:errcheck // body content is ignored

	if resp.StatusCode != http.StatusOK {
		return unreachable(target, resp.StatusCode, errors.New(resp.Status))
	}
	return DispatchResult{Outcome: OutcomeOK, URL: target, StatusCode: resp.StatusCode}
}

// commandURL builds the controller URL for the device type.
func (d *Dispatcher) commandURL(dev *device.Device, on bool, params Params) (string, bool) {
	var path string
	query := url.Values{}

	switch {
	case dev.Type.IsLighting():
		path = "/led" + strconv.Itoa(LEDIndex(dev.Name))
		query.Set("state", bit(on))
	case dev.Type == device.TypeFan:
		speed := 0
		if on {
			speed = d.defaultFanSpeed
			if v, ok := params.Int(device.KeySpeed); ok && v > 0 {
				speed = v
			}
		}
		path = "/fan"
		query.Set("speed", strconv.Itoa(speed))
	case dev.Type == device.TypeDoor:
		path = "/door"
		query.Set("action", pick(on, "open", "close"))
	case dev.Type == device.TypeDryer, dev.Type == device.TypeAC:
		path = "/dry"
		query.Set("action", pick(on, device.StateOut, device.StateIn))
	default:
		return "", false
	}

	u := url.URL{Scheme: "http", Host: dev.Address, Path: path, RawQuery: query.Encode()}
	return u.String(), true
}

// LEDIndex picks the LED channel a lighting device is wired to: channel 2
// for names mentioning "2" or the bedroom ("ngủ"/"ngu"), otherwise 1.
func LEDIndex(name string) int {
	lower := strings.ToLower(name)
	if strings.Contains(lower, "2") || strings.Contains(lower, "ngủ") || strings.Contains(lower, "ngu") {
		return 2
	}
	return 1
}

func bit(on bool) string {
	return pick(on, "1", "0")
}

func pick(on bool, yes, no string) string {
	if on {
		return yes
	}
	return no
}
