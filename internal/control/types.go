package control

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/nerrad567/gray-logic-home/internal/device"
)

// Intent is the requested on/off change.
type Intent string

// Recognised intents.
const (
	IntentOn     Intent = "on"
	IntentOff    Intent = "off"
	IntentToggle Intent = "toggle"
)

// Valid reports whether the intent is one of on, off or toggle.
func (i Intent) Valid() bool {
	switch i {
	case IntentOn, IntentOff, IntentToggle:
		return true
	}
	return false
}

// Resolve turns the intent into the target is_on value given the recorded one.
func (i Intent) Resolve(current bool) bool {
	switch i {
	case IntentOn:
		return true
	case IntentOff:
		return false
	default:
		return !current
	}
}

// IntentFor returns the explicit intent for a target state.
func IntentFor(on bool) Intent {
	if on {
		return IntentOn
	}
	return IntentOff
}

// Params carries optional command parameters such as speed, brightness or
// color. Values usually arrive decoded from JSON.
type Params map[string]any

// Int returns the parameter as an int. Floats must be whole numbers.
func (p Params) Int(key string) (int, bool) {
	switch v := p[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, false
		}
		return int(n), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// Float returns the parameter as a float64.
func (p Params) Float(key string) (float64, bool) {
	switch v := p[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// String returns the parameter as a non-empty string.
func (p Params) String(key string) (string, bool) {
	v, ok := p[key].(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// Outcome classifies a wire command.
type Outcome string

// Dispatch outcomes. Unsupported is a soft success.
const (
	OutcomeOK          Outcome = "ok"
	OutcomeUnreachable Outcome = "unreachable"
	OutcomeUnsupported Outcome = "unsupported"
)

// DispatchResult describes one wire command attempt.
type DispatchResult struct {
	Outcome    Outcome `json:"outcome"`
	URL        string  `json:"url,omitempty"`
	StatusCode int     `json:"status_code,omitempty"`
	Error      string  `json:"error,omitempty"`

	// Err wraps ErrUnreachable or ErrUnsupported with the cause.
	Err error `json:"-"`
}

// Delivered reports whether the controller acknowledged the command.
func (r DispatchResult) Delivered() bool {
	return r.Outcome == OutcomeOK
}

func unsupported(reason string) DispatchResult {
	err := fmt.Errorf("%w: %s", ErrUnsupported, reason)
	return DispatchResult{Outcome: OutcomeUnsupported, Error: err.Error(), Err: err}
}

func unreachable(target string, status int, cause error) DispatchResult {
	err := fmt.Errorf("%w: %w", ErrUnreachable, cause)
	return DispatchResult{
		Outcome:    OutcomeUnreachable,
		URL:        target,
		StatusCode: status,
		Error:      err.Error(),
		Err:        err,
	}
}

// Request is one state change to apply to a device.
type Request struct {
	DeviceID string
	Intent   Intent
	Params   Params
	UserID   string
	Source   string

	// Action overrides the logged action name; it defaults to the
	// resolved intent ("on" or "off").
	Action string

	// Patch is merged after the per-type control defaults.
	Patch device.StatusPatch

	// Observed marks a change already made on the hardware: no command is
	// sent and no control defaults are applied.
	Observed bool
}

// Result reports an applied request.
type Result struct {
	Device   *device.Device  `json:"device"`
	Previous *device.Device  `json:"-"`
	Changed  bool            `json:"changed"`
	Action   string          `json:"action"`
	Dispatch *DispatchResult `json:"dispatch,omitempty"`
}
