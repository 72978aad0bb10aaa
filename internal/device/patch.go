package device

import "time"

// StatusPatch is a typed partial update to a device's Status.
//
// Each variant only emits the keys it has values for, so applying a patch
// never clears keys it does not know about.
type StatusPatch interface {
	Status() Status
}

// Status keys written by the typed patches.
const (
	KeyState               = "state"
	KeyValue               = "value"
	KeyBrightness          = "brightness"
	KeyColor               = "color"
	KeySpeed               = "speed"
	KeyMode                = "mode"
	KeyTemperature         = "temperature"
	KeyHumidity            = "humidity"
	KeyPosition            = "position"
	KeyLastUpdated         = "last_updated"
	KeyLastScheduledAction = "last_scheduled_action"
	KeyLastScheduledTime   = "last_scheduled_time"
)

// Values of the state key.
const (
	StateOn     = "on"
	StateOff    = "off"
	StateOpen   = "open"
	StateClosed = "closed"
	StateOut    = "out"
	StateIn     = "in"
)

// OnOff maps a boolean to StateOn/StateOff.
func OnOff(on bool) string {
	if on {
		return StateOn
	}
	return StateOff
}

// LightPatch updates a light or LED strip.
type LightPatch struct {
	State      string
	Value      any
	Brightness *int
	Color      string
}

func (p LightPatch) Status() Status {
	s := Status{}
	setString(s, KeyState, p.State)
	if p.Value != nil {
		s[KeyValue] = p.Value
	}
	if p.Brightness != nil {
		s[KeyBrightness] = *p.Brightness
	}
	setString(s, KeyColor, p.Color)
	return s
}

// FanPatch updates a fan.
type FanPatch struct {
	Speed *int
	Mode  string
	State string
}

func (p FanPatch) Status() Status {
	s := Status{}
	if p.Speed != nil {
		s[KeySpeed] = *p.Speed
	}
	setString(s, KeyMode, p.Mode)
	setString(s, KeyState, p.State)
	return s
}

// ACPatch updates an air conditioner. Temperature is the set point.
type ACPatch struct {
	Temperature *float64
	Mode        string
	Position    *float64
	State       string
}

func (p ACPatch) Status() Status {
	s := Status{}
	if p.Temperature != nil {
		s[KeyTemperature] = *p.Temperature
	}
	setString(s, KeyMode, p.Mode)
	if p.Position != nil {
		s[KeyPosition] = *p.Position
	}
	setString(s, KeyState, p.State)
	return s
}

// DoorPatch updates a door actuator.
type DoorPatch struct {
	State string
	Value any
}

func (p DoorPatch) Status() Status {
	s := Status{}
	setString(s, KeyState, p.State)
	if p.Value != nil {
		s[KeyValue] = p.Value
	}
	return s
}

// DryerPatch updates a clothes-rack dryer.
type DryerPatch struct {
	Position *float64
	State    string
}

func (p DryerPatch) Status() Status {
	s := Status{}
	if p.Position != nil {
		s[KeyPosition] = *p.Position
	}
	setString(s, KeyState, p.State)
	return s
}

// ReadingPatch carries environment readings reported alongside device state.
type ReadingPatch struct {
	Temperature *float64
	Humidity    *float64
	LastUpdated time.Time
}

func (p ReadingPatch) Status() Status {
	s := Status{}
	if p.Temperature != nil {
		s[KeyTemperature] = *p.Temperature
	}
	if p.Humidity != nil {
		s[KeyHumidity] = *p.Humidity
	}
	if !p.LastUpdated.IsZero() {
		s[KeyLastUpdated] = p.LastUpdated.UTC().Format(time.RFC3339)
	}
	return s
}

// ScheduleStampPatch records the last action a schedule performed.
type ScheduleStampPatch struct {
	Action string
	At     time.Time
}

func (p ScheduleStampPatch) Status() Status {
	s := Status{}
	setString(s, KeyLastScheduledAction, p.Action)
	if !p.At.IsZero() {
		s[KeyLastScheduledTime] = p.At.UTC().Format(time.RFC3339)
	}
	return s
}

// RawPatch passes an untyped status through, for callers that received the
// patch over the API.
type RawPatch Status

func (p RawPatch) Status() Status {
	return Status(p).Clone()
}

// Patches applies several patches in order; later patches win on shared keys.
type Patches []StatusPatch

func (ps Patches) Status() Status {
	s := Status{}
	for _, p := range ps {
		if p == nil {
			continue
		}
		for k, v := range p.Status() {
			s[k] = v
		}
	}
	return s
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int { return &v }

// FloatPtr returns a pointer to v.
func FloatPtr(v float64) *float64 { return &v }

func setString(s Status, key, value string) {
	if value != "" {
		s[key] = value
	}
}
