package reconcile

import (
	"strconv"
	"time"

	"github.com/nerrad567/gray-logic-home/internal/control"
	"github.com/nerrad567/gray-logic-home/internal/device"
)

// Report keys sent by the controller firmware.
const (
	KeyFan         = "FAN"
	KeyDoor        = "DOOR"
	KeyDry         = "DRY"
	KeyTemperature = "TEMP"
	KeyHumidity    = "HUM"
)

// DefaultDryThreshold is the DRY reading above which a dryer rack is out.
const DefaultDryThreshold = 40

// Report is a decoded status reply.
type Report map[string]any

// LEDKey returns the report key for LED channel n.
func LEDKey(n int) string {
	return "LED" + strconv.Itoa(n)
}

// Number returns key as a float64. Booleans read as 0 or 1.
func (r Report) Number(key string) (float64, bool) {
	switch v := r[key].(type) {
	case float64:
		return v, true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// Truthy reports whether key is present and holds a non-zero, non-empty value.
func (r Report) Truthy(key string) (value, present bool) {
	raw, ok := r[key]
	if !ok {
		return false, false
	}
	switch v := raw.(type) {
	case nil:
		return false, true
	case bool:
		return v, true
	case float64:
		return v != 0, true
	case string:
		return v != "", true
	}
	return true, true
}

// Climate extracts TEMP and HUM. Both are nil when not reported.
func (r Report) Climate() (temperature, humidity *float64) {
	if v, ok := r.Number(KeyTemperature); ok {
		temperature = &v
	}
	if v, ok := r.Number(KeyHumidity); ok {
		humidity = &v
	}
	return temperature, humidity
}

// Readings returns the report's TEMP and HUM that are valid status values
// for type t. A reading outside the type's range (a disconnected sensor
// reports -127) is dropped so it cannot block the on/off change.
func Readings(t device.Type, r Report) (temperature, humidity *float64) {
	temperature, humidity = r.Climate()
	if temperature != nil && device.ValidateStatus(t, device.Status{device.KeyTemperature: *temperature}) != nil {
		temperature = nil
	}
	if humidity != nil && device.ValidateStatus(t, device.Status{device.KeyHumidity: *humidity}) != nil {
		humidity = nil
	}
	return temperature, humidity
}

// Observation is what a report says about one device.
type Observation struct {
	IsOn  bool
	Patch device.StatusPatch
}

// Observe maps a report onto d. It returns false when the report carries
// nothing for d's type.
func Observe(d *device.Device, r Report, dryThreshold float64, now time.Time) (Observation, bool) {
	var (
		on    bool
		patch device.StatusPatch
	)

	switch {
	case d.Type.IsLighting():
		key := LEDKey(control.LEDIndex(d.Name))
		v, ok := r.Truthy(key)
		if !ok {
			return Observation{}, false
		}
		on = v
		patch = device.LightPatch{State: device.OnOff(on), Value: r[key]}

	case d.Type == device.TypeFan:
		v, ok := r.Number(KeyFan)
		if !ok {
			return Observation{}, false
		}
		on = v > 0
		speed := int(v)
		patch = device.FanPatch{Speed: &speed, State: device.OnOff(on)}

	case d.Type == device.TypeDoor:
		v, ok := r.Truthy(KeyDoor)
		if !ok {
			return Observation{}, false
		}
		on = v
		patch = device.DoorPatch{State: pickState(on, device.StateOpen, device.StateClosed), Value: r[KeyDoor]}

	case d.Type == device.TypeDryer, d.Type == device.TypeAC:
		v, ok := r.Number(KeyDry)
		if !ok {
			return Observation{}, false
		}
		on = v > dryThreshold
		state := pickState(on, device.StateOut, device.StateIn)
		if d.Type == device.TypeAC {
			patch = device.ACPatch{Position: &v, State: state}
		} else {
			patch = device.DryerPatch{Position: &v, State: state}
		}

	default:
		return Observation{}, false
	}

	patches := device.Patches{patch}
	if temp, hum := Readings(d.Type, r); temp != nil || hum != nil {
		patches = append(patches, device.ReadingPatch{Temperature: temp, Humidity: hum, LastUpdated: now})
	}
	return Observation{IsOn: on, Patch: patches}, true
}

func pickState(on bool, yes, no string) string {
	if on {
		return yes
	}
	return no
}
