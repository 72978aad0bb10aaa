package device

import "time"

// Type is the declared kind of a device. It selects the wire command, the
// status schema and the power rate.
type Type string

// Supported device types.
const (
	TypeLight  Type = "light"
	TypeLED    Type = "led"
	TypeFan    Type = "fan"
	TypeAC     Type = "ac"
	TypeSocket Type = "socket"
	TypeDoor   Type = "door"
	TypeDryer  Type = "dryer"
	TypeSensor Type = "sensor"
)

// AllTypes lists every valid device type.
var AllTypes = []Type{
	TypeLight, TypeLED, TypeFan, TypeAC, TypeSocket, TypeDoor, TypeDryer, TypeSensor,
}

// IsLighting reports whether the type is driven through the LED endpoints.
func (t Type) IsLighting() bool {
	return t == TypeLight || t == TypeLED
}

// Room is the area of the home a device is installed in.
type Room string

// Known rooms. An empty Room means unassigned.
const (
	RoomLivingRoom Room = "living_room"
	RoomBedroom    Room = "bedroom"
	RoomKitchen    Room = "kitchen"
	RoomBathroom   Room = "bathroom"
	RoomOutside    Room = "outside"
	RoomCorridor   Room = "corridor"
)

// AllRooms lists every valid room.
var AllRooms = []Room{
	RoomLivingRoom, RoomBedroom, RoomKitchen, RoomBathroom, RoomOutside, RoomCorridor,
}

// Status is the free-form, type-dependent state document of a device.
//
// Common keys by type:
//   - light/led: state ("on"|"off"), brightness (0-100), color ("#rrggbb"), value
//   - fan: speed, mode, state
//   - ac: temperature, mode, position, state
//   - door: state ("open"|"closed"), value
//   - dryer: position, state ("out"|"in")
//
// Any type may also carry temperature, humidity, last_updated,
// last_scheduled_action and last_scheduled_time.
type Status map[string]any

// Clone returns a deep copy of the status.
func (s Status) Clone() Status {
	if s == nil {
		return nil
	}
	return Status(deepCopyMap(s))
}

// Merge returns a copy of s with every key of patch applied on top.
// Keys absent from patch are preserved.
func (s Status) Merge(patch Status) Status {
	merged := make(Status, len(s)+len(patch))
	for k, v := range s {
		merged[k] = deepCopyValue(v)
	}
	for k, v := range patch {
		merged[k] = deepCopyValue(v)
	}
	return merged
}

// Device is a controllable or observable piece of hardware in the home.
type Device struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	DeviceCode  *string   `json:"device_code,omitempty"`
	Type        Type      `json:"type"`
	Room        Room      `json:"room,omitempty"`
	Address     string    `json:"address,omitempty"`
	IsOn        bool      `json:"is_on"`
	Status      Status    `json:"status"`
	IsOnline    bool      `json:"is_online"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// HasHardware reports whether the device has a network address to talk to.
// Devices without one are virtual and never dispatched to or polled.
func (d *Device) HasHardware() bool {
	return d.Address != ""
}

// DeepCopy creates an independent copy of the Device.
// Modifying the copy's status map does not affect the original.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}

	cpy := *d
	cpy.Status = d.Status.Clone()
	if d.DeviceCode != nil {
		code := *d.DeviceCode
		cpy.DeviceCode = &code
	}
	return &cpy
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

// deepCopyValue recursively copies nested maps and slices.
func deepCopyValue(v any) any {
	switch val := v.(type) {
	case Status:
		return deepCopyMap(val)
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = deepCopyValue(elem)
		}
		return cpy
	default:
		return v
	}
}
