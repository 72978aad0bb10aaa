package usage

import "time"

// DateLayout is the format of DailyStatistic.Date.
const DateLayout = "2006-01-02"

// Reasons a session was closed.
const (
	CloseBilled  = "billed"
	CloseAnomaly = "anomaly"
	CloseStale   = "stale"
)

// Session is one on-period of a device. EndTime is nil while open.
type Session struct {
	ID              string     `json:"id"`
	DeviceID        string     `json:"device_id"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	DurationMinutes int        `json:"duration_minutes"`
	CloseReason     string     `json:"close_reason,omitempty"`
}

// IsOpen reports whether the session has not been closed.
func (s *Session) IsOpen() bool {
	return s.EndTime == nil
}

// Charge is the billed outcome of a closed session.
type Charge struct {
	Minutes   int     `json:"minutes"`
	EnergyKWh float64 `json:"energy_kwh"`
	Cost      float64 `json:"cost"`
}

// DailyStatistic aggregates one device's usage over one site-local day.
type DailyStatistic struct {
	DeviceID          string  `json:"device_id"`
	Date              string  `json:"date"`
	TurnOnCount       int     `json:"turn_on_count"`
	TotalUsageMinutes int     `json:"total_usage_minutes"`
	PowerConsumption  float64 `json:"power_consumption"`
	Cost              float64 `json:"cost"`
}

// DeviceSummary totals a device's statistics over a date range.
type DeviceSummary struct {
	DeviceID          string  `json:"device_id"`
	DeviceName        string  `json:"device_name"`
	DeviceType        string  `json:"device_type"`
	TurnOnCount       int     `json:"turn_on_count"`
	TotalUsageMinutes int     `json:"total_usage_minutes"`
	PowerConsumption  float64 `json:"power_consumption"`
	Cost              float64 `json:"cost"`
}

// Summary is the overall usage report for a date range.
type Summary struct {
	From              string          `json:"from"`
	To                string          `json:"to"`
	Devices           []DeviceSummary `json:"devices"`
	TotalUsageMinutes int             `json:"total_usage_minutes"`
	PowerConsumption  float64         `json:"power_consumption"`
	Cost              float64         `json:"cost"`
}

// OpenSession is a session still running, with a cost estimate so far.
type OpenSession struct {
	Session
	DeviceName     string  `json:"device_name"`
	DeviceType     string  `json:"device_type"`
	RunningMinutes int     `json:"running_minutes"`
	EstimatedKWh   float64 `json:"estimated_kwh"`
	EstimatedCost  float64 `json:"estimated_cost"`
}
