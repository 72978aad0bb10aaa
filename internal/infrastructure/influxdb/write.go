package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by this package.
const (
	MeasurementUsage   = "device_usage"
	MeasurementClimate = "climate"
)

// UsagePoint describes one billed usage session.
type UsagePoint struct {
	DeviceID   string
	DeviceType string
	Minutes    int
	EnergyKWh  float64
	Cost       float64
	EndedAt    time.Time
}

// ClimatePoint is a temperature/humidity reading reported by a controller.
// Nil fields were not part of the report.
type ClimatePoint struct {
	DeviceID    string
	Temperature *float64
	Humidity    *float64
	At          time.Time
}

// WriteUsage records a closed, billed usage session.
//
// Example:
//
//	client.WriteUsage(influxdb.UsagePoint{
//	    DeviceID: "fan-01", DeviceType: "fan",
//	    Minutes: 90, EnergyKWh: 0.075, Cost: 225, EndedAt: time.Now(),
//	})
func (c *Client) WriteUsage(p UsagePoint) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(usagePoint(p))
}

// WriteClimate records a temperature/humidity reading. Readings with
// neither value are dropped.
func (c *Client) WriteClimate(p ClimatePoint) {
	if !c.IsConnected() {
		return
	}
	point := climatePoint(p)
	if point == nil {
		return
	}
	c.writeAPI.WritePoint(point)
}

func usagePoint(p UsagePoint) *write.Point {
	return write.NewPoint(
		MeasurementUsage,
		map[string]string{
			"device_id":   p.DeviceID,
			"device_type": p.DeviceType,
		},
		map[string]interface{}{
			"minutes":    p.Minutes,
			"energy_kwh": p.EnergyKWh,
			"cost":       p.Cost,
		},
		p.EndedAt,
	)
}

func climatePoint(p ClimatePoint) *write.Point {
	fields := make(map[string]interface{}, 2)
	if p.Temperature != nil {
		fields["temperature_c"] = *p.Temperature
	}
	if p.Humidity != nil {
		fields["humidity_pct"] = *p.Humidity
	}
	if len(fields) == 0 {
		return nil
	}
	return write.NewPoint(
		MeasurementClimate,
		map[string]string{"device_id": p.DeviceID},
		fields,
		p.At,
	)
}
