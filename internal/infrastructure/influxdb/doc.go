// Package influxdb writes usage and climate telemetry to InfluxDB v2.
//
// It wraps the official influxdb-client-go library. Two measurements are
// produced:
//   - device_usage: one point per billed usage session (minutes, kWh, cost)
//   - climate: temperature and humidity readings reported by controllers
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry is optional
//	}
//	defer client.Close()
//
//	client.WriteUsage(influxdb.UsagePoint{DeviceID: "fan-01", Minutes: 90})
//
// Writes are non-blocking and batched according to batch_size and
// flush_interval. Asynchronous failures are delivered to the SetOnError
// callback wrapped in ErrWriteFailed. A nil or closed *Client drops writes
// silently.
package influxdb
