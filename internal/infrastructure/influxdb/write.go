package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteSensorReading records one sensor measurement for a device.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Example:
//
//	client.WriteSensorReading("dev-garage", "temperature_c", 21.5)
//	client.WriteSensorReading("dev-garage", "humidity_pct", 48.0)
func (c *Client) WriteSensorReading(deviceID, sensor string, value float64) {
	c.WritePoint(
		"sensor_readings",
		map[string]string{
			"device_id": deviceID,
			"sensor":    sensor,
		},
		map[string]interface{}{
			"value": value,
		},
	)
}

// WriteRelayState records a relay transition so switching history can be
// charted alongside sensor data.
func (c *Client) WriteRelayState(deviceID string, relayIndex int, state bool) {
	value := 0.0
	if state {
		value = 1.0
	}

	c.WritePoint(
		"relay_states",
		map[string]string{
			"device_id": deviceID,
			"relay":     strconv.Itoa(relayIndex),
		},
		map[string]interface{}{
			"state": value,
		},
	)
}

// WritePoint writes a custom point stamped with the current time.
//
// Tags are indexed and should stay low-cardinality; fields hold the data.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a custom point with a specific timestamp.
// Use when the timestamp is not "now", such as replayed telemetry.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
