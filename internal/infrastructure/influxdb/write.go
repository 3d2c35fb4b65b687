package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteSensorReading writes a single sensor value to InfluxDB.
//
// This is the primary method for exporting sensor data extracted from
// device UI state. The write is non-blocking; data is batched and sent
// asynchronously. Readings are tagged by stable device ID so history
// survives a device reconnecting under a new connection ID.
//
// Parameters:
//   - sdid: Stable device ID the reading belongs to
//   - sensorID: Sensor identifier (e.g., "battery_level", "wifi_signal")
//   - value: The numeric value to record
//
// Example:
//
//	client.WriteSensorReading(sdid, "battery_level", 87.0)
//	client.WriteSensorReading(sdid, "wifi_signal_dbm", -62.0)
func (c *Client) WriteSensorReading(sdid string, sensorID string, value float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"sensor_readings",
		map[string]string{
			"stable_device_id": sdid,
			"sensor_id":        sensorID,
		},
		map[string]interface{}{
			"value": value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit WriteSensorReading.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//
// Example:
//
//	client.WritePoint("system_stats",
//	    map[string]string{"host": "scryerd-01"},
//	    map[string]interface{}{"cpu_percent": 45.2, "memory_mb": 512})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing
//   - fields: Key-value pairs for the data
//   - timestamp: The exact time for this data point
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
