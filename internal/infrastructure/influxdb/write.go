package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementState = "litterbox_state"
	MeasurementEvent = "litterbox_event"
)

// WriteState records one snapshot of a device. Non-blocking.
//
// Parameters:
//   - iotID: Device identifier, stored as the iot_id tag
//   - fields: Decoded values (ints, bools, strings)
//   - at: Observation time
func (c *Client) WriteState(iotID string, fields map[string]any, at time.Time) {
	if len(fields) == 0 {
		return
	}
	c.WritePoint(MeasurementState, map[string]string{"iot_id": iotID}, fields, at)
}

// WriteEvent records a discrete event such as a failed refresh or a command.
//
// Example:
//
//	client.WriteEvent("a1b2c3", "refresh_failed", "connection", time.Now())
func (c *Client) WriteEvent(iotID, event, detail string, at time.Time) {
	fields := map[string]any{"count": 1}
	if detail != "" {
		fields["detail"] = detail
	}
	c.WritePoint(MeasurementEvent, map[string]string{"iot_id": iotID, "event": event}, fields, at)
}

// WritePoint writes a custom point. Dropped silently when disconnected.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, at))
}
