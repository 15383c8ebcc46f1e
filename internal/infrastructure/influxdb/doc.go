// Package influxdb exports litter box telemetry to InfluxDB v2.
//
// It wraps the official influxdb-client-go v2 non-blocking write API:
// points are batched and flushed in the background, and write failures are
// delivered to the callback registered with SetOnError.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry export switched off
//	}
//	defer client.Close()
//
//	client.WriteState("a1b2c3", map[string]any{"work_status": 0}, time.Now())
//
// Measurements:
//   - litterbox_state: one point per published snapshot, tagged iot_id
//   - litterbox_event: refresh failures and commands, tagged iot_id and event
package influxdb
