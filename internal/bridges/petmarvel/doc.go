// Package petmarvel bridges a PetMarvel litter box onto the Gray Logic MQTT bus.
//
// # Architecture
//
//	┌─────────────────┐          ┌─────────────────┐  HTTPS   ┌────────────────┐
//	│   Gray Logic    │   MQTT   │ PetMarvel Bridge│◄────────►│ PetMarvel cloud│
//	│      Core       │◄────────►│   (this pkg)    │          └────────────────┘
//	└─────────────────┘          └─────────────────┘
//
// The bridge listens to a litterbox.Controller and:
//   - publishes every snapshot as retained entity state on
//     graylogic/state/petmarvel/{iotId}
//   - republishes the last state as unavailable when a refresh fails
//   - executes turn_on, turn_off, press and refresh commands received on
//     graylogic/command/petmarvel/{iotId} and acknowledges them on
//     graylogic/ack/petmarvel/{iotId}
//   - reports bridge health on graylogic/health/petmarvel
//   - optionally forwards snapshots and failures to a Telemetry sink
//
// Command payload:
//
//	{"id": "c0ffee", "command": "turn_on", "entity": "auto_clean"}
package petmarvel
