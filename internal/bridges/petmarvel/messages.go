package petmarvel

import (
	"time"

	"github.com/nerrad567/gray-logic-litterbox/internal/litterbox"
)

// Protocol is the protocol name carried in messages and topics.
const Protocol = "petmarvel"

// Commands accepted on the command topic. The first three are entity
// actions; refresh forces an immediate poll.
const (
	CommandTurnOn  = string(litterbox.ActionTurnOn)
	CommandTurnOff = string(litterbox.ActionTurnOff)
	CommandPress   = string(litterbox.ActionPress)
	CommandRefresh = "refresh"
)

// CommandMessage is received on graylogic/command/petmarvel/{iotId}.
type CommandMessage struct {
	// ID correlates the ack; generated when omitted.
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	DeviceID  string    `json:"device_id,omitempty"`
	Command   string    `json:"command"`

	// Entity is the entity key (e.g. "auto_clean", "dump"). Unused by refresh.
	Entity string `json:"entity,omitempty"`
	Source string `json:"source,omitempty"`
}

// AckStatus is the result of a command.
type AckStatus string

const (
	AckAccepted AckStatus = "accepted"
	AckFailed   AckStatus = "failed"
)

// AckMessage is published on graylogic/ack/petmarvel/{iotId}.
type AckMessage struct {
	CommandID string    `json:"command_id"`
	Timestamp time.Time `json:"timestamp"`
	DeviceID  string    `json:"device_id"`
	Command   string    `json:"command"`
	Entity    string    `json:"entity,omitempty"`
	Status    AckStatus `json:"status"`
	Protocol  string    `json:"protocol"`
	Error     *AckError `json:"error,omitempty"`
}

// AckError describes why a command failed.
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Ack error codes.
const (
	ErrCodeInvalidCommand   = "INVALID_COMMAND"
	ErrCodeAuthFailed       = "AUTH_FAILED"
	ErrCodeCloudUnreachable = "CLOUD_UNREACHABLE"
	ErrCodeBridgeError      = "BRIDGE_ERROR"
)

// StateMessage is published retained on graylogic/state/petmarvel/{iotId}.
type StateMessage struct {
	DeviceID  string         `json:"device_id"`
	Timestamp time.Time      `json:"timestamp"`
	Available bool           `json:"available"`
	State     map[string]any `json:"state,omitempty"`
	Protocol  string         `json:"protocol"`
	Error     string         `json:"error,omitempty"`
}

// HealthStatus is the bridge's overall health.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthStarting HealthStatus = "starting"
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage is published retained on graylogic/health/petmarvel.
type HealthMessage struct {
	Bridge        string            `json:"bridge"`
	Timestamp     time.Time         `json:"timestamp"`
	Status        HealthStatus      `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Cloud         *CloudStatus      `json:"cloud,omitempty"`
	Device        *litterbox.Status `json:"device,omitempty"`
	Reason        string            `json:"reason,omitempty"`
}

// CloudStatus summarises the vendor cloud session.
type CloudStatus struct {
	Connected  bool   `json:"connected"`
	Phase      string `json:"phase"`
	Handshakes int64  `json:"handshakes"`
}

func newAck(cmd CommandMessage, deviceID string, at time.Time) AckMessage {
	return AckMessage{
		CommandID: cmd.ID,
		Timestamp: at.UTC(),
		DeviceID:  deviceID,
		Command:   cmd.Command,
		Entity:    cmd.Entity,
		Status:    AckAccepted,
		Protocol:  Protocol,
	}
}

func newAckError(cmd CommandMessage, deviceID, code, message string, at time.Time) AckMessage {
	ack := newAck(cmd, deviceID, at)
	ack.Status = AckFailed
	ack.Error = &AckError{Code: code, Message: message}
	return ack
}
