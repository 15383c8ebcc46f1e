package petmarvel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-litterbox/internal/cloud"
	"github.com/nerrad567/gray-logic-litterbox/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-litterbox/internal/litterbox"
)

const (
	// commandTimeout bounds a single command's cloud round trip.
	commandTimeout = 20 * time.Second

	qosAtLeastOnce byte = 1
)

// MQTTClient is the subset of the MQTT client the bridge uses.
// Satisfied by *mqtt.Client.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	HasSubscription(topic string) bool
	IsConnected() bool
}

// Controller is the subset of *litterbox.Controller the bridge drives.
type Controller interface {
	IoTID() string
	Snapshot() (litterbox.Snapshot, bool)
	Status() litterbox.Status
	OnUpdate(fn func(litterbox.Snapshot))
	OnFailure(fn func(error))
	Refresh(ctx context.Context) (litterbox.Snapshot, error)
	Execute(ctx context.Context, key string, action litterbox.Action) error
}

// Telemetry receives snapshots and events for time-series export.
// Satisfied by *influxdb.Client.
type Telemetry interface {
	WriteState(iotID string, fields map[string]any, at time.Time)
	WriteEvent(iotID, event, detail string, at time.Time)
	Flush()
}

// Logger is the logging interface used by the bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Options configures a Bridge.
type Options struct {
	Controller Controller
	MQTT       MQTTClient

	// Telemetry is optional.
	Telemetry Telemetry

	// Now overrides time.Now for message timestamps.
	Now func() time.Time
}

// Bridge connects one litter box controller to MQTT.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Bridge struct {
	ctrl      Controller
	mqtt      MQTTClient
	telemetry Telemetry
	now       func() time.Time
	iotID     string

	topics mqtt.Topics

	started atomic.Bool
	stopped atomic.Bool

	// cmdMu orders a command's stopped check and wg.Add against Stop.
	cmdMu sync.Mutex
	// wg tracks in-flight command handlers.
	wg sync.WaitGroup

	statsMu  sync.Mutex
	received uint64
	sent     uint64
	errors   uint64

	logger   Logger
	loggerMu sync.RWMutex
}

// Stats are message counters for health reporting.
type Stats struct {
	CommandsReceived uint64 `json:"commands_received"`
	MessagesSent     uint64 `json:"messages_sent"`
	Errors           uint64 `json:"errors"`
}

// NewBridge validates options and creates a Bridge. Call Start to begin.
func NewBridge(opts Options) (*Bridge, error) {
	if opts.Controller == nil {
		return nil, errors.New("petmarvel: controller is required")
	}
	if opts.MQTT == nil {
		return nil, errors.New("petmarvel: mqtt client is required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Bridge{
		ctrl:      opts.Controller,
		mqtt:      opts.MQTT,
		telemetry: opts.Telemetry,
		now:       opts.Now,
		iotID:     opts.Controller.IoTID(),
	}, nil
}

// Start registers controller listeners and subscribes to the command topic.
// A snapshot already held by the controller is published immediately.
func (b *Bridge) Start(ctx context.Context) error {
	if !b.started.CompareAndSwap(false, true) {
		return errors.New("petmarvel: bridge already started")
	}

	b.ctrl.OnUpdate(b.handleUpdate)
	b.ctrl.OnFailure(b.handleFailure)

	topic := b.topics.BridgeCommand(Protocol, b.iotID)
	if err := b.mqtt.Subscribe(topic, qosAtLeastOnce, func(_ string, payload []byte) error {
		return b.handleCommand(ctx, payload)
	}); err != nil {
		return fmt.Errorf("subscribing to %s: %w", topic, err)
	}

	if snap, ok := b.ctrl.Snapshot(); ok {
		b.handleUpdate(snap)
	}

	b.logInfo("petmarvel bridge started", "iot_id", b.iotID, "command_topic", topic)
	return nil
}

// Stop ignores further updates, waits for in-flight commands and flushes
// buffered telemetry.
func (b *Bridge) Stop() {
	b.cmdMu.Lock()
	first := b.stopped.CompareAndSwap(false, true)
	b.cmdMu.Unlock()
	if !first {
		return
	}

	b.wg.Wait()
	if b.telemetry != nil {
		b.telemetry.Flush()
	}
	b.logInfo("petmarvel bridge stopped", "iot_id", b.iotID)
}

// Listening reports whether the bridge is running and its command topic
// subscription is held by the MQTT client.
func (b *Bridge) Listening() bool {
	if !b.started.Load() || b.stopped.Load() {
		return false
	}
	return b.mqtt.HasSubscription(b.topics.BridgeCommand(Protocol, b.iotID))
}

// Stats returns message counters.
func (b *Bridge) Stats() Stats {
	b.statsMu.Lock()
	defer b.statsMu.Unlock()
	return Stats{CommandsReceived: b.received, MessagesSent: b.sent, Errors: b.errors}
}

func (b *Bridge) handleUpdate(snap litterbox.Snapshot) {
	if b.stopped.Load() {
		return
	}
	now := b.now()
	b.publishJSON(b.topics.BridgeState(Protocol, b.iotID), StateMessage{
		DeviceID:  b.iotID,
		Timestamp: now.UTC(),
		Available: true,
		State:     litterbox.State(snap),
		Protocol:  Protocol,
	}, true)

	if b.telemetry != nil {
		b.telemetry.WriteState(b.iotID, telemetryFields(snap), now)
	}
}

// handleFailure marks the device unavailable, keeping the last known state.
func (b *Bridge) handleFailure(err error) {
	if b.stopped.Load() {
		return
	}
	now := b.now()
	msg := StateMessage{
		DeviceID:  b.iotID,
		Timestamp: now.UTC(),
		Available: false,
		Protocol:  Protocol,
		Error:     err.Error(),
	}
	if snap, ok := b.ctrl.Snapshot(); ok {
		msg.State = litterbox.State(snap)
	}
	b.publishJSON(b.topics.BridgeState(Protocol, b.iotID), msg, true)

	if b.telemetry != nil {
		b.telemetry.WriteEvent(b.iotID, "refresh_failed", failureKind(err), now)
	}
}

func (b *Bridge) handleCommand(ctx context.Context, payload []byte) error {
	b.cmdMu.Lock()
	if b.stopped.Load() {
		b.cmdMu.Unlock()
		return nil
	}
	b.wg.Add(1)
	b.cmdMu.Unlock()
	defer b.wg.Done()

	b.statsMu.Lock()
	b.received++
	b.statsMu.Unlock()

	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.publishAck(newAckError(cmd, b.iotID, ErrCodeInvalidCommand, "malformed command payload", b.now()))
		return fmt.Errorf("decoding command: %w", err)
	}
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}
	if cmd.DeviceID != "" && cmd.DeviceID != b.iotID {
		b.publishAck(newAckError(cmd, b.iotID, ErrCodeInvalidCommand, "command addressed to another device", b.now()))
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	b.logDebug("executing command", "command_id", cmd.ID, "command", cmd.Command, "entity", cmd.Entity)

	var err error
	if cmd.Command == CommandRefresh {
		_, err = b.ctrl.Refresh(ctx)
	} else {
		err = b.ctrl.Execute(ctx, cmd.Entity, litterbox.Action(cmd.Command))
	}

	if err != nil {
		code := ackCode(err)
		b.publishAck(newAckError(cmd, b.iotID, code, err.Error(), b.now()))
		b.logWarn("command failed", "command_id", cmd.ID, "command", cmd.Command, "entity", cmd.Entity, "error", err)
		return nil
	}

	b.publishAck(newAck(cmd, b.iotID, b.now()))
	if b.telemetry != nil {
		b.telemetry.WriteEvent(b.iotID, "command", cmd.Command+":"+cmd.Entity, b.now())
	}
	return nil
}

func (b *Bridge) publishAck(ack AckMessage) {
	b.publishJSON(b.topics.BridgeAck(Protocol, b.iotID), ack, false)
}

func (b *Bridge) publishJSON(topic string, v any, retained bool) {
	payload, err := json.Marshal(v)
	if err == nil {
		err = b.mqtt.Publish(topic, payload, qosAtLeastOnce, retained)
	}

	b.statsMu.Lock()
	if err != nil {
		b.errors++
	} else {
		b.sent++
	}
	b.statsMu.Unlock()

	if err != nil {
		b.logError("publish failed", "topic", topic, "error", err)
	}
}

// ackCode maps a command error onto an ack error code.
func ackCode(err error) string {
	switch {
	case errors.Is(err, litterbox.ErrUnknownEntity),
		errors.Is(err, litterbox.ErrInvalidAction),
		errors.Is(err, litterbox.ErrUnknownService),
		errors.Is(err, litterbox.ErrUnknownProperty):
		return ErrCodeInvalidCommand
	case errors.Is(err, cloud.ErrAuth):
		return ErrCodeAuthFailed
	case errors.Is(err, cloud.ErrConnection):
		return ErrCodeCloudUnreachable
	default:
		return ErrCodeBridgeError
	}
}

// failureKind names the cause of a refresh failure for telemetry.
func failureKind(err error) string {
	switch {
	case errors.Is(err, cloud.ErrAuth):
		return "auth"
	case errors.Is(err, cloud.ErrConnection):
		return "connection"
	case errors.Is(err, litterbox.ErrDecode):
		return "decode"
	default:
		return "unknown"
	}
}

// telemetryFields flattens a snapshot into numeric and boolean fields.
func telemetryFields(s litterbox.Snapshot) map[string]any {
	return map[string]any{
		"work_status":    s.WorkStatus,
		"error_status":   s.ErrorStatus,
		"lid_installed":  s.UpLidStatus,
		"bin_inserted":   s.DrawerStatus,
		"bin_full":       s.FullStatus,
		"last_usage":     s.LastUsage,
		"auto_clean":     s.AutoClean,
		"auto_bury":      s.DeepClean,
		"small_cat_mode": s.SmallCatMode,
		"device_lights":  s.LightSwitch,
	}
}

// SetLogger sets the logger for this bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()
}

func (b *Bridge) getLogger() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

func (b *Bridge) logDebug(msg string, args ...any) {
	if l := b.getLogger(); l != nil {
		l.Debug(msg, args...)
	}
}

func (b *Bridge) logInfo(msg string, args ...any) {
	if l := b.getLogger(); l != nil {
		l.Info(msg, args...)
	}
}

func (b *Bridge) logWarn(msg string, args ...any) {
	if l := b.getLogger(); l != nil {
		l.Warn(msg, args...)
	}
}

func (b *Bridge) logError(msg string, args ...any) {
	if l := b.getLogger(); l != nil {
		l.Error(msg, args...)
	}
}
