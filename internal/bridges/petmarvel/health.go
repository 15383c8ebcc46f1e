package petmarvel

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-litterbox/internal/cloud"
	"github.com/nerrad567/gray-logic-litterbox/internal/infrastructure/mqtt"
)

const defaultHealthInterval = 30 * time.Second

// HealthPublisher is the interface for publishing health messages.
type HealthPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// SessionStats exposes the cloud session's state. Satisfied by *cloud.Session.
type SessionStats interface {
	Connected() bool
	Phase() cloud.Phase
	Handshakes() int64
}

// CommandListener reports whether commands are being received. Satisfied by
// *Bridge.
type CommandListener interface {
	Listening() bool
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	Version string

	// Interval is how often to publish. Default: 30 seconds.
	Interval time.Duration

	Publisher  HealthPublisher
	Session    SessionStats
	Controller Controller
	// Commands is optional.
	Commands CommandListener

	Now func() time.Time
}

// HealthReporter publishes bridge health on a ticker.
type HealthReporter struct {
	version   string
	interval  time.Duration
	publisher HealthPublisher
	session   SessionStats
	ctrl      Controller
	commands  CommandListener
	now       func() time.Time
	startTime time.Time

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// NewHealthReporter creates a reporter. Call Start to begin publishing.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultHealthInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &HealthReporter{
		version:   cfg.Version,
		interval:  cfg.Interval,
		publisher: cfg.Publisher,
		session:   cfg.Session,
		ctrl:      cfg.Controller,
		commands:  cfg.Commands,
		now:       cfg.Now,
		startTime: cfg.Now(),
		done:      make(chan struct{}),
	}
}

// Start publishes immediately and then every interval.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop ends reporting and publishes a final stopping status.
// Safe to call multiple times.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		//nolint:errcheck // Best-effort during shutdown
		h.publish(HealthStopping, "bridge stopping")
	})
}

// SetLogger sets the logger for this reporter.
func (h *HealthReporter) SetLogger(logger Logger) {
	h.loggerMu.Lock()
	h.logger = logger
	h.loggerMu.Unlock()
}

// PublishStarting publishes a "starting" status.
func (h *HealthReporter) PublishStarting() error {
	return h.publish(HealthStarting, "bridge starting")
}

// PublishNow publishes the current health immediately.
func (h *HealthReporter) PublishNow() error {
	status, reason := h.determineStatus()
	return h.publish(status, reason)
}

// Snapshot builds the current health message without publishing it.
func (h *HealthReporter) Snapshot() HealthMessage {
	status, reason := h.determineStatus()
	return h.message(status, reason)
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	if err := h.PublishNow(); err != nil {
		h.logError("failed to publish initial health", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil {
				h.logError("failed to publish health", err)
			}
		}
	}
}

func (h *HealthReporter) determineStatus() (HealthStatus, string) {
	if h.publisher == nil || !h.publisher.IsConnected() {
		return HealthDegraded, "MQTT disconnected"
	}
	if h.commands != nil && !h.commands.Listening() {
		return HealthDegraded, "command topic not subscribed"
	}
	if h.session != nil && !h.session.Connected() {
		return HealthDegraded, "cloud session not connected"
	}
	if h.ctrl != nil {
		if st := h.ctrl.Status(); !st.Available {
			if st.LastError != "" {
				return HealthDegraded, st.LastError
			}
			return HealthDegraded, "no device data yet"
		}
	}
	return HealthHealthy, ""
}

func (h *HealthReporter) message(status HealthStatus, reason string) HealthMessage {
	now := h.now()
	msg := HealthMessage{
		Bridge:        Protocol,
		Timestamp:     now.UTC(),
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(now.Sub(h.startTime).Seconds()),
		Reason:        reason,
	}
	if h.session != nil {
		msg.Cloud = &CloudStatus{
			Connected:  h.session.Connected(),
			Phase:      h.session.Phase().String(),
			Handshakes: h.session.Handshakes(),
		}
	}
	if h.ctrl != nil {
		st := h.ctrl.Status()
		msg.Device = &st
	}
	return msg
}

func (h *HealthReporter) publish(status HealthStatus, reason string) error {
	if h.publisher == nil {
		return nil
	}
	payload, err := json.Marshal(h.message(status, reason))
	if err != nil {
		return err
	}
	return h.publisher.Publish(mqtt.Topics{}.BridgeHealth(Protocol), payload, qosAtLeastOnce, true)
}

func (h *HealthReporter) logError(msg string, err error) {
	h.loggerMu.RLock()
	logger := h.logger
	h.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
