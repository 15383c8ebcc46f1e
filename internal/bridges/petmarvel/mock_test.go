package petmarvel

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-litterbox/internal/cloud"
	"github.com/nerrad567/gray-logic-litterbox/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-litterbox/internal/litterbox"
)

const testIoTID = "iot-1"

type published struct {
	topic    string
	payload  []byte
	retained bool
}

// mockMQTT records publishes and keeps subscription handlers.
type mockMQTT struct {
	mu         sync.Mutex
	connected  bool
	publishErr error
	messages   []published
	handlers   map[string]mqtt.MessageHandler
}

func newMockMQTT() *mockMQTT {
	return &mockMQTT{connected: true, handlers: make(map[string]mqtt.MessageHandler)}
}

func (m *mockMQTT) Publish(topic string, payload []byte, _ byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	m.messages = append(m.messages, published{topic: topic, payload: payload, retained: retained})
	return nil
}

func (m *mockMQTT) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[topic] = handler
	return nil
}

func (m *mockMQTT) HasSubscription(topic string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.handlers[topic]
	return ok
}

func (m *mockMQTT) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *mockMQTT) deliver(t *testing.T, topic string, payload string) error {
	t.Helper()
	m.mu.Lock()
	h, ok := m.handlers[topic]
	m.mu.Unlock()
	if !ok {
		t.Fatalf("no subscription for %s", topic)
	}
	return h(topic, []byte(payload))
}

func (m *mockMQTT) on(topic string) []published {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []published
	for _, p := range m.messages {
		if p.topic == topic {
			out = append(out, p)
		}
	}
	return out
}

func decodeLast[T any](t *testing.T, msgs []published) T {
	t.Helper()
	var v T
	if len(msgs) == 0 {
		t.Fatal("no messages published")
	}
	if err := json.Unmarshal(msgs[len(msgs)-1].payload, &v); err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
	return v
}

// fakeCloud is a scriptable litterbox.DeviceAPI.
type fakeCloud struct {
	mu         sync.Mutex
	connectErr error
	getErr     error
	setErr     error
	props      cloud.Properties
	sets       []map[string]any
}

func newFakeCloud() *fakeCloud {
	return &fakeCloud{props: cloud.Properties{
		"ExcreteTimes":    map[string]any{"time": 1700000000000},
		"workstatus":      map[string]any{"value": 0},
		"UpLidStatus":     map[string]any{"value": 0},
		"DrawerSatus":     map[string]any{"value": 0},
		"FullStatus":      map[string]any{"value": 0},
		"ErrStatus":       map[string]any{"value": 0},
		"AutoClean":       map[string]any{"value": 1},
		"DeepClean":       map[string]any{"value": 0},
		"SmallCatMode":    map[string]any{"value": 0},
		"LightSwitch":     map[string]any{"value": 1},
		"SoftwareVersion": map[string]any{"value": "1.0.7"},
	}}
}

func (f *fakeCloud) Connect(context.Context, cloud.Credentials) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connectErr
}

func (f *fakeCloud) GetProperties(context.Context, string) (cloud.Properties, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.props, f.getErr
}

func (f *fakeCloud) SetProperties(_ context.Context, _ string, items map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	f.sets = append(f.sets, items)
	return nil
}

func (f *fakeCloud) ListDevices(context.Context, int, int) ([]cloud.Device, error) {
	return nil, nil
}

func (f *fakeCloud) setCalls() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any(nil), f.sets...)
}

func newTestController(api litterbox.DeviceAPI) *litterbox.Controller {
	cfg := litterbox.DefaultConfig(testIoTID, cloud.Credentials{Country: "GB", Account: "a", Password: "p"})
	return litterbox.NewController(api, cfg)
}

// fakeTelemetry records writes.
type fakeTelemetry struct {
	mu      sync.Mutex
	states  []map[string]any
	events  []string
	flushes int
}

func (f *fakeTelemetry) Flush() {
	f.mu.Lock()
	f.flushes++
	f.mu.Unlock()
}

func (f *fakeTelemetry) WriteState(_ string, fields map[string]any, _ time.Time) {
	f.mu.Lock()
	f.states = append(f.states, fields)
	f.mu.Unlock()
}

func (f *fakeTelemetry) WriteEvent(_ string, event, detail string, _ time.Time) {
	f.mu.Lock()
	f.events = append(f.events, event+"/"+detail)
	f.mu.Unlock()
}

type fakeSession struct {
	connected  bool
	phase      cloud.Phase
	handshakes int64
}

func (s fakeSession) Connected() bool    { return s.connected }
func (s fakeSession) Phase() cloud.Phase { return s.phase }
func (s fakeSession) Handshakes() int64  { return s.handshakes }
