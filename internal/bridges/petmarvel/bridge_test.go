package petmarvel

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/nerrad567/gray-logic-litterbox/internal/cloud"
	"github.com/nerrad567/gray-logic-litterbox/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-litterbox/internal/litterbox"
)

var (
	stateTopic   = mqtt.Topics{}.BridgeState(Protocol, testIoTID)
	commandTopic = mqtt.Topics{}.BridgeCommand(Protocol, testIoTID)
	ackTopic     = mqtt.Topics{}.BridgeAck(Protocol, testIoTID)
)

func startBridge(t *testing.T, api *fakeCloud, tel Telemetry) (*Bridge, *litterbox.Controller, *mockMQTT) {
	t.Helper()
	ctrl := newTestController(api)
	client := newMockMQTT()
	b, err := NewBridge(Options{Controller: ctrl, MQTT: client, Telemetry: tel})
	if err != nil {
		t.Fatalf("NewBridge() error = %v", err)
	}
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(b.Stop)
	return b, ctrl, client
}

func TestNewBridge_RequiresDependencies(t *testing.T) {
	if _, err := NewBridge(Options{MQTT: newMockMQTT()}); err == nil {
		t.Error("NewBridge() without controller should fail")
	}
	if _, err := NewBridge(Options{Controller: newTestController(newFakeCloud())}); err == nil {
		t.Error("NewBridge() without mqtt should fail")
	}
}

func TestStart_Twice(t *testing.T) {
	b, _, _ := startBridge(t, newFakeCloud(), nil)
	if err := b.Start(context.Background()); err == nil {
		t.Error("second Start() should fail")
	}
}

func TestBridge_PublishesStateOnRefresh(t *testing.T) {
	tel := &fakeTelemetry{}
	_, ctrl, client := startBridge(t, newFakeCloud(), tel)

	if _, err := ctrl.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	msgs := client.on(stateTopic)
	if len(msgs) != 1 || !msgs[0].retained {
		t.Fatalf("state messages = %d (retained=%v), want 1 retained", len(msgs), len(msgs) == 1 && msgs[0].retained)
	}
	state := decodeLast[StateMessage](t, msgs)
	if !state.Available || state.DeviceID != testIoTID || state.Protocol != Protocol {
		t.Errorf("state header = %+v", state)
	}
	if state.State["auto_clean"] != true || state.State["status"] != "idle" {
		t.Errorf("state entities = %v", state.State)
	}
	if _, ok := state.State["clean"]; ok {
		t.Error("buttons should not appear in state")
	}

	if len(tel.states) != 1 || tel.states[0]["auto_bury"] != false {
		t.Errorf("telemetry states = %v", tel.states)
	}
}

func TestBridge_FailureMarksUnavailableKeepingState(t *testing.T) {
	api := newFakeCloud()
	tel := &fakeTelemetry{}
	_, ctrl, client := startBridge(t, api, tel)

	if _, err := ctrl.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	api.mu.Lock()
	api.connectErr = cloud.ErrAuth
	api.mu.Unlock()
	if _, err := ctrl.Refresh(context.Background()); err == nil {
		t.Fatal("Refresh() expected error")
	}

	state := decodeLast[StateMessage](t, client.on(stateTopic))
	if state.Available {
		t.Error("state should be unavailable after a failed refresh")
	}
	if state.Error == "" || state.State["device_lights"] != true {
		t.Errorf("unavailable state = %+v", state)
	}
	if len(tel.events) != 1 || tel.events[0] != "refresh_failed/auth" {
		t.Errorf("telemetry events = %v", tel.events)
	}
}

func TestBridge_Commands(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		setupErr error
		wantAck  AckStatus
		wantCode string
		wantSet  map[string]any
	}{
		{
			name:    "switch on",
			payload: `{"id":"c1","command":"turn_on","entity":"small_cat_mode"}`,
			wantAck: AckAccepted,
			wantSet: map[string]any{"SmallCatMode": 1},
		},
		{
			name:    "press dump",
			payload: `{"id":"c2","command":"press","entity":"dump"}`,
			wantAck: AckAccepted,
			wantSet: map[string]any{"DeviceControl": 2},
		},
		{
			name:     "press sensor",
			payload:  `{"id":"c3","command":"press","entity":"bin_full"}`,
			wantAck:  AckFailed,
			wantCode: ErrCodeInvalidCommand,
		},
		{
			name:     "unknown entity",
			payload:  `{"id":"c4","command":"turn_on","entity":"nope"}`,
			wantAck:  AckFailed,
			wantCode: ErrCodeInvalidCommand,
		},
		{
			name:     "cloud unreachable",
			payload:  `{"id":"c5","command":"turn_off","entity":"auto_clean"}`,
			setupErr: cloud.ErrConnection,
			wantAck:  AckFailed,
			wantCode: ErrCodeCloudUnreachable,
		},
		{
			name:     "wrong device",
			payload:  `{"id":"c6","device_id":"other","command":"press","entity":"clean"}`,
			wantAck:  AckFailed,
			wantCode: ErrCodeInvalidCommand,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newFakeCloud()
			api.setErr = tt.setupErr
			_, _, client := startBridge(t, api, nil)

			if err := client.deliver(t, commandTopic, tt.payload); err != nil {
				t.Fatalf("handler error = %v", err)
			}

			msgs := client.on(ackTopic)
			if len(msgs) != 1 || msgs[0].retained {
				t.Fatalf("acks = %d, want 1 non-retained", len(msgs))
			}
			ack := decodeLast[AckMessage](t, msgs)
			if ack.Status != tt.wantAck {
				t.Errorf("ack status = %s, want %s (%+v)", ack.Status, tt.wantAck, ack.Error)
			}
			if tt.wantCode != "" && (ack.Error == nil || ack.Error.Code != tt.wantCode) {
				t.Errorf("ack error = %+v, want code %s", ack.Error, tt.wantCode)
			}
			sets := api.setCalls()
			if tt.wantSet == nil && len(sets) != 0 {
				t.Errorf("unexpected cloud writes %v", sets)
			}
			for k, v := range tt.wantSet {
				if len(sets) != 1 || sets[0][k] != v {
					t.Errorf("cloud writes = %v, want %s=%v", sets, k, v)
				}
			}
		})
	}
}

func TestBridge_CommandAssignsID(t *testing.T) {
	_, _, client := startBridge(t, newFakeCloud(), nil)

	if err := client.deliver(t, commandTopic, `{"command":"press","entity":"clean"}`); err != nil {
		t.Fatalf("handler error = %v", err)
	}
	ack := decodeLast[AckMessage](t, client.on(ackTopic))
	if ack.CommandID == "" {
		t.Error("ack should carry a generated command id")
	}
}

func TestBridge_MalformedCommand(t *testing.T) {
	b, _, client := startBridge(t, newFakeCloud(), nil)

	if err := client.deliver(t, commandTopic, `{not json`); err == nil {
		t.Error("malformed payload should return an error for logging")
	}
	ack := decodeLast[AckMessage](t, client.on(ackTopic))
	if ack.Status != AckFailed || ack.Error.Code != ErrCodeInvalidCommand {
		t.Errorf("ack = %+v", ack)
	}
	if st := b.Stats(); st.CommandsReceived != 1 || st.MessagesSent != 1 {
		t.Errorf("Stats() = %+v", st)
	}
}

func TestBridge_RefreshCommand(t *testing.T) {
	_, ctrl, client := startBridge(t, newFakeCloud(), nil)

	if err := client.deliver(t, commandTopic, `{"id":"r1","command":"refresh"}`); err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if _, ok := ctrl.Snapshot(); !ok {
		t.Error("refresh command should populate the snapshot")
	}
	if ack := decodeLast[AckMessage](t, client.on(ackTopic)); ack.Status != AckAccepted {
		t.Errorf("ack = %+v", ack)
	}
	if len(client.on(stateTopic)) != 1 {
		t.Error("refresh command should publish state")
	}
}

func TestBridge_StopIgnoresUpdates(t *testing.T) {
	b, ctrl, client := startBridge(t, newFakeCloud(), nil)
	b.Stop()

	if _, err := ctrl.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if n := len(client.on(stateTopic)); n != 0 {
		t.Errorf("state published after Stop: %d", n)
	}
}

func TestBridge_StopFlushesTelemetry(t *testing.T) {
	tel := &fakeTelemetry{}
	b, _, _ := startBridge(t, newFakeCloud(), tel)

	b.Stop()
	b.Stop()

	tel.mu.Lock()
	defer tel.mu.Unlock()
	if tel.flushes != 1 {
		t.Errorf("flushes = %d, want 1", tel.flushes)
	}
}

func TestBridge_Listening(t *testing.T) {
	client := newMockMQTT()
	b, err := NewBridge(Options{Controller: newTestController(newFakeCloud()), MQTT: client})
	if err != nil {
		t.Fatalf("NewBridge() error = %v", err)
	}
	if b.Listening() {
		t.Error("Listening() = true before Start")
	}

	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !b.Listening() {
		t.Error("Listening() = false after Start")
	}

	client.mu.Lock()
	delete(client.handlers, commandTopic)
	client.mu.Unlock()
	if b.Listening() {
		t.Error("Listening() = true without a command subscription")
	}

	b.Stop()
	if b.Listening() {
		t.Error("Listening() = true after Stop")
	}
}

// Commands arriving while Stop runs either complete before Stop returns or
// are dropped.
func TestBridge_CommandsDuringStop(t *testing.T) {
	b, _, client := startBridge(t, newFakeCloud(), nil)

	client.mu.Lock()
	handler := client.handlers[commandTopic]
	client.mu.Unlock()

	const senders = 16
	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				handler(commandTopic, []byte(`{"command":"press","entity":"clean"}`)) //nolint:errcheck // outcome checked via Stats
			}
		}()
	}

	b.Stop()
	after := b.Stats().CommandsReceived
	wg.Wait()

	if got := b.Stats().CommandsReceived; got != after {
		t.Errorf("CommandsReceived grew after Stop: %d -> %d", after, got)
	}
}

func TestBridge_PublishErrorsCounted(t *testing.T) {
	b, ctrl, client := startBridge(t, newFakeCloud(), nil)
	client.publishErr = errors.New("broker gone")

	if _, err := ctrl.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if st := b.Stats(); st.Errors != 1 {
		t.Errorf("Stats().Errors = %d, want 1", st.Errors)
	}
}

func TestAckCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{litterbox.ErrUnknownEntity, ErrCodeInvalidCommand},
		{litterbox.ErrInvalidAction, ErrCodeInvalidCommand},
		{cloud.ErrAuth, ErrCodeAuthFailed},
		{cloud.ErrConnection, ErrCodeCloudUnreachable},
		{errors.New("other"), ErrCodeBridgeError},
	}
	for _, tt := range tests {
		if got := ackCode(tt.err); got != tt.want {
			t.Errorf("ackCode(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}
