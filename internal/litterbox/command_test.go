package litterbox

import (
	"context"
	"errors"
	"testing"
)

func TestExecute(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		action  Action
		wantErr error
		wantSet map[string]any
	}{
		{name: "switch on", key: "auto_bury", action: ActionTurnOn, wantSet: map[string]any{"DeepClean": 1}},
		{name: "switch off", key: "device_lights", action: ActionTurnOff, wantSet: map[string]any{"LightSwitch": 0}},
		{name: "press clean", key: "clean", action: ActionPress, wantSet: map[string]any{"DeviceControl": 0}},
		{name: "press dump", key: "dump", action: ActionPress, wantSet: map[string]any{"DeviceControl": 2}},
		{name: "press switch", key: "auto_clean", action: ActionPress, wantErr: ErrInvalidAction},
		{name: "turn on button", key: "level", action: ActionTurnOn, wantErr: ErrInvalidAction},
		{name: "sensor", key: "bin_full", action: ActionTurnOn, wantErr: ErrInvalidAction},
		{name: "unknown", key: "litter_level", action: ActionPress, wantErr: ErrUnknownEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newMockAPI()
			c, _ := newTestController(api, nil)

			err := c.Execute(context.Background(), tt.key, tt.action)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Execute() error = %v, want %v", err, tt.wantErr)
				}
				if len(api.setCalls) != 0 || api.connectCalls != 0 {
					t.Errorf("rejected action reached the cloud: set=%v connect=%d", api.setCalls, api.connectCalls)
				}
				return
			}
			if err != nil {
				t.Fatalf("Execute() error = %v", err)
			}
			if len(api.setCalls) != 1 {
				t.Fatalf("set calls = %v, want 1", api.setCalls)
			}
			for k, v := range tt.wantSet {
				if api.setCalls[0][k] != v {
					t.Errorf("set %s = %v, want %v", k, api.setCalls[0][k], v)
				}
			}
		})
	}
}
