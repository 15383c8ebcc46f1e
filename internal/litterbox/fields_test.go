package litterbox

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestDecode_AllFields(t *testing.T) {
	snap, err := Decode(validProps(1700000000123))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	want := Snapshot{
		WorkStatus:      1,
		UpLidStatus:     true,
		DrawerStatus:    false,
		FullStatus:      true,
		LastUsage:       1700000000123,
		ErrorStatus:     4,
		AutoClean:       true,
		DeepClean:       false,
		SmallCatMode:    false,
		LightSwitch:     true,
		SoftwareVersion: "1.2.3",
	}
	if snap != want {
		t.Errorf("Decode() = %+v, want %+v", snap, want)
	}
}

func TestDecode_LastUsageReadsTimeNotValue(t *testing.T) {
	props := validProps(42)
	props["ExcreteTimes"] = map[string]any{"value": num("9")}

	_, err := Decode(props)
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("Decode() error = %v, want ErrDecode", err)
	}
	if !strings.Contains(err.Error(), "last_usage") {
		t.Errorf("Decode() error = %v, want last_usage named", err)
	}
}

func TestDecode_MissingFieldFailsWholeDecode(t *testing.T) {
	keys := []string{"ExcreteTimes", "workstatus", "UpLidStatus", "DrawerSatus", "FullStatus",
		"ErrStatus", "AutoClean", "DeepClean", "SmallCatMode", "LightSwitch", "SoftwareVersion"}

	for _, key := range keys {
		t.Run(key, func(t *testing.T) {
			props := validProps(1)
			delete(props, key)

			snap, err := Decode(props)
			if !errors.Is(err, ErrDecode) {
				t.Fatalf("Decode() without %s error = %v, want ErrDecode", key, err)
			}
			if snap != (Snapshot{}) {
				t.Errorf("Decode() returned partial snapshot %+v", snap)
			}
		})
	}
}

func TestDecode_WrongShapes(t *testing.T) {
	tests := map[string]any{
		"not an object":   num("1"),
		"value is string": valueOf("open"),
		"value is float":  valueOf(num("1.5")),
		"value is null":   valueOf(nil),
	}

	for name, v := range tests {
		t.Run(name, func(t *testing.T) {
			props := validProps(1)
			props["workstatus"] = v
			if _, err := Decode(props); !errors.Is(err, ErrDecode) {
				t.Errorf("Decode() error = %v, want ErrDecode", err)
			}
		})
	}
}

func TestDecode_AcceptsPlainNumbers(t *testing.T) {
	props := validProps(1)
	props["workstatus"] = valueOf(float64(7))
	props["SoftwareVersion"] = valueOf(json.Number("105"))

	snap, err := Decode(props)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if snap.WorkStatus != 7 || snap.SoftwareVersion != "105" {
		t.Errorf("Decode() = %+v", snap)
	}
}

func TestSnapshot_Labels(t *testing.T) {
	tests := []struct {
		code     int
		wantWork any
		wantErr  any
	}{
		{code: 0, wantWork: "idle", wantErr: "normal"},
		{code: 5, wantWork: "resetting", wantErr: "weight_high"},
		{code: 9, wantWork: "cat_entering", wantErr: 9},
		{code: 12, wantWork: 12, wantErr: 12},
	}

	for _, tt := range tests {
		s := Snapshot{WorkStatus: tt.code, ErrorStatus: tt.code}
		if got := s.WorkStatusLabel(); got != tt.wantWork {
			t.Errorf("WorkStatusLabel(%d) = %v, want %v", tt.code, got, tt.wantWork)
		}
		if got := s.ErrorStatusLabel(); got != tt.wantErr {
			t.Errorf("ErrorStatusLabel(%d) = %v, want %v", tt.code, got, tt.wantErr)
		}
	}
}

func TestState_RendersEntities(t *testing.T) {
	snap, err := Decode(validProps(1700000000000))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	state := State(snap)
	if state["status"] != "cleaning" {
		t.Errorf("status = %v, want cleaning", state["status"])
	}
	if state["error_status"] != "weight_abnormal" {
		t.Errorf("error_status = %v, want weight_abnormal", state["error_status"])
	}
	if state["lid_installed"] != true || state["bin_inserted"] != false || state["bin_full"] != true {
		t.Errorf("binary sensors = %v/%v/%v", state["lid_installed"], state["bin_inserted"], state["bin_full"])
	}
	if state["auto_bury"] != false || state["device_lights"] != true {
		t.Errorf("switches = auto_bury:%v device_lights:%v", state["auto_bury"], state["device_lights"])
	}
	if _, ok := state["clean"]; ok {
		t.Error("buttons should not appear in state")
	}
	if state["last_usage"] != snap.LastUsageTime() {
		t.Errorf("last_usage = %v, want %v", state["last_usage"], snap.LastUsageTime())
	}

	if State(Snapshot{})["last_usage"] != nil {
		t.Error("last_usage should be nil when never used")
	}
}

func TestLookupEntity(t *testing.T) {
	e, ok := LookupEntity("auto_bury")
	if !ok || e.Property != DeepClean || e.Kind != KindSwitch {
		t.Errorf("LookupEntity(auto_bury) = %+v, %v", e, ok)
	}
	e, ok = LookupEntity("dump")
	if !ok || e.Service != ServiceDump || e.EnabledByDefault {
		t.Errorf("LookupEntity(dump) = %+v, %v", e, ok)
	}
	if _, ok := LookupEntity("nope"); ok {
		t.Error("LookupEntity(nope) found an entity")
	}
}

func TestParseProperty(t *testing.T) {
	for _, key := range []string{"AutoClean", "DeepClean", "SmallCatMode", "LightSwitch", "DeviceControl"} {
		if _, err := ParseProperty(key); err != nil {
			t.Errorf("ParseProperty(%q) error = %v", key, err)
		}
	}
	if _, err := ParseProperty("workstatus"); !errors.Is(err, ErrUnknownProperty) {
		t.Errorf("ParseProperty(workstatus) error = %v, want ErrUnknownProperty", err)
	}
	if DeviceControl.IsSwitch() || !LightSwitch.IsSwitch() {
		t.Error("IsSwitch() misclassified DeviceControl or LightSwitch")
	}
}
