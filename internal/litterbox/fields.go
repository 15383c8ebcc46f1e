package litterbox

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/nerrad567/gray-logic-litterbox/internal/cloud"
)

// field describes how one Snapshot field is read from the property map.
type field struct {
	name   string
	path   []string
	decode func(v any, s *Snapshot) error
}

func valuePath(key string) []string { return []string{key, "value"} }

// fields is the decode table. Keys are the vendor's property identifiers,
// including its DrawerSatus spelling.
var fields = []field{
	{name: "last_usage", path: []string{"ExcreteTimes", "time"}, decode: asInt64(func(s *Snapshot, v int64) { s.LastUsage = v })},
	{name: "work_status", path: valuePath("workstatus"), decode: asInt(func(s *Snapshot, v int) { s.WorkStatus = v })},
	{name: "up_lid_status", path: valuePath("UpLidStatus"), decode: asInt(func(s *Snapshot, v int) { s.UpLidStatus = v == 0 })},
	{name: "drawer_status", path: valuePath("DrawerSatus"), decode: asInt(func(s *Snapshot, v int) { s.DrawerStatus = v == 0 })},
	{name: "full_status", path: valuePath("FullStatus"), decode: asInt(func(s *Snapshot, v int) { s.FullStatus = v == 1 })},
	{name: "error_status", path: valuePath("ErrStatus"), decode: asInt(func(s *Snapshot, v int) { s.ErrorStatus = v })},
	{name: "auto_clean", path: valuePath("AutoClean"), decode: asInt(func(s *Snapshot, v int) { s.AutoClean = v == 1 })},
	{name: "deep_clean", path: valuePath("DeepClean"), decode: asInt(func(s *Snapshot, v int) { s.DeepClean = v == 1 })},
	{name: "small_cat_mode", path: valuePath("SmallCatMode"), decode: asInt(func(s *Snapshot, v int) { s.SmallCatMode = v == 1 })},
	{name: "light_switch", path: valuePath("LightSwitch"), decode: asInt(func(s *Snapshot, v int) { s.LightSwitch = v == 1 })},
	{name: "software_version", path: valuePath("SoftwareVersion"), decode: asString(func(s *Snapshot, v string) { s.SoftwareVersion = v })},
}

// Decode builds a Snapshot from a raw property map.
//
// Returns:
//   - Snapshot: Fully populated snapshot
//   - error: ErrDecode naming the first missing or mis-typed field
func Decode(props cloud.Properties) (Snapshot, error) {
	var s Snapshot
	for _, f := range fields {
		v, err := lookup(props, f.path)
		if err != nil {
			return Snapshot{}, fmt.Errorf("%w: %s: %w", ErrDecode, f.name, err)
		}
		if err := f.decode(v, &s); err != nil {
			return Snapshot{}, fmt.Errorf("%w: %s: %w", ErrDecode, f.name, err)
		}
	}
	return s, nil
}

func lookup(props map[string]any, path []string) (any, error) {
	var cur any = props
	for i, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%v is not an object", path[:i])
		}
		v, ok := m[key]
		if !ok || v == nil {
			return nil, fmt.Errorf("missing %v", path[:i+1])
		}
		cur = v
	}
	return cur, nil
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
		f, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", n)
		}
		return floatToInt(f)
	case float64:
		return floatToInt(n)
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", n)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}

func floatToInt(f float64) (int64, error) {
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("not an integer: %v", f)
	}
	return int64(f), nil
}

func asInt64(set func(*Snapshot, int64)) func(any, *Snapshot) error {
	return func(v any, s *Snapshot) error {
		n, err := toInt64(v)
		if err != nil {
			return err
		}
		set(s, n)
		return nil
	}
}

func asInt(set func(*Snapshot, int)) func(any, *Snapshot) error {
	return asInt64(func(s *Snapshot, n int64) { set(s, int(n)) })
}

func asString(set func(*Snapshot, string)) func(any, *Snapshot) error {
	return func(v any, s *Snapshot) error {
		switch t := v.(type) {
		case string:
			set(s, t)
		case json.Number:
			set(s, t.String())
		default:
			return fmt.Errorf("unexpected type %T", v)
		}
		return nil
	}
}
