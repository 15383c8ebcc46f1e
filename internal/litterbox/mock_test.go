package litterbox

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/nerrad567/gray-logic-litterbox/internal/cloud"
)

// mockAPI is a scriptable DeviceAPI.
type mockAPI struct {
	mu sync.Mutex

	connectErr error
	getErr     error
	setErr     error
	listErr    error

	props   cloud.Properties
	devices []cloud.Device

	connectCalls int
	getCalls     int
	listCalls    int
	setCalls     []map[string]any
}

func newMockAPI() *mockAPI {
	return &mockAPI{props: validProps(1700000000000)}
}

func (m *mockAPI) Connect(context.Context, cloud.Credentials) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectCalls++
	return m.connectErr
}

func (m *mockAPI) GetProperties(context.Context, string) (cloud.Properties, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.props, nil
}

func (m *mockAPI) SetProperties(_ context.Context, _ string, items map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.setCalls = append(m.setCalls, items)
	return nil
}

func (m *mockAPI) ListDevices(context.Context, int, int) ([]cloud.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	return m.devices, m.listErr
}

func (m *mockAPI) LitterBoxes(ctx context.Context) ([]cloud.Device, error) {
	devices, err := m.ListDevices(ctx, 1, 20)
	if err != nil {
		return nil, err
	}
	var out []cloud.Device
	for _, d := range devices {
		if d.CategoryKey == cloud.LitterBoxCategory {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *mockAPI) update(fn func(m *mockAPI)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m)
}

func num(v string) json.Number { return json.Number(v) }

func valueOf(v any) map[string]any { return map[string]any{"value": v} }

// validProps returns a property map as decoded from the cloud, with
// json.Number leaves.
func validProps(lastUsage int64) cloud.Properties {
	usage, _ := json.Marshal(lastUsage)
	return cloud.Properties{
		"ExcreteTimes":    map[string]any{"value": num("3"), "time": json.Number(usage)},
		"workstatus":      valueOf(num("1")),
		"UpLidStatus":     valueOf(num("0")),
		"DrawerSatus":     valueOf(num("1")),
		"FullStatus":      valueOf(num("1")),
		"ErrStatus":       valueOf(num("4")),
		"AutoClean":       valueOf(num("1")),
		"DeepClean":       valueOf(num("0")),
		"SmallCatMode":    valueOf(num("0")),
		"LightSwitch":     valueOf(num("1")),
		"SoftwareVersion": valueOf("1.2.3"),
	}
}

// fakeUsage counts UsageEvents calls.
type fakeUsage struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeUsage) UsageEvents(context.Context, string, int) ([]UsageEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []UsageEvent{{WorkStatus: 1}}, nil
}

func (f *fakeUsage) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
