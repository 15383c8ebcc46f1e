package api

import (
	"net/http"
	"strings"
	"testing"

	"github.com/nerrad567/gray-logic-litterbox/internal/bridges/petmarvel"
)

type fakeSessionStats struct{}

func (fakeSessionStats) Connected() bool   { return true }
func (fakeSessionStats) Handshakes() int64 { return 3 }

type fakeBridgeStats struct{}

func (fakeBridgeStats) Stats() petmarvel.Stats {
	return petmarvel.Stats{CommandsReceived: 4, MessagesSent: 9, Errors: 1}
}

func scrape(t *testing.T, env *testEnv) string {
	t.Helper()
	w := env.do(t, http.MethodGet, "/api/v1/metrics", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status = %d, want %d", w.Code, http.StatusOK)
	}
	return w.Body.String()
}

func TestMetrics_Device(t *testing.T) {
	env := testServer(t)

	body := scrape(t, env)
	if !strings.Contains(body, `litterbox_up{iot_id="iot-1"} 0`) {
		t.Errorf("metrics should report device down before the first refresh:\n%s", body)
	}
	if strings.Contains(body, "litterbox_work_status") {
		t.Error("snapshot metrics should be omitted without a snapshot")
	}

	env.refresh(t)

	body = scrape(t, env)
	for _, want := range []string{
		`litterbox_up{iot_id="iot-1"} 1`,
		`litterbox_consecutive_failures{iot_id="iot-1"} 0`,
		`litterbox_work_status{iot_id="iot-1"} 1`,
		"litterbox_websocket_clients 0",
		"litterbox_websocket_dropped_messages_total 0",
		"go_goroutines",
		`go_sql_open_connections{db_name="history"}`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestMetrics_RequestCounter(t *testing.T) {
	env := testServer(t)

	env.do(t, http.MethodGet, "/api/v1/health", "", "")
	env.do(t, http.MethodGet, "/api/v1/litterbox/", "", "")

	body := scrape(t, env)
	for _, want := range []string{
		`litterbox_http_requests_total{code="200",method="GET",route="/api/v1/health"} 1`,
		`litterbox_http_requests_total{code="401",method="GET",route="/api/v1/litterbox`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q:\n%s", want, body)
		}
	}
}

func TestMetrics_OptionalSources(t *testing.T) {
	env := testServer(t)
	env.srv.metrics = newMetrics(env.srv, fakeSessionStats{}, fakeBridgeStats{}, nil)
	env.router = env.srv.buildRouter()

	body := scrape(t, env)
	for _, want := range []string{
		"litterbox_cloud_connected 1",
		"litterbox_cloud_handshakes_total 3",
		"litterbox_bridge_commands_received_total 4",
		"litterbox_bridge_messages_sent_total 9",
		"litterbox_bridge_errors_total 1",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
	if strings.Contains(body, "go_sql_open_connections") {
		t.Error("db stats should be omitted without a database")
	}
}
