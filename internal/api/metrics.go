package api

import (
	"database/sql"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/gray-logic-litterbox/internal/bridges/petmarvel"
	"github.com/nerrad567/gray-logic-litterbox/internal/litterbox"
)

// metricsNamespace prefixes every exported metric.
const metricsNamespace = "litterbox"

// SessionStats exposes the cloud session for metrics. Satisfied by
// *cloud.Session.
type SessionStats interface {
	Connected() bool
	Handshakes() int64
}

// BridgeStats exposes MQTT bridge counters. Satisfied by *petmarvel.Bridge.
type BridgeStats interface {
	Stats() petmarvel.Stats
}

// metrics holds the server's Prometheus registry. Each Server has its own
// registry so several servers can coexist in one process.
type metrics struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
}

func newMetrics(s *Server, session SessionStats, bridge BridgeStats, db *sql.DB) *metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		&deviceCollector{ctrl: s.ctrl},
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "websocket_clients",
			Help:      "Connected WebSocket clients.",
		}, func() float64 { return float64(s.hub.ClientCount()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "websocket_dropped_messages_total",
			Help:      "WebSocket messages discarded because a client queue was full.",
		}, func() float64 { return float64(s.hub.Dropped()) }),
	)

	m := &metrics{
		registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern, method and status code.",
		}, []string{"route", "method", "code"}),
	}
	reg.MustRegister(m.requests)

	if session != nil {
		reg.MustRegister(
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "cloud_connected",
				Help:      "1 when the vendor cloud session holds an iot token.",
			}, func() float64 { return boolGauge(session.Connected()) }),
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "cloud_handshakes_total",
				Help:      "Completed vendor cloud login handshakes.",
			}, func() float64 { return float64(session.Handshakes()) }),
		)
	}

	if bridge != nil {
		counter := func(name, help string, read func(petmarvel.Stats) uint64) prometheus.Collector {
			return prometheus.NewCounterFunc(prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "bridge",
				Name:      name,
				Help:      help,
			}, func() float64 { return float64(read(bridge.Stats())) })
		}
		reg.MustRegister(
			counter("commands_received_total", "MQTT commands received.",
				func(st petmarvel.Stats) uint64 { return st.CommandsReceived }),
			counter("messages_sent_total", "MQTT messages published.",
				func(st petmarvel.Stats) uint64 { return st.MessagesSent }),
			counter("errors_total", "Bridge publish and command errors.",
				func(st petmarvel.Stats) uint64 { return st.Errors }),
		)
	}

	if db != nil {
		reg.MustRegister(collectors.NewDBStatsCollector(db, "history"))
	}

	return m
}

// observe records one completed request.
func (m *metrics) observe(r *http.Request, status int) {
	route := "unmatched"
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			route = p
		}
	}
	m.requests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
}

// handler serves the registry in the Prometheus exposition format.
func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

var (
	descUp = prometheus.NewDesc(
		prometheus.BuildFQName(metricsNamespace, "", "up"),
		"1 when the last refresh succeeded.",
		[]string{"iot_id"}, nil)
	descFailures = prometheus.NewDesc(
		prometheus.BuildFQName(metricsNamespace, "", "consecutive_failures"),
		"Refresh failures since the last success.",
		[]string{"iot_id"}, nil)
	descLastUpdate = prometheus.NewDesc(
		prometheus.BuildFQName(metricsNamespace, "", "last_update_timestamp_seconds"),
		"Time of the last successful refresh.",
		[]string{"iot_id"}, nil)
	descWorkStatus = prometheus.NewDesc(
		prometheus.BuildFQName(metricsNamespace, "", "work_status"),
		"Raw work status code of the last snapshot.",
		[]string{"iot_id"}, nil)
	descErrorStatus = prometheus.NewDesc(
		prometheus.BuildFQName(metricsNamespace, "", "error_status"),
		"Raw error status code of the last snapshot.",
		[]string{"iot_id"}, nil)
	descBinFull = prometheus.NewDesc(
		prometheus.BuildFQName(metricsNamespace, "", "bin_full"),
		"1 when the waste bin reports full.",
		[]string{"iot_id"}, nil)
	descLastUsage = prometheus.NewDesc(
		prometheus.BuildFQName(metricsNamespace, "", "last_usage_timestamp_seconds"),
		"Time of the last recorded visit.",
		[]string{"iot_id"}, nil)
)

// deviceCollector reads controller state at scrape time. Snapshot metrics
// are omitted until the first successful refresh.
type deviceCollector struct {
	ctrl Controller
}

func (c *deviceCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{descUp, descFailures, descLastUpdate, descWorkStatus, descErrorStatus, descBinFull, descLastUsage} {
		ch <- d
	}
}

func (c *deviceCollector) Collect(ch chan<- prometheus.Metric) {
	id := c.ctrl.IoTID()
	st := c.ctrl.Status()

	ch <- prometheus.MustNewConstMetric(descUp, prometheus.GaugeValue, boolGauge(st.Available), id)
	ch <- prometheus.MustNewConstMetric(descFailures, prometheus.GaugeValue, float64(st.Failures), id)
	if !st.LastUpdate.IsZero() {
		ch <- prometheus.MustNewConstMetric(descLastUpdate, prometheus.GaugeValue, float64(st.LastUpdate.Unix()), id)
	}

	snap, ok := c.ctrl.Snapshot()
	if !ok {
		return
	}
	collectSnapshot(ch, id, snap)
}

func collectSnapshot(ch chan<- prometheus.Metric, id string, snap litterbox.Snapshot) {
	ch <- prometheus.MustNewConstMetric(descWorkStatus, prometheus.GaugeValue, float64(snap.WorkStatus), id)
	ch <- prometheus.MustNewConstMetric(descErrorStatus, prometheus.GaugeValue, float64(snap.ErrorStatus), id)
	ch <- prometheus.MustNewConstMetric(descBinFull, prometheus.GaugeValue, boolGauge(snap.FullStatus), id)
	if t := snap.LastUsageTime(); !t.IsZero() {
		ch <- prometheus.MustNewConstMetric(descLastUsage, prometheus.GaugeValue, float64(t.Unix()), id)
	}
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
