package metrics

import (
	"database/sql"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricPrefix = "helprelay_"

// Mesh ingest results.
const (
	ResultFresh        = "fresh"
	ResultDeduped      = "deduped"
	ResultUnhandled    = "unhandled"
	ResultUnauthorized = "unauthorized"
)

// Metrics owns a private registry so several relays can run in one
// process (tests do).
type Metrics struct {
	registry *prometheus.Registry

	meshFrames      *prometheus.CounterVec
	meshLatency     *prometheus.HistogramVec
	transitions     *prometheus.CounterVec
	operatorRejects *prometheus.CounterVec
	gatewayPosts    *prometheus.CounterVec
	probes          prometheus.Counter
	probeResponders prometheus.Histogram
	mailSent        *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		meshFrames: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "mesh_frames_total",
				Help: "Inbound mesh frames by type and result",
			},
			[]string{"type", "result"},
		),
		meshLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "mesh_latency_seconds",
				Help:    "Time to apply one inbound mesh frame",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "request_transitions_total",
				Help: "Committed help request transitions by target status",
			},
			[]string{"status"},
		),
		operatorRejects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "operator_rejections_total",
				Help: "Operator actions rejected by precondition",
			},
			[]string{"action", "reason"},
		),
		gatewayPosts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "gateway_posts_total",
				Help: "Outbound gateway posts by result",
			},
			[]string{"result"},
		),
		probes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "probes_total",
				Help: "Liveness probes broadcast",
			},
		),
		probeResponders: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "probe_responders",
				Help:    "Devices answering each liveness probe",
				Buckets: prometheus.LinearBuckets(0, 5, 7),
			},
		),
		mailSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "mail_sent_total",
				Help: "Mailbox audio messages queued by source",
			},
			[]string{"source"},
		),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.meshFrames,
		m.meshLatency,
		m.transitions,
		m.operatorRejects,
		m.gatewayPosts,
		m.probes,
		m.probeResponders,
		m.mailSent,
	)
	return m
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveMesh records one inbound mesh frame.
func (m *Metrics) ObserveMesh(frameType, result string, duration time.Duration) {
	if frameType == "" {
		frameType = "unknown"
	}
	m.meshFrames.WithLabelValues(frameType, result).Inc()
	m.meshLatency.WithLabelValues(result).Observe(duration.Seconds())
}

func (m *Metrics) IncTransition(status string) {
	m.transitions.WithLabelValues(status).Inc()
}

func (m *Metrics) IncOperatorReject(action, reason string) {
	if reason == "" {
		reason = "unknown"
	}
	m.operatorRejects.WithLabelValues(action, reason).Inc()
}

// IncGatewayPost counts one delivery attempt. A nil err counts as success.
func (m *Metrics) IncGatewayPost(err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	m.gatewayPosts.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveProbe(responders int) {
	m.probes.Inc()
	m.probeResponders.Observe(float64(responders))
}

func (m *Metrics) IncMail(source string) {
	m.mailSent.WithLabelValues(source).Inc()
}

// RegisterRequestGauges exposes live request counts per status.
func (m *Metrics) RegisterRequestGauges(statuses []string, counts func() map[string]int) {
	for _, status := range statuses {
		status := status
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name:        metricPrefix + "requests",
				Help:        "Help requests currently in each status",
				ConstLabels: prometheus.Labels{"status": status},
			},
			func() float64 { return float64(counts()[status]) },
		))
	}
}

// RegisterDeviceGauges exposes registry size and online count.
func (m *Metrics) RegisterDeviceGauges(online, total func() int) {
	m.registry.MustRegister(
		prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: metricPrefix + "devices_online",
				Help: "Registered devices currently online",
			},
			func() float64 { return float64(online()) },
		),
		prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: metricPrefix + "devices_registered",
				Help: "Devices that have sent at least one beacon",
			},
			func() float64 { return float64(total()) },
		),
	)
}

// RegisterOutboxGauge exposes the number of unsent outbox rows.
func (m *Metrics) RegisterOutboxGauge(db *sql.DB, query string) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "outbox_pending",
			Help: "Pending outbox records",
		},
		func() float64 { return queryCount(db, query) },
	))
}

func queryCount(db *sql.DB, query string) float64 {
	if db == nil {
		return 0
	}
	var count int64
	if err := db.QueryRow(query).Scan(&count); err != nil {
		log.Printf("metrics: query failed: %v", err)
		return 0
	}
	if count < 0 {
		return 0
	}
	return float64(count)
}
