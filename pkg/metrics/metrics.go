package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jakechorley/shelter-shifts/pkg/core/model"
	"github.com/jakechorley/shelter-shifts/pkg/core/policy"
)

const namespace = "shelter"

// Metrics holds the collectors for assignment activity and the HTTP surface.
// It satisfies services.Recorder.
type Metrics struct {
	registry *prometheus.Registry

	decisions  *prometheus.CounterVec
	writes     *prometheus.CounterVec
	rejections *prometheus.CounterVec
	requests   *prometheus.CounterVec
	latency    *prometheus.HistogramVec
}

// New registers the collectors on a fresh registry, plus the Go and process collectors
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "toggle_decisions_total",
			Help:      "Capacity policy decisions for self-service toggles.",
		}, []string{"decision"}),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assignment_writes_total",
			Help:      "Assignment writes by intent, origin and result.",
		}, []string{"intent", "admin", "result"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assignment_rejections_total",
			Help:      "Assignment actions rejected before reaching the store.",
		}, []string{"reason"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	reg.MustRegister(
		m.decisions, m.writes, m.rejections, m.requests, m.latency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Decision(d policy.Decision) {
	m.decisions.WithLabelValues(d.String()).Inc()
}

func (m *Metrics) Write(intent model.Intent, admin bool, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.writes.WithLabelValues(string(intent), strconv.FormatBool(admin), result).Inc()
}

func (m *Metrics) Rejection(reason string) {
	m.rejections.WithLabelValues(reason).Inc()
}

// ObserveRequest records one HTTP request
func (m *Metrics) ObserveRequest(route string, code int, elapsed time.Duration) {
	m.requests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.latency.WithLabelValues(route).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, e.g. for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
