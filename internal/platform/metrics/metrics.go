package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus collectors for the annotation engine.
type Metrics struct {
	registry               *prometheus.Registry
	requestsTotal          prometheus.Counter
	errorsTotal            prometheus.Counter
	syncCorrectionsTotal   prometheus.Counter
	syncDriftSeconds       prometheus.Histogram
	bufferReloadsTotal     prometheus.Counter
	segmentsCreatedTotal   prometheus.Counter
	segmentsDeletedTotal   prometheus.Counter
	streamsActive          prometheus.Gauge
	notifyClientsConnected prometheus.Gauge
}

// New creates and registers the engine's Prometheus collectors on a
// private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "annotator_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "annotator_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	syncCorrectionsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "annotator_sync_corrections_total",
		Help: "Total number of corrective seeks issued to follower streams",
	})
	syncDriftSeconds := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "annotator_sync_drift_seconds",
		Help:    "Observed follower drift against the master at correction time",
		Buckets: []float64{0.1, 0.2, 0.5, 1, 2, 5},
	})
	bufferReloadsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "annotator_buffer_reloads_total",
		Help: "Total number of stream source reloads forced to trim buffer",
	})
	segmentsCreatedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "annotator_segments_created_total",
		Help: "Total number of segments created through the engine",
	})
	segmentsDeletedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "annotator_segments_deleted_total",
		Help: "Total number of segments deleted through the engine",
	})
	streamsActive := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "annotator_streams_active",
		Help: "Number of streams mounted in the active stream group",
	})
	notifyClientsConnected := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "annotator_notify_clients_connected",
		Help: "Number of UI clients connected to the notification hub",
	})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		syncCorrectionsTotal,
		syncDriftSeconds,
		bufferReloadsTotal,
		segmentsCreatedTotal,
		segmentsDeletedTotal,
		streamsActive,
		notifyClientsConnected,
	)

	return &Metrics{
		registry:               registry,
		requestsTotal:          requestsTotal,
		errorsTotal:            errorsTotal,
		syncCorrectionsTotal:   syncCorrectionsTotal,
		syncDriftSeconds:       syncDriftSeconds,
		bufferReloadsTotal:     bufferReloadsTotal,
		segmentsCreatedTotal:   segmentsCreatedTotal,
		segmentsDeletedTotal:   segmentsDeletedTotal,
		streamsActive:          streamsActive,
		notifyClientsConnected: notifyClientsConnected,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// IncSyncCorrections counts one corrective seek.
func (m *Metrics) IncSyncCorrections() {
	m.syncCorrectionsTotal.Inc()
}

// ObserveDrift records a follower's drift at correction time.
func (m *Metrics) ObserveDrift(seconds float64) {
	m.syncDriftSeconds.Observe(seconds)
}

// IncBufferReloads counts one forced source reload.
func (m *Metrics) IncBufferReloads() {
	m.bufferReloadsTotal.Inc()
}

// IncSegmentsCreated counts one created segment.
func (m *Metrics) IncSegmentsCreated() {
	m.segmentsCreatedTotal.Inc()
}

// IncSegmentsDeleted counts one deleted segment.
func (m *Metrics) IncSegmentsDeleted() {
	m.segmentsDeletedTotal.Inc()
}

// SetStreamsActive sets the mounted stream gauge.
func (m *Metrics) SetStreamsActive(n int) {
	m.streamsActive.Set(float64(n))
}

// SetNotifyClients sets the connected UI client gauge.
func (m *Metrics) SetNotifyClients(n int) {
	m.notifyClientsConnected.Set(float64(n))
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
