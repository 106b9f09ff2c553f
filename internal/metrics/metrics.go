// Package metrics holds the Prometheus collectors for publishing runs and the API.
package metrics

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Publish outcome labels
const (
	OutcomeInserted     = "inserted"
	OutcomeSkipped      = "skipped"
	OutcomeUnclassified = "unclassified"
	OutcomeFailed       = "failed"
)

// Metrics owns a private registry so tests and runs never share global state.
type Metrics struct {
	registry *prometheus.Registry

	publishTotal    *prometheus.CounterVec
	inventoryFiles  *prometheus.GaugeVec
	inventoryCached *prometheus.GaugeVec
	runDuration     *prometheus.GaugeVec
	lastRun         *prometheus.GaugeVec

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// New registers every collector on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		publishTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fileevent_publish_total",
			Help: "Publish attempts by data file type and outcome",
		}, []string{"data_file_type", "outcome"}),
		inventoryFiles: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fileevent_inventory_files",
			Help: "Files in the inventory snapshot used by the last run",
		}, []string{"data_file_type"}),
		inventoryCached: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fileevent_inventory_from_cache",
			Help: "1 when the last run reused the cached inventory, 0 when it rebuilt",
		}, []string{"data_file_type"}),
		runDuration: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fileevent_run_duration_seconds",
			Help: "Wall time of the last run",
		}, []string{"data_file_type"}),
		lastRun: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fileevent_last_run_timestamp_seconds",
			Help: "Unix time the last run finished",
		}, []string{"data_file_type"}),
		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fileevent_http_requests_total",
			Help: "HTTP requests served by the read-only API",
		}, []string{"method", "route", "status"}),
		httpRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fileevent_http_request_duration_seconds",
			Help:    "HTTP request latency of the read-only API",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// WithProcessCollectors adds Go runtime and process collectors, used by the long-running API.
func (m *Metrics) WithProcessCollectors() *Metrics {
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry for gathering
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObservePublish counts one publish attempt
func (m *Metrics) ObservePublish(dataFileType, outcome string) {
	m.publishTotal.WithLabelValues(dataFileType, outcome).Inc()
}

// SetInventory records the snapshot size and whether it came from the cache
func (m *Metrics) SetInventory(dataFileType string, files int, fromCache bool) {
	m.inventoryFiles.WithLabelValues(dataFileType).Set(float64(files))
	cached := 0.0
	if fromCache {
		cached = 1
	}
	m.inventoryCached.WithLabelValues(dataFileType).Set(cached)
}

// ObserveRun records the run duration and completion time
func (m *Metrics) ObserveRun(dataFileType string, d time.Duration, finished time.Time) {
	m.runDuration.WithLabelValues(dataFileType).Set(d.Seconds())
	m.lastRun.WithLabelValues(dataFileType).Set(float64(finished.Unix()))
}

// ObserveRequest records one served HTTP request
func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, route, fmt.Sprint(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// WriteTextfile writes the registry for the node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics folder: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
