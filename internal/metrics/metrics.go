// Package metrics exposes Prometheus instrumentation for uploads, report
// builds, cache traffic and HTTP routes.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "autorkm"

// Outcome labels for ingested datasets.
const (
	OutcomeOK          = "ok"
	OutcomeSchemaError = "schema_error"
	OutcomeError       = "error"
)

// Metrics holds all Prometheus collectors of the service.
type Metrics struct {
	registry *prometheus.Registry

	DatasetsLoaded  *prometheus.CounterVec
	DatasetRows     prometheus.Histogram
	ReportDuration  prometheus.Histogram
	SectionFailures *prometheus.CounterVec
	CacheRequests   *prometheus.CounterVec
	Exports         *prometheus.CounterVec
	Suspicious      *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// New registers every collector on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		DatasetsLoaded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "datasets_loaded_total",
			Help:      "Datasets ingested, by source and outcome",
		}, []string{"source", "outcome"}),
		DatasetRows: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dataset_rows",
			Help:      "Number of records per ingested dataset",
			Buckets:   []float64{10, 100, 500, 1000, 5000, 10000, 50000, 100000},
		}),
		ReportDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "report_build_duration_seconds",
			Help:      "Time to derive every section of a report",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		SectionFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "section_failures_total",
			Help:      "Report sections that could not be derived",
		}, []string{"section"}),
		CacheRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "Report cache lookups, by result",
		}, []string{"result"}),
		Exports: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exports_total",
			Help:      "Workbooks exported, by section",
		}, []string{"section"}),
		Suspicious: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "suspicious_requests_total",
			Help:      "Requests flagged by the security detector, by reason",
		}, []string{"reason"}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "code", "method"}),
	}
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Instrument wraps h so its latency is recorded under route.
func (m *Metrics) Instrument(route string, h http.Handler) http.Handler {
	return promhttp.InstrumentHandlerDuration(
		m.RequestDuration.MustCurryWith(prometheus.Labels{"route": route}), h)
}

// RecordDataset counts one ingest attempt; rows is ignored unless outcome
// is OutcomeOK.
func (m *Metrics) RecordDataset(source, outcome string, rows int) {
	m.DatasetsLoaded.WithLabelValues(source, outcome).Inc()
	if outcome == OutcomeOK {
		m.DatasetRows.Observe(float64(rows))
	}
}

// RecordReport records a report build and the sections it failed to derive.
func (m *Metrics) RecordReport(d time.Duration, failed []string) {
	m.ReportDuration.Observe(d.Seconds())
	for _, id := range failed {
		m.SectionFailures.WithLabelValues(id).Inc()
	}
}

// RecordCache counts a cache lookup.
func (m *Metrics) RecordCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheRequests.WithLabelValues(result).Inc()
}

// RecordExport counts an exported workbook.
func (m *Metrics) RecordExport(section string) {
	m.Exports.WithLabelValues(section).Inc()
}

// RecordSuspicious counts a request flagged by the security detector.
func (m *Metrics) RecordSuspicious(reason string) {
	m.Suspicious.WithLabelValues(reason).Inc()
}
