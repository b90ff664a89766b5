// Package metrics defines the Prometheus metric collectors used by the
// mapper, the mapping service and the indexer, and exposes an HTTP handler
// for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	DocsParsedTotal       *prometheus.CounterVec
	ParseFailuresTotal    *prometheus.CounterVec
	ParseLatency          *prometheus.HistogramVec
	DynamicMappersTotal   *prometheus.CounterVec
	MappingUpdatesTotal   *prometheus.CounterVec
	MappingConflictsTotal *prometheus.CounterVec
	MappingVersion        *prometheus.GaugeVec
	MappingFieldCount     *prometheus.GaugeVec
	MappingCacheHits      prometheus.Counter
	MappingCacheMisses    prometheus.Counter
	DocsIndexedTotal      prometheus.Counter
	SubDocsIndexedTotal   prometheus.Counter
	IndexFlushesTotal     *prometheus.CounterVec
	ShardDocCount         *prometheus.GaugeVec
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestsInFlight  prometheus.Gauge
}

// New creates all collectors and registers them with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates all collectors and registers them with reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		DocsParsedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mapper_docs_parsed_total",
				Help: "Total documents parsed by mapping type.",
			},
			[]string{"type"},
		),
		ParseFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mapper_parse_failures_total",
				Help: "Total failed parses by mapping type and failure kind.",
			},
			[]string{"type", "kind"},
		),
		ParseLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mapper_parse_latency_seconds",
				Help:    "Document parse latency in seconds.",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.5},
			},
			[]string{"type"},
		),
		DynamicMappersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mapper_dynamic_mappers_total",
				Help: "Total mappers discovered dynamically while parsing.",
			},
			[]string{"type"},
		),
		MappingUpdatesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mapping_updates_total",
				Help: "Total mapping updates by outcome (installed, noop, rejected).",
			},
			[]string{"type", "outcome"},
		),
		MappingConflictsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mapping_install_conflicts_total",
				Help: "Total mapping installs that lost a version race.",
			},
			[]string{"type"},
		),
		MappingVersion: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mapping_version",
				Help: "Current mapping version per type.",
			},
			[]string{"type"},
		),
		MappingFieldCount: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mapping_field_count",
				Help: "Number of object and field mappers per type.",
			},
			[]string{"type"},
		),
		MappingCacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mapping_cache_hits_total",
				Help: "Total mapping version cache hits.",
			},
		),
		MappingCacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mapping_cache_misses_total",
				Help: "Total mapping version cache misses.",
			},
		),
		DocsIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "docs_indexed_total",
				Help: "Total source documents indexed.",
			},
		),
		SubDocsIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "subdocs_indexed_total",
				Help: "Total indexable sub-documents, nested ones included.",
			},
		),
		IndexFlushesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_flushes_total",
				Help: "Total index flush operations by status.",
			},
			[]string{"status"},
		),
		ShardDocCount: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "shard_document_count",
				Help: "Number of sub-documents per shard.",
			},
			[]string{"shard_id"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total HTTP requests by method, route and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency by method and route.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "HTTP requests currently being served.",
			},
		),
	}

	reg.MustRegister(
		m.DocsParsedTotal,
		m.ParseFailuresTotal,
		m.ParseLatency,
		m.DynamicMappersTotal,
		m.MappingUpdatesTotal,
		m.MappingConflictsTotal,
		m.MappingVersion,
		m.MappingFieldCount,
		m.MappingCacheHits,
		m.MappingCacheMisses,
		m.DocsIndexedTotal,
		m.SubDocsIndexedTotal,
		m.IndexFlushesTotal,
		m.ShardDocCount,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
