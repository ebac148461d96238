// Package metrics defines the Prometheus collectors for the ingestion and
// read pipeline and exposes an HTTP handler for scraping. It also implements
// the storage MetricsHook so Pebble I/O shows up in the same registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	pebblestore "github.com/rewindhq/rewind/internal/storage/pebble"
)

// Metrics holds all collectors. A nil *Metrics is valid everywhere one is
// accepted; observation methods become no-ops.
type Metrics struct {
	reg *prometheus.Registry

	BatchesAccepted   prometheus.Counter
	BatchesRejected   prometheus.Counter
	EnvelopesBuffered prometheus.Gauge

	FlushesTotal  *prometheus.CounterVec
	FlushDuration prometheus.Histogram
	FlushBytes    prometheus.Histogram

	ReadsTotal       *prometheus.CounterVec
	ReadDuration     prometheus.Histogram
	ParseErrorsTotal prometheus.Counter
	ObjectsListed    prometheus.Counter
	ObjectsFetched   *prometheus.CounterVec

	StorageWriteBytes prometheus.Counter
	StorageReadBytes  prometheus.Counter
	StorageCommits    prometheus.Counter
}

// New creates and registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{reg: prometheus.NewRegistry()}

	m.BatchesAccepted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rewind_ingest_batches_accepted_total",
		Help: "Batches that passed validation and were queued for write.",
	})
	m.BatchesRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rewind_ingest_batches_rejected_total",
		Help: "Batches rejected by shape validation.",
	})
	m.EnvelopesBuffered = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rewind_ingest_envelopes_buffered",
		Help: "Envelopes currently held in the ingestion buffer.",
	})
	m.FlushesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rewind_flushes_total",
		Help: "Partition flushes by status (ok, error).",
	}, []string{"status"})
	m.FlushDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "rewind_flush_duration_seconds",
		Help:    "Durable flush latency in seconds, including retries.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
	})
	m.FlushBytes = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "rewind_flush_bytes",
		Help:    "Serialized bytes per partition object.",
		Buckets: prometheus.ExponentialBuckets(256, 4, 8),
	})
	m.ReadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rewind_reads_total",
		Help: "Session reads by result (ok, empty, partial, error).",
	}, []string{"result"})
	m.ReadDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "rewind_read_duration_seconds",
		Help:    "Session read latency in seconds (list, fetch, merge).",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
	})
	m.ParseErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rewind_parse_errors_total",
		Help: "Undecodable lines skipped during session reads.",
	})
	m.ObjectsListed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rewind_objects_listed_total",
		Help: "Partition-object keys returned by listings.",
	})
	m.ObjectsFetched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rewind_objects_fetched_total",
		Help: "Partition-object fetches by status (ok, error).",
	}, []string{"status"})
	m.StorageWriteBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rewind_storage_write_bytes_total",
		Help: "Bytes written to the embedded store.",
	})
	m.StorageReadBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rewind_storage_read_bytes_total",
		Help: "Bytes read from the embedded store.",
	})
	m.StorageCommits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rewind_storage_commits_total",
		Help: "Batch commits against the embedded store.",
	})

	m.reg.MustRegister(
		m.BatchesAccepted, m.BatchesRejected, m.EnvelopesBuffered,
		m.FlushesTotal, m.FlushDuration, m.FlushBytes,
		m.ReadsTotal, m.ReadDuration, m.ParseErrorsTotal,
		m.ObjectsListed, m.ObjectsFetched,
		m.StorageWriteBytes, m.StorageReadBytes, m.StorageCommits,
	)
	return m
}

// Handler returns the scrape endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// StorageHook adapts the registry to the pebblestore metrics seam.
func (m *Metrics) StorageHook() pebblestore.MetricsHook {
	if m == nil {
		return pebblestore.NoopMetrics{}
	}
	return storageHook{m: m}
}

type storageHook struct {
	m *Metrics
}

func (h storageHook) ObserveWrite(_ time.Duration, bytes int) {
	h.m.StorageWriteBytes.Add(float64(bytes))
}

func (h storageHook) ObserveRead(_ time.Duration, bytes int) {
	h.m.StorageReadBytes.Add(float64(bytes))
}

func (h storageHook) ObserveBatchCommit(_ time.Duration, _ int, _ int) {
	h.m.StorageCommits.Inc()
}
