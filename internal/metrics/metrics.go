package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "obd_"

	ResultSuccess = "success"
	ResultError   = "error"
)

var (
	registerOnce sync.Once

	chatRequests  *prometheus.CounterVec
	chatLatency   prometheus.Histogram
	queryTotal    *prometheus.CounterVec
	queryLatency  *prometheus.HistogramVec
	ollamaTotal   *prometheus.CounterVec
	ollamaLatency prometheus.Histogram
	csvRows       *prometheus.CounterVec
	ingestRows    *prometheus.CounterVec
	ingestBatches *prometheus.CounterVec
	publishTotal  *prometheus.CounterVec
)

// Init registers all collectors with the default registry. Safe to call
// more than once.
func Init() {
	registerOnce.Do(func() {
		chatRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "chat_requests_total",
				Help: "Total chat requests by result",
			},
			[]string{"result"},
		)
		chatLatency = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "chat_latency_seconds",
				Help:    "End-to-end chat latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
		)
		queryTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "aggregation_queries_total",
				Help: "Aggregation queries by query and result",
			},
			[]string{"query", "result"},
		)
		queryLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "aggregation_query_latency_seconds",
				Help:    "Aggregation query latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"query"},
		)
		ollamaTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ollama_requests_total",
				Help: "Completion requests by result",
			},
			[]string{"result"},
		)
		ollamaLatency = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "ollama_latency_seconds",
				Help:    "Completion latency in seconds",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60},
			},
		)
		csvRows = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "csv_rows_total",
				Help: "Uploaded CSV rows by outcome",
			},
			[]string{"outcome"},
		)
		ingestRows = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_rows_total",
				Help: "Live telemetry rows by outcome",
			},
			[]string{"outcome"},
		)
		ingestBatches = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_batches_total",
				Help: "Telemetry batch inserts by result",
			},
			[]string{"result"},
		)
		publishTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "diagnostics_published_total",
				Help: "Diagnostics events published by result",
			},
			[]string{"result"},
		)

		prometheus.MustRegister(
			chatRequests,
			chatLatency,
			queryTotal,
			queryLatency,
			ollamaTotal,
			ollamaLatency,
			csvRows,
			ingestRows,
			ingestBatches,
			publishTotal,
		)
	})
}

func ObserveChat(result string, d time.Duration) {
	if chatRequests == nil {
		return
	}
	chatRequests.WithLabelValues(result).Inc()
	chatLatency.Observe(d.Seconds())
}

func ObserveQuery(query, result string, d time.Duration) {
	if queryTotal == nil {
		return
	}
	queryTotal.WithLabelValues(query, result).Inc()
	queryLatency.WithLabelValues(query).Observe(d.Seconds())
}

func ObserveOllama(result string, d time.Duration) {
	if ollamaTotal == nil {
		return
	}
	ollamaTotal.WithLabelValues(result).Inc()
	ollamaLatency.Observe(d.Seconds())
}

// AddCSVRows records reshape outcomes such as "kept", "dropped", "date_fallback",
// "telemetry" and "unparsed"
func AddCSVRows(outcome string, n int) {
	if csvRows == nil || n == 0 {
		return
	}
	csvRows.WithLabelValues(outcome).Add(float64(n))
}

// AddIngestRows records live rows by outcome, e.g. "received", "queue_full", "stored", "dropped"
func AddIngestRows(outcome string, n int) {
	if ingestRows == nil || n == 0 {
		return
	}
	ingestRows.WithLabelValues(outcome).Add(float64(n))
}

func IncIngestBatch(result string) {
	if ingestBatches == nil {
		return
	}
	ingestBatches.WithLabelValues(result).Inc()
}

func IncPublish(result string) {
	if publishTotal == nil {
		return
	}
	publishTotal.WithLabelValues(result).Inc()
}
