// Package observability provides Prometheus metrics and structured logging.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Launch pipeline metrics
	LaunchesTotal       *prometheus.CounterVec
	LaunchFailures      *prometheus.CounterVec
	StageDuration       *prometheus.HistogramVec
	ConfigTxsAuthorized prometheus.Counter
	PersistenceFailures prometheus.Counter

	// Upstream latency metrics
	AggregatorLatency *prometheus.HistogramVec
	AggregatorErrors  *prometheus.CounterVec
	RPCCallLatency    *prometheus.HistogramVec
	ImageGenLatency   prometheus.Histogram

	// Gallery and scan metrics
	GallerySubscribers prometheus.Gauge
	LaunchesBroadcast  prometheus.Counter
	ScansRecorded      *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "larpx402"
	}

	return &Metrics{
		LaunchesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "launch",
			Name:      "runs_total",
			Help:      "Total number of launch attempts by outcome",
		}, []string{"outcome"}),
		LaunchFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "launch",
			Name:      "failures_total",
			Help:      "Total number of launch failures by stage and error kind",
		}, []string{"stage", "kind"}),
		StageDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "launch",
			Name:      "stage_duration_seconds",
			Help:      "Launch stage duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"stage"}),
		ConfigTxsAuthorized: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "launch",
			Name:      "config_transactions_confirmed_total",
			Help:      "Total number of fee-configuration transactions confirmed",
		}),
		PersistenceFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "launch",
			Name:      "persistence_failures_total",
			Help:      "Confirmed launches whose record could not be stored",
		}),

		AggregatorLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "aggregator",
			Name:      "request_latency_seconds",
			Help:      "Launch aggregator request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		AggregatorErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregator",
			Name:      "errors_total",
			Help:      "Launch aggregator errors by endpoint",
		}, []string{"endpoint"}),
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		ImageGenLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "imagegen",
			Name:      "request_latency_seconds",
			Help:      "Image generation latency in seconds",
			Buckets:   []float64{1, 2, 5, 10, 20, 30, 60},
		}),

		GallerySubscribers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "gallery",
			Name:      "subscribers",
			Help:      "Current number of realtime gallery subscribers",
		}),
		LaunchesBroadcast: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gallery",
			Name:      "launches_broadcast_total",
			Help:      "Total number of launch records pushed to subscribers",
		}),
		ScansRecorded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "recorded_total",
			Help:      "Total number of scans recorded by type",
		}, []string{"scan_type"}),

		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordLaunch records the final outcome of a launch attempt.
func RecordLaunch(outcome string) {
	DefaultMetrics.LaunchesTotal.WithLabelValues(outcome).Inc()
}

// RecordLaunchFailure records a failed stage with its error kind.
func RecordLaunchFailure(stage, kind string) {
	DefaultMetrics.LaunchFailures.WithLabelValues(stage, kind).Inc()
}

// RecordStage records how long a pipeline stage took.
func RecordStage(stage string, seconds float64) {
	DefaultMetrics.StageDuration.WithLabelValues(stage).Observe(seconds)
}

// RecordConfigTxConfirmed increments the confirmed fee-configuration counter.
func RecordConfigTxConfirmed() {
	DefaultMetrics.ConfigTxsAuthorized.Inc()
}

// RecordPersistenceFailure increments the persistence failure counter.
func RecordPersistenceFailure() {
	DefaultMetrics.PersistenceFailures.Inc()
}

// RecordAggregatorCall records aggregator request latency and errors.
func RecordAggregatorCall(endpoint string, seconds float64, err error) {
	DefaultMetrics.AggregatorLatency.WithLabelValues(endpoint).Observe(seconds)
	if err != nil {
		DefaultMetrics.AggregatorErrors.WithLabelValues(endpoint).Inc()
	}
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordImageGen records image generation latency.
func RecordImageGen(seconds float64) {
	DefaultMetrics.ImageGenLatency.Observe(seconds)
}

// UpdateGallerySubscribers sets the realtime subscriber gauge.
func UpdateGallerySubscribers(n int) {
	DefaultMetrics.GallerySubscribers.Set(float64(n))
}

// RecordLaunchBroadcast increments the broadcast counter.
func RecordLaunchBroadcast() {
	DefaultMetrics.LaunchesBroadcast.Inc()
}

// RecordScan increments the scans recorded counter.
func RecordScan(scanType string) {
	DefaultMetrics.ScansRecorded.WithLabelValues(scanType).Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
