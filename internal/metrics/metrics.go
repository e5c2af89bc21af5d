// Package metrics declares the orchestrator's Prometheus metrics: a
// struct of *prometheus.GaugeVec/CounterVec/HistogramVec fields built
// once by NewMetrics and passed around by the caller. promauto
// registers every metric with the default Prometheus registry, so
// NewMetrics returns one shared instance per process.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every counter/gauge/histogram emitted by the
// Supervisor, Sink Chain, and Monitor.
type Metrics struct {
	Version prometheus.Counter

	// Supervisor
	ActivePipelines      prometheus.Gauge
	IdlePipelines         prometheus.Gauge
	HealthCheckFailures   *prometheus.CounterVec
	HealthCheckDurationSec prometheus.Histogram
	ForceCleanups          prometheus.Counter
	CommandDurationSec     *prometheus.HistogramVec
	CommandErrors          *prometheus.CounterVec

	// Sink chain. Gauges, not counters: each sink already keeps its own
	// cumulative atomic totals (internal/sink.Counters) and these just
	// mirror the latest snapshot for scraping.
	SinkEnqueued  *prometheus.GaugeVec
	SinkDropped   *prometheus.GaugeVec
	SinkErrors    *prometheus.GaugeVec
	SinkProcessed *prometheus.GaugeVec

	// WebRTC bridge
	BridgeConsecutiveTimeouts *prometheus.GaugeVec
	BridgeSamplesWritten      *prometheus.CounterVec

	// Monitor
	MonitorPollDurationSec prometheus.Histogram
	MonitorBufferSize      prometheus.Gauge
	MonitorStoreErrors     prometheus.Counter
	MonitorSpooledBatches  prometheus.Counter
	MonitorDiskEvictions   prometheus.Counter
}

var (
	metricsOnce     sync.Once
	metricsInstance *Metrics
)

// NewMetrics builds and registers the metrics on its first call and
// increments Version; later calls return that same instance.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = newMetrics()
		metricsInstance.Version.Inc()
	})
	return metricsInstance
}

func newMetrics() *Metrics {
	return &Metrics{
		Version: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pipectl_version",
			Help: "Incremented once on startup to identify the running build.",
		}),

		ActivePipelines: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "pipectl_active_pipelines",
			Help: "Number of non-idle pipelines currently tracked.",
		}),
		IdlePipelines: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "pipectl_idle_pipelines",
			Help: "Number of warm-pool pipelines awaiting a workload.",
		}),
		HealthCheckFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pipectl_health_check_failures_total",
			Help: "Count of failed health checks by pipeline_id.",
		}, []string{"pipeline_id"}),
		HealthCheckDurationSec: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "pipectl_health_check_sweep_duration_seconds",
			Help:    "Duration of one full health-check sweep.",
			Buckets: []float64{.01, .05, .1, .5, 1, 2.5, 5, 10},
		}),
		ForceCleanups: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pipectl_force_cleanups_total",
			Help: "Count of worker processes force-cleaned up.",
		}),
		CommandDurationSec: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pipectl_command_duration_seconds",
			Help:    "Duration of a routed command, by type.",
			Buckets: prometheus.DefBuckets,
		}, []string{"type"}),
		CommandErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pipectl_command_errors_total",
			Help: "Count of command errors by type and error_type.",
		}, []string{"type", "error_type"}),

		SinkEnqueued: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pipectl_sink_enqueued",
			Help: "Items enqueued to a sink so far, by sink kind and pipeline_id.",
		}, []string{"sink", "pipeline_id"}),
		SinkDropped: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pipectl_sink_dropped",
			Help: "Items dropped by a sink so far, by sink kind and pipeline_id.",
		}, []string{"sink", "pipeline_id"}),
		SinkErrors: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pipectl_sink_errors",
			Help: "Item handling errors so far, by sink kind and pipeline_id.",
		}, []string{"sink", "pipeline_id"}),
		SinkProcessed: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pipectl_sink_processed",
			Help: "Items successfully processed so far, by sink kind and pipeline_id.",
		}, []string{"sink", "pipeline_id"}),

		BridgeConsecutiveTimeouts: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pipectl_bridge_consecutive_timeouts",
			Help: "Current consecutive drain-timeout count, by pipeline_id and viewer_id.",
		}, []string{"pipeline_id", "viewer_id"}),
		BridgeSamplesWritten: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pipectl_bridge_samples_written_total",
			Help: "Video samples written to a viewer's track.",
		}, []string{"pipeline_id", "viewer_id"}),

		MonitorPollDurationSec: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "pipectl_monitor_poll_duration_seconds",
			Help:    "Duration of one Monitor poll loop iteration.",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5},
		}),
		MonitorBufferSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "pipectl_monitor_buffer_size",
			Help: "Current number of buffered, unflushed metric points.",
		}),
		MonitorStoreErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pipectl_monitor_store_errors_total",
			Help: "Count of failed time-series store writes.",
		}),
		MonitorSpooledBatches: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pipectl_monitor_spooled_batches_total",
			Help: "Count of metric batches spooled to disk after a store write failure.",
		}),
		MonitorDiskEvictions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pipectl_monitor_disk_evictions_total",
			Help: "Count of pipeline recording subdirectories evicted by quota/max-days enforcement.",
		}),
	}
}
