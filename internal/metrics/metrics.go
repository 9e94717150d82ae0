// Package metrics registers the Prometheus instruments shared by the
// Radar server and its plugin dispatcher.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for a Radar server.
type Metrics struct {
	// Transport metrics
	FramesReceived *prometheus.CounterVec
	FramesSent     *prometheus.CounterVec
	ProtocolErrors prometheus.Counter
	ActiveClients  prometheus.Gauge

	// Correlation metrics
	RepliesProcessed *prometheus.CounterVec
	RepliesDropped   prometheus.Counter
	CheckStatus      *prometheus.GaugeVec

	// Dispatcher metrics
	QueueDepth    prometheus.Gauge
	PluginRuntime *prometheus.HistogramVec
	PluginErrors  *prometheus.CounterVec
}

// New creates and registers all metrics on reg (nil means the default
// registerer).
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		FramesReceived: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "radar_frames_received_total",
				Help: "Frames received from clients, by message type",
			},
			[]string{"type"},
		),
		FramesSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "radar_frames_sent_total",
				Help: "Frames dispatched to clients, by message type",
			},
			[]string{"type"},
		),
		ProtocolErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "radar_protocol_errors_total",
				Help: "Connections dropped due to framing violations",
			},
		),
		ActiveClients: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "radar_active_clients",
				Help: "Currently connected monitoring clients",
			},
		),
		RepliesProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "radar_replies_processed_total",
				Help: "Check replies correlated against the registry, by resulting status",
			},
			[]string{"status"},
		),
		RepliesDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "radar_replies_dropped_total",
				Help: "Replies dropped for missing id or status",
			},
		),
		CheckStatus: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "radar_check_status",
				Help: "Current status value per check (-1 error .. 4 timeout)",
			},
			[]string{"check"},
		),
		QueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "radar_plugin_queue_depth",
				Help: "Messages waiting in the plugin dispatcher queue",
			},
		),
		PluginRuntime: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "radar_plugin_runtime_seconds",
				Help:    "Wall-clock time per plugin invocation",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"plugin"},
		),
		PluginErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "radar_plugin_errors_total",
				Help: "Errors raised by plugin callbacks",
			},
			[]string{"plugin"},
		),
	}
}
