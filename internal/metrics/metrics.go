package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulseboard_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pulseboard_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint", "status"},
	)

	// Ingest metrics
	IngestReadingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulseboard_ingest_readings_total",
			Help: "Total number of webhook readings received",
		},
		[]string{"status"}, // status: accepted, rejected
	)

	// Propagation pass metrics
	PassesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulseboard_passes_total",
			Help: "Total number of propagation passes",
		},
		[]string{"trigger"}, // trigger: ingest, tick, recompute
	)

	PassesCoalesced = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pulseboard_passes_coalesced_total",
			Help: "Ticks dropped because a pass was already queued",
		},
	)

	PassDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pulseboard_pass_duration_seconds",
			Help:    "Duration of one recompute-then-evaluate pass",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		},
	)

	// Monitor recompute metrics
	RecomputeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulseboard_recompute_total",
			Help: "Total number of monitor recomputations",
		},
		[]string{"status"}, // status: ok, error
	)

	EvalErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulseboard_eval_errors_total",
			Help: "Evaluation errors by kind",
		},
		[]string{"kind"}, // kind: unresolved_reference, division_by_zero
	)

	// Alert metrics
	AlertTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulseboard_alert_transitions_total",
			Help: "Alert state machine transitions",
		},
		[]string{"transition"}, // transition: fired, refired, suppressed, resolved
	)

	ActiveAlerts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pulseboard_active_alerts",
			Help: "Number of rules currently in the Active state",
		},
	)

	// Notification metrics
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulseboard_notifications_total",
			Help: "Notification dispatch attempts by sink and outcome",
		},
		[]string{"sink", "status"}, // status: sent, failed
	)

	// Panic recovery
	PanicsRecovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulseboard_panics_recovered_total",
			Help: "Total number of panics recovered",
		},
		[]string{"component"},
	)
)
