package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ScanTicks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "whome",
		Name:      "scan_ticks_total",
		Help:      "Completed capture cycles by outcome (match, miss, no_face, error)",
	}, []string{"camera", "outcome"})

	ScanTickErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "whome",
		Name:      "scan_tick_errors_total",
		Help:      "Capture cycles that failed and were skipped",
	}, []string{"camera"})

	Recognitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "whome",
		Name:      "recognitions_total",
		Help:      "Distinct identities recognized per surface",
	}, []string{"surface"})

	Exhaustions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "whome",
		Name:      "scan_exhausted_total",
		Help:      "Sessions that ran out of attempts and handed off to registration",
	}, []string{"surface"})

	StateChangeDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "whome",
		Name:      "scan_state_changes_dropped_total",
		Help:      "State changes not delivered because a subscriber was full",
	}, []string{"camera", "subscriber"})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "whome",
		Name:      "active_scan_sessions",
		Help:      "Number of scan sessions currently holding a camera",
	})

	InferenceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "whome",
		Name:      "inference_duration_seconds",
		Help:      "Duration of model stages",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"stage"})

	ModelState = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "whome",
		Name:      "model_state",
		Help:      "Face model lifecycle: 0 uninitialized, 1 loading, 2 ready, 3 failed",
	})

	DescriptorDecodeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "whome",
		Name:      "descriptor_decode_failures_total",
		Help:      "Stored descriptors that could not be parsed and were replaced by zero vectors",
	})

	Registrations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "whome",
		Name:      "registrations_total",
		Help:      "Registration attempts by outcome",
	}, []string{"outcome"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "whome",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "whome",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
