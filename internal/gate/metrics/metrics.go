// Package metrics holds the Prometheus collectors for the gate. They are
// registered on the default registry and served at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "gate"

var (
	// DeniedRequestsTotal counts every denial by its internal reason, even
	// though most of them look identical on the wire.
	DeniedRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "denied_requests_total",
			Help:      "Requests denied by the gate, by reason.",
		},
		[]string{"reason"},
	)

	// SessionValidationsTotal counts validator outcomes.
	SessionValidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_validations_total",
			Help:      "Session validations by outcome (ok, anonymous, or a denial reason).",
		},
		[]string{"outcome"},
	)

	// DirectoryErrorsTotal counts lookups that failed for reasons other than
	// absence. These are served as credential failures.
	DirectoryErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "directory_errors_total",
			Help:      "User directory lookups that failed with a backend error.",
		},
	)

	// DirectoryLookupSeconds is user lookup latency.
	DirectoryLookupSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "directory_lookup_seconds",
			Help:      "User directory lookup latency in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2.5, 10), // 0.5ms to ~1.9s
		},
	)

	// ActivityWritesTotal counts lastActivity write-backs by result
	// (written, failed, dropped).
	ActivityWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "activity_writes_total",
			Help:      "Asynchronous lastActivity write-backs by result.",
		},
		[]string{"result"},
	)

	// ActivityQueueDepth is the number of pending write-backs.
	ActivityQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "activity_queue_depth",
			Help:      "Pending lastActivity write-backs.",
		},
	)

	// RateLimitedTotal counts 429s by route class.
	RateLimitedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate governor, by route class.",
		},
		[]string{"class"},
	)

	// SpeedDelaySeconds observes the artificial delay added to slowed routes.
	SpeedDelaySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "speed_delay_seconds",
			Help:      "Artificial delay applied by the speed limiter, by route class.",
			Buckets:   []float64{0.5, 1, 2, 4, 8, 16, 20},
		},
		[]string{"class"},
	)

	// CounterErrorsTotal counts rate counter failures. The governor fails
	// open on these.
	CounterErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_counter_errors_total",
			Help:      "Rate counter backend errors (requests were admitted).",
		},
	)

	// LoginsTotal counts login attempts by result.
	LoginsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Login attempts by result.",
		},
		[]string{"result"},
	)
)
