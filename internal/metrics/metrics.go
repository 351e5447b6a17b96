package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ── HTTP request metrics (RED method) ──────────────────────────────────

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "m2p",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"method", "path", "status_code"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "m2p",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})

	HTTPRequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "m2p",
		Subsystem: "http",
		Name:      "requests_in_flight",
		Help:      "Number of HTTP requests currently being processed.",
	})
)

// ── Polling / source metrics ───────────────────────────────────────────

var (
	PollTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "m2p",
		Subsystem: "poll",
		Name:      "total",
		Help:      "Total poll units per source, labelled by outcome.",
	}, []string{"source", "status"})

	PollDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "m2p",
		Subsystem: "poll",
		Name:      "duration_seconds",
		Help:      "Duration of provider fetch per source in seconds.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"source"})

	PollLastSuccess = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "m2p",
		Subsystem: "poll",
		Name:      "last_success_timestamp",
		Help:      "Unix timestamp of the last successful poll per source.",
	}, []string{"source"})

	RewardsDetectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "m2p",
		Subsystem: "rewards",
		Name:      "detected_total",
		Help:      "Total newly credited rewards per source.",
	}, []string{"source"})

	AccountsEligible = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "m2p",
		Subsystem: "poll",
		Name:      "accounts_eligible",
		Help:      "Eligible accounts seen at the start of the last cycle.",
	})
)

// ── Notification delivery metrics ──────────────────────────────────────

var (
	NotificationsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "m2p",
		Subsystem: "notify",
		Name:      "sent_total",
		Help:      "Reward notifications successfully delivered.",
	}, []string{"source"})

	NotificationsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "m2p",
		Subsystem: "notify",
		Name:      "failed_total",
		Help:      "Reward notification delivery failures.",
	}, []string{"source"})

	NotificationsDedupedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "m2p",
		Subsystem: "notify",
		Name:      "deduplicated_total",
		Help:      "Reward notifications suppressed by the at-most-once guard.",
	}, []string{"source"})

	WebsocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "m2p",
		Subsystem: "notify",
		Name:      "websocket_connections",
		Help:      "Live websocket connections across all wallets.",
	})
)
