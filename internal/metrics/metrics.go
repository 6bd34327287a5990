package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ScanCycles = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notify_scan_cycles_total",
			Help: "Total number of completed scan cycles",
		},
	)

	ScanFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notify_scan_failures_total",
			Help: "Total number of scan cycles aborted by a store-wide failure",
		},
	)

	ScanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "notify_scan_duration_seconds",
			Help:    "Duration of one scan cycle in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
	)

	Decisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_decisions_total",
			Help: "Per-row scan outcomes",
		},
		[]string{"kind", "outcome"}, // kind: digest, reminder, realtime
	)

	WebhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_webhook_events_total",
			Help: "Ingested marketplace webhook events",
		},
		[]string{"result"}, // result: ok, invalid, failed
	)
)

// Decision outcome labels.
const (
	OutcomeSent       = "sent"
	OutcomeDeferred   = "deferred"
	OutcomeSuppressed = "suppressed"
	OutcomeClaimLost  = "claim_lost"
	OutcomeFailed     = "failed"
	OutcomeThrottled  = "throttled"
	OutcomeSkipped    = "skipped"
)

// RecordDecision counts one per-row outcome.
func RecordDecision(kind, outcome string) {
	Decisions.WithLabelValues(kind, outcome).Inc()
}

// RecordScan observes one finished cycle.
func RecordScan(duration time.Duration) {
	ScanCycles.Inc()
	ScanDuration.Observe(duration.Seconds())
}

// RecordWebhook counts one ingested webhook.
func RecordWebhook(result string) {
	WebhookEvents.WithLabelValues(result).Inc()
}
