package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Messages processed per provider and outcome.
	MessagesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_messages_processed_total",
			Help: "Total number of messages processed by the triage runner",
		},
		[]string{"provider", "status"}, // status: applied, failed, skipped
	)

	// Classification results per label.
	MessagesClassified = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_messages_classified_total",
			Help: "Total number of messages classified, by label",
		},
		[]string{"label"},
	)

	// Tier escalations per original tier.
	TierEscalations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_tier_escalations_total",
			Help: "Total number of age-based tier promotions",
		},
		[]string{"from_tier", "to_tier"},
	)

	// Provider call latency (seconds).
	ProviderCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "triage_provider_call_duration_seconds",
			Help:    "Provider API call duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"provider", "op", "status"},
	)

	// Pages fetched per provider.
	PagesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_pages_fetched_total",
			Help: "Total number of message pages fetched",
		},
		[]string{"provider"},
	)

	// Retries performed, by error class.
	RetriesPerformed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_retries_total",
			Help: "Total number of backoff retries against providers",
		},
		[]string{"provider", "error_class"},
	)

	// Checkpoint saves per store backend.
	CheckpointSaves = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_checkpoint_saves_total",
			Help: "Total number of checkpoint saves",
		},
		[]string{"provider", "job"},
	)
)

// ObserveProviderCall records one provider API call.
func ObserveProviderCall(providerName, op, status string, d time.Duration) {
	ProviderCallDuration.WithLabelValues(providerName, op, status).Observe(d.Seconds())
}

// IncProcessed increments the processed counter for an outcome.
func IncProcessed(providerName, status string) {
	MessagesProcessed.WithLabelValues(providerName, status).Inc()
}

// IncClassified increments the per-label classification counter.
func IncClassified(label string) {
	MessagesClassified.WithLabelValues(label).Inc()
}

// IncEscalated records a tier promotion.
func IncEscalated(fromTier, toTier string) {
	TierEscalations.WithLabelValues(fromTier, toTier).Inc()
}
