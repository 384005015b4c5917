package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	TurnsRecorded          *prometheus.CounterVec
	ContextReads           prometheus.Counter
	CompressionPasses      prometheus.Counter
	FallbackTruncations    prometheus.Counter
	PrunedItems            *prometheus.CounterVec
	PreferenceSignals      prometheus.Counter
	DegradedTier           prometheus.Gauge
	ReplayQueueDepth       prometheus.Gauge
	AbsorbedErrors         *prometheus.CounterVec
	Events                 *prometheus.CounterVec
	SummarizerLatency      prometheus.Histogram
	ActiveConversations    prometheus.Gauge
	ForgottenConversations prometheus.Counter
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		TurnsRecorded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_recorded_total",
			Help:      "Recorded conversation turns by role.",
		}, []string{"role"}),
		ContextReads: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "context_reads_total",
			Help:      "Context assembly requests.",
		}),
		CompressionPasses: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compression_passes_total",
			Help:      "Summarization passes executed by the compressor.",
		}),
		FallbackTruncations: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallback_truncations_total",
			Help:      "Context reads that fell back to lossy truncation.",
		}),
		PrunedItems: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pruned_items_total",
			Help:      "Memory items removed by pruning, by reason.",
		}, []string{"reason"}),
		PreferenceSignals: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "preference_signals_total",
			Help:      "Accepted preference signals.",
		}),
		DegradedTier: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "durable_tier_degraded",
			Help:      "1 when the durable tier is unreachable and writes are queued.",
		}),
		ReplayQueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "replay_queue_depth",
			Help:      "Durable writes waiting for replay.",
		}),
		AbsorbedErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "absorbed_errors_total",
			Help:      "Errors absorbed by degraded-mode handling, by kind.",
		}, []string{"kind"}),
		Events: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Operational events emitted to the sink, by name.",
		}, []string{"event"}),
		SummarizerLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "summarizer_latency_ms",
			Help:      "Latency of summarizer calls in milliseconds.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}),
		ActiveConversations: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_conversations",
			Help:      "Conversations currently accepting writes.",
		}),
		ForgottenConversations: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forgotten_conversations_total",
			Help:      "User-initiated conversation deletions.",
		}),
	}
}

func (m *Metrics) ObserveSummarizerLatency(d time.Duration) {
	m.SummarizerLatency.Observe(float64(d.Milliseconds()))
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
