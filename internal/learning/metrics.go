package learning

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for the learning pipeline.
type Metrics struct {
	// MessagesTotal counts pipeline invocations by result:
	// processed, skipped (empty input), failed.
	MessagesTotal *prometheus.CounterVec

	// ClusterEvents counts created vs reinforced clusters per subject.
	ClusterEvents *prometheus.CounterVec

	// MatchSimilarity observes the best-match cosine similarity of every
	// non-empty candidate scan, matched or not.
	MatchSimilarity prometheus.Histogram

	// SignalsTotal counts extracted interaction signals by kind.
	SignalsTotal *prometheus.CounterVec
}

// NewMetrics registers the pipeline metrics on the given registerer. Pass a
// fresh prometheus.NewRegistry() in tests to avoid double registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		MessagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "learning_messages_total",
				Help: "Learning pipeline invocations by result",
			},
			[]string{"result"},
		),
		ClusterEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "learning_cluster_events_total",
				Help: "Concept cluster creations and reinforcements per subject",
			},
			[]string{"event", "subject"},
		),
		MatchSimilarity: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "learning_match_similarity",
				Help:    "Best-match cosine similarity per processed message",
				Buckets: prometheus.LinearBuckets(0, 0.1, 11), // 0.0 to 1.0
			},
		),
		SignalsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "learning_signals_total",
				Help: "Extracted interaction signals by kind",
			},
			[]string{"kind"},
		),
	}
}
