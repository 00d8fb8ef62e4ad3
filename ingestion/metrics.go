package ingestion

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Chunk and group outcomes reported in metric labels.
const (
	outcomePersisted = "persisted"
	outcomeEmpty     = "empty"
	outcomeFailed    = "failed"
	outcomeSkipped   = "skipped"
	outcomeOK        = "ok"
)

type metrics struct {
	chunks      *prometheus.CounterVec
	groups      *prometheus.CounterVec
	topics      prometheus.Counter
	retries     *prometheus.CounterVec
	runDuration prometheus.Histogram
}

func newMetrics() *metrics {
	return &metrics{
		chunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tripkb",
			Subsystem: "ingestion",
			Name:      "chunks_total",
			Help:      "Chunks processed, by outcome.",
		}, []string{"outcome"}),
		groups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tripkb",
			Subsystem: "ingestion",
			Name:      "group_runs_total",
			Help:      "Group ingestion runs, by outcome.",
		}, []string{"outcome"}),
		topics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tripkb",
			Subsystem: "ingestion",
			Name:      "topics_total",
			Help:      "Topics persisted.",
		}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tripkb",
			Subsystem: "ingestion",
			Name:      "retries_total",
			Help:      "Collaborator calls retried, by operation.",
		}, []string{"operation"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tripkb",
			Subsystem: "ingestion",
			Name:      "run_duration_seconds",
			Help:      "Wall time of a scheduler run across all groups.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
	}
}

func (m *metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.chunks, m.groups, m.topics, m.retries, m.runDuration}
}

func (m *metrics) register(reg prometheus.Registerer) error {
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
