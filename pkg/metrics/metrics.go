// Package metrics provides Prometheus metrics for the collation service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SheetTransitionsTotal counts accepted workflow transitions
	SheetTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tally",
			Subsystem: "workflow",
			Name:      "transitions_total",
			Help:      "Total number of accepted result sheet transitions",
		},
		[]string{"action"},
	)

	// RejectedCommandsTotal counts commands refused by the workflow or entry validation
	RejectedCommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tally",
			Subsystem: "workflow",
			Name:      "rejected_commands_total",
			Help:      "Total number of commands refused with a collation error",
		},
		[]string{"kind"},
	)

	// WriteConflictsTotal counts writes refused because the sheet version moved
	WriteConflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tally",
			Subsystem: "workflow",
			Name:      "write_conflicts_total",
			Help:      "Total number of stale-version writes",
		},
	)

	// EntriesUpsertedTotal counts entries written by bulk upserts
	EntriesUpsertedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tally",
			Subsystem: "entries",
			Name:      "upserted_total",
			Help:      "Total number of result entries inserted or replaced",
		},
	)

	// DiscrepanciesTotal counts consistency checks that found a mismatch on save
	DiscrepanciesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tally",
			Subsystem: "consistency",
			Name:      "discrepancies_total",
			Help:      "Total number of saves whose entries disagree with the reported valid votes",
		},
	)

	// AggregationDuration tracks how long dashboard folds take
	AggregationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tally",
			Subsystem: "aggregation",
			Name:      "duration_seconds",
			Help:      "Duration of dashboard aggregation in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"view"},
	)

	// DashboardCacheTotal counts snapshot cache lookups
	DashboardCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tally",
			Subsystem: "redis",
			Name:      "dashboard_cache_total",
			Help:      "Total number of dashboard snapshot cache lookups",
		},
		[]string{"result"},
	)

	// KafkaMessagesPublished counts activity events sent to Kafka
	KafkaMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tally",
			Subsystem: "kafka",
			Name:      "messages_published_total",
			Help:      "Total number of activity messages published to Kafka",
		},
		[]string{"topic", "status"},
	)

	// KafkaPublishDuration tracks Kafka publish latency
	KafkaPublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "tally",
			Subsystem: "kafka",
			Name:      "publish_duration_seconds",
			Help:      "Duration of Kafka publish operations in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		},
	)
)

// RecordTransition records an accepted workflow transition
func RecordTransition(action string) {
	SheetTransitionsTotal.WithLabelValues(action).Inc()
}

// RecordRejectedCommand records a refused command by error kind
func RecordRejectedCommand(kind string) {
	RejectedCommandsTotal.WithLabelValues(kind).Inc()
}

func RecordWriteConflict() {
	WriteConflictsTotal.Inc()
}

func RecordEntriesUpserted(count int) {
	EntriesUpsertedTotal.Add(float64(count))
}

func RecordDiscrepancy() {
	DiscrepanciesTotal.Inc()
}

// RecordAggregation records how long a dashboard view took to fold
func RecordAggregation(view string, durationSeconds float64) {
	AggregationDuration.WithLabelValues(view).Observe(durationSeconds)
}

// RecordCacheLookup records a dashboard cache hit or miss
func RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	DashboardCacheTotal.WithLabelValues(result).Inc()
}

// RecordKafkaPublish records a Kafka publish operation
func RecordKafkaPublish(topic, status string, durationSeconds float64) {
	KafkaMessagesPublished.WithLabelValues(topic, status).Inc()
	KafkaPublishDuration.Observe(durationSeconds)
}
