package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// initMemoryMetrics initializes retrieval and write-path metrics.
func (m *Manager) initMemoryMetrics(cfg Config) {
	m.tierQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memory_tier_queries_total",
			Help: "Total retrieval tier queries by tier and outcome",
		},
		[]string{"tier", "outcome"},
	)

	m.tierDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "memory_tier_duration_seconds",
			Help:    "Retrieval tier query duration in seconds",
			Buckets: cfg.TierDurationBuckets,
		},
		[]string{"tier"},
	)

	m.candidateCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memory_candidate_cache_total",
			Help: "Candidate cache lookups by result",
		},
		[]string{"result"},
	)

	m.embeddingCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memory_embedding_calls_total",
			Help: "Total embedding computations by status",
		},
		[]string{"status"},
	)

	m.embeddingLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "memory_embedding_latency_seconds",
			Help:    "Embedding computation latency in seconds",
			Buckets: cfg.EmbeddingLatencyBuckets,
		},
	)

	m.turnsRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memory_turns_recorded_total",
			Help: "Total conversation turns recorded by status",
		},
		[]string{"status"},
	)

	m.usersErased = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "memory_users_erased_total",
			Help: "Total user erasure operations",
		},
	)

	m.recordsErased = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "memory_records_erased_total",
			Help: "Total conversation records removed by erasure",
		},
	)

	m.registry.MustRegister(m.tierQueries)
	m.registry.MustRegister(m.tierDuration)
	m.registry.MustRegister(m.candidateCache)
	m.registry.MustRegister(m.embeddingCalls)
	m.registry.MustRegister(m.embeddingLatency)
	m.registry.MustRegister(m.turnsRecorded)
	m.registry.MustRegister(m.usersErased)
	m.registry.MustRegister(m.recordsErased)
}

// RecordTierQuery records a retrieval tier query and its duration.
func (m *Manager) RecordTierQuery(tier string, duration time.Duration, degraded bool) {
	if !m.enabled {
		return
	}
	outcome := "ok"
	if degraded {
		outcome = "degraded"
	}
	m.tierQueries.WithLabelValues(tier, outcome).Inc()
	m.tierDuration.WithLabelValues(tier).Observe(duration.Seconds())
}

// RecordCandidateCache records a candidate cache lookup result.
func (m *Manager) RecordCandidateCache(hit bool) {
	if !m.enabled {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.candidateCache.WithLabelValues(result).Inc()
}

// RecordEmbedding records an embedding computation and its latency.
func (m *Manager) RecordEmbedding(duration time.Duration, failed bool) {
	if !m.enabled {
		return
	}
	status := "ok"
	if failed {
		status = "failed"
	}
	m.embeddingCalls.WithLabelValues(status).Inc()
	m.embeddingLatency.Observe(duration.Seconds())
}

// RecordTurnRecorded records a turn append outcome.
func (m *Manager) RecordTurnRecorded(status string) {
	if !m.enabled {
		return
	}
	m.turnsRecorded.WithLabelValues(status).Inc()
}

// RecordErasure records a completed user erasure and the record count it removed.
func (m *Manager) RecordErasure(deleted int) {
	if !m.enabled {
		return
	}
	m.usersErased.Inc()
	m.recordsErased.Add(float64(deleted))
}
