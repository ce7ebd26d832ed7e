// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SearchRequests counts search executions by mode (keyword, hybrid-short,
	// hybrid-exact, hybrid-long, hybrid).
	SearchRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "oracle",
		Name:      "search_requests_total",
		Help:      "Search requests by retrieval mode.",
	}, []string{"mode"})

	// SearchDuration observes end-to-end search latency.
	SearchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "oracle",
		Name:      "search_duration_seconds",
		Help:      "Search latency across both backends.",
		Buckets:   prometheus.DefBuckets,
	})

	// VectorFailures counts degraded searches where the vector backend was
	// unreachable and results came from FTS alone.
	VectorFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "oracle",
		Name:      "vector_failures_total",
		Help:      "Vector backend failures observed during retrieval.",
	})

	// ConsultRequests counts decision consultations.
	ConsultRequests = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "oracle",
		Name:      "consult_requests_total",
		Help:      "Decision consultations served.",
	})

	// LearnedPatterns counts patterns captured through the learn flow.
	LearnedPatterns = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "oracle",
		Name:      "learned_patterns_total",
		Help:      "Patterns appended via learn.",
	})

	// IndexRuns counts completed index rebuilds.
	IndexRuns = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "oracle",
		Name:      "index_runs_total",
		Help:      "Completed index rebuild passes.",
	})

	// IndexedDocuments tracks the document count after the latest rebuild.
	IndexedDocuments = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "oracle",
		Name:      "indexed_documents",
		Help:      "Documents in the index after the last rebuild.",
	})

	// ToolCalls counts MCP tool invocations by tool name and outcome.
	ToolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "oracle",
		Name:      "tool_calls_total",
		Help:      "MCP tool invocations.",
	}, []string{"tool", "outcome"})
)
