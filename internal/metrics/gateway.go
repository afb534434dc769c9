// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package metrics owns the process-wide Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "querygate_queries_total",
		Help: "Gateway requests by final outcome",
	}, []string{"outcome"}) // outcome=success|clarification|blocked|input_rejected|generation_exhausted|proposer_unavailable|execution_error

	queryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "querygate_query_duration_seconds",
		Help:    "End-to-end gateway latency by outcome",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"outcome"})

	proposalAttempts = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "querygate_proposal_attempts",
		Help:    "Proposer calls made per request",
		Buckets: []float64{1, 2, 3, 4, 5},
	})

	guardVerdicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "querygate_guard_verdicts_total",
		Help: "SQL guard verdicts by code (accepted or rejection code)",
	}, []string{"code"})

	proposerCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "querygate_proposer_calls_total",
		Help: "Proposer calls by result",
	}, []string{"result"}) // result=sql|clarification|blocked|error

	proposerDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "querygate_proposer_duration_seconds",
		Help:    "Proposer call latency",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	})

	executorDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "querygate_executor_duration_seconds",
		Help:    "Executor latency by result",
		Buckets: prometheus.DefBuckets,
	}, []string{"result"}) // result=ok|timeout|error

	executorRows = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "querygate_executor_rows",
		Help:    "Rows returned per executed statement",
		Buckets: []float64{0, 1, 10, 50, 100, 250, 500, 1000},
	})

	intakeRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "querygate_intake_rejections_total",
		Help: "Requests stopped by the input gate by reason",
	}, []string{"reason"})

	stateExtractionFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "querygate_state_extraction_failures_total",
		Help: "State extraction failures that fell back to the previous state",
	})

	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "querygate_proposal_cache_lookups_total",
		Help: "Proposal cache lookups by result",
	}, []string{"result"}) // result=hit|miss|shared
)

// RecordQuery records the final outcome and latency of one gateway request.
func RecordQuery(outcome string, d time.Duration) {
	queriesTotal.WithLabelValues(outcome).Inc()
	queryDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// ObserveProposalAttempts records how many proposer calls a request needed.
func ObserveProposalAttempts(n int) {
	proposalAttempts.Observe(float64(n))
}

// RecordGuardVerdict records one guard verdict. code is "accepted" or a rejection code.
func RecordGuardVerdict(code string) {
	guardVerdicts.WithLabelValues(code).Inc()
}

// RecordProposerCall records one proposer call.
func RecordProposerCall(result string, d time.Duration) {
	proposerCalls.WithLabelValues(result).Inc()
	proposerDuration.Observe(d.Seconds())
}

// RecordExecution records one executor call.
func RecordExecution(result string, rows int, d time.Duration) {
	executorDuration.WithLabelValues(result).Observe(d.Seconds())
	if result == "ok" {
		executorRows.Observe(float64(rows))
	}
}

// RecordIntakeRejection records a request stopped before the gateway.
func RecordIntakeRejection(reason string) {
	intakeRejections.WithLabelValues(reason).Inc()
}

// IncStateExtractionFailure counts a fallback to the previous state.
func IncStateExtractionFailure() {
	stateExtractionFailures.Inc()
}

// RecordCacheLookup records a proposal cache lookup.
func RecordCacheLookup(result string) {
	cacheLookups.WithLabelValues(result).Inc()
}
