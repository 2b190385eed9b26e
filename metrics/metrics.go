// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package metrics exposes Prometheus collectors for the HTTP surface and
// the LLM orchestrator.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus metrics
var (
	promRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentline_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "path", "status"},
	)
	promRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agentline_request_duration_milliseconds",
			Help:    "HTTP request duration in milliseconds",
			Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000, 10000},
		},
		[]string{"method", "path"},
	)
	promLLMAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentline_llm_attempts_total",
			Help: "Total number of LLM credential attempts by outcome",
		},
		[]string{"provider", "outcome"},
	)
	promLLMAttemptDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agentline_llm_attempt_duration_seconds",
			Help:    "Duration of individual LLM provider calls in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 45},
		},
		[]string{"provider"},
	)
	promLLMTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentline_llm_tokens_total",
			Help: "Total tokens consumed by successful completions",
		},
		[]string{"provider", "model"},
	)
	promLLMCost = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentline_llm_cost_usd_total",
			Help: "Cumulative USD cost of successful completions",
		},
		[]string{"provider", "model"},
	)
)

func init() {
	// Register Prometheus metrics
	prometheus.MustRegister(promRequestsTotal)
	prometheus.MustRegister(promRequestDuration)
	prometheus.MustRegister(promLLMAttempts)
	prometheus.MustRegister(promLLMAttemptDuration)
	prometheus.MustRegister(promLLMTokens)
	prometheus.MustRegister(promLLMCost)
}

// ObserveRequest records one handled HTTP request.
func ObserveRequest(method, path, status string, durationMS float64) {
	promRequestsTotal.WithLabelValues(method, path, status).Inc()
	promRequestDuration.WithLabelValues(method, path).Observe(durationMS)
}

// LLMRecorder feeds the orchestrator's attempt and usage observations into
// Prometheus. It satisfies llm.Recorder.
type LLMRecorder struct{}

// NewLLMRecorder creates the Prometheus-backed orchestrator recorder.
func NewLLMRecorder() *LLMRecorder {
	return &LLMRecorder{}
}

// ObserveAttempt records one credential attempt and its outcome.
func (r *LLMRecorder) ObserveAttempt(provider, outcome string, seconds float64) {
	promLLMAttempts.WithLabelValues(provider, outcome).Inc()
	promLLMAttemptDuration.WithLabelValues(provider).Observe(seconds)
}

// ObserveUsage records tokens and cost of a successful completion.
func (r *LLMRecorder) ObserveUsage(provider, model string, tokens int, costUSD float64) {
	promLLMTokens.WithLabelValues(provider, model).Add(float64(tokens))
	promLLMCost.WithLabelValues(provider, model).Add(costUSD)
}
