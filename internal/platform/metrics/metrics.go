// Package metrics exposes the server's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActionsTotal counts processed player actions by action name and outcome.
	ActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "deepspire",
		Name:      "actions_total",
		Help:      "Player actions processed, labeled by action and outcome.",
	}, []string{"action", "outcome"})

	// LLMRequestsTotal counts LLM generation calls by kind (text/json) and outcome.
	LLMRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "deepspire",
		Name:      "llm_requests_total",
		Help:      "LLM generation requests, labeled by kind and outcome.",
	}, []string{"kind", "outcome"})

	// LLMRequestSeconds observes LLM call latency including retries.
	LLMRequestSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "deepspire",
		Name:      "llm_request_seconds",
		Help:      "LLM request latency in seconds.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
	})

	// ActiveSessions tracks the number of game sessions resident in memory.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "deepspire",
		Name:      "active_sessions",
		Help:      "Game sessions currently held in memory.",
	})

	// SavesTotal counts save-store writes by trigger (manual/auto/shutdown) and outcome.
	SavesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "deepspire",
		Name:      "saves_total",
		Help:      "Save-store writes, labeled by trigger and outcome.",
	}, []string{"trigger", "outcome"})
)
