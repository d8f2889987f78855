package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Chat metrics
	chatRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "warmth_chat_requests_total",
		Help: "Total number of chat requests processed",
	})

	chatRequestLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "warmth_chat_request_duration_seconds",
		Help:    "Chat request latency in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60}, // LLM bound
	})

	chatOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warmth_chat_outcomes_total",
		Help: "Chat replies by outcome (reply, crisis, refusal, fallback)",
	}, []string{"outcome"})

	// Inference metrics
	llmLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "warmth_llm_request_duration_seconds",
		Help:    "Inference endpoint latency in seconds",
		Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"status"})

	// Background work metrics
	idleTimersArmed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "warmth_idle_timers_armed_total",
		Help: "Idle timers armed or re-armed",
	})

	idleRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warmth_idle_runs_total",
		Help: "Idle background runs by outcome",
	}, []string{"outcome"})

	extractionRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warmth_extraction_runs_total",
		Help: "Fact extraction runs by path and outcome",
	}, []string{"path", "outcome"})

	factsSaved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "warmth_facts_saved_total",
		Help: "Facts persisted after deduplication",
	})

	poolTasks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warmth_worker_pool_tasks_total",
		Help: "Worker pool tasks by outcome",
	}, []string{"outcome"})

	poolQueued = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "warmth_worker_pool_queued",
		Help: "Tasks waiting for a worker",
	})
)
