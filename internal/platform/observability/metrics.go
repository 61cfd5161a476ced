package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ContentProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "readstack_content_processed_total",
		Help: "The total number of content items processed, by type and terminal status",
	}, []string{"type", "status"})

	FetchRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "readstack_fetch_requests_total",
		Help: "Total number of HTTP fetch requests by result",
	}, []string{"result"})

	FetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "readstack_fetch_duration_seconds",
		Help:    "Duration of HTTP content fetches",
		Buckets: prometheus.DefBuckets,
	})

	ExtractionResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "readstack_extraction_results_total",
		Help: "Total number of extraction attempts by strategy and result",
	}, []string{"strategy", "result"})

	GatePagesDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "readstack_gate_pages_detected_total",
		Help: "Total number of gate/challenge pages detected, by fallback availability",
	}, []string{"rss_fallback"})

	LLMRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "readstack_llm_request_duration_seconds",
		Help:    "Duration of LLM summarization requests",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
	}, []string{"model"})

	LLMTruncationRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "readstack_llm_truncation_retries_total",
		Help: "Total number of summarization retries after context overflow truncation",
	})

	CanonicalConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "readstack_canonical_conflicts_total",
		Help: "Total number of canonical URL conflicts by resolution outcome",
	}, []string{"outcome"})

	MetadataMerges = promauto.NewCounter(prometheus.CounterOpts{
		Name: "readstack_metadata_merges_total",
		Help: "Total number of metadata merge commits",
	})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "readstack_queue_depth",
		Help: "Current number of pending tasks in the queue",
	})

	TasksProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "readstack_tasks_processed_total",
		Help: "Total number of queue tasks processed by type and result",
	}, []string{"task_type", "result"})

	Transcriptions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "readstack_transcriptions_total",
		Help: "Total number of podcast transcriptions by result",
	}, []string{"result"})

	DiscussionFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "readstack_discussion_fetches_total",
		Help: "Total number of discussion lookups by result",
	}, []string{"result"})
)
