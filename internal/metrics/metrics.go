// Package metrics holds the process-wide Prometheus collectors for job
// and chunk throughput. Scraped over /metrics (promhttp) by internal/httpapi.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "capgen_jobs_active",
		Help: "Jobs currently being processed",
	})

	JobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "capgen_jobs_total",
		Help: "Jobs started, by terminal status once known",
	}, []string{"status"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "capgen_stage_duration_seconds",
		Help:    "Per-stage latency",
		Buckets: []float64{0.05, 0.1, 0.2, 0.3, 0.5, 0.8, 1.0, 2.0, 5.0},
	}, []string{"stage"})

	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "capgen_errors_total",
		Help: "Error counts by stage",
	}, []string{"stage", "error_type"})

	ChunksProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "capgen_chunks_processed_total",
		Help: "Audio chunks run through the primary transcribe+fuse stage",
	})

	SpeechSegments = promauto.NewCounter(prometheus.CounterOpts{
		Name: "capgen_vad_speech_segments_total",
		Help: "Speech segments detected by VAD",
	})

	PrimaryASRConfidence = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "capgen_primary_asr_confidence",
		Help:    "Primary ASR average confidence per accepted chunk",
		Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
	})

	FuseRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "capgen_fuse_separation_upgrades_total",
		Help: "Chunks the Fuse Controller sent back for separator re-run",
	})
)
