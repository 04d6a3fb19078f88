package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TrainingsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nlu_trainings_started_total",
		Help: "Number of training runs started",
	})

	TrainingsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nlu_trainings_completed_total",
		Help: "Number of training runs finished, by outcome",
	}, []string{"status"})

	TrainingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "nlu_training_duration_seconds",
		Help:    "Wall time of one training run",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	PredictionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nlu_predictions_total",
		Help: "Number of predictions served, by outcome",
	}, []string{"status"})

	PredictionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "nlu_prediction_latency_seconds",
		Help:    "End-to-end prediction latency",
		Buckets: prometheus.DefBuckets,
	})

	ProviderRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nlu_langserver_requests_total",
		Help: "Requests to the language servers, by operation and outcome",
	}, []string{"operation", "status"})
)
