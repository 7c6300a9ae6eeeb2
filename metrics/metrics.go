// Package metrics defines the Prometheus collectors exported by the pipeline
// and the inference service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ClassifierCalls counts text-classifier invocations by provider and outcome.
	ClassifierCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "supplychain",
		Name:      "classifier_calls_total",
		Help:      "Headline classification calls by provider and outcome.",
	}, []string{"provider", "outcome"})

	// StageRows records the row counts reported by the last run of each stage.
	StageRows = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "supplychain",
		Name:      "stage_rows",
		Help:      "Rows read, written and skipped by the last run of each stage.",
	}, []string{"stage", "kind"})

	// Predictions counts served predictions by risk flag.
	Predictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "supplychain",
		Name:      "predictions_total",
		Help:      "Delay predictions served, by risk flag.",
	}, []string{"flag"})

	// PredictionErrors counts failed prediction requests by error kind.
	PredictionErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "supplychain",
		Name:      "prediction_errors_total",
		Help:      "Failed prediction requests by kind.",
	}, []string{"kind"})

	// PredictionLatency observes model evaluation time.
	PredictionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "supplychain",
		Name:      "prediction_duration_seconds",
		Help:      "Time spent building the feature row and evaluating the model.",
		Buckets:   prometheus.ExponentialBuckets(0.00005, 4, 8),
	})
)
