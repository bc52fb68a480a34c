// Fieldfm - Field-aware Factorization Machine Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldfm

// Package metrics registers the Prometheus instruments for training,
// prediction, the model registry and the HTTP API. All instruments live in
// the default registry and are exposed by the server on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Training
	TrainEpochsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fieldfm_train_epochs_total",
			Help: "Total number of completed training epochs",
		},
	)

	TrainEpochDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fieldfm_train_epoch_duration_seconds",
			Help:    "Wall time of one training epoch",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10), // 1ms .. ~4.4min
		},
	)

	TrainInstancesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fieldfm_train_instances_total",
			Help: "Total number of instances processed by training epochs",
		},
	)

	TrainLoss = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fieldfm_train_logloss",
			Help: "Average logistic loss of the most recent epoch",
		},
		[]string{"set"}, // "train", "validation"
	)

	TrainRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldfm_train_runs_total",
			Help: "Total number of finished fits by outcome",
		},
		[]string{"outcome"}, // "completed", "auto_stopped", "cancelled", "error"
	)

	// Prediction
	PredictRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldfm_predict_requests_total",
			Help: "Total number of prediction requests by outcome",
		},
		[]string{"outcome"}, // "ok", "invalid", "no_model"
	)

	PredictInstancesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fieldfm_predict_instances_total",
			Help: "Total number of instances scored",
		},
	)

	PredictDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fieldfm_predict_duration_seconds",
			Help:    "Latency of one prediction request",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10), // 10us .. ~2.6s
		},
	)

	// Model registry
	StoreOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldfm_store_operations_total",
			Help: "Model registry operations by backend, operation and status",
		},
		[]string{"backend", "operation", "status"},
	)

	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fieldfm_store_operation_duration_seconds",
			Help:    "Latency of model registry operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	ModelVersion = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fieldfm_model_version",
			Help: "Version of the model currently served",
		},
		[]string{"name"},
	)

	ModelWeights = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fieldfm_model_weights",
			Help: "Number of floats in the served model's weight store",
		},
	)

	// API
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldfm_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fieldfm_api_request_duration_seconds",
			Help:    "API request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
)

// RecordEpoch records one finished training epoch.
func RecordEpoch(duration time.Duration, instances int, trainLoss float64) {
	TrainEpochsTotal.Inc()
	TrainEpochDuration.Observe(duration.Seconds())
	TrainInstancesTotal.Add(float64(instances))
	TrainLoss.WithLabelValues("train").Set(trainLoss)
}

// RecordValidationLoss records the validation loss of the latest epoch.
func RecordValidationLoss(loss float64) {
	TrainLoss.WithLabelValues("validation").Set(loss)
}

// RecordRun records the outcome of a fit.
func RecordRun(outcome string) {
	TrainRunsTotal.WithLabelValues(outcome).Inc()
}

// RecordPredict records one prediction request.
func RecordPredict(outcome string, instances int, duration time.Duration) {
	PredictRequestsTotal.WithLabelValues(outcome).Inc()
	if outcome == "ok" {
		PredictInstancesTotal.Add(float64(instances))
		PredictDuration.Observe(duration.Seconds())
	}
}

// RecordStoreOperation records a registry call; err selects the status label.
func RecordStoreOperation(backend, operation string, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	StoreOperationsTotal.WithLabelValues(backend, operation, status).Inc()
	StoreOperationDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
}

// SetServedModel publishes the version and size of the model being served.
func SetServedModel(name string, version int, weights int) {
	ModelVersion.WithLabelValues(name).Set(float64(version))
	ModelWeights.Set(float64(weights))
}

// RecordAPIRequest records an API request.
func RecordAPIRequest(method, endpoint string, status int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
