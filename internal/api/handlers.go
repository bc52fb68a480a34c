// Fieldfm - Field-aware Factorization Machine Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldfm

package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/fieldfm/internal/ffm"
	"github.com/tomtom215/fieldfm/internal/logging"
	"github.com/tomtom215/fieldfm/internal/metrics"
	"github.com/tomtom215/fieldfm/internal/validation"
)

const defaultMaxBodyBytes = 32 << 20

// Handler serves the API endpoints.
type Handler struct {
	holder       *ModelHolder
	maxBatch     int
	workers      int
	maxBodyBytes int64
	startTime    time.Time
}

// NewHandler creates a handler for holder.
//
//nolint:gocritic // cfg is read once at construction
func NewHandler(holder *ModelHolder, cfg RouterConfig) *Handler {
	h := &Handler{
		holder:       holder,
		maxBatch:     cfg.MaxBatch,
		workers:      max(cfg.PredictWorkers, 1),
		maxBodyBytes: cfg.MaxBodyBytes,
		startTime:    time.Now(),
	}
	if h.maxBatch <= 0 {
		h.maxBatch = 10000
	}
	if h.maxBodyBytes <= 0 {
		h.maxBodyBytes = defaultMaxBodyBytes
	}
	return h
}

// PredictRequest is the body of POST /api/v1/predict.
type PredictRequest struct {
	Instances [][]ffm.Node `json:"instances" validate:"required,min=1"`
}

// PredictResponse holds one probability per instance, in request order.
type PredictResponse struct {
	Scores       []float64 `json:"scores"`
	ModelVersion int       `json:"model_version"`
}

// ModelInfoResponse describes the model being served.
type ModelInfoResponse struct {
	Name          string    `json:"name"`
	Version       int       `json:"version"`
	Fields        int       `json:"fields"`
	Features      int       `json:"features"`
	K             int       `json:"k"`
	Normalization bool      `json:"normalization"`
	Weights       int       `json:"weights"`
	Checksum      string    `json:"checksum,omitempty"`
	TrainedAt     time.Time `json:"trained_at"`
	LoadedAt      time.Time `json:"loaded_at"`
	TrainLoss     float64   `json:"tr_logloss"`
	ValidLoss     float64   `json:"va_logloss,omitempty"`
}

// Predict scores a batch of instances with the current model.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	model, meta, ok := h.holder.Get()
	if !ok {
		metrics.RecordPredict("unavailable", 0, 0)
		writeError(w, r, http.StatusServiceUnavailable, ErrCodeNotReady, "No model loaded", nil)
		return
	}

	var req PredictRequest
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		metrics.RecordPredict("bad_request", 0, 0)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, ErrCodeRequestTooLarge,
				fmt.Sprintf("Request body exceeds %d bytes", tooLarge.Limit), nil)
			return
		}
		writeError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON body", err.Error())
		return
	}

	if verr := validation.ValidateStruct(&req); verr != nil {
		metrics.RecordPredict("bad_request", 0, 0)
		apiErr := verr.ToAPIError()
		writeError(w, r, http.StatusBadRequest, apiErr.Code, apiErr.Message, apiErr.Details)
		return
	}
	if len(req.Instances) > h.maxBatch {
		metrics.RecordPredict("bad_request", 0, 0)
		writeError(w, r, http.StatusBadRequest, ErrCodeValidation,
			fmt.Sprintf("Batch of %d instances exceeds the limit of %d", len(req.Instances), h.maxBatch), nil)
		return
	}

	scores, err := scoreInstances(req.Instances, model, h.workers)
	if err != nil {
		metrics.RecordPredict("bad_request", 0, 0)
		writeError(w, r, http.StatusBadRequest, ErrCodeValidation, err.Error(), nil)
		return
	}

	metrics.RecordPredict("ok", len(scores), time.Since(start))
	writeJSON(w, http.StatusOK, &PredictResponse{Scores: scores, ModelVersion: meta.Version})
}

// scoreInstances builds a problem matching the model's normalization and
// scores it. Index errors are returned as-is for a 400.
func scoreInstances(instances [][]ffm.Node, model *ffm.Model, workers int) ([]float64, error) {
	labels := make([]float32, len(instances))
	p, err := ffm.BuildProblem(instances, labels, model.Normalization())
	if err != nil {
		return nil, err
	}
	if workers > 1 && p.Size() > workers {
		return ffm.PredictBatchParallel(p, model, workers)
	}
	return ffm.PredictBatch(p, model)
}

// ModelInfo returns the shape and registry metadata of the current model.
func (h *Handler) ModelInfo(w http.ResponseWriter, r *http.Request) {
	model, meta, ok := h.holder.Get()
	if !ok {
		writeError(w, r, http.StatusServiceUnavailable, ErrCodeNotReady, "No model loaded", nil)
		return
	}

	writeJSON(w, http.StatusOK, &ModelInfoResponse{
		Name:          meta.Name,
		Version:       meta.Version,
		Fields:        model.NumFields(),
		Features:      model.NumFeatures(),
		K:             model.K(),
		Normalization: model.Normalization(),
		Weights:       model.Len(),
		Checksum:      meta.Checksum,
		TrainedAt:     meta.TrainedAt,
		LoadedAt:      h.holder.LoadedAt(),
		TrainLoss:     meta.TrainLoss,
		ValidLoss:     meta.ValidLoss,
	})
}

// HealthLive handles liveness probe requests.
// Returns 200 OK while the process is alive.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"alive":  true,
		"uptime": time.Since(h.startTime).Seconds(),
	})
}

// HealthReady handles readiness probe requests.
// Returns 200 OK only once a model is loaded.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	_, _, ready := h.holder.Get()
	version := h.holder.Version()

	statusCode := http.StatusOK
	status := "ready"
	if !ready {
		statusCode = http.StatusServiceUnavailable
		status = "not_ready"
		logging.Ctx(r.Context()).Debug().Msg("readiness probe failed: no model loaded")
	}

	writeJSON(w, statusCode, map[string]any{
		"status":        status,
		"model_loaded":  ready,
		"model_version": version,
		"uptime":        time.Since(h.startTime).Seconds(),
	})
}
