// Fieldfm - Field-aware Factorization Machine Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldfm

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/fieldfm/internal/config"
)

// RouterConfig configures NewRouter.
type RouterConfig struct {
	Middleware *ChiMiddlewareConfig

	// MaxBatch caps instances per predict request.
	MaxBatch int

	// PredictWorkers fans a batch out over goroutines.
	PredictWorkers int

	// MaxBodyBytes caps the predict request body.
	MaxBodyBytes int64
}

// RouterConfigFromServer maps the server configuration section.
func RouterConfigFromServer(cfg *config.ServerConfig) RouterConfig {
	mw := DefaultChiMiddlewareConfig()
	mw.CORSAllowedOrigins = cfg.CORSOrigins
	mw.RateLimitRequests = cfg.RateLimit
	mw.RateLimitWindow = time.Minute

	return RouterConfig{
		Middleware:     mw,
		MaxBatch:       cfg.MaxBatch,
		PredictWorkers: cfg.PredictWorkers,
	}
}

// NewRouter builds the HTTP handler serving the model in holder.
func NewRouter(cfg RouterConfig, holder *ModelHolder) http.Handler {
	h := NewHandler(holder, cfg)
	mw := NewChiMiddleware(cfg.Middleware)

	r := chi.NewRouter()

	// ========================
	// Global Middleware Stack
	// ========================
	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(mw.CORS()) // CORS must be global to handle OPTIONS preflight

	// ========================
	// Health Endpoints
	// ========================
	// Not rate limited so probes never flap.
	r.Route("/api/v1/health", func(r chi.Router) {
		r.Get("/live", h.HealthLive)
		r.Get("/ready", h.HealthReady)
	})

	// ========================
	// Model Endpoints
	// ========================
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mw.RateLimit())
		r.Use(PrometheusMetrics())
		r.Use(chimiddleware.Compress(5, "application/json"))

		r.Post("/predict", h.Predict)
		r.Get("/model", h.ModelInfo)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
