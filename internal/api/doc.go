// Fieldfm - Field-aware Factorization Machine Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldfm

/*
Package api provides the HTTP prediction API for fieldfm.

Endpoints:

	POST /api/v1/predict        score instances with the current model
	GET  /api/v1/model          shape and registry metadata of the current model
	GET  /api/v1/health/live    liveness probe, always 200
	GET  /api/v1/health/ready   readiness probe, 503 until a model is loaded
	GET  /metrics               Prometheus metrics

Predict request and response:

	{"instances": [[{"field": 0, "feature": 12, "value": 1.0},
	                {"field": 1, "feature": 40, "value": 0.5}]]}

	{"scores": [0.8124], "model_version": 3}

The model being served lives in a ModelHolder. The reload service swaps
in newer registry versions without restarting the server; requests in
flight keep the model they started with.

Middleware: request ID with logging context, real IP, panic recovery,
go-chi/cors and per-IP go-chi/httprate limiting on /api/v1.
*/
package api
