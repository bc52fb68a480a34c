// Fieldfm - Field-aware Factorization Machine Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldfm

// Package services adapts fieldfm components to suture.Service.
//
// Each service blocks in Serve until its context is canceled, returns
// ctx.Err() on shutdown, and implements fmt.Stringer so supervisor events
// name it:
//
//   - APIService runs the prediction *http.Server, draining in-flight
//     requests on shutdown and closing what is left at the drain timeout.
//   - ReloadService polls the model registry and swaps newer versions into
//     the served ModelHolder.
//   - RetrainService retrains on a schedule and saves each result as a new
//     registry version.
package services
