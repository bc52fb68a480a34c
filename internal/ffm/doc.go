// Fieldfm - Field-aware Factorization Machine Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldfm

// Package ffm implements the numerical engine for Field-aware Factorization
// Machines: sparse problem layout, latent weight storage with AdaGrad
// accumulators, SGD training epochs, prediction and model persistence.
//
// # Data Flow
//
// A caller builds a Problem once, creates or loads a Model, and then invokes
// an epoch function repeatedly until its own stopping criterion is met:
//
//	prob, err := ffm.BuildProblem(rows, labels, true)
//	if err != nil {
//	    return err
//	}
//
//	params := ffm.DefaultParams()
//	model, err := ffm.InitModel(prob, params)
//	if err != nil {
//	    return err
//	}
//
//	for i := 0; i < params.NrIters; i++ {
//	    loss, err := ffm.Iteration(prob, model, params)
//	    if err != nil {
//	        return err
//	    }
//	    _ = loss
//	}
//
//	p, err := ffm.Predict(rows[0], model)
//
// # Scoring
//
// The raw score of an instance with nodes (f_t, j_t, v_t) and scale r is
//
//	s = sum_{t<u} v_t * v_u * r * <W[j_t][f_u], W[j_u][f_t]>
//
// where W[j][f] is the k-dimensional latent vector of feature j for field f.
// Predictions are sigmoid(s). Training minimizes log(1 + exp(-y*s)) with
// per-coordinate AdaGrad steps and L2 regularization.
//
// # Weight Layout
//
// The weight store is a single []float32 of length m*n*2k indexed as
// W[feature][field][slot]. Slots [0,k) are latent weights and slots [k,2k)
// are the AdaGrad accumulators, initialized to 1.
//
// # Thread Safety
//
// Problem is immutable after Build and may be shared freely. Model geometry
// (n, m, k) never changes. The weight store is intentionally unsynchronized:
// a Trainer with more than one worker runs Hogwild-style SGD where goroutines
// read and write the same store without locks or atomics. Races on individual
// coordinates are expected and tolerated by the stochastic method. Callers
// that need a consistent view for serving must Clone the model or stop
// training first.
//
// Errors are returned as wrapped sentinels; use errors.Is to match them.
package ffm
