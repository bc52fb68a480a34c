// Fieldfm - Field-aware Factorization Machine Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldfm

package ffm

import (
	"math"
	"sync"
)

// Predict returns the probability sigmoid(s) for one instance. When the
// model is normalized the scale is computed from the nodes the same way the
// problem builder does.
func Predict(nodes []Node, m *Model) (float64, error) {
	if err := m.checkNodes(nodes); err != nil {
		return 0, err
	}
	r := 1.0
	if m.normalization {
		r = instanceScale(nodes)
	}
	return sigmoid(m.score(nodes, r)), nil
}

// PredictBatch returns one probability per instance, in instance order.
func PredictBatch(p *Problem, m *Model) ([]float64, error) {
	if err := m.checkCompatible(p, nil); err != nil {
		return nil, err
	}
	out := make([]float64, p.Size())
	for i := range out {
		out[i] = sigmoid(m.score(p.Nodes(i), p.Scale(i)))
	}
	return out, nil
}

// PredictBatchParallel is PredictBatch fanned out over workers goroutines.
// The model is only read, so it must not be trained concurrently.
func PredictBatchParallel(p *Problem, m *Model, workers int) ([]float64, error) {
	if err := m.checkCompatible(p, nil); err != nil {
		return nil, err
	}
	size := p.Size()
	out := make([]float64, size)
	workers = max(1, min(workers, size))

	var wg sync.WaitGroup
	per := (size + workers - 1) / workers
	for start := 0; start < size; start += per {
		end := min(start+per, size)
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				out[i] = sigmoid(m.score(p.Nodes(i), p.Scale(i)))
			}
		}(start, end)
	}
	wg.Wait()
	return out, nil
}

// LogLoss returns the average logistic loss of the model on the problem
// without updating any weight.
func LogLoss(p *Problem, m *Model) (float64, error) {
	if err := m.checkCompatible(p, nil); err != nil {
		return 0, err
	}
	if p.Size() == 0 {
		return 0, nil
	}
	var loss float64
	for i := 0; i < p.Size(); i++ {
		y := -1.0
		if p.Label(i) > 0 {
			y = 1
		}
		s := m.score(p.Nodes(i), p.Scale(i))
		loss += logisticLoss(y * s)
	}
	return loss / float64(p.Size()), nil
}

func sigmoid(s float64) float64 {
	return 1 / (1 + math.Exp(-s))
}
