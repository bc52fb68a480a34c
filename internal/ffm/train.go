// Fieldfm - Field-aware Factorization Machine Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldfm

package ffm

import (
	"math"
	"math/rand"
	"sync"

	"github.com/samber/lo"
)

// Iteration runs one epoch over the problem in instance order on the calling
// goroutine and returns the average logistic loss.
//
// Shape and bounds are checked before any weight is touched. An empty
// problem is a no-op returning zero.
func Iteration(p *Problem, m *Model, params Params) (float64, error) {
	if err := params.Validate(); err != nil {
		return 0, err
	}
	if err := m.checkCompatible(p, &params); err != nil {
		return 0, err
	}
	if p.Size() == 0 {
		return 0, nil
	}

	var loss float64
	for i := 0; i < p.Size(); i++ {
		loss += m.step(p, i, params.Eta, params.Lambda)
	}
	return loss / float64(p.Size()), nil
}

// Trainer runs epochs with per-epoch shuffling and optional Hogwild workers.
// The shuffle order is owned by the Trainer; one Trainer must not run two
// epochs at the same time.
type Trainer struct {
	params Params
	rng    *rand.Rand
	order  []int
}

// NewTrainer creates a trainer for the given parameters.
func NewTrainer(params Params) (*Trainer, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Trainer{
		params: params,
		//nolint:gosec // G404: math/rand is acceptable for shuffling (not security)
		rng: rand.New(rand.NewSource(params.Seed)),
	}, nil
}

// Params returns the trainer's parameters.
func (t *Trainer) Params() Params {
	return t.params
}

// Iteration runs one epoch and returns the average logistic loss.
//
// With Workers > 1 the shuffled order is split into disjoint chunks, one per
// goroutine, and every goroutine updates the shared weight store without
// synchronization. Results are then not bit-reproducible across runs.
func (t *Trainer) Iteration(p *Problem, m *Model) (float64, error) {
	if err := m.checkCompatible(p, &t.params); err != nil {
		return 0, err
	}
	size := p.Size()
	if size == 0 {
		return 0, nil
	}

	if len(t.order) != size {
		t.order = lo.Range(size)
	}
	if t.params.Shuffle {
		t.rng.Shuffle(size, func(i, j int) {
			t.order[i], t.order[j] = t.order[j], t.order[i]
		})
	}

	eta, lambda := t.params.Eta, t.params.Lambda
	workers := min(t.params.workers(), size)

	if workers == 1 {
		var loss float64
		for _, i := range t.order {
			loss += m.step(p, i, eta, lambda)
		}
		return loss / float64(size), nil
	}

	chunks := lo.Chunk(t.order, (size+workers-1)/workers)
	losses := make([]float64, len(chunks))

	var wg sync.WaitGroup
	for c, chunk := range chunks {
		wg.Add(1)
		go func(c int, chunk []int) {
			defer wg.Done()
			var loss float64
			for _, i := range chunk {
				loss += m.step(p, i, eta, lambda)
			}
			losses[c] = loss
		}(c, chunk)
	}
	wg.Wait()

	return lo.Sum(losses) / float64(size), nil
}

// step scores instance i, applies the AdaGrad update to every interacting
// pair and returns the instance loss.
func (m *Model) step(p *Problem, i int, eta, lambda float32) float64 {
	nodes := p.Nodes(i)
	r := p.Scale(i)

	y := float32(-1)
	if p.Label(i) > 0 {
		y = 1
	}

	margin := float64(y) * m.score(nodes, r)
	kappa := -float64(y) / (1 + math.Exp(margin))

	k := m.k
	for a := 0; a < len(nodes); a++ {
		j1, f1 := int(nodes[a].Feature), int(nodes[a].Field)
		for b := a + 1; b < len(nodes); b++ {
			j2, f2 := int(nodes[b].Feature), int(nodes[b].Field)
			w1 := m.w.block(j1, f2)
			w2 := m.w.block(j2, f1)
			kv := float32(kappa * pairCoef(nodes[a].Value, nodes[b].Value, r))

			wg1, wg2 := w1[k:], w2[k:]
			for d := 0; d < k; d++ {
				g1 := lambda*w1[d] + kv*w2[d]
				g2 := lambda*w2[d] + kv*w1[d]

				wg1[d] += g1 * g1
				wg2[d] += g2 * g2

				w1[d] -= eta * g1 / sqrt32(wg1[d])
				w2[d] -= eta * g2 / sqrt32(wg2[d])
			}
		}
	}
	return logisticLoss(margin)
}

// logisticLoss is log(1 + exp(-margin)) without overflow for large |margin|.
func logisticLoss(margin float64) float64 {
	if margin > 0 {
		return math.Log1p(math.Exp(-margin))
	}
	return -margin + math.Log1p(math.Exp(margin))
}

func sqrt32(x float32) float32 {
	return float32(math.Sqrt(float64(x)))
}
