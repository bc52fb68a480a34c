// Fieldfm - Field-aware Factorization Machine Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldfm

package ffm

import (
	"fmt"
	"math"
	"math/rand"
)

// accumulatorInit is the starting value of every AdaGrad accumulator.
const accumulatorInit = 1.0

// Model holds the FFM parameters for n fields, m features and latent
// dimension k. The weight store is mutated in place by training.
type Model struct {
	n             int
	m             int
	k             int
	normalization bool
	w             *WeightStore
}

// NewModel allocates a model and fills the latent weights with values drawn
// uniformly from [0, 1/sqrt(k)). Accumulators start at 1. The same seed
// always produces the same weights.
func NewModel(n, m, k int, normalization bool, seed int64) (*Model, error) {
	model, err := newEmptyModel(n, m, k, normalization)
	if err != nil {
		return nil, err
	}

	//nolint:gosec // G404: math/rand is acceptable for ML initialization (not security)
	rng := rand.New(rand.NewSource(seed))
	coef := float32(1 / math.Sqrt(float64(k)))

	data := model.w.data
	for off := 0; off < len(data); off += 2 * k {
		for d := 0; d < k; d++ {
			data[off+d] = coef * rng.Float32()
		}
		for d := k; d < 2*k; d++ {
			data[off+d] = accumulatorInit
		}
	}
	return model, nil
}

// newEmptyModel allocates a zero-filled model for decoding.
func newEmptyModel(n, m, k int, normalization bool) (*Model, error) {
	w, err := newWeightStore(n, m, k)
	if err != nil {
		return nil, err
	}
	return &Model{n: n, m: m, k: k, normalization: normalization, w: w}, nil
}

// InitModel creates a randomly initialized model sized for the problem.
func InitModel(p *Problem, params Params) (*Model, error) {
	if params.K <= 0 {
		return nil, fmt.Errorf("%w: k=%d must be positive", ErrInvalidParams, params.K)
	}
	if params.Normalization != p.Normalized() {
		return nil, fmt.Errorf("%w: params normalization=%t, problem normalization=%t",
			ErrShapeMismatch, params.Normalization, p.Normalized())
	}
	return NewModel(p.NumFields(), p.NumFeatures(), params.K, params.Normalization, params.Seed)
}

// NumFields returns n.
func (m *Model) NumFields() int { return m.n }

// NumFeatures returns m.
func (m *Model) NumFeatures() int { return m.m }

// K returns the latent dimension.
func (m *Model) K() int { return m.k }

// Normalization reports whether the model expects normalized instances.
func (m *Model) Normalization() bool { return m.normalization }

// Len returns the weight store length, m*n*2k.
func (m *Model) Len() int { return m.w.Len() }

// Weights returns a copy of the full weight store.
func (m *Model) Weights() []float32 { return m.w.Values() }

// Slot returns a copy of the 2k block of (feature, field).
func (m *Model) Slot(feature, field int) ([]float32, error) {
	b, err := m.w.Slot(feature, field)
	if err != nil {
		return nil, err
	}
	out := make([]float32, len(b))
	copy(out, b)
	return out, nil
}

// Clone returns a deep copy. The copy is safe to read while the original
// keeps training.
func (m *Model) Clone() *Model {
	c := *m
	c.w = m.w.clone()
	return &c
}

// checkCompatible validates params and problem against the model before
// anything is mutated.
func (m *Model) checkCompatible(p *Problem, params *Params) error {
	if params != nil {
		if params.K != m.k {
			return fmt.Errorf("%w: params k=%d, model k=%d", ErrShapeMismatch, params.K, m.k)
		}
		if params.Normalization != m.normalization {
			return fmt.Errorf("%w: params normalization=%t, model normalization=%t",
				ErrShapeMismatch, params.Normalization, m.normalization)
		}
	}
	if p.Normalized() != m.normalization {
		return fmt.Errorf("%w: problem normalization=%t, model normalization=%t",
			ErrShapeMismatch, p.Normalized(), m.normalization)
	}
	if p.NumFields() > m.n {
		return fmt.Errorf("%w: problem uses field %d, model has %d fields",
			ErrFieldOutOfRange, p.NumFields()-1, m.n)
	}
	if p.NumFeatures() > m.m {
		return fmt.Errorf("%w: problem uses feature %d, model has %d features",
			ErrFeatureOutOfRange, p.NumFeatures()-1, m.m)
	}
	return nil
}

// checkNodes validates raw nodes against the model bounds.
func (m *Model) checkNodes(nodes []Node) error {
	for i, nd := range nodes {
		if nd.Field < 0 || int(nd.Field) >= m.n {
			return fmt.Errorf("%w: node %d field %d not in [0,%d)", ErrFieldOutOfRange, i, nd.Field, m.n)
		}
		if nd.Feature < 0 || int(nd.Feature) >= m.m {
			return fmt.Errorf("%w: node %d feature %d not in [0,%d)", ErrFeatureOutOfRange, i, nd.Feature, m.m)
		}
	}
	return nil
}

// score computes the raw pairwise interaction sum of one instance.
func (m *Model) score(nodes []Node, r float64) float64 {
	var s float64
	for a := 0; a < len(nodes); a++ {
		j1, f1 := int(nodes[a].Feature), int(nodes[a].Field)
		for b := a + 1; b < len(nodes); b++ {
			j2, f2 := int(nodes[b].Feature), int(nodes[b].Field)
			w1 := m.w.block(j1, f2)
			w2 := m.w.block(j2, f1)
			s += pairCoef(nodes[a].Value, nodes[b].Value, r) * float64(latentDot(m.k, w1, w2))
		}
	}
	return s
}

// pairCoef is v1*v2*r in float64, where the product of two finite float32
// values cannot overflow.
func pairCoef(v1, v2 float32, r float64) float64 {
	return float64(v1) * r * float64(v2)
}
