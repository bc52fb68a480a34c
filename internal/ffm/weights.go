// Fieldfm - Field-aware Factorization Machine Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldfm

package ffm

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/blas/blas32"
)

// WeightStore owns the latent tensor W[feature][field][slot], 2k slots per
// (feature, field) pair: k weights followed by k AdaGrad accumulators.
//
// No synchronization: concurrent trainers write blocks without locks or
// atomics and benign races are expected. Geometry is fixed at construction.
type WeightStore struct {
	data   []float32
	n      int
	m      int
	k      int
	stride int
}

// storeLen returns m*n*2k, rejecting negative dimensions and overflow.
func storeLen(n, m, k int) (int, error) {
	if n < 0 || m < 0 {
		return 0, fmt.Errorf("%w: negative dimensions n=%d m=%d", ErrInvalidParams, n, m)
	}
	if k <= 0 {
		return 0, fmt.Errorf("%w: latent dimension k=%d must be positive", ErrInvalidParams, k)
	}
	if n > math.MaxInt32 || m > math.MaxInt32 || k > math.MaxInt32/2 {
		return 0, fmt.Errorf("%w: dimensions n=%d m=%d k=%d exceed int32", ErrInvalidParams, n, m, k)
	}
	if n == 0 || m == 0 {
		return 0, nil
	}
	block := 2 * k
	if m > math.MaxInt/n || m*n > math.MaxInt/block {
		return 0, fmt.Errorf("%w: weight store m*n*2k overflows (n=%d m=%d k=%d)", ErrInvalidParams, n, m, k)
	}
	return m * n * block, nil
}

func newWeightStore(n, m, k int) (*WeightStore, error) {
	size, err := storeLen(n, m, k)
	if err != nil {
		return nil, err
	}
	return &WeightStore{
		data:   make([]float32, size),
		n:      n,
		m:      m,
		k:      k,
		stride: 2 * k,
	}, nil
}

// Len returns the number of floats held, always m*n*2k.
func (w *WeightStore) Len() int {
	return len(w.data)
}

// Slot returns the 2k block of (feature, field). The block aliases the store.
func (w *WeightStore) Slot(feature, field int) ([]float32, error) {
	if feature < 0 || feature >= w.m {
		return nil, fmt.Errorf("%w: feature %d not in [0,%d)", ErrFeatureOutOfRange, feature, w.m)
	}
	if field < 0 || field >= w.n {
		return nil, fmt.Errorf("%w: field %d not in [0,%d)", ErrFieldOutOfRange, field, w.n)
	}
	return w.block(feature, field), nil
}

// block is Slot without the range checks. Callers validate indices up front;
// slicing still panics on a bad index rather than touching foreign memory.
func (w *WeightStore) block(feature, field int) []float32 {
	off := (feature*w.n + field) * w.stride
	return w.data[off : off+w.stride : off+w.stride]
}

// Values returns a copy of the raw store in persisted order.
func (w *WeightStore) Values() []float32 {
	out := make([]float32, len(w.data))
	copy(out, w.data)
	return out
}

func (w *WeightStore) clone() *WeightStore {
	c := *w
	c.data = w.Values()
	return &c
}

// latentDot is the inner product of the weight halves of two blocks.
func latentDot(k int, a, b []float32) float32 {
	return blas32.Dot(
		blas32.Vector{N: k, Data: a, Inc: 1},
		blas32.Vector{N: k, Data: b, Inc: 1},
	)
}
