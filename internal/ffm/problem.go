// Fieldfm - Field-aware Factorization Machine Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldfm

package ffm

import (
	"fmt"
)

// Problem is the flattened, index-addressed training layout.
//
// Instance i owns nodes[pos[i]:pos[i+1]]. A Problem is read-only once built
// and can be shared across goroutines without synchronization.
type Problem struct {
	nodes  []Node
	pos    []int
	labels []float32
	scales []float64

	// n is the field count (max field + 1), m the feature count (max feature + 1).
	n int
	m int

	normalized bool
}

// Size returns the number of instances.
func (p *Problem) Size() int {
	return len(p.labels)
}

// NumNodes returns the total node count across all instances.
func (p *Problem) NumNodes() int {
	return len(p.nodes)
}

// NumFields returns n, one plus the largest field index seen (0 if empty).
func (p *Problem) NumFields() int {
	return p.n
}

// NumFeatures returns m, one plus the largest feature index seen (0 if empty).
func (p *Problem) NumFeatures() int {
	return p.m
}

// Normalized reports whether per-instance scales were computed.
func (p *Problem) Normalized() bool {
	return p.normalized
}

// Label returns the label of instance i as given to the builder.
func (p *Problem) Label(i int) float32 {
	return p.labels[i]
}

// Scale returns the normalization scale of instance i (1 when not normalized).
func (p *Problem) Scale(i int) float64 {
	return p.scales[i]
}

// Nodes returns a view of instance i's nodes. The slice shares memory with
// the problem and must not be modified.
func (p *Problem) Nodes(i int) []Node {
	start, end := p.pos[i], p.pos[i+1]
	return p.nodes[start:end:end]
}

// Validate re-checks the structural invariants of the layout.
func (p *Problem) Validate() error {
	size := len(p.labels)
	if len(p.pos) != size+1 {
		return fmt.Errorf("ffm: problem has %d offsets for %d instances", len(p.pos), size)
	}
	if len(p.scales) != size {
		return fmt.Errorf("ffm: problem has %d scales for %d instances", len(p.scales), size)
	}
	if p.pos[0] != 0 || p.pos[size] != len(p.nodes) {
		return fmt.Errorf("ffm: problem offsets span [%d,%d], want [0,%d]", p.pos[0], p.pos[size], len(p.nodes))
	}
	for i := 0; i < size; i++ {
		if p.pos[i] > p.pos[i+1] {
			return fmt.Errorf("ffm: problem offsets decrease at instance %d", i)
		}
	}
	for _, nd := range p.nodes {
		if nd.Field < 0 || nd.Feature < 0 {
			return fmt.Errorf("%w: field=%d feature=%d", ErrNegativeIndex, nd.Field, nd.Feature)
		}
		if int(nd.Field) >= p.n {
			return fmt.Errorf("%w: field %d >= %d", ErrFieldOutOfRange, nd.Field, p.n)
		}
		if int(nd.Feature) >= p.m {
			return fmt.Errorf("%w: feature %d >= %d", ErrFeatureOutOfRange, nd.Feature, p.m)
		}
	}
	return nil
}

// Builder accumulates instances into a Problem.
//
//	b := ffm.NewBuilder(true)
//	for _, row := range rows {
//	    if err := b.Add(row.Label, row.Nodes); err != nil {
//	        return err
//	    }
//	}
//	prob := b.Build()
type Builder struct {
	p Problem
}

// NewBuilder creates an empty builder. When normalize is true every instance
// gets scale 1/sum(v^2).
func NewBuilder(normalize bool) *Builder {
	return &Builder{p: Problem{pos: []int{0}, normalized: normalize}}
}

// Add appends one instance. Node order is preserved. Nodes are copied, so
// the caller may reuse the slice.
func (b *Builder) Add(label float32, nodes []Node) error {
	for i, nd := range nodes {
		if nd.Field < 0 || nd.Feature < 0 {
			return fmt.Errorf("%w: instance %d node %d (field=%d feature=%d)",
				ErrNegativeIndex, len(b.p.labels), i, nd.Field, nd.Feature)
		}
	}

	for _, nd := range nodes {
		if f := int(nd.Field) + 1; f > b.p.n {
			b.p.n = f
		}
		if j := int(nd.Feature) + 1; j > b.p.m {
			b.p.m = j
		}
	}

	b.p.nodes = append(b.p.nodes, nodes...)
	b.p.pos = append(b.p.pos, len(b.p.nodes))
	b.p.labels = append(b.p.labels, label)

	scale := 1.0
	if b.p.normalized {
		scale = instanceScale(nodes)
	}
	b.p.scales = append(b.p.scales, scale)
	return nil
}

// Len returns the number of instances added so far.
func (b *Builder) Len() int {
	return len(b.p.labels)
}

// Build hands the accumulated problem to the caller and resets the builder.
func (b *Builder) Build() *Problem {
	p := b.p
	b.p = Problem{pos: []int{0}, normalized: p.normalized}
	return &p
}

// BuildProblem converts raw instances and parallel labels into a Problem.
// An empty input yields a valid empty Problem with n = m = 0.
func BuildProblem(rows [][]Node, labels []float32, normalize bool) (*Problem, error) {
	if len(rows) != len(labels) {
		return nil, fmt.Errorf("%w: %d instances, %d labels", ErrLabelCount, len(rows), len(labels))
	}

	total := 0
	for _, row := range rows {
		total += len(row)
	}

	b := NewBuilder(normalize)
	b.p.nodes = make([]Node, 0, total)
	b.p.pos = make([]int, 1, len(rows)+1)
	b.p.labels = make([]float32, 0, len(rows))
	b.p.scales = make([]float64, 0, len(rows))

	for i, row := range rows {
		if err := b.Add(labels[i], row); err != nil {
			return nil, err
		}
	}
	return b.Build(), nil
}
