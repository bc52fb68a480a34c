// Fieldfm - Field-aware Factorization Machine Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldfm

package ffm

// Node is one active (field, feature, value) entry of a sparse instance.
type Node struct {
	Field   int32   `json:"field"`
	Feature int32   `json:"feature"`
	Value   float32 `json:"value"`
}

// instanceScale returns 1/sum(v^2) over the nodes, or 1 if the sum is zero.
// The sum is taken in float64: squares of finite float32 values above ~1.8e19
// overflow float32 but never float64.
func instanceScale(nodes []Node) float64 {
	var norm float64
	for _, nd := range nodes {
		v := float64(nd.Value)
		norm += v * v
	}
	if norm == 0 {
		return 1
	}
	return 1 / norm
}
