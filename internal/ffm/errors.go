// Fieldfm - Field-aware Factorization Machine Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldfm

package ffm

import "errors"

var (
	// ErrNegativeIndex is returned by the problem builder for a node with a
	// negative field or feature index.
	ErrNegativeIndex = errors.New("ffm: negative field or feature index")

	// ErrLabelCount is returned when the number of labels differs from the
	// number of instances.
	ErrLabelCount = errors.New("ffm: label count does not match instance count")

	// ErrInvalidParams is returned for out-of-range training parameters or
	// model dimensions.
	ErrInvalidParams = errors.New("ffm: invalid parameters")

	// ErrShapeMismatch is returned when params, model and problem disagree on
	// latent dimension or normalization. It is always detected before any
	// weight is modified.
	ErrShapeMismatch = errors.New("ffm: shape mismatch")

	// ErrFieldOutOfRange is returned when a node's field is not below the
	// model's field count.
	ErrFieldOutOfRange = errors.New("ffm: field index out of model range")

	// ErrFeatureOutOfRange is returned when a node's feature is not below the
	// model's feature count.
	ErrFeatureOutOfRange = errors.New("ffm: feature index out of model range")

	// ErrCorruptModel is returned when persisted model data is truncated or
	// inconsistent.
	ErrCorruptModel = errors.New("ffm: corrupt model data")
)
