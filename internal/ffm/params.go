// Fieldfm - Field-aware Factorization Machine Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldfm

package ffm

import (
	"fmt"

	"github.com/tomtom215/fieldfm/internal/validation"
)

// Params contains training configuration.
type Params struct {
	// Eta is the base AdaGrad learning rate.
	// Default: 0.2.
	Eta float32 `koanf:"eta" validate:"gt=0"`

	// Lambda is the L2 regularization coefficient.
	// Default: 2e-5.
	Lambda float32 `koanf:"lambda" validate:"gte=0"`

	// NrIters is the epoch cap used by callers that drive a full fit.
	// Iteration itself runs exactly one epoch.
	// Default: 15.
	NrIters int `koanf:"nr_iters" validate:"gte=1"`

	// K is the latent dimension. Must match the model's k.
	// Default: 4.
	K int `koanf:"k" validate:"gt=0,lte=1024"`

	// Normalization scales every instance to unit squared norm.
	// Must match the model and the problem.
	// Default: true.
	Normalization bool `koanf:"normalization"`

	// AutoStop stops a fit when validation loss rises and restores the
	// previous epoch's weights. Requires a validation problem.
	// Default: false.
	AutoStop bool `koanf:"auto_stop"`

	// Workers is the number of Hogwild goroutines used by a Trainer.
	// 0 and 1 both mean a single goroutine.
	// Default: 1.
	Workers int `koanf:"workers" validate:"gte=0,lte=1024"`

	// Shuffle randomizes instance order every epoch in a Trainer.
	// Default: true.
	Shuffle bool `koanf:"shuffle"`

	// Seed drives weight initialization and shuffling.
	// Default: 42.
	Seed int64 `koanf:"seed"`
}

// DefaultParams returns the default training parameters.
func DefaultParams() Params {
	return Params{
		Eta:           0.2,
		Lambda:        2e-5,
		NrIters:       15,
		K:             4,
		Normalization: true,
		AutoStop:      false,
		Workers:       1,
		Shuffle:       true,
		Seed:          42,
	}
}

// Validate checks parameter ranges.
func (p *Params) Validate() error {
	if verr := validation.ValidateStruct(p); verr != nil {
		return fmt.Errorf("%w: %s", ErrInvalidParams, verr.Error())
	}
	return nil
}

// workers returns the effective goroutine count.
func (p *Params) workers() int {
	if p.Workers < 1 {
		return 1
	}
	return p.Workers
}
