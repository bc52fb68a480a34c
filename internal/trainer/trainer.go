// Fieldfm - Field-aware Factorization Machine Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldfm

// Package trainer drives full fits of an FFM model: the epoch loop,
// validation reporting, auto-stop, logging and training metrics.
//
// The core ffm package runs one epoch per call and leaves stopping to its
// caller. Fit and Continue are that caller:
//
//	model, res, err := trainer.Fit(ctx, train, valid, params, trainer.Options{})
//	if err != nil {
//	    return err
//	}
//	logging.Info().Int("best_epoch", res.BestEpoch).Msg("fit complete")
package trainer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/fieldfm/internal/ffm"
	"github.com/tomtom215/fieldfm/internal/logging"
	"github.com/tomtom215/fieldfm/internal/metrics"
)

// ErrAutoStopNeedsValidation is returned when AutoStop is set without a
// validation problem.
var ErrAutoStopNeedsValidation = errors.New("trainer: auto_stop requires a validation problem")

// Run outcomes recorded in fieldfm_train_runs_total.
const (
	OutcomeCompleted = "completed"
	OutcomeStopped   = "auto_stopped"
	OutcomeCancelled = "cancelled"
	OutcomeFailed    = "failed"
)

// EpochStats describes one finished epoch.
type EpochStats struct {
	// Epoch is 1-based.
	Epoch     int           `json:"epoch"`
	TrainLoss float64       `json:"tr_logloss"`
	ValidLoss float64       `json:"va_logloss,omitempty"`
	HasValid  bool          `json:"has_valid"`
	Duration  time.Duration `json:"duration"`
}

// Result summarizes a fit.
type Result struct {
	RunID  string       `json:"run_id"`
	Epochs []EpochStats `json:"epochs"`

	// BestEpoch is the epoch whose weights the returned model holds.
	// 0 means no epoch ran.
	BestEpoch int `json:"best_epoch"`

	// Stopped is true when auto-stop rolled the model back.
	Stopped bool `json:"stopped"`

	Duration time.Duration `json:"duration"`
}

// Options tunes a fit beyond ffm.Params.
type Options struct {
	// OnEpoch, when set, is called after every epoch on the fitting goroutine.
	OnEpoch func(EpochStats)
}

// Fit initializes a model from the training problem and runs up to
// params.NrIters epochs.
//
// When valid is non-nil its log loss is reported every epoch. The model is
// sized to cover both problems so validation never falls outside the
// vocabulary. With params.AutoStop, training stops at the first epoch whose
// validation loss is higher than the best so far and the model from the
// previous epoch is returned.
func Fit(ctx context.Context, train, valid *ffm.Problem, params ffm.Params, opts Options) (*ffm.Model, *Result, error) {
	if err := checkInputs(train, valid, &params); err != nil {
		metrics.RecordRun(OutcomeFailed)
		return nil, nil, err
	}

	n, m := train.NumFields(), train.NumFeatures()
	if valid != nil {
		n, m = max(n, valid.NumFields()), max(m, valid.NumFeatures())
	}
	model, err := ffm.NewModel(n, m, params.K, params.Normalization, params.Seed)
	if err != nil {
		metrics.RecordRun(OutcomeFailed)
		return nil, nil, fmt.Errorf("init model: %w", err)
	}
	return run(ctx, train, valid, model, params, opts)
}

// Continue trains an existing model, for example one loaded from the
// registry, for up to params.NrIters more epochs. Both problems must fit
// inside the model's vocabulary.
//
// With auto-stop the returned model may be a snapshot rather than model
// itself; always use the returned value.
func Continue(ctx context.Context, train, valid *ffm.Problem, model *ffm.Model, params ffm.Params, opts Options) (*ffm.Model, *Result, error) {
	if err := checkInputs(train, valid, &params); err != nil {
		metrics.RecordRun(OutcomeFailed)
		return nil, nil, err
	}
	if valid != nil && (valid.NumFields() > model.NumFields() || valid.NumFeatures() > model.NumFeatures()) {
		metrics.RecordRun(OutcomeFailed)
		return nil, nil, fmt.Errorf("%w: validation problem is %dx%d, model is %dx%d",
			ffm.ErrShapeMismatch, valid.NumFields(), valid.NumFeatures(), model.NumFields(), model.NumFeatures())
	}
	return run(ctx, train, valid, model, params, opts)
}

func checkInputs(train, valid *ffm.Problem, params *ffm.Params) error {
	if train == nil {
		return errors.New("trainer: training problem is nil")
	}
	if err := params.Validate(); err != nil {
		return err
	}
	if params.AutoStop && valid == nil {
		return ErrAutoStopNeedsValidation
	}
	if valid != nil && valid.Normalized() != params.Normalization {
		return fmt.Errorf("%w: validation normalization=%t, params normalization=%t",
			ffm.ErrShapeMismatch, valid.Normalized(), params.Normalization)
	}
	return nil
}

// run is the shared epoch loop. The context is only checked between
// epochs; an epoch in progress always completes.
//
//nolint:gocritic // params passed by value to keep the caller's copy untouched
func run(ctx context.Context, train, valid *ffm.Problem, model *ffm.Model, params ffm.Params, opts Options) (*ffm.Model, *Result, error) {
	runID := logging.RunIDFromContext(ctx)
	if runID == "" {
		runID = logging.NewRunID()
		ctx = logging.ContextWithRunID(ctx, runID)
	}
	log := logging.Ctx(ctx).With().Str("component", "trainer").Logger()

	tr, err := ffm.NewTrainer(params)
	if err != nil {
		metrics.RecordRun(OutcomeFailed)
		return nil, nil, err
	}

	start := time.Now()
	res := &Result{RunID: runID}

	log.Info().
		Int("instances", train.Size()).
		Int("fields", model.NumFields()).
		Int("features", model.NumFeatures()).
		Int("k", model.K()).
		Int("nr_iters", params.NrIters).
		Bool("auto_stop", params.AutoStop).
		Int("workers", params.Workers).
		Msg("starting fit")

	var (
		best     = math.Inf(1)
		snapshot *ffm.Model
	)

	for epoch := 1; epoch <= params.NrIters; epoch++ {
		if err := ctx.Err(); err != nil {
			res.Duration = time.Since(start)
			metrics.RecordRun(OutcomeCancelled)
			log.Warn().Int("iter", epoch).Msg("fit cancelled")
			return model, res, fmt.Errorf("fit cancelled before epoch %d: %w", epoch, err)
		}

		stats, err := runEpoch(tr, train, valid, model, epoch)
		if err != nil {
			res.Duration = time.Since(start)
			metrics.RecordRun(OutcomeFailed)
			return nil, res, fmt.Errorf("epoch %d: %w", epoch, err)
		}
		res.Epochs = append(res.Epochs, stats)
		logEpoch(&log, stats)
		if opts.OnEpoch != nil {
			opts.OnEpoch(stats)
		}

		if params.AutoStop {
			if stats.ValidLoss > best {
				res.Stopped = true
				log.Info().
					Int("iter", epoch).
					Int("best_iter", res.BestEpoch).
					Msg("auto-stop: validation loss increased, restoring previous epoch")
				model = snapshot
				break
			}
			best = stats.ValidLoss
			snapshot = model.Clone()
		}
		res.BestEpoch = epoch
	}

	res.Duration = time.Since(start)
	outcome := OutcomeCompleted
	if res.Stopped {
		outcome = OutcomeStopped
	}
	metrics.RecordRun(outcome)

	log.Info().
		Int("epochs", len(res.Epochs)).
		Int("best_iter", res.BestEpoch).
		Bool("stopped", res.Stopped).
		Int64("duration_ms", res.Duration.Milliseconds()).
		Msg("fit complete")

	return model, res, nil
}

func runEpoch(tr *ffm.Trainer, train, valid *ffm.Problem, model *ffm.Model, epoch int) (EpochStats, error) {
	start := time.Now()
	trLoss, err := tr.Iteration(train, model)
	if err != nil {
		return EpochStats{}, err
	}
	stats := EpochStats{Epoch: epoch, TrainLoss: trLoss}

	if valid != nil {
		vaLoss, err := ffm.LogLoss(valid, model)
		if err != nil {
			return EpochStats{}, fmt.Errorf("validation: %w", err)
		}
		stats.ValidLoss, stats.HasValid = vaLoss, true
		metrics.RecordValidationLoss(vaLoss)
	}
	stats.Duration = time.Since(start)
	metrics.RecordEpoch(stats.Duration, train.Size(), trLoss)
	return stats, nil
}

func logEpoch(log *zerolog.Logger, s EpochStats) {
	ev := log.Info().
		Int("iter", s.Epoch).
		Float64("tr_logloss", s.TrainLoss)
	if s.HasValid {
		ev = ev.Float64("va_logloss", s.ValidLoss)
	}
	ev.Dur("duration", s.Duration).Msg("epoch complete")
}
