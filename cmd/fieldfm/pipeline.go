// Fieldfm - Field-aware Factorization Machine Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldfm

package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/fieldfm/internal/config"
	"github.com/tomtom215/fieldfm/internal/dataset"
	"github.com/tomtom215/fieldfm/internal/ffm"
	"github.com/tomtom215/fieldfm/internal/logging"
	"github.com/tomtom215/fieldfm/internal/modelstore"
	"github.com/tomtom215/fieldfm/internal/trainer"
)

var errNoTrainingData = errors.New("no training data configured (data.train_path or data.train_query)")

// openRegistry returns the configured registry, or nil for backend "none".
func openRegistry(cfg *config.StoreConfig) (modelstore.Registry, error) {
	switch cfg.Backend {
	case "none":
		return nil, nil
	case "badger":
		return modelstore.NewBadgerStore(modelstore.BadgerOptions{Dir: cfg.Dir, SyncWrites: true})
	default:
		return modelstore.NewFileStore(cfg.Dir)
	}
}

// loadProblems reads the training and optional validation problems.
func loadProblems(ctx context.Context, cfg *config.Config) (train, valid *ffm.Problem, err error) {
	normalize := cfg.Train.Normalization

	if cfg.Data.Format == "sql" {
		if cfg.Data.TrainQuery == "" {
			return nil, nil, errNoTrainingData
		}
		db, err := dataset.OpenDuckDB(cfg.Data.DSN)
		if err != nil {
			return nil, nil, err
		}
		defer func() { _ = db.Close() }() //nolint:errcheck // read-only session

		if train, err = dataset.LoadSQL(ctx, db, cfg.Data.TrainQuery, normalize); err != nil {
			return nil, nil, fmt.Errorf("training query: %w", err)
		}
		if cfg.Data.ValidQuery != "" {
			if valid, err = dataset.LoadSQL(ctx, db, cfg.Data.ValidQuery, normalize); err != nil {
				return nil, nil, fmt.Errorf("validation query: %w", err)
			}
		}
		return train, valid, nil
	}

	if cfg.Data.TrainPath == "" {
		return nil, nil, errNoTrainingData
	}
	if train, err = dataset.ReadFile(cfg.Data.TrainPath, normalize); err != nil {
		return nil, nil, err
	}
	if cfg.Data.ValidPath != "" {
		if valid, err = dataset.ReadFile(cfg.Data.ValidPath, normalize); err != nil {
			return nil, nil, err
		}
	}
	return train, valid, nil
}

// pipeline is one configured training job: load data, fit, register.
// It implements services.ModelTrainer for scheduled retraining.
type pipeline struct {
	cfg      *config.Config
	registry modelstore.Registry

	// from, when set, is trained further instead of starting fresh.
	from *ffm.Model

	logger zerolog.Logger
}

func newPipeline(cfg *config.Config, registry modelstore.Registry) *pipeline {
	return &pipeline{
		cfg:      cfg,
		registry: registry,
		logger:   logging.WithComponent("pipeline"),
	}
}

// fit loads data and trains. The returned metadata carries training
// statistics but no registry fields.
func (p *pipeline) fit(ctx context.Context) (*ffm.Model, modelstore.Metadata, error) {
	train, valid, err := loadProblems(ctx, p.cfg)
	if err != nil {
		return nil, modelstore.Metadata{}, err
	}
	p.logger.Info().
		Int("instances", train.Size()).
		Int("fields", train.NumFields()).
		Int("features", train.NumFeatures()).
		Bool("validation", valid != nil).
		Msg("training data loaded")

	var (
		model  *ffm.Model
		result *trainer.Result
	)
	if p.from != nil {
		model, result, err = trainer.Continue(ctx, train, valid, p.from, p.cfg.Train, trainer.Options{})
	} else {
		model, result, err = trainer.Fit(ctx, train, valid, p.cfg.Train, trainer.Options{})
	}
	if err != nil {
		return nil, modelstore.Metadata{}, err
	}
	return model, resultMetadata(train, result), nil
}

// Train runs the pipeline and saves the model as a new registry version,
// pruning old versions when store.keep is set.
func (p *pipeline) Train(ctx context.Context) (modelstore.Metadata, error) {
	if p.registry == nil {
		return modelstore.Metadata{}, errors.New("no model registry configured")
	}
	model, meta, err := p.fit(ctx)
	if err != nil {
		return modelstore.Metadata{}, err
	}
	return p.register(ctx, model, meta)
}

func (p *pipeline) register(ctx context.Context, model *ffm.Model, meta modelstore.Metadata) (modelstore.Metadata, error) {
	name := p.cfg.Store.ModelName
	saved, err := p.registry.Save(ctx, name, model, meta)
	if err != nil {
		return modelstore.Metadata{}, fmt.Errorf("save %s: %w", name, err)
	}
	p.logger.Info().
		Str("model", saved.Name).
		Int("version", saved.Version).
		Int64("size_bytes", saved.SizeBytes).
		Msg("model registered")

	if keep := p.cfg.Store.Keep; keep > 0 {
		if err := p.registry.Prune(ctx, name, keep); err != nil {
			p.logger.Warn().Err(err).Int("keep", keep).Msg("prune failed")
		}
	}
	return saved, nil
}

func resultMetadata(train *ffm.Problem, result *trainer.Result) modelstore.Metadata {
	meta := modelstore.Metadata{
		TrainedAt:          time.Now().UTC(),
		RunID:              result.RunID,
		Instances:          train.Size(),
		Epochs:             len(result.Epochs),
		BestEpoch:          result.BestEpoch,
		TrainingDurationMS: result.Duration.Milliseconds(),
	}
	if best := result.BestEpoch; best > 0 && best <= len(result.Epochs) {
		stats := result.Epochs[best-1]
		meta.TrainLoss = stats.TrainLoss
		meta.ValidLoss = stats.ValidLoss
	}
	return meta
}
