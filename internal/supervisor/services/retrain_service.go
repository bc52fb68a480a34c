// Fieldfm - Field-aware Factorization Machine Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldfm

package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/fieldfm/internal/modelstore"
)

// ModelTrainer runs one training pipeline and saves its result.
type ModelTrainer interface {
	Train(ctx context.Context) (modelstore.Metadata, error)
}

// RetrainServiceConfig holds configuration for the retrain service.
type RetrainServiceConfig struct {
	// TrainOnStartup runs one pipeline as soon as the service starts.
	TrainOnStartup bool

	// Interval between scheduled runs.
	// Default: 24h
	Interval time.Duration

	// Timeout bounds a single run.
	// Default: 30m
	Timeout time.Duration
}

// RetrainService retrains on a schedule. New versions reach the API through
// ReloadService.
type RetrainService struct {
	trainer ModelTrainer
	config  RetrainServiceConfig
	logger  zerolog.Logger
	name    string
}

// NewRetrainService creates a retrain service.
//
//nolint:gocritic // zerolog.Logger is passed by value
func NewRetrainService(trainer ModelTrainer, cfg RetrainServiceConfig, logger zerolog.Logger) *RetrainService {
	if cfg.Interval <= 0 {
		cfg.Interval = 24 * time.Hour
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Minute
	}
	return &RetrainService{
		trainer: trainer,
		config:  cfg,
		logger:  logger.With().Str("service", "retrain").Logger(),
		name:    "retrain-service",
	}
}

// Serve implements suture.Service. A failed run is logged and the schedule
// continues.
func (s *RetrainService) Serve(ctx context.Context) error {
	s.logger.Info().
		Bool("train_on_startup", s.config.TrainOnStartup).
		Dur("interval", s.config.Interval).
		Msg("retrain service starting")

	if s.config.TrainOnStartup {
		if err := s.train(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("startup training failed (will retry on schedule)")
		}
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("retrain service shutting down")
			return ctx.Err()

		case <-ticker.C:
			if err := s.train(ctx); err != nil {
				s.logger.Warn().Err(err).Msg("scheduled training failed")
			}
		}
	}
}

func (s *RetrainService) train(ctx context.Context) error {
	trainCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	start := time.Now()
	s.logger.Info().Msg("retraining model")

	meta, err := s.trainer.Train(trainCtx)
	if err != nil {
		return err
	}

	s.logger.Info().
		Str("model", meta.Name).
		Int("version", meta.Version).
		Float64("tr_logloss", meta.TrainLoss).
		Dur("duration", time.Since(start)).
		Msg("retraining complete")
	return nil
}

// String names the service in supervisor logs.
func (s *RetrainService) String() string {
	return s.name
}
