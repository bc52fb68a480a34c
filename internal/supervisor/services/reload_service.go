// Fieldfm - Field-aware Factorization Machine Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldfm

package services

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/fieldfm/internal/ffm"
	"github.com/tomtom215/fieldfm/internal/modelstore"
)

// ModelSource is the registry side of a reload. modelstore.Registry
// satisfies it.
type ModelSource interface {
	Refresh(ctx context.Context) error
	Latest(name string) (int, bool)
	Load(ctx context.Context, name string, version int) (*ffm.Model, modelstore.Metadata, error)
}

// ModelSwapper is the serving side of a reload. api.ModelHolder satisfies it.
type ModelSwapper interface {
	Swap(m *ffm.Model, meta modelstore.Metadata) *ffm.Model
	Version() int
}

// ReloadServiceConfig holds configuration for the reload service.
type ReloadServiceConfig struct {
	// ModelName is the registry name to follow.
	ModelName string

	// Interval is how often the registry is polled.
	// Default: 1m
	Interval time.Duration
}

// ReloadService keeps the served model at the newest registry version.
type ReloadService struct {
	source ModelSource
	holder ModelSwapper
	config ReloadServiceConfig
	logger zerolog.Logger
	name   string
}

// NewReloadService creates a reload service.
//
//nolint:gocritic // zerolog.Logger is passed by value
func NewReloadService(source ModelSource, holder ModelSwapper, cfg ReloadServiceConfig, logger zerolog.Logger) *ReloadService {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	return &ReloadService{
		source: source,
		holder: holder,
		config: cfg,
		logger: logger.With().Str("service", "reload").Str("model", cfg.ModelName).Logger(),
		name:   "reload-service",
	}
}

// Serve implements suture.Service. It checks once immediately, then on
// every tick. Failed checks are logged and retried on the next tick.
func (s *ReloadService) Serve(ctx context.Context) error {
	s.logger.Info().Dur("interval", s.config.Interval).Msg("reload service starting")

	if _, err := s.ReloadOnce(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("initial model reload failed")
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("reload service shutting down")
			return ctx.Err()

		case <-ticker.C:
			if _, err := s.ReloadOnce(ctx); err != nil {
				s.logger.Warn().Err(err).Msg("model reload failed")
			}
		}
	}
}

// ReloadOnce loads the latest version if it differs from the one being
// served. It reports whether a swap happened.
func (s *ReloadService) ReloadOnce(ctx context.Context) (bool, error) {
	if err := s.source.Refresh(ctx); err != nil {
		return false, fmt.Errorf("refresh registry: %w", err)
	}

	latest, ok := s.source.Latest(s.config.ModelName)
	if !ok {
		s.logger.Debug().Msg("no model in registry yet")
		return false, nil
	}
	current := s.holder.Version()
	if latest == current {
		return false, nil
	}

	start := time.Now()
	model, meta, err := s.source.Load(ctx, s.config.ModelName, latest)
	if err != nil {
		return false, fmt.Errorf("load %s v%d: %w", s.config.ModelName, latest, err)
	}
	s.holder.Swap(model, meta)

	s.logger.Info().
		Int("from_version", current).
		Int("to_version", meta.Version).
		Int("weights", model.Len()).
		Dur("duration", time.Since(start)).
		Msg("model reloaded")
	return true, nil
}

// String names the service in supervisor logs.
func (s *ReloadService) String() string {
	return s.name
}
