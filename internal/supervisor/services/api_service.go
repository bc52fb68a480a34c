// Fieldfm - Field-aware Factorization Machine Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldfm

package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// HTTPServer is the part of *http.Server the API service drives.
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
	Close() error
}

// APIServiceConfig holds configuration for the prediction API service.
type APIServiceConfig struct {
	// Addr is the listen address, used in logs only.
	Addr string

	// DrainTimeout bounds how long in-flight predictions may finish after
	// cancellation. Connections still open afterwards are closed.
	// Default: 10s
	DrainTimeout time.Duration
}

// APIService runs the prediction HTTP server under supervision.
type APIService struct {
	server HTTPServer
	config APIServiceConfig
	logger zerolog.Logger
	name   string
}

// NewAPIService creates an API service for server.
//
//nolint:gocritic // zerolog.Logger is passed by value
func NewAPIService(server HTTPServer, cfg APIServiceConfig, logger zerolog.Logger) *APIService {
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 10 * time.Second
	}
	return &APIService{
		server: server,
		config: cfg,
		logger: logger.With().Str("service", "api").Logger(),
		name:   "prediction-api",
	}
}

// Serve implements suture.Service. A failed listen is returned so the
// supervisor restarts the service; cancellation drains and returns ctx.Err().
func (a *APIService) Serve(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		done <- err
	}()
	a.logger.Info().Str("addr", a.config.Addr).Msg("prediction api listening")

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("serve %s: %w", a.config.Addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	err := a.drain()
	<-done
	if err != nil {
		return err
	}
	return ctx.Err()
}

// drain shuts the server down within the drain timeout, then force-closes
// whatever is left.
func (a *APIService) drain() error {
	// The serve context is already canceled.
	drainCtx, cancel := context.WithTimeout(context.Background(), a.config.DrainTimeout)
	defer cancel()

	start := time.Now()
	err := a.server.Shutdown(drainCtx)
	if errors.Is(err, context.DeadlineExceeded) {
		a.logger.Warn().Dur("drain_timeout", a.config.DrainTimeout).
			Msg("predictions still in flight at drain timeout; closing connections")
		if cerr := a.server.Close(); cerr != nil {
			a.logger.Error().Err(cerr).Msg("close http server")
		}
	}
	if err != nil {
		return fmt.Errorf("drain prediction api: %w", err)
	}
	a.logger.Info().Dur("drained_in", time.Since(start)).Msg("prediction api stopped")
	return nil
}

// String names the service in supervisor logs.
func (a *APIService) String() string {
	return a.name
}
