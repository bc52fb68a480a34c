// Fieldfm - Field-aware Factorization Machine Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldfm

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"

	"github.com/tomtom215/fieldfm/internal/api"
	"github.com/tomtom215/fieldfm/internal/config"
	"github.com/tomtom215/fieldfm/internal/logging"
	"github.com/tomtom215/fieldfm/internal/modelstore"
	"github.com/tomtom215/fieldfm/internal/supervisor"
	"github.com/tomtom215/fieldfm/internal/supervisor/services"
)

func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "", "configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	registry, err := openRegistry(&cfg.Store)
	if err != nil {
		return fmt.Errorf("open registry: %w", err)
	}
	if registry != nil {
		defer func() {
			if err := registry.Close(); err != nil {
				logging.Error().Err(err).Msg("error closing registry")
			}
		}()
	}

	holder := api.NewModelHolder()
	tree, err := buildTree(ctx, cfg, registry, holder)
	if err != nil {
		return err
	}

	logging.Info().
		Str("addr", cfg.Server.Addr()).
		Str("store", cfg.Store.Backend).
		Str("model", cfg.Store.ModelName).
		Msg("starting fieldfm server")

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("supervisor tree: %w", err)
	}

	if report, err := tree.UnstoppedServiceReport(); err == nil && len(report) > 0 {
		logging.Warn().Int("count", len(report)).Msg("services did not stop within the shutdown timeout")
	}
	logging.Info().Msg("server stopped")
	return nil
}

// buildTree wires the HTTP server and model services. The latest registry
// version is loaded before the tree starts so readiness does not wait for
// the first reload tick.
func buildTree(ctx context.Context, cfg *config.Config, registry modelstore.Registry, holder *api.ModelHolder) (*supervisor.Tree, error) {
	tree, err := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("create supervisor tree: %w", err)
	}

	router := api.NewRouter(api.RouterConfigFromServer(&cfg.Server), holder)
	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}
	tree.AddAPIService(services.NewAPIService(srv, services.APIServiceConfig{
		Addr:         srv.Addr,
		DrainTimeout: cfg.Server.ShutdownTimeout,
	}, logging.Logger()))

	if registry == nil {
		logging.Warn().Msg("no model registry configured; the server stays not ready")
		return tree, nil
	}

	reload := services.NewReloadService(registry, holder, services.ReloadServiceConfig{
		ModelName: cfg.Store.ModelName,
		Interval:  cfg.Server.ReloadInterval,
	}, logging.Logger())
	if _, err := reload.ReloadOnce(ctx); err != nil {
		logging.Warn().Err(err).Msg("initial model load failed")
	}
	if cfg.Server.ReloadInterval > 0 {
		tree.AddModelService(reload)
	}

	if cfg.Server.RetrainInterval > 0 {
		retrain := services.NewRetrainService(newPipeline(cfg, registry), services.RetrainServiceConfig{
			TrainOnStartup: holder.Version() == 0,
			Interval:       cfg.Server.RetrainInterval,
		}, logging.Logger())
		tree.AddModelService(retrain)
		if cfg.Server.ReloadInterval <= 0 {
			logging.Warn().Msg("retraining without reload_interval: new versions are not served until restart")
		}
	}
	return tree, nil
}
