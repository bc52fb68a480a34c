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
	"io"

	"github.com/tomtom215/fieldfm/internal/ffm"
	"github.com/tomtom215/fieldfm/internal/logging"
	"github.com/tomtom215/fieldfm/internal/modelstore"
)

func runTrain(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	configPath := fs.String("config", "", "configuration file")
	out := fs.String("out", "", "also write the model to this file")
	from := fs.String("from", "", "continue training this model file")
	noRegistry := fs.Bool("no-registry", false, "do not save to the model registry")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	var registry modelstore.Registry
	if !*noRegistry {
		if registry, err = openRegistry(&cfg.Store); err != nil {
			return fmt.Errorf("open registry: %w", err)
		}
	}
	if registry != nil {
		defer func() {
			if err := registry.Close(); err != nil {
				logging.Error().Err(err).Msg("error closing registry")
			}
		}()
	}
	if registry == nil && *out == "" {
		return errors.New("nowhere to save the model: set -out or configure store.backend")
	}

	p := newPipeline(cfg, registry)
	if *from != "" {
		if p.from, err = ffm.LoadFile(*from); err != nil {
			return fmt.Errorf("load %s: %w", *from, err)
		}
	}

	model, meta, err := p.fit(ctx)
	if err != nil {
		return err
	}

	if *out != "" {
		if err := ffm.SaveFile(model, *out); err != nil {
			return err
		}
		logging.Info().Str("path", *out).Msg("model written")
	}
	if registry != nil {
		if meta, err = p.register(ctx, model, meta); err != nil {
			return err
		}
	}

	_, err = fmt.Fprintf(stdout, "epochs=%d best_epoch=%d tr_logloss=%.5f va_logloss=%.5f version=%d\n",
		meta.Epochs, meta.BestEpoch, meta.TrainLoss, meta.ValidLoss, meta.Version)
	return err
}
