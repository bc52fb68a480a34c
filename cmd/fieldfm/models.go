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

	"github.com/goccy/go-json"
)

func runModels(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("models", flag.ContinueOnError)
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
	if registry == nil {
		return errors.New("store.backend is none")
	}
	defer func() { _ = registry.Close() }() //nolint:errcheck // read-only use

	metas, err := registry.List(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(stdout)
	for i := range metas {
		if err := enc.Encode(&metas[i]); err != nil {
			return err
		}
	}
	return nil
}
