// Fieldfm - Field-aware Factorization Machine Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldfm

package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/tomtom215/fieldfm/internal/config"
	"github.com/tomtom215/fieldfm/internal/dataset"
	"github.com/tomtom215/fieldfm/internal/ffm"
	"github.com/tomtom215/fieldfm/internal/logging"
)

func runPredict(ctx context.Context, args []string, stdout io.Writer) (err error) {
	fs := flag.NewFlagSet("predict", flag.ContinueOnError)
	configPath := fs.String("config", "", "configuration file")
	modelPath := fs.String("model", "", "model file; defaults to the registry")
	version := fs.Int("version", 0, "registry version; 0 is the latest")
	dataPath := fs.String("data", "", "libffm text file to score")
	outPath := fs.String("out", "", "output file; defaults to stdout")
	workers := fs.Int("workers", 1, "scoring goroutines")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *dataPath == "" {
		return errors.New("-data is required")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	model, err := loadModel(ctx, cfg, *modelPath, *version)
	if err != nil {
		return err
	}

	problem, err := dataset.ReadFile(*dataPath, model.Normalization())
	if err != nil {
		return err
	}

	var scores []float64
	if *workers > 1 {
		scores, err = ffm.PredictBatchParallel(problem, model, *workers)
	} else {
		scores, err = ffm.PredictBatch(problem, model)
	}
	if err != nil {
		return fmt.Errorf("score %s: %w", *dataPath, err)
	}

	if loss, err := ffm.LogLoss(problem, model); err == nil {
		logging.Info().Int("instances", problem.Size()).Float64("logloss", loss).Msg("scored")
	}

	if *outPath == "" {
		return writeScores(stdout, scores)
	}
	f, err := os.Create(*outPath)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return writeScores(f, scores)
}

// loadModel reads path when set, otherwise the given registry version.
func loadModel(ctx context.Context, cfg *config.Config, path string, version int) (*ffm.Model, error) {
	if path != "" {
		return ffm.LoadFile(path)
	}

	registry, err := openRegistry(&cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}
	if registry == nil {
		return nil, errors.New("-model is required when store.backend is none")
	}
	defer func() { _ = registry.Close() }() //nolint:errcheck // read-only use

	model, meta, err := registry.Load(ctx, cfg.Store.ModelName, version)
	if err != nil {
		return nil, err
	}
	logging.Info().Str("model", meta.Name).Int("version", meta.Version).Msg("model loaded from registry")
	return model, nil
}

func writeScores(w io.Writer, scores []float64) error {
	bw := bufio.NewWriter(w)
	buf := make([]byte, 0, 32)
	for _, s := range scores {
		buf = strconv.AppendFloat(buf[:0], s, 'g', -1, 64)
		buf = append(buf, '\n')
		if _, err := bw.Write(buf); err != nil {
			return err
		}
	}
	return bw.Flush()
}
