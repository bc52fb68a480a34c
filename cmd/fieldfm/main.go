// Fieldfm - Field-aware Factorization Machine Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldfm

// Command fieldfm trains, scores and serves field-aware factorization
// machine models.
//
// # Subcommands
//
//	fieldfm train   [-config file] [-out model.ffm] [-from model.ffm] [-no-registry]
//	fieldfm predict [-config file] [-model model.ffm | -version N] -data test.ffm [-out scores.txt]
//	fieldfm serve   [-config file]
//	fieldfm models  [-config file]
//
// train reads the data section of the configuration (libffm text files or a
// DuckDB query), fits a model and saves it to -out and/or the registry.
// predict writes one probability per input line. serve runs the prediction
// API under a supervisor tree and follows the registry for new versions.
// models lists registry versions as JSON lines.
//
// # Configuration
//
// Settings come from built-in defaults, then the YAML file named by -config
// (or FIELDFM_CONFIG, ./fieldfm.yaml, /etc/fieldfm/config.yaml), then
// FIELDFM_* environment variables:
//
//	FIELDFM_TRAIN_PATH=train.ffm FIELDFM_VALID_PATH=valid.ffm FIELDFM_AUTO_STOP=true fieldfm train
//
// # Signal Handling
//
// SIGINT and SIGTERM cancel training between epochs and shut the server
// down gracefully.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/fieldfm/internal/config"
	"github.com/tomtom215/fieldfm/internal/logging"
)

const usage = `usage: fieldfm <command> [flags]

commands:
  train    fit a model from the configured data
  predict  score a libffm text file
  serve    run the prediction API
  models   list registry versions

run "fieldfm <command> -h" for command flags`

var errUsage = errors.New(usage)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout)
	stop()

	switch {
	case err == nil, errors.Is(err, flag.ErrHelp):
	case errors.Is(err, errUsage):
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	default:
		logging.Fatal().Err(err).Msg("fieldfm failed")
	}
}

// run dispatches to a subcommand. stdout receives command output; logs go
// to the configured logger.
func run(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}

	switch args[0] {
	case "train":
		return runTrain(ctx, args[1:], stdout)
	case "predict":
		return runPredict(ctx, args[1:], stdout)
	case "serve":
		return runServe(ctx, args[1:])
	case "models":
		return runModels(ctx, args[1:], stdout)
	default:
		return fmt.Errorf("unknown command %q: %w", args[0], errUsage)
	}
}

// loadConfig loads configuration and initializes logging from it.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	return cfg, nil
}
