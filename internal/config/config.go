// Fieldfm - Field-aware Factorization Machine Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldfm

// Package config loads fieldfm configuration with koanf.
//
// Sources are layered, later ones winning:
//
//  1. Built-in defaults (defaultConfig)
//  2. Optional YAML file: FIELDFM_CONFIG, then ./fieldfm.yaml, then /etc/fieldfm/config.yaml
//  3. FIELDFM_* environment variables (explicit mapping, see envMappings)
//
// Example file:
//
//	logging:
//	  level: debug
//	train:
//	  k: 8
//	  eta: 0.1
//	  nr_iters: 30
//	  auto_stop: true
//	data:
//	  train_path: /data/train.ffm
//	  valid_path: /data/valid.ffm
//	store:
//	  backend: file
//	  dir: /var/lib/fieldfm/models
//	  model_name: ctr
package config

import (
	"time"

	"github.com/tomtom215/fieldfm/internal/ffm"
)

// Config is the complete application configuration.
type Config struct {
	Logging LoggingConfig `koanf:"logging"`
	Train   ffm.Params    `koanf:"train"`
	Data    DataConfig    `koanf:"data"`
	Store   StoreConfig   `koanf:"store"`
	Server  ServerConfig  `koanf:"server"`
}

// LoggingConfig mirrors logging.Config without the writer.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn warning error disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// DataConfig selects training and validation sources.
type DataConfig struct {
	// Format is "text" (libffm lines) or "sql" (DuckDB query).
	Format string `koanf:"format" validate:"oneof=text sql"`

	TrainPath string `koanf:"train_path"`
	ValidPath string `koanf:"valid_path"`

	// DSN is the DuckDB database path; empty means in-memory, which is
	// enough for queries over Parquet/CSV files.
	DSN        string `koanf:"dsn"`
	TrainQuery string `koanf:"train_query"`
	ValidQuery string `koanf:"valid_query"`
}

// StoreConfig selects the model registry.
type StoreConfig struct {
	// Backend is "file", "badger" or "none".
	Backend   string `koanf:"backend" validate:"oneof=file badger none"`
	Dir       string `koanf:"dir"`
	ModelName string `koanf:"model_name" validate:"modelname"`

	// Keep is how many versions survive a prune; 0 disables pruning.
	Keep int `koanf:"keep" validate:"gte=0"`
}

// ServerConfig configures the prediction server.
type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port" validate:"gte=1,lte=65535"`

	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `koanf:"write_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`

	// ReloadInterval is how often the registry is polled for a newer model.
	// 0 disables polling.
	ReloadInterval time.Duration `koanf:"reload_interval" validate:"gte=0"`

	// RetrainInterval makes serve retrain from the data section and save a
	// new registry version on this period. 0 disables retraining.
	RetrainInterval time.Duration `koanf:"retrain_interval" validate:"gte=0"`

	// RateLimit is requests per minute per client IP; 0 disables limiting.
	RateLimit int `koanf:"rate_limit" validate:"gte=0"`

	CORSOrigins []string `koanf:"cors_origins"`

	// MaxBatch caps the number of instances in one predict request.
	MaxBatch int `koanf:"max_batch" validate:"gte=1"`

	// PredictWorkers fans batch scoring out over goroutines.
	PredictWorkers int `koanf:"predict_workers" validate:"gte=1,lte=1024"`
}

// defaultConfig returns the built-in defaults, applied before file and env.
func defaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Train: ffm.DefaultParams(),
		Data: DataConfig{
			Format: "text",
		},
		Store: StoreConfig{
			Backend:   "file",
			Dir:       "models",
			ModelName: "ffm",
			Keep:      5,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8089,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			ReloadInterval:  time.Minute,
			RateLimit:       600,
			CORSOrigins:     []string{"*"},
			MaxBatch:        10000,
			PredictWorkers:  4,
		},
	}
}

// Default returns a copy of the built-in defaults.
func Default() *Config {
	return defaultConfig()
}
