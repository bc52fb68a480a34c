// Fieldfm - Field-aware Factorization Machine Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldfm

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar overrides the config file search.
const ConfigPathEnvVar = "FIELDFM_CONFIG"

// envPrefix limits which environment variables are considered.
const envPrefix = "FIELDFM_"

// DefaultConfigPaths are searched in order when no path is given.
var DefaultConfigPaths = []string{
	"fieldfm.yaml",
	"fieldfm.yml",
	"/etc/fieldfm/config.yaml",
}

// envMappings maps lowercased env names to koanf paths. Unmapped names are
// ignored so unrelated variables cannot leak into the config.
var envMappings = map[string]string{
	"fieldfm_log_level":  "logging.level",
	"fieldfm_log_format": "logging.format",
	"fieldfm_log_caller": "logging.caller",

	"fieldfm_eta":           "train.eta",
	"fieldfm_lambda":        "train.lambda",
	"fieldfm_nr_iters":      "train.nr_iters",
	"fieldfm_k":             "train.k",
	"fieldfm_normalization": "train.normalization",
	"fieldfm_auto_stop":     "train.auto_stop",
	"fieldfm_workers":       "train.workers",
	"fieldfm_shuffle":       "train.shuffle",
	"fieldfm_seed":          "train.seed",

	"fieldfm_data_format": "data.format",
	"fieldfm_train_path":  "data.train_path",
	"fieldfm_valid_path":  "data.valid_path",
	"fieldfm_duckdb_dsn":  "data.dsn",
	"fieldfm_train_query": "data.train_query",
	"fieldfm_valid_query": "data.valid_query",

	"fieldfm_store_backend": "store.backend",
	"fieldfm_store_dir":     "store.dir",
	"fieldfm_model_name":    "store.model_name",
	"fieldfm_store_keep":    "store.keep",

	"fieldfm_host":             "server.host",
	"fieldfm_port":             "server.port",
	"fieldfm_read_timeout":     "server.read_timeout",
	"fieldfm_write_timeout":    "server.write_timeout",
	"fieldfm_shutdown_timeout": "server.shutdown_timeout",
	"fieldfm_reload_interval":  "server.reload_interval",
	"fieldfm_retrain_interval": "server.retrain_interval",
	"fieldfm_rate_limit":       "server.rate_limit",
	"fieldfm_cors_origins":     "server.cors_origins",
	"fieldfm_max_batch":        "server.max_batch",
	"fieldfm_predict_workers":  "server.predict_workers",
}

func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}

// sliceConfigPaths arrive from the environment as comma-separated strings.
var sliceConfigPaths = []string{
	"server.cors_origins",
}

// Load builds the configuration from defaults, the YAML file at path (or
// the first file found by findConfigFile when path is empty) and the
// environment, then validates it.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	for _, p := range sliceConfigPaths {
		if s, ok := k.Get(p).(string); ok {
			parts := strings.Split(s, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			if err := k.Set(p, parts); err != nil {
				return nil, fmt.Errorf("failed to split %s: %w", p, err)
			}
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// findConfigFile returns FIELDFM_CONFIG if it exists, else the first
// existing default path, else "".
func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
