// Fieldfm - Field-aware Factorization Machine Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldfm

package config

import (
	"errors"
	"fmt"

	"github.com/tomtom215/fieldfm/internal/validation"
)

// Validate checks field ranges and cross-field requirements.
func (c *Config) Validate() error {
	if verr := validation.ValidateStruct(c); verr != nil {
		return verr
	}

	var errs []error
	if c.Data.Format == "sql" && c.Data.ValidPath != "" {
		errs = append(errs, errors.New("data.valid_path is not used with data.format sql; set data.valid_query"))
	}
	if c.Store.Backend != "none" && c.Store.Dir == "" {
		errs = append(errs, fmt.Errorf("store.dir is required for backend %q", c.Store.Backend))
	}
	if c.Server.RetrainInterval > 0 && c.Store.Backend == "none" {
		errs = append(errs, errors.New("server.retrain_interval needs a store backend"))
	}
	return errors.Join(errs...)
}

// HasValidation reports whether a validation source is configured.
func (c *Config) HasValidation() bool {
	if c.Data.Format == "sql" {
		return c.Data.ValidQuery != ""
	}
	return c.Data.ValidPath != ""
}

// Addr returns host:port for the HTTP listener.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
