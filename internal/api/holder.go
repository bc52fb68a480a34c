// Fieldfm - Field-aware Factorization Machine Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldfm

package api

import (
	"sync"
	"time"

	"github.com/tomtom215/fieldfm/internal/ffm"
	"github.com/tomtom215/fieldfm/internal/metrics"
	"github.com/tomtom215/fieldfm/internal/modelstore"
)

// ModelHolder holds the model currently being served.
//
// Models are never mutated after Swap; a request that obtained a model via
// Get can keep scoring with it while a newer one is swapped in.
type ModelHolder struct {
	mu       sync.RWMutex
	model    *ffm.Model
	meta     modelstore.Metadata
	loadedAt time.Time
}

// NewModelHolder returns an empty holder.
func NewModelHolder() *ModelHolder {
	return &ModelHolder{}
}

// Swap installs a new model and returns the one it replaced (nil if none).
//
//nolint:gocritic // meta is copied into the holder
func (h *ModelHolder) Swap(m *ffm.Model, meta modelstore.Metadata) *ffm.Model {
	h.mu.Lock()
	old := h.model
	h.model = m
	h.meta = meta
	h.loadedAt = time.Now().UTC()
	h.mu.Unlock()

	if m != nil {
		metrics.SetServedModel(meta.Name, meta.Version, m.Len())
	}
	return old
}

// Get returns the current model and its metadata. ok is false until the
// first Swap.
func (h *ModelHolder) Get() (m *ffm.Model, meta modelstore.Metadata, ok bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.model, h.meta, h.model != nil
}

// Version returns the registry version being served, 0 if none.
func (h *ModelHolder) Version() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.model == nil {
		return 0
	}
	return h.meta.Version
}

// LoadedAt returns when the current model was swapped in.
func (h *ModelHolder) LoadedAt() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.loadedAt
}
