// Fieldfm - Field-aware Factorization Machine Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldfm

// Package modelstore provides a versioned registry of trained FFM models.
//
// Every Save creates a new version (latest + 1) of a named model together
// with metadata: shape, training statistics and the SHA-256 checksum of the
// binary model encoding. Load verifies the checksum before decoding.
//
// # Backends
//
//   - FileStore keeps {name}_v{version}.ffm.gz files with a JSON sidecar
//     per version in one directory.
//   - BadgerStore keeps models and metadata in an embedded BadgerDB.
//
// # Thread Safety
//
// Both backends are safe for concurrent use within one process.
package modelstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/fieldfm/internal/ffm"
	"github.com/tomtom215/fieldfm/internal/validation"
)

var (
	// ErrModelNotFound is returned when a name or version does not exist.
	ErrModelNotFound = errors.New("modelstore: model not found")

	// ErrChecksumMismatch is returned when stored bytes do not match the
	// recorded checksum.
	ErrChecksumMismatch = errors.New("modelstore: checksum mismatch")

	// ErrInvalidName is returned for names that cannot be stored safely.
	ErrInvalidName = errors.New("modelstore: invalid model name")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("modelstore: store closed")
)

// Metadata describes one stored model version.
type Metadata struct {
	// Name is the registry name (e.g., "ctr").
	Name string `json:"name"`

	// Version is assigned by Save and increases monotonically per name.
	Version int `json:"version"`

	// TrainedAt is when training finished.
	TrainedAt time.Time `json:"trained_at"`

	// SavedAt is set by Save.
	SavedAt time.Time `json:"saved_at"`

	// Shape, copied from the model by Save.
	Fields        int  `json:"fields"`
	Features      int  `json:"features"`
	K             int  `json:"k"`
	Normalization bool `json:"normalization"`

	// Training statistics, filled by the caller.
	RunID              string  `json:"run_id,omitempty"`
	Instances          int     `json:"instances"`
	Epochs             int     `json:"epochs"`
	BestEpoch          int     `json:"best_epoch"`
	TrainLoss          float64 `json:"tr_logloss"`
	ValidLoss          float64 `json:"va_logloss,omitempty"`
	TrainingDurationMS int64   `json:"training_duration_ms"`

	// Checksum is the SHA-256 of the uncompressed model encoding.
	Checksum string `json:"checksum"`

	// SizeBytes is the stored (possibly compressed) size.
	SizeBytes int64 `json:"size_bytes"`
}

// Registry is implemented by every backend.
type Registry interface {
	// Save stores model as the next version of name and returns the
	// completed metadata.
	Save(ctx context.Context, name string, model *ffm.Model, meta Metadata) (Metadata, error)

	// Load returns a model version; version 0 means the latest.
	Load(ctx context.Context, name string, version int) (*ffm.Model, Metadata, error)

	// List returns metadata of every stored version ordered by name, then version.
	List(ctx context.Context) ([]Metadata, error)

	// Delete removes one version.
	Delete(ctx context.Context, name string, version int) error

	// Latest returns the newest version of name.
	Latest(name string) (int, bool)

	// Prune keeps the newest keep versions of name (at least one).
	Prune(ctx context.Context, name string, keep int) error

	// Refresh rebuilds the version index from storage, picking up versions
	// written by other processes.
	Refresh(ctx context.Context) error

	Close() error
}

func checkName(name string) error {
	if err := validation.GetValidator().Var(name, "modelname"); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// encodeModel returns the binary encoding and its checksum.
func encodeModel(m *ffm.Model) ([]byte, string, error) {
	var buf bytes.Buffer
	if err := ffm.Save(m, &buf); err != nil {
		return nil, "", fmt.Errorf("encode model: %w", err)
	}
	raw := buf.Bytes()
	return raw, checksum(raw), nil
}

// decodeModel verifies raw against want and decodes it.
func decodeModel(raw []byte, want string) (*ffm.Model, error) {
	if got := checksum(raw); got != want {
		return nil, fmt.Errorf("%w: expected %s, got %s", ErrChecksumMismatch, want, got)
	}
	m, err := ffm.Load(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	return m, nil
}

func checksum(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// fillShape copies the model shape and save bookkeeping into meta.
//
//nolint:gocritic // meta is a small value type built per save
func fillShape(meta Metadata, name string, version int, m *ffm.Model, sum string) Metadata {
	meta.Name = name
	meta.Version = version
	meta.SavedAt = time.Now().UTC()
	if meta.TrainedAt.IsZero() {
		meta.TrainedAt = meta.SavedAt
	}
	meta.Fields = m.NumFields()
	meta.Features = m.NumFeatures()
	meta.K = m.K()
	meta.Normalization = m.Normalization()
	meta.Checksum = sum
	return meta
}
