// Fieldfm - Field-aware Factorization Machine Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldfm

package modelstore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/goccy/go-json"

	"github.com/tomtom215/fieldfm/internal/ffm"
	"github.com/tomtom215/fieldfm/internal/logging"
	"github.com/tomtom215/fieldfm/internal/metrics"
)

const (
	prefixModel   = "model:"
	prefixMeta    = "meta:"
	backendBadger = "badger"
)

// BadgerStore keeps models in an embedded BadgerDB.
//
// Keys:
//
//	model:{name}:{version:010d} -> ffm binary encoding
//	meta:{name}:{version:010d}  -> Metadata JSON
//
// Zero-padded versions keep a name's keys in version order for prefix scans.
type BadgerStore struct {
	db *badger.DB

	mu       sync.RWMutex
	closed   bool
	versions map[string][]int
}

var _ Registry = (*BadgerStore)(nil)

// BadgerOptions configures NewBadgerStore.
type BadgerOptions struct {
	// Dir is the database directory. Ignored when InMemory is set.
	Dir string

	// InMemory keeps everything in RAM, for tests.
	InMemory bool

	// SyncWrites fsyncs every commit.
	SyncWrites bool
}

// NewBadgerStore opens (or creates) a BadgerDB-backed registry.
func NewBadgerStore(opts BadgerOptions) (*BadgerStore, error) {
	bopts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	}
	bopts.SyncWrites = opts.SyncWrites
	bopts.Compression = options.Snappy

	// Reduce logging verbosity
	bopts.Logger = nil

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	s := &BadgerStore{db: db, versions: make(map[string][]int)}
	if err := s.scanModels(); err != nil {
		_ = db.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("scan existing models: %w", err)
	}

	logging.Info().
		Str("path", opts.Dir).
		Bool("in_memory", opts.InMemory).
		Msg("badger model store opened")
	return s, nil
}

func modelKey(name string, version int) []byte {
	return []byte(fmt.Sprintf("%s%s:%010d", prefixModel, name, version))
}

func metaKey(name string, version int) []byte {
	return []byte(fmt.Sprintf("%s%s:%010d", prefixMeta, name, version))
}

// parseMetaKey splits "meta:ctr:0000000003" into ("ctr", 3).
func parseMetaKey(key []byte) (string, int, bool) {
	rest, ok := strings.CutPrefix(string(key), prefixMeta)
	if !ok {
		return "", 0, false
	}
	idx := strings.LastIndexByte(rest, ':')
	if idx <= 0 {
		return "", 0, false
	}
	version, err := strconv.Atoi(rest[idx+1:])
	if err != nil {
		return "", 0, false
	}
	return rest[:idx], version, true
}

func (s *BadgerStore) scanModels() error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixMeta)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			name, version, ok := parseMetaKey(it.Item().Key())
			if !ok {
				continue
			}
			// Keys iterate in version order per name.
			s.versions[name] = append(s.versions[name], version)
		}
		return nil
	})
}

func (s *BadgerStore) checkOpen() error {
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Save stores model as the next version of name in one transaction.
//
//nolint:gocritic // meta passed by value is acceptable for this write operation
func (s *BadgerStore) Save(ctx context.Context, name string, model *ffm.Model, meta Metadata) (_ Metadata, err error) {
	start := time.Now()
	defer func() { metrics.RecordStoreOperation(backendBadger, "save", time.Since(start), err) }()

	if err := checkName(name); err != nil {
		return Metadata{}, err
	}
	if err := ctx.Err(); err != nil {
		return Metadata{}, err
	}

	raw, sum, err := encodeModel(model)
	if err != nil {
		return Metadata{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return Metadata{}, err
	}

	version := 1
	if vs := s.versions[name]; len(vs) > 0 {
		version = vs[len(vs)-1] + 1
	}
	meta = fillShape(meta, name, version, model, sum)
	meta.SizeBytes = int64(len(raw))

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return Metadata{}, fmt.Errorf("encode metadata: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.SetEntry(badger.NewEntry(modelKey(name, version), raw)); err != nil {
			return err
		}
		return txn.SetEntry(badger.NewEntry(metaKey(name, version), metaJSON))
	})
	if err != nil {
		return Metadata{}, fmt.Errorf("write model: %w", err)
	}

	s.versions[name] = append(s.versions[name], version)
	return meta, nil
}

// Load reads and verifies a model version. Version 0 loads the latest.
func (s *BadgerStore) Load(ctx context.Context, name string, version int) (_ *ffm.Model, _ Metadata, err error) {
	start := time.Now()
	defer func() { metrics.RecordStoreOperation(backendBadger, "load", time.Since(start), err) }()

	if err := checkName(name); err != nil {
		return nil, Metadata{}, err
	}
	if err := ctx.Err(); err != nil {
		return nil, Metadata{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, Metadata{}, err
	}

	if version == 0 {
		vs := s.versions[name]
		if len(vs) == 0 {
			return nil, Metadata{}, fmt.Errorf("%w: %s", ErrModelNotFound, name)
		}
		version = vs[len(vs)-1]
	}

	var (
		meta Metadata
		raw  []byte
	)
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(metaKey(name, version))
		if err != nil {
			return err
		}
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &meta)
		}); err != nil {
			return fmt.Errorf("decode metadata: %w", err)
		}

		item, err = txn.Get(modelKey(name, version))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, Metadata{}, fmt.Errorf("%w: %s v%d", ErrModelNotFound, name, version)
	}
	if err != nil {
		return nil, Metadata{}, fmt.Errorf("read model: %w", err)
	}

	m, err := decodeModel(raw, meta.Checksum)
	if err != nil {
		return nil, Metadata{}, fmt.Errorf("%s v%d: %w", name, version, err)
	}
	return m, meta, nil
}

// List returns the metadata of every version.
func (s *BadgerStore) List(ctx context.Context) (_ []Metadata, err error) {
	start := time.Now()
	defer func() { metrics.RecordStoreOperation(backendBadger, "list", time.Since(start), err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var out []Metadata
	err = s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixMeta)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			item := it.Item()
			var meta Metadata
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &meta)
			}); err != nil {
				logging.Warn().Err(err).Str("key", string(item.Key())).Msg("skipping unreadable model metadata")
				continue
			}
			out = append(out, meta)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterate metadata: %w", err)
	}
	sortMetadata(out)
	return out, nil
}

// Delete removes one version.
func (s *BadgerStore) Delete(ctx context.Context, name string, version int) (err error) {
	start := time.Now()
	defer func() { metrics.RecordStoreOperation(backendBadger, "delete", time.Since(start), err) }()

	if err := checkName(name); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	if !slices.Contains(s.versions[name], version) {
		return fmt.Errorf("%w: %s v%d", ErrModelNotFound, name, version)
	}

	if err := s.deleteKeys(name, version); err != nil {
		return err
	}
	s.dropVersion(name, version)
	return nil
}

func (s *BadgerStore) deleteKeys(name string, version int) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(modelKey(name, version)); err != nil {
			return err
		}
		return txn.Delete(metaKey(name, version))
	})
	if err != nil {
		return fmt.Errorf("delete %s v%d: %w", name, version, err)
	}
	return nil
}

func (s *BadgerStore) dropVersion(name string, version int) {
	vs := slices.DeleteFunc(s.versions[name], func(v int) bool { return v == version })
	if len(vs) == 0 {
		delete(s.versions, name)
		return
	}
	s.versions[name] = vs
}

// Latest returns the newest version of name.
func (s *BadgerStore) Latest(name string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vs := s.versions[name]
	if len(vs) == 0 {
		return 0, false
	}
	return vs[len(vs)-1], true
}

// Prune removes all but the newest keep versions of name and then runs
// value-log GC to reclaim their space.
func (s *BadgerStore) Prune(ctx context.Context, name string, keep int) (err error) {
	start := time.Now()
	defer func() { metrics.RecordStoreOperation(backendBadger, "prune", time.Since(start), err) }()

	if keep < 1 {
		keep = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	vs := s.versions[name]
	if len(vs) <= keep {
		return nil
	}
	for _, v := range slices.Clone(vs[:len(vs)-keep]) {
		if err := s.deleteKeys(name, v); err != nil {
			return err
		}
		s.dropVersion(name, v)
	}

	s.runGC()
	return nil
}

// runGC runs value-log GC until nothing is left to rewrite.
func (s *BadgerStore) runGC() {
	for {
		err := s.db.RunValueLogGC(0.5)
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
			return
		}
		if err != nil {
			logging.Debug().Err(err).Msg("badger value log GC stopped")
			return
		}
	}
}

// Refresh rebuilds the version index from the database.
func (s *BadgerStore) Refresh(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { metrics.RecordStoreOperation(backendBadger, "refresh", time.Since(start), err) }()

	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	s.versions = make(map[string][]int)
	return s.scanModels()
}

// Close closes the database. Further calls return ErrClosed.
func (s *BadgerStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close BadgerDB: %w", err)
	}
	return nil
}
