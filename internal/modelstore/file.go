// Fieldfm - Field-aware Factorization Machine Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldfm

package modelstore

import (
	"bytes"
	"cmp"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/fieldfm/internal/ffm"
	"github.com/tomtom215/fieldfm/internal/metrics"
)

const (
	modelSuffix = ".ffm.gz"
	metaSuffix  = ".json"
	backendFile = "file"
)

// FileStore keeps models as gzip files with JSON metadata sidecars.
type FileStore struct {
	baseDir string
	mu      sync.RWMutex

	// versions holds every stored version per name, ascending.
	versions map[string][]int
}

var _ Registry = (*FileStore)(nil)

// NewFileStore opens (and creates if needed) a store in baseDir.
func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0o750); err != nil { //nolint:gosec // 0750 is acceptable for model storage
		return nil, fmt.Errorf("create storage directory: %w", err)
	}

	s := &FileStore{
		baseDir:  baseDir,
		versions: make(map[string][]int),
	}
	if err := s.scanModels(); err != nil {
		return nil, fmt.Errorf("scan existing models: %w", err)
	}
	return s, nil
}

// scanModels rebuilds the version index from the model files on disk.
func (s *FileStore) scanModels() error {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return err
	}

	versions := make(map[string][]int)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		base, ok := strings.CutSuffix(entry.Name(), modelSuffix)
		if !ok {
			continue
		}
		name, version := parseModelFilename(base)
		if name == "" {
			continue
		}
		versions[name] = append(versions[name], version)
	}
	for name := range versions {
		slices.Sort(versions[name])
	}
	s.versions = versions
	return nil
}

// parseModelFilename splits "ctr_v12" into ("ctr", 12).
func parseModelFilename(base string) (string, int) {
	idx := strings.LastIndex(base, "_v")
	if idx <= 0 {
		return "", 0
	}
	version, err := strconv.Atoi(base[idx+2:])
	if err != nil || version < 1 {
		return "", 0
	}
	return base[:idx], version
}

func (s *FileStore) modelPath(name string, version int) string {
	return filepath.Join(s.baseDir, fmt.Sprintf("%s_v%d%s", name, version, modelSuffix))
}

func (s *FileStore) metaPath(name string, version int) string {
	return filepath.Join(s.baseDir, fmt.Sprintf("%s_v%d%s", name, version, metaSuffix))
}

// Save stores model as the next version of name.
//
//nolint:gocritic // meta passed by value is acceptable for this write operation
func (s *FileStore) Save(ctx context.Context, name string, model *ffm.Model, meta Metadata) (_ Metadata, err error) {
	start := time.Now()
	defer func() { metrics.RecordStoreOperation(backendFile, "save", time.Since(start), err) }()

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

	var compressed bytes.Buffer
	gzw := gzip.NewWriter(&compressed)
	if _, err := gzw.Write(raw); err != nil {
		return Metadata{}, fmt.Errorf("compress model: %w", err)
	}
	if err := gzw.Close(); err != nil {
		return Metadata{}, fmt.Errorf("finalize compression: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Other processes may share the directory, so the index is refreshed
	// and the version is claimed by exclusively creating its sidecar.
	if err := s.scanModels(); err != nil {
		return Metadata{}, fmt.Errorf("scan models: %w", err)
	}
	sidecar, version, err := s.claimVersion(name)
	if err != nil {
		return Metadata{}, err
	}
	meta = fillShape(meta, name, version, model, sum)
	meta.SizeBytes = int64(compressed.Len())

	// The sidecar goes first: a model file without metadata would be
	// indexed by scanModels but could never be verified.
	if err := writeClaimed(sidecar, meta); err != nil {
		_ = os.Remove(sidecar.Name()) //nolint:errcheck // best-effort rollback
		return Metadata{}, fmt.Errorf("write metadata: %w", err)
	}
	if err := writeFileAtomic(s.modelPath(name, version), compressed.Bytes()); err != nil {
		_ = os.Remove(s.metaPath(name, version)) //nolint:errcheck // best-effort rollback
		return Metadata{}, fmt.Errorf("write model file: %w", err)
	}

	s.versions[name] = append(s.versions[name], version)
	return meta, nil
}

// Load reads and verifies a model version. Version 0 loads the latest.
func (s *FileStore) Load(ctx context.Context, name string, version int) (_ *ffm.Model, _ Metadata, err error) {
	start := time.Now()
	defer func() { metrics.RecordStoreOperation(backendFile, "load", time.Since(start), err) }()

	if err := checkName(name); err != nil {
		return nil, Metadata{}, err
	}
	if err := ctx.Err(); err != nil {
		return nil, Metadata{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if version == 0 {
		vs := s.versions[name]
		if len(vs) == 0 {
			return nil, Metadata{}, fmt.Errorf("%w: %s", ErrModelNotFound, name)
		}
		version = vs[len(vs)-1]
	}

	meta, err := s.readMeta(name, version)
	if err != nil {
		return nil, Metadata{}, err
	}

	raw, err := readGzipFile(s.modelPath(name, version))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, Metadata{}, fmt.Errorf("%w: %s v%d", ErrModelNotFound, name, version)
		}
		return nil, Metadata{}, err
	}

	m, err := decodeModel(raw, meta.Checksum)
	if err != nil {
		return nil, Metadata{}, fmt.Errorf("%s v%d: %w", name, version, err)
	}
	return m, meta, nil
}

func (s *FileStore) readMeta(name string, version int) (Metadata, error) {
	data, err := os.ReadFile(s.metaPath(name, version))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Metadata{}, fmt.Errorf("%w: %s v%d", ErrModelNotFound, name, version)
		}
		return Metadata{}, fmt.Errorf("read metadata: %w", err)
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return Metadata{}, fmt.Errorf("decode metadata %s v%d: %w", name, version, err)
	}
	return meta, nil
}

func readGzipFile(path string) ([]byte, error) {
	f, err := os.Open(path) //nolint:gosec // path is built from a validated name
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }() //nolint:errcheck // read-only file

	gzr, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("decompress model: %w", err)
	}
	defer func() { _ = gzr.Close() }() //nolint:errcheck // error on gzip close after read is not actionable

	raw, err := io.ReadAll(gzr)
	if err != nil {
		return nil, fmt.Errorf("read decompressed data: %w", err)
	}
	return raw, nil
}

// List returns the metadata of every version. Versions whose sidecar
// cannot be read are skipped.
func (s *FileStore) List(ctx context.Context) (_ []Metadata, err error) {
	start := time.Now()
	defer func() { metrics.RecordStoreOperation(backendFile, "list", time.Since(start), err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Metadata
	for name, vs := range s.versions {
		for _, v := range vs {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			meta, err := s.readMeta(name, v)
			if err != nil {
				continue
			}
			out = append(out, meta)
		}
	}
	sortMetadata(out)
	return out, nil
}

// Delete removes one version and its sidecar.
func (s *FileStore) Delete(ctx context.Context, name string, version int) (err error) {
	start := time.Now()
	defer func() { metrics.RecordStoreOperation(backendFile, "delete", time.Since(start), err) }()

	if err := checkName(name); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !slices.Contains(s.versions[name], version) {
		return fmt.Errorf("%w: %s v%d", ErrModelNotFound, name, version)
	}
	if err := os.Remove(s.modelPath(name, version)); err != nil {
		return fmt.Errorf("delete model: %w", err)
	}
	_ = os.Remove(s.metaPath(name, version)) //nolint:errcheck // the model file is the index

	s.dropVersion(name, version)
	return nil
}

func (s *FileStore) dropVersion(name string, version int) {
	vs := slices.DeleteFunc(s.versions[name], func(v int) bool { return v == version })
	if len(vs) == 0 {
		delete(s.versions, name)
		return
	}
	s.versions[name] = vs
}

// Latest returns the newest version of name.
func (s *FileStore) Latest(name string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vs := s.versions[name]
	if len(vs) == 0 {
		return 0, false
	}
	return vs[len(vs)-1], true
}

// Prune removes all but the newest keep versions of name.
func (s *FileStore) Prune(ctx context.Context, name string, keep int) (err error) {
	start := time.Now()
	defer func() { metrics.RecordStoreOperation(backendFile, "prune", time.Since(start), err) }()

	if keep < 1 {
		keep = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	vs := s.versions[name]
	if len(vs) <= keep {
		return nil
	}
	for _, v := range slices.Clone(vs[:len(vs)-keep]) {
		if err := os.Remove(s.modelPath(name, v)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("prune %s v%d: %w", name, v, err)
		}
		_ = os.Remove(s.metaPath(name, v)) //nolint:errcheck // best-effort cleanup of old versions
		s.dropVersion(name, v)
	}
	return nil
}

// Refresh rescans the directory.
func (s *FileStore) Refresh(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { metrics.RecordStoreOperation(backendFile, "refresh", time.Since(start), err) }()

	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scanModels()
}

// Close is a no-op for the file backend.
func (s *FileStore) Close() error {
	return nil
}

// writeFileAtomic writes data to a temp file in the same directory and
// renames it into place.
// maxClaimAttempts bounds the search for a free version when other writers
// keep taking the next one.
const maxClaimAttempts = 1000

// claimVersion creates the sidecar of the next free version of name with
// O_EXCL and returns it open for writing. Must be called with s.mu held.
func (s *FileStore) claimVersion(name string) (*os.File, int, error) {
	version := 1
	if vs := s.versions[name]; len(vs) > 0 {
		version = vs[len(vs)-1] + 1
	}
	for range maxClaimAttempts {
		f, err := os.OpenFile(s.metaPath(name, version), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		switch {
		case err == nil:
			return f, version, nil
		case errors.Is(err, os.ErrExist):
			version++
		default:
			return nil, 0, fmt.Errorf("claim version %d: %w", version, err)
		}
	}
	return nil, 0, fmt.Errorf("claim version of %s: no free version after %d attempts", name, maxClaimAttempts)
}

// writeClaimed writes meta into a sidecar returned by claimVersion and
// closes it.
//
//nolint:gocritic // meta passed by value matches Save
func writeClaimed(f *os.File, meta Metadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		_ = f.Close() //nolint:errcheck // already failing
		return fmt.Errorf("encode metadata: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close() //nolint:errcheck // already failing
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close() //nolint:errcheck // already failing
		return err
	}
	return f.Close()
}

func writeFileAtomic(path string, data []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name()) //nolint:errcheck // best-effort cleanup
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close() //nolint:errcheck // already failing
		return err
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close() //nolint:errcheck // already failing
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func sortMetadata(ms []Metadata) {
	slices.SortFunc(ms, func(a, b Metadata) int {
		if c := cmp.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.Version, b.Version)
	})
}
