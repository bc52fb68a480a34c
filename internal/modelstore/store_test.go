// Fieldfm - Field-aware Factorization Machine Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldfm

package modelstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/tomtom215/fieldfm/internal/ffm"
)

func newTestModel(t *testing.T, seed int64) *ffm.Model {
	t.Helper()

	m, err := ffm.NewModel(3, 7, 4, true, seed)
	if err != nil {
		t.Fatalf("NewModel() error = %v", err)
	}
	return m
}

func sameWeights(t *testing.T, got, want *ffm.Model) {
	t.Helper()

	g, w := got.Weights(), want.Weights()
	if len(g) != len(w) {
		t.Fatalf("weight count = %d, want %d", len(g), len(w))
	}
	for i := range w {
		if g[i] != w[i] {
			t.Fatalf("weight %d = %v, want %v", i, g[i], w[i])
		}
	}
}

// backends returns a fresh instance of every Registry implementation.
func backends(t *testing.T) map[string]func(t *testing.T) Registry {
	t.Helper()

	return map[string]func(t *testing.T) Registry{
		"file": func(t *testing.T) Registry {
			s, err := NewFileStore(t.TempDir())
			if err != nil {
				t.Fatalf("NewFileStore() error = %v", err)
			}
			return s
		},
		"badger": func(t *testing.T) Registry {
			s, err := NewBadgerStore(BadgerOptions{InMemory: true})
			if err != nil {
				t.Fatalf("NewBadgerStore() error = %v", err)
			}
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

func TestRegistry_SaveLoad(t *testing.T) {
	t.Parallel()

	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			s := open(t)

			m1, m2 := newTestModel(t, 1), newTestModel(t, 2)
			meta1, err := s.Save(ctx, "ctr", m1, Metadata{Instances: 100, Epochs: 5, TrainLoss: 0.4})
			if err != nil {
				t.Fatalf("Save() error = %v", err)
			}
			if meta1.Version != 1 || meta1.Name != "ctr" || meta1.Checksum == "" || meta1.SizeBytes <= 0 {
				t.Errorf("first save metadata = %+v", meta1)
			}
			if meta1.Fields != 3 || meta1.Features != 7 || meta1.K != 4 || !meta1.Normalization {
				t.Errorf("shape not copied from model: %+v", meta1)
			}
			if meta1.TrainedAt.IsZero() || meta1.SavedAt.IsZero() {
				t.Error("timestamps not set")
			}

			meta2, err := s.Save(ctx, "ctr", m2, Metadata{})
			if err != nil {
				t.Fatalf("Save() error = %v", err)
			}
			if meta2.Version != 2 {
				t.Errorf("second save version = %d, want 2", meta2.Version)
			}
			if v, ok := s.Latest("ctr"); !ok || v != 2 {
				t.Errorf("Latest() = (%d, %t), want (2, true)", v, ok)
			}

			got, meta, err := s.Load(ctx, "ctr", 0)
			if err != nil {
				t.Fatalf("Load(latest) error = %v", err)
			}
			if meta.Version != 2 {
				t.Errorf("Load(latest) version = %d, want 2", meta.Version)
			}
			sameWeights(t, got, m2)

			got, meta, err = s.Load(ctx, "ctr", 1)
			if err != nil {
				t.Fatalf("Load(1) error = %v", err)
			}
			if meta.Instances != 100 || meta.Epochs != 5 || meta.TrainLoss != 0.4 {
				t.Errorf("training stats lost: %+v", meta)
			}
			sameWeights(t, got, m1)
		})
	}
}

func TestRegistry_NotFoundAndNames(t *testing.T) {
	t.Parallel()

	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			s := open(t)

			if _, _, err := s.Load(ctx, "ctr", 0); !errors.Is(err, ErrModelNotFound) {
				t.Errorf("Load() on empty store error = %v, want ErrModelNotFound", err)
			}
			if _, ok := s.Latest("ctr"); ok {
				t.Error("Latest() on empty store reported a version")
			}
			if _, err := s.Save(ctx, "ctr", newTestModel(t, 1), Metadata{}); err != nil {
				t.Fatalf("Save() error = %v", err)
			}
			if _, _, err := s.Load(ctx, "ctr", 9); !errors.Is(err, ErrModelNotFound) {
				t.Errorf("Load(v9) error = %v, want ErrModelNotFound", err)
			}
			if err := s.Delete(ctx, "ctr", 9); !errors.Is(err, ErrModelNotFound) {
				t.Errorf("Delete(v9) error = %v, want ErrModelNotFound", err)
			}

			for _, bad := range []string{"", "../x", "a:b", "with space"} {
				if _, err := s.Save(ctx, bad, newTestModel(t, 1), Metadata{}); !errors.Is(err, ErrInvalidName) {
					t.Errorf("Save(%q) error = %v, want ErrInvalidName", bad, err)
				}
			}
		})
	}
}

func TestRegistry_ListDeletePrune(t *testing.T) {
	t.Parallel()

	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			s := open(t)

			for i := 0; i < 5; i++ {
				if _, err := s.Save(ctx, "ctr", newTestModel(t, int64(i)), Metadata{}); err != nil {
					t.Fatalf("Save() error = %v", err)
				}
			}
			if _, err := s.Save(ctx, "cvr", newTestModel(t, 9), Metadata{}); err != nil {
				t.Fatalf("Save() error = %v", err)
			}

			all, err := s.List(ctx)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(all) != 6 || all[0].Name != "ctr" || all[0].Version != 1 || all[5].Name != "cvr" {
				t.Fatalf("List() = %d entries, first %s v%d", len(all), all[0].Name, all[0].Version)
			}

			if err := s.Delete(ctx, "ctr", 5); err != nil {
				t.Fatalf("Delete() error = %v", err)
			}
			if v, _ := s.Latest("ctr"); v != 4 {
				t.Errorf("Latest() after deleting v5 = %d, want 4", v)
			}

			if err := s.Prune(ctx, "ctr", 2); err != nil {
				t.Fatalf("Prune() error = %v", err)
			}
			all, err = s.List(ctx)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			var versions []int
			for _, m := range all {
				if m.Name == "ctr" {
					versions = append(versions, m.Version)
				}
			}
			if len(versions) != 2 || versions[0] != 3 || versions[1] != 4 {
				t.Errorf("versions after Prune(2) = %v, want [3 4]", versions)
			}
			if _, _, err := s.Load(ctx, "ctr", 1); !errors.Is(err, ErrModelNotFound) {
				t.Errorf("Load(pruned) error = %v, want ErrModelNotFound", err)
			}
			if _, _, err := s.Load(ctx, "cvr", 0); err != nil {
				t.Errorf("Prune touched another name: %v", err)
			}

			// The next save continues after the newest remaining version.
			meta, err := s.Save(ctx, "ctr", newTestModel(t, 11), Metadata{})
			if err != nil {
				t.Fatalf("Save() error = %v", err)
			}
			if meta.Version != 5 {
				t.Errorf("version after prune = %d, want 5", meta.Version)
			}
		})
	}
}

func TestFileStore_ReopenAndChecksum(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()

	s, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	want := newTestModel(t, 3)
	for i := 0; i < 2; i++ {
		if _, err := s.Save(ctx, "ctr", want, Metadata{}); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "ctr_v2.ffm.gz")); err != nil {
		t.Errorf("model file missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "ctr_v2.json")); err != nil {
		t.Errorf("metadata sidecar missing: %v", err)
	}

	reopened, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore() reopen error = %v", err)
	}
	if v, ok := reopened.Latest("ctr"); !ok || v != 2 {
		t.Fatalf("Latest() after reopen = (%d, %t), want (2, true)", v, ok)
	}
	got, _, err := reopened.Load(ctx, "ctr", 2)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	sameWeights(t, got, want)

	// Swap v1's model file for a different model: the sidecar checksum no
	// longer matches.
	other, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	if _, err := other.Save(ctx, "ctr", newTestModel(t, 99), Metadata{}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	foreign, err := os.ReadFile(other.modelPath("ctr", 1))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if err := os.WriteFile(reopened.modelPath("ctr", 1), foreign, 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if _, _, err := reopened.Load(ctx, "ctr", 1); !errors.Is(err, ErrChecksumMismatch) {
		t.Errorf("Load() of swapped file error = %v, want ErrChecksumMismatch", err)
	}
}

func TestBadgerStore_Reopen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()

	s, err := NewBadgerStore(BadgerOptions{Dir: dir, SyncWrites: true})
	if err != nil {
		t.Fatalf("NewBadgerStore() error = %v", err)
	}
	want := newTestModel(t, 4)
	for i := 0; i < 3; i++ {
		if _, err := s.Save(ctx, "ctr", want, Metadata{}); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := s.Save(ctx, "ctr", want, Metadata{}); !errors.Is(err, ErrClosed) {
		t.Errorf("Save() after Close error = %v, want ErrClosed", err)
	}

	reopened, err := NewBadgerStore(BadgerOptions{Dir: dir})
	if err != nil {
		t.Fatalf("NewBadgerStore() reopen error = %v", err)
	}
	defer func() { _ = reopened.Close() }()

	if v, ok := reopened.Latest("ctr"); !ok || v != 3 {
		t.Fatalf("Latest() after reopen = (%d, %t), want (3, true)", v, ok)
	}
	got, _, err := reopened.Load(ctx, "ctr", 0)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	sameWeights(t, got, want)
}

func TestParseKeysAndFilenames(t *testing.T) {
	t.Parallel()

	name, v := parseModelFilename("click_model_v12")
	if name != "click_model" || v != 12 {
		t.Errorf("parseModelFilename() = (%q, %d)", name, v)
	}
	if name, _ := parseModelFilename("nover"); name != "" {
		t.Errorf("parseModelFilename(nover) = %q, want empty", name)
	}
	if name, _ := parseModelFilename("x_v0"); name != "" {
		t.Errorf("parseModelFilename(x_v0) = %q, want empty", name)
	}

	name, v, ok := parseMetaKey(metaKey("ctr-eu", 42))
	if !ok || name != "ctr-eu" || v != 42 {
		t.Errorf("parseMetaKey() = (%q, %d, %t)", name, v, ok)
	}
	if string(modelKey("ctr", 7)) != "model:ctr:0000000007" {
		t.Errorf("modelKey() = %s", modelKey("ctr", 7))
	}
}

func TestFileStore_RefreshSeesOtherWriters(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()

	reader, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	writer, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	if _, err := writer.Save(ctx, "ctr", newTestModel(t, 1), Metadata{}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if _, ok := reader.Latest("ctr"); ok {
		t.Fatal("reader saw the new version before Refresh")
	}
	if err := reader.Refresh(ctx); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if v, ok := reader.Latest("ctr"); !ok || v != 1 {
		t.Errorf("Latest() after Refresh = (%d, %t), want (1, true)", v, ok)
	}
}

func TestFileStore_ConcurrentWritersKeepEveryVersion(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()

	a, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	b, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}

	metaA, err := a.Save(ctx, "ctr", newTestModel(t, 1), Metadata{RunID: "writer-a"})
	if err != nil {
		t.Fatalf("a.Save() error = %v", err)
	}
	metaB, err := b.Save(ctx, "ctr", newTestModel(t, 2), Metadata{RunID: "writer-b"})
	if err != nil {
		t.Fatalf("b.Save() error = %v", err)
	}
	if metaA.Version != 1 || metaB.Version != 2 {
		t.Fatalf("versions = (%d, %d), want (1, 2)", metaA.Version, metaB.Version)
	}

	for _, tt := range []struct {
		version int
		runID   string
		seed    int64
	}{
		{version: 1, runID: "writer-a", seed: 1},
		{version: 2, runID: "writer-b", seed: 2},
	} {
		got, meta, err := a.Load(ctx, "ctr", tt.version)
		if err != nil {
			t.Fatalf("Load(v%d) error = %v", tt.version, err)
		}
		if meta.RunID != tt.runID {
			t.Errorf("Load(v%d) run_id = %q, want %q", tt.version, meta.RunID, tt.runID)
		}
		sameWeights(t, got, newTestModel(t, tt.seed))
	}

	metas, err := b.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(metas) != 2 {
		t.Errorf("List() returned %d versions, want 2", len(metas))
	}
}

func TestFileStore_SkipsClaimedVersions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()

	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}

	// A sidecar without its model file is a version another writer has
	// claimed but not finished.
	if err := os.WriteFile(filepath.Join(dir, "ctr_v1.json"), []byte("{}"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	meta, err := store.Save(ctx, "ctr", newTestModel(t, 1), Metadata{})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if meta.Version != 2 {
		t.Errorf("Version = %d, want 2 past the claimed v1", meta.Version)
	}
	raw, err := os.ReadFile(filepath.Join(dir, "ctr_v1.json"))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(raw) != "{}" {
		t.Errorf("claimed sidecar was overwritten: %s", raw)
	}
}
