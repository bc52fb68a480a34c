// Fieldfm - Field-aware Factorization Machine Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldfm

package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/fieldfm/internal/api"
	"github.com/tomtom215/fieldfm/internal/ffm"
	"github.com/tomtom215/fieldfm/internal/modelstore"
)

func newModel(t *testing.T, seed int64) *ffm.Model {
	t.Helper()

	m, err := ffm.NewModel(2, 5, 4, true, seed)
	if err != nil {
		t.Fatalf("NewModel() error = %v", err)
	}
	return m
}

func newFileStore(t *testing.T) *modelstore.FileStore {
	t.Helper()

	store, err := modelstore.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	return store
}

func TestReloadService_ReloadOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newFileStore(t)
	holder := api.NewModelHolder()
	svc := NewReloadService(store, holder, ReloadServiceConfig{ModelName: "ctr", Interval: time.Hour}, zerolog.Nop())

	swapped, err := svc.ReloadOnce(ctx)
	if err != nil || swapped {
		t.Fatalf("ReloadOnce() on empty registry = (%t, %v), want (false, nil)", swapped, err)
	}
	if _, _, ok := holder.Get(); ok {
		t.Fatal("holder has a model before any save")
	}

	if _, err := store.Save(ctx, "ctr", newModel(t, 1), modelstore.Metadata{}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	swapped, err = svc.ReloadOnce(ctx)
	if err != nil || !swapped {
		t.Fatalf("ReloadOnce() after save = (%t, %v), want (true, nil)", swapped, err)
	}
	if holder.Version() != 1 {
		t.Errorf("Version() = %d, want 1", holder.Version())
	}

	swapped, err = svc.ReloadOnce(ctx)
	if err != nil || swapped {
		t.Errorf("ReloadOnce() with nothing new = (%t, %v), want (false, nil)", swapped, err)
	}

	if _, err := store.Save(ctx, "ctr", newModel(t, 2), modelstore.Metadata{}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if swapped, err := svc.ReloadOnce(ctx); err != nil || !swapped {
		t.Fatalf("ReloadOnce() after second save = (%t, %v)", swapped, err)
	}
	_, meta, _ := holder.Get()
	if meta.Version != 2 || meta.Name != "ctr" {
		t.Errorf("served metadata = %s v%d, want ctr v2", meta.Name, meta.Version)
	}
}

func TestReloadService_PicksUpOtherWriters(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	reader, err := modelstore.NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	writer, err := modelstore.NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}

	holder := api.NewModelHolder()
	svc := NewReloadService(reader, holder, ReloadServiceConfig{ModelName: "ctr"}, zerolog.Nop())

	if _, err := writer.Save(ctx, "ctr", newModel(t, 1), modelstore.Metadata{}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if swapped, err := svc.ReloadOnce(ctx); err != nil || !swapped {
		t.Fatalf("ReloadOnce() = (%t, %v), want a swap from the other writer", swapped, err)
	}
}

// failingSource reports a version that cannot be loaded.
type failingSource struct{}

func (failingSource) Refresh(context.Context) error { return nil }
func (failingSource) Latest(string) (int, bool) { return 3, true }
func (failingSource) Load(context.Context, string, int) (*ffm.Model, modelstore.Metadata, error) {
	return nil, modelstore.Metadata{}, modelstore.ErrChecksumMismatch
}

func TestReloadService_LoadErrorKeepsServedModel(t *testing.T) {
	t.Parallel()

	holder := api.NewModelHolder()
	served := newModel(t, 1)
	holder.Swap(served, modelstore.Metadata{Name: "ctr", Version: 2})

	svc := NewReloadService(failingSource{}, holder, ReloadServiceConfig{ModelName: "ctr"}, zerolog.Nop())
	swapped, err := svc.ReloadOnce(context.Background())
	if swapped || !errors.Is(err, modelstore.ErrChecksumMismatch) {
		t.Fatalf("ReloadOnce() = (%t, %v), want ErrChecksumMismatch", swapped, err)
	}
	if m, _, _ := holder.Get(); m != served || holder.Version() != 2 {
		t.Error("served model changed after a failed load")
	}
}

func TestReloadService_Serve(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newFileStore(t)
	if _, err := store.Save(ctx, "ctr", newModel(t, 1), modelstore.Metadata{}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	holder := api.NewModelHolder()
	svc := NewReloadService(store, holder, ReloadServiceConfig{ModelName: "ctr", Interval: 20 * time.Millisecond}, zerolog.Nop())
	if svc.String() != "reload-service" {
		t.Errorf("String() = %q", svc.String())
	}

	runCtx, cancel := context.WithCancel(ctx)
	errCh := serveAsync(runCtx, svc)

	waitFor(t, func() bool { return holder.Version() == 1 })
	if _, err := store.Save(ctx, "ctr", newModel(t, 2), modelstore.Metadata{}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	waitFor(t, func() bool { return holder.Version() == 2 })

	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Errorf("Serve() error = %v, want context.Canceled", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within 2s")
}
