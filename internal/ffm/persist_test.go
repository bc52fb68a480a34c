// Fieldfm - Field-aware Factorization Machine Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldfm

package ffm

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func trainedModel(t *testing.T) (*Problem, *Model) {
	t.Helper()

	p := syntheticProblem(t, 50, 3, 8, 9)
	params := DefaultParams()
	model, err := InitModel(p, params)
	if err != nil {
		t.Fatalf("InitModel() error = %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, err := Iteration(p, model, params); err != nil {
			t.Fatalf("Iteration() error = %v", err)
		}
	}
	return p, model
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	t.Parallel()

	p, model := trainedModel(t)

	var buf bytes.Buffer
	if err := Save(model, &buf); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	loaded, err := Load(&buf)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if loaded.NumFields() != model.NumFields() || loaded.NumFeatures() != model.NumFeatures() ||
		loaded.K() != model.K() || loaded.Normalization() != model.Normalization() {
		t.Fatalf("loaded header (%d,%d,%d,%t), want (%d,%d,%d,%t)",
			loaded.NumFields(), loaded.NumFeatures(), loaded.K(), loaded.Normalization(),
			model.NumFields(), model.NumFeatures(), model.K(), model.Normalization())
	}
	if !slices.Equal(loaded.Weights(), model.Weights()) {
		t.Fatal("loaded weights differ from saved weights")
	}

	want, err := PredictBatch(p, model)
	if err != nil {
		t.Fatalf("PredictBatch() error = %v", err)
	}
	got, err := PredictBatch(p, loaded)
	if err != nil {
		t.Fatalf("PredictBatch() error = %v", err)
	}
	if !slices.Equal(got, want) {
		t.Error("predictions differ after round trip")
	}
}

func TestSaveLoad_EmptyModel(t *testing.T) {
	t.Parallel()

	model, err := NewModel(0, 0, 4, false, 1)
	if err != nil {
		t.Fatalf("NewModel() error = %v", err)
	}
	var buf bytes.Buffer
	if err := Save(model, &buf); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if buf.Len() != headerSize+4 {
		t.Errorf("encoded size = %d, want %d", buf.Len(), headerSize+4)
	}
	loaded, err := Load(&buf)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Len() != 0 || loaded.K() != 4 || loaded.Normalization() {
		t.Errorf("loaded = (len %d, k %d, norm %t), want (0, 4, false)", loaded.Len(), loaded.K(), loaded.Normalization())
	}
}

func TestLoad_Corrupt(t *testing.T) {
	t.Parallel()

	_, model := trainedModel(t)
	var buf bytes.Buffer
	if err := Save(model, &buf); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	good := buf.Bytes()

	mutate := func(f func(b []byte) []byte) []byte {
		b := slices.Clone(good)
		return f(b)
	}

	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: nil},
		{name: "partial header", data: good[:headerSize-3]},
		{name: "header only", data: good[:headerSize]},
		{name: "truncated body", data: good[:len(good)/2]},
		{name: "missing checksum", data: good[:len(good)-4]},
		{name: "bad magic", data: mutate(func(b []byte) []byte { b[0] = 'X'; return b })},
		{name: "bad version", data: mutate(func(b []byte) []byte { b[4] = 9; return b })},
		{name: "bad normalization flag", data: mutate(func(b []byte) []byte { b[18] = 7; return b })},
		{name: "negative k", data: mutate(func(b []byte) []byte { b[17] = 0xff; return b })},
		{name: "flipped weight byte", data: mutate(func(b []byte) []byte { b[headerSize+10] ^= 0x40; return b })},
		{name: "trailing bytes", data: append(slices.Clone(good), 0)},
		{name: "oversized header", data: mutate(func(b []byte) []byte {
			b[6], b[7], b[8], b[9] = 0xff, 0xff, 0xff, 0x7f
			b[10], b[11], b[12], b[13] = 0xff, 0xff, 0xff, 0x7f
			return b
		})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m, err := Load(bytes.NewReader(tt.data))
			if !errors.Is(err, ErrCorruptModel) {
				t.Fatalf("Load() error = %v, want ErrCorruptModel", err)
			}
			if m != nil {
				t.Error("Load() returned a model alongside an error")
			}
		})
	}
}

func TestSaveFileLoadFile(t *testing.T) {
	t.Parallel()

	_, model := trainedModel(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "model.ffm")

	if err := SaveFile(model, path); err != nil {
		t.Fatalf("SaveFile() error = %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("directory has %d entries, want only the model file", len(entries))
	}

	loaded, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if !slices.Equal(loaded.Weights(), model.Weights()) {
		t.Error("LoadFile() weights differ from saved model")
	}

	if _, err := LoadFile(filepath.Join(dir, "missing.ffm")); err == nil {
		t.Error("LoadFile() on a missing path returned nil error")
	}
}
