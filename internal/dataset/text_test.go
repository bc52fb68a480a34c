// Fieldfm - Field-aware Factorization Machine Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldfm

package dataset

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tomtom215/fieldfm/internal/ffm"
)

const sample = `# clicks
1 0:0:1 1:3:0.5

0 0:1:1 1:2:2
-1 0:0:1
2.5 1:4:1 0:2:0.25
`

func TestRead(t *testing.T) {
	t.Parallel()

	p, err := Read(strings.NewReader(sample), false)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if p.Size() != 4 {
		t.Fatalf("Size() = %d, want 4", p.Size())
	}
	if p.NumFields() != 2 || p.NumFeatures() != 5 {
		t.Errorf("shape = (%d fields, %d features), want (2, 5)", p.NumFields(), p.NumFeatures())
	}

	wantLabels := []float32{1, -1, -1, 1}
	for i, want := range wantLabels {
		if got := p.Label(i); got != want {
			t.Errorf("Label(%d) = %v, want %v", i, got, want)
		}
	}

	// Node order within an instance is preserved.
	got := p.Nodes(3)
	want := []ffm.Node{{Field: 1, Feature: 4, Value: 1}, {Field: 0, Feature: 2, Value: 0.25}}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("Nodes(3) = %v, want %v", got, want)
	}
}

func TestRead_Normalize(t *testing.T) {
	t.Parallel()

	p, err := Read(strings.NewReader("1 0:0:3 1:1:4\n"), true)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if !p.Normalized() {
		t.Fatal("Normalized() = false")
	}
	if got, want := p.Scale(0), 1.0/25; got != want {
		t.Errorf("Scale(0) = %v, want %v", got, want)
	}
}

func TestRead_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		wantLine string
		wantErr  error
	}{
		{name: "bad label", input: "1 0:0:1\nyes 0:0:1\n", wantLine: "line 2", wantErr: ErrSyntax},
		{name: "two parts", input: "1 0:0\n", wantLine: "line 1", wantErr: ErrSyntax},
		{name: "bad field", input: "\n\n1 a:0:1\n", wantLine: "line 3", wantErr: ErrSyntax},
		{name: "field overflow", input: "1 4294967296:0:1\n", wantLine: "line 1", wantErr: ErrSyntax},
		{name: "bad value", input: "1 0:0:x\n", wantLine: "line 1", wantErr: ErrSyntax},
		{name: "infinite value", input: "1 0:0:Inf\n", wantLine: "line 1", wantErr: ErrSyntax},
		{name: "value beyond float32", input: "1 0:0:1e39\n", wantLine: "line 1", wantErr: ErrSyntax},
		{name: "negative feature", input: "1 0:-2:1\n", wantLine: "line 1", wantErr: ffm.ErrNegativeIndex},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Read(strings.NewReader(tt.input), true)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Read() error = %v, want %v", err, tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantLine) {
				t.Errorf("error %q does not name %s", err, tt.wantLine)
			}
		})
	}
}

func TestRead_Empty(t *testing.T) {
	t.Parallel()

	p, err := Read(strings.NewReader("# nothing\n\n"), true)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if p.Size() != 0 || p.NumFields() != 0 || p.NumFeatures() != 0 {
		t.Errorf("empty input gave size=%d n=%d m=%d", p.Size(), p.NumFields(), p.NumFeatures())
	}
}

func TestWrite_RoundTrip(t *testing.T) {
	t.Parallel()

	orig, err := Read(strings.NewReader(sample+"1\n1 2:7:0.1 0:0:3.3333333\n"), false)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	var buf bytes.Buffer
	if err := Write(&buf, orig); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	again, err := Read(&buf, false)
	if err != nil {
		t.Fatalf("Read() of written data error = %v", err)
	}

	if again.Size() != orig.Size() || again.NumNodes() != orig.NumNodes() {
		t.Fatalf("round trip size/nodes = %d/%d, want %d/%d",
			again.Size(), again.NumNodes(), orig.Size(), orig.NumNodes())
	}
	for i := 0; i < orig.Size(); i++ {
		if again.Label(i) != orig.Label(i) {
			t.Errorf("Label(%d) = %v, want %v", i, again.Label(i), orig.Label(i))
		}
		a, b := again.Nodes(i), orig.Nodes(i)
		for j := range b {
			if a[j] != b[j] {
				t.Errorf("instance %d node %d = %v, want %v", i, j, a[j], b[j])
			}
		}
	}
}

func TestReadFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "train.ffm")
	if err := os.WriteFile(path, []byte(sample), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	p, err := ReadFile(path, true)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if p.Size() != 4 {
		t.Errorf("Size() = %d, want 4", p.Size())
	}

	if _, err := ReadFile(filepath.Join(t.TempDir(), "missing.ffm"), true); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("ReadFile(missing) error = %v, want os.ErrNotExist", err)
	}
}
