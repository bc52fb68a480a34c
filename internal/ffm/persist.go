// Fieldfm - Field-aware Factorization Machine Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldfm

package ffm

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"math"
	"os"
	"path/filepath"
)

// Binary model layout, all little-endian:
//
//	magic          [4]byte  "FFMW"
//	version        uint16   1
//	n              int32    fields
//	m              int32    features
//	k              int32    latent dimension
//	normalization  uint8    0 or 1
//	weights        m*n*2k float32, feature-major, then field, then slot
//	checksum       uint32   CRC-32 (IEEE) of everything above
const (
	formatVersion uint16 = 1
	headerSize           = 4 + 2 + 4 + 4 + 4 + 1

	// chunkFloats bounds the decode buffer so a forged header cannot force
	// a huge allocation before the data actually arrives.
	chunkFloats = 1 << 16
)

var magic = [4]byte{'F', 'F', 'M', 'W'}

// Save encodes the model to w.
func Save(m *Model, w io.Writer) error {
	bw := bufio.NewWriter(w)
	crc := crc32.NewIEEE()
	out := io.MultiWriter(bw, crc)

	var hdr [headerSize]byte
	copy(hdr[0:4], magic[:])
	binary.LittleEndian.PutUint16(hdr[4:6], formatVersion)
	binary.LittleEndian.PutUint32(hdr[6:10], uint32(int32(m.n)))
	binary.LittleEndian.PutUint32(hdr[10:14], uint32(int32(m.m)))
	binary.LittleEndian.PutUint32(hdr[14:18], uint32(int32(m.k)))
	if m.normalization {
		hdr[18] = 1
	}
	if _, err := out.Write(hdr[:]); err != nil {
		return fmt.Errorf("write model header: %w", err)
	}

	buf := make([]byte, 4*chunkFloats)
	data := m.w.data
	for start := 0; start < len(data); start += chunkFloats {
		end := min(start+chunkFloats, len(data))
		b := buf[:4*(end-start)]
		for i, v := range data[start:end] {
			binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(v))
		}
		if _, err := out.Write(b); err != nil {
			return fmt.Errorf("write model weights: %w", err)
		}
	}

	var sum [4]byte
	binary.LittleEndian.PutUint32(sum[:], crc.Sum32())
	if _, err := bw.Write(sum[:]); err != nil {
		return fmt.Errorf("write model checksum: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush model: %w", err)
	}
	return nil
}

// Load decodes a model written by Save. Truncated, inconsistent or trailing
// data yields ErrCorruptModel and no model.
func Load(r io.Reader) (*Model, error) {
	br := bufio.NewReader(r)
	crc := crc32.NewIEEE()
	in := io.TeeReader(br, crc)

	var hdr [headerSize]byte
	if _, err := io.ReadFull(in, hdr[:]); err != nil {
		return nil, corrupt("read header", err)
	}
	if [4]byte(hdr[0:4]) != magic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrCorruptModel, hdr[0:4])
	}
	if v := binary.LittleEndian.Uint16(hdr[4:6]); v != formatVersion {
		return nil, fmt.Errorf("%w: unsupported format version %d", ErrCorruptModel, v)
	}
	n := int(int32(binary.LittleEndian.Uint32(hdr[6:10])))
	mm := int(int32(binary.LittleEndian.Uint32(hdr[10:14])))
	k := int(int32(binary.LittleEndian.Uint32(hdr[14:18])))
	if hdr[18] > 1 {
		return nil, fmt.Errorf("%w: normalization flag %d", ErrCorruptModel, hdr[18])
	}
	normalization := hdr[18] == 1

	total, err := storeLen(n, mm, k)
	if err != nil {
		return nil, fmt.Errorf("%w: header n=%d m=%d k=%d: %v", ErrCorruptModel, n, mm, k, err)
	}

	data := make([]float32, 0, min(total, chunkFloats))
	buf := make([]byte, 4*min(total, chunkFloats))
	for len(data) < total {
		b := buf[:4*min(total-len(data), chunkFloats)]
		if _, err := io.ReadFull(in, b); err != nil {
			return nil, corrupt("read weights", err)
		}
		for i := 0; i < len(b); i += 4 {
			data = append(data, math.Float32frombits(binary.LittleEndian.Uint32(b[i:])))
		}
	}

	var sum [4]byte
	if _, err := io.ReadFull(br, sum[:]); err != nil {
		return nil, corrupt("read checksum", err)
	}
	if got, want := crc.Sum32(), binary.LittleEndian.Uint32(sum[:]); got != want {
		return nil, fmt.Errorf("%w: checksum %08x, want %08x", ErrCorruptModel, got, want)
	}
	if _, err := br.ReadByte(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after checksum", ErrCorruptModel)
	}

	model, err := newEmptyModel(n, mm, k, normalization)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptModel, err)
	}
	model.w.data = data
	return model, nil
}

func corrupt(op string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %s: truncated", ErrCorruptModel, op)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// SaveFile writes the model to path atomically via a temp file and rename.
func SaveFile(m *Model, path string) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("create temp model file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err = Save(m, tmp); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync model file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close model file: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename model file: %w", err)
	}
	return nil
}

// LoadFile reads a model written by SaveFile or Save.
func LoadFile(path string) (*Model, error) {
	f, err := os.Open(path) //nolint:gosec // G304: path is operator-supplied
	if err != nil {
		return nil, fmt.Errorf("open model file: %w", err)
	}
	defer f.Close()
	return Load(f)
}
