// Fieldfm - Field-aware Factorization Machine Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldfm

package dataset

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/tomtom215/fieldfm/internal/ffm"
)

// ErrSyntax is returned for malformed text input.
var ErrSyntax = errors.New("dataset: syntax error")

// maxLineBytes bounds a single instance line.
const maxLineBytes = 16 << 20

// Read parses libffm text from r.
func Read(r io.Reader, normalize bool) (*ffm.Problem, error) {
	b := ffm.NewBuilder(normalize)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var nodes []ffm.Node
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || text[0] == '#' {
			continue
		}

		label, parsed, err := parseLine(text, nodes[:0])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		nodes = parsed
		if err := b.Add(label, nodes); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read line %d: %w", line+1, err)
	}
	return b.Build(), nil
}

// ReadFile parses the libffm text file at path.
func ReadFile(path string, normalize bool) (*ffm.Problem, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from operator configuration
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer func() { _ = f.Close() }() //nolint:errcheck // read-only file

	p, err := Read(f, normalize)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// parseLine parses one non-empty line, appending nodes to buf.
func parseLine(text string, buf []ffm.Node) (float32, []ffm.Node, error) {
	tokens := strings.Fields(text)

	raw, err := strconv.ParseFloat(tokens[0], 64)
	if err != nil || math.IsNaN(raw) {
		return 0, nil, fmt.Errorf("%w: bad label %q", ErrSyntax, tokens[0])
	}
	label := float32(-1)
	if raw > 0 {
		label = 1
	}

	for _, tok := range tokens[1:] {
		nd, err := parseNode(tok)
		if err != nil {
			return 0, nil, err
		}
		buf = append(buf, nd)
	}
	return label, buf, nil
}

func parseNode(tok string) (ffm.Node, error) {
	parts := strings.Split(tok, ":")
	if len(parts) != 3 {
		return ffm.Node{}, fmt.Errorf("%w: node %q is not field:feature:value", ErrSyntax, tok)
	}
	field, err := strconv.ParseInt(parts[0], 10, 32)
	if err != nil {
		return ffm.Node{}, fmt.Errorf("%w: bad field in %q", ErrSyntax, tok)
	}
	feature, err := strconv.ParseInt(parts[1], 10, 32)
	if err != nil {
		return ffm.Node{}, fmt.Errorf("%w: bad feature in %q", ErrSyntax, tok)
	}
	value, err := strconv.ParseFloat(parts[2], 32)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return ffm.Node{}, fmt.Errorf("%w: bad value in %q", ErrSyntax, tok)
	}
	return ffm.Node{Field: int32(field), Feature: int32(feature), Value: float32(value)}, nil
}

// Write encodes p in the text format. Labels and values are written with
// the shortest representation that reads back to the same float32.
func Write(w io.Writer, p *ffm.Problem) error {
	bw := bufio.NewWriter(w)
	buf := make([]byte, 0, 256)

	for i := 0; i < p.Size(); i++ {
		buf = buf[:0]
		buf = strconv.AppendFloat(buf, float64(p.Label(i)), 'g', -1, 32)
		for _, nd := range p.Nodes(i) {
			buf = append(buf, ' ')
			buf = strconv.AppendInt(buf, int64(nd.Field), 10)
			buf = append(buf, ':')
			buf = strconv.AppendInt(buf, int64(nd.Feature), 10)
			buf = append(buf, ':')
			buf = strconv.AppendFloat(buf, float64(nd.Value), 'g', -1, 32)
		}
		buf = append(buf, '\n')
		if _, err := bw.Write(buf); err != nil {
			return fmt.Errorf("write instance %d: %w", i, err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush dataset: %w", err)
	}
	return nil
}
