// Fieldfm - Field-aware Factorization Machine Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldfm

package dataset

import (
	"context"
	"database/sql"
	"fmt"
	"math"

	_ "github.com/duckdb/duckdb-go/v2" // registers the "duckdb" driver

	"github.com/tomtom215/fieldfm/internal/ffm"
)

// OpenDuckDB opens an embedded DuckDB database. An empty path opens an
// in-memory database.
func OpenDuckDB(path string) (*sql.DB, error) {
	// Extension auto-install would reach the network on first use.
	connStr := path + "?autoinstall_known_extensions=false&autoload_known_extensions=false"
	if path == "" {
		connStr = ":memory:" + connStr
	}

	db, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("failed to connect to duckdb: %w", err)
	}
	return db, nil
}

// LoadSQL runs query and groups its rows into instances.
//
// The query must return (instance_id, label, field, feature, value) ordered
// by instance_id. A new instance starts whenever instance_id changes; the
// label of its first row is used.
func LoadSQL(ctx context.Context, db *sql.DB, query string, normalize bool) (*ffm.Problem, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query dataset: %w", err)
	}
	defer func() { _ = rows.Close() }() //nolint:errcheck // read-only result set

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}
	if len(cols) != 5 {
		return nil, fmt.Errorf("%w: query returns %d columns, want instance_id, label, field, feature, value",
			ErrSyntax, len(cols))
	}

	b := ffm.NewBuilder(normalize)
	var (
		nodes   []ffm.Node
		current string
		label   float32
		started bool
		rowNum  int
	)

	flush := func() error {
		if !started {
			return nil
		}
		if err := b.Add(label, nodes); err != nil {
			return fmt.Errorf("instance %s: %w", current, err)
		}
		nodes = nodes[:0]
		return nil
	}

	for rows.Next() {
		rowNum++
		var (
			id              string
			rawLabel, value float64
			field, feature  int64
		)
		if err := rows.Scan(&id, &rawLabel, &field, &feature, &value); err != nil {
			return nil, fmt.Errorf("scan row %d: %w", rowNum, err)
		}
		if field > math.MaxInt32 || feature > math.MaxInt32 || field < math.MinInt32 || feature < math.MinInt32 {
			return nil, fmt.Errorf("%w: row %d index does not fit int32", ErrSyntax, rowNum)
		}
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return nil, fmt.Errorf("%w: row %d value is not finite", ErrSyntax, rowNum)
		}
		if math.Abs(value) > math.MaxFloat32 {
			return nil, fmt.Errorf("%w: row %d value %g is out of float32 range", ErrSyntax, rowNum, value)
		}

		if !started || id != current {
			if err := flush(); err != nil {
				return nil, err
			}
			current, started = id, true
			label = -1
			if rawLabel > 0 {
				label = 1
			}
		}
		nodes = append(nodes, ffm.Node{Field: int32(field), Feature: int32(feature), Value: float32(value)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return b.Build(), nil
}
