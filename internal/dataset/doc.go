// Fieldfm - Field-aware Factorization Machine Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldfm

/*
Package dataset loads training and validation data into ffm.Problem values.

Two sources are supported.

# Text Format

One instance per line in the libffm layout:

	<label> <field>:<feature>:<value> <field>:<feature>:<value> ...

A label greater than zero is a click (+1), anything else is a non-click (-1).
Blank lines and lines starting with '#' are skipped. Field and feature
indices are non-negative int32 values; the value is a finite float32.
Parse errors report the 1-based line number.

# SQL Source

LoadSQL runs a query whose rows are (instance_id, label, field, feature,
value), ordered by instance_id. Consecutive rows sharing an instance_id form
one instance. OpenDuckDB opens an embedded DuckDB database, which can read
Parquet and CSV files directly:

	db, err := dataset.OpenDuckDB("")
	p, err := dataset.LoadSQL(ctx, db,
	    "SELECT id, label, field, feature, value FROM 'clicks.parquet' ORDER BY id", true)
*/
package dataset
