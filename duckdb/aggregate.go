// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package duckdb

import (
	"database/sql"
	"errors"
	"fmt"
	"math"

	"github.com/OmniMCP-AI/cfengine"
)

// ErrClosed is returned when an aggregation is requested on a closed engine.
var ErrClosed = errors.New("duckdb engine is closed")

var _ cfengine.Aggregator = (*Engine)(nil)

// Aggregate loads values into a transaction-scoped temporary table and
// computes the count, extrema, sum and ascending order in SQL.
func (e *Engine) Aggregate(values []float64) (cfengine.Aggregate, error) {
	var agg cfengine.Aggregate
	err := e.withValues(values, func(tx *sql.Tx) error {
		var minV, maxV, sum sql.NullFloat64
		row := tx.QueryRow("SELECT count(v), min(v), max(v), sum(v) FROM cf_values")
		if err := row.Scan(&agg.Count, &minV, &maxV, &sum); err != nil {
			return fmt.Errorf("failed to aggregate values: %w", err)
		}
		agg.Min, agg.Max, agg.Sum = minV.Float64, maxV.Float64, sum.Float64

		rows, err := tx.Query("SELECT v FROM cf_values ORDER BY v")
		if err != nil {
			return fmt.Errorf("failed to sort values: %w", err)
		}
		defer rows.Close()
		agg.Sorted = make([]float64, 0, agg.Count)
		for rows.Next() {
			var v float64
			if err := rows.Scan(&v); err != nil {
				return err
			}
			agg.Sorted = append(agg.Sorted, v)
		}
		return rows.Err()
	})
	return agg, err
}

// PercentileInc returns the inclusive p-th percentile (0..100) of values
// using DuckDB's continuous quantile. It returns NaN for no values.
func (e *Engine) PercentileInc(values []float64, p float64) (float64, error) {
	p = math.Min(math.Max(p, 0), 100)
	result := math.NaN()
	err := e.withValues(values, func(tx *sql.Tx) error {
		var q sql.NullFloat64
		if err := tx.QueryRow("SELECT quantile_cont(v, ?) FROM cf_values", p/100).Scan(&q); err != nil {
			return fmt.Errorf("failed to compute percentile: %w", err)
		}
		if q.Valid {
			result = q.Float64
		}
		return nil
	})
	return result, err
}

// withValues runs fn inside a transaction holding values in the temporary
// table cf_values. The transaction is always rolled back.
func (e *Engine) withValues(values []float64, fn func(tx *sql.Tx) error) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.initialized {
		return ErrClosed
	}

	tx, err := e.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("CREATE OR REPLACE TEMP TABLE cf_values (v DOUBLE)"); err != nil {
		return fmt.Errorf("failed to create value table: %w", err)
	}
	stmt, err := tx.Prepare("INSERT INTO cf_values VALUES (?)")
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()
	for _, v := range values {
		if _, err := stmt.Exec(v); err != nil {
			return fmt.Errorf("failed to insert value: %w", err)
		}
	}
	return fn(tx)
}
