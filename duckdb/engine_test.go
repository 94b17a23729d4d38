// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package duckdb

import (
	"context"
	"math"
	"testing"

	"github.com/OmniMCP-AI/cfengine"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewEngineWithConfig(&Config{MemoryLimit: "256MB", Threads: 2})
	if err != nil {
		t.Fatalf("Failed to create engine with config: %v", err)
	}
	t.Cleanup(func() { engine.Close() })
	return engine
}

func TestNewEngine(t *testing.T) {
	engine, err := NewEngine()
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	defer engine.Close()

	if !engine.IsInitialized() {
		t.Error("Engine should be initialized")
	}
}

func TestEngineClose(t *testing.T) {
	engine, err := NewEngine()
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	if err := engine.Close(); err != nil {
		t.Fatalf("Failed to close engine: %v", err)
	}
	if engine.IsInitialized() {
		t.Error("Closed engine should not be initialized")
	}
	if _, err := engine.Aggregate([]float64{1}); err != ErrClosed {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}

func TestAggregate(t *testing.T) {
	engine := newTestEngine(t)

	agg, err := engine.Aggregate([]float64{30, 10, 50, 20, 40})
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if agg.Count != 5 || agg.Min != 10 || agg.Max != 50 || agg.Sum != 150 {
		t.Errorf("Unexpected aggregate: %+v", agg)
	}
	want := []float64{10, 20, 30, 40, 50}
	if len(agg.Sorted) != len(want) {
		t.Fatalf("Expected %d sorted values, got %d", len(want), len(agg.Sorted))
	}
	for i, v := range want {
		if agg.Sorted[i] != v {
			t.Errorf("Sorted[%d] = %v, want %v", i, agg.Sorted[i], v)
		}
	}

	// The temporary table does not leak between calls.
	agg, err = engine.Aggregate([]float64{7})
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if agg.Count != 1 || agg.Sum != 7 {
		t.Errorf("Unexpected aggregate after reuse: %+v", agg)
	}
}

func TestAggregateEmpty(t *testing.T) {
	engine := newTestEngine(t)

	agg, err := engine.Aggregate(nil)
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if agg.Count != 0 || agg.Sum != 0 || len(agg.Sorted) != 0 {
		t.Errorf("Expected empty aggregate, got %+v", agg)
	}
}

func TestPercentileInc(t *testing.T) {
	engine := newTestEngine(t)
	values := []float64{10, 20, 30, 40, 50}

	tests := []struct {
		p    float64
		want float64
	}{
		{0, 10},
		{25, 20},
		{50, 30},
		{90, 46},
		{100, 50},
		{150, 50},
	}
	for _, tt := range tests {
		got, err := engine.PercentileInc(values, tt.p)
		if err != nil {
			t.Fatalf("PercentileInc(%v) failed: %v", tt.p, err)
		}
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("PercentileInc(%v) = %v, want %v", tt.p, got, tt.want)
		}
	}

	got, err := engine.PercentileInc(nil, 50)
	if err != nil {
		t.Fatalf("PercentileInc on empty failed: %v", err)
	}
	if !math.IsNaN(got) {
		t.Errorf("Expected NaN for empty values, got %v", got)
	}
}

func TestRangeStatsBackend(t *testing.T) {
	engine := newTestEngine(t)
	values := map[cfengine.Address]any{}
	for row := 1; row <= 5; row++ {
		values[cfengine.Address{Row: row, Col: 1}] = float64(row * 10)
	}
	values[cfengine.Address{Row: 6, Col: 1}] = "n/a"

	mgr := cfengine.NewRangeStatsManager(engine, nil)
	stats, err := mgr.ComputeOnce(cfengine.MustParseRange("A1:A6"), func(addr cfengine.Address) any {
		return values[addr]
	})
	if err != nil {
		t.Fatalf("ComputeOnce failed: %v", err)
	}
	if stats.Count != 5 || stats.Avg != 30 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
	if p := stats.PercentileInc(50); p != 30 {
		t.Errorf("Median = %v, want 30", p)
	}
}

func TestEngineTopRuleWithDuckDB(t *testing.T) {
	engine := newTestEngine(t)
	cf := cfengine.NewEngine(cfengine.Options{Aggregator: engine, Workers: 2})

	id, err := cf.AddRule("top2", cfengine.Rule{
		Ranges:    []cfengine.Range{cfengine.MustParseRange("A1:A5")},
		Style:     &cfengine.Style{FillColor: "#00FF00"},
		Condition: &cfengine.TopBottomCondition{Mode: cfengine.ModeTop, RankType: cfengine.RankNumber, Rank: 2},
	})
	if err != nil {
		t.Fatalf("AddRule failed: %v", err)
	}

	getValue := func(addr cfengine.Address) any { return float64(addr.Row * 10) }
	results, err := cf.EvaluateRange(context.Background(), cfengine.MustParseRange("A1:A5"), cfengine.EvalOptions{GetValue: getValue})
	if err != nil {
		t.Fatalf("EvaluateRange failed: %v", err)
	}
	for row, want := range map[int]bool{1: false, 2: false, 3: false, 4: true, 5: true} {
		res := results[cfengine.Address{Row: row, Col: 1}]
		if res.Matched() != want {
			t.Errorf("row %d: matched = %v, want %v (rule %s)", row, res.Matched(), want, id)
		}
	}
}
