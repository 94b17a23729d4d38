// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package cfengine

import (
	"math"
	"sort"
	"sync"

	"github.com/hashicorp/go-hclog"
)

// RangeStats are the order statistics of the numeric values of a range or
// range set. A RangeStats value is immutable once produced and may be
// shared between goroutines.
type RangeStats struct {
	Min, Max, Avg, Sum float64
	Count              int
	// Sorted holds the numeric values in ascending order.
	Sorted []float64
	// Generation is the dependency graph generation the statistics were
	// computed under.
	Generation uint64
}

// PercentileInc returns the p-th percentile (0..100) using the inclusive
// linear interpolation of PERCENTILE.INC: rank = p/100 * (n-1), interpolated
// between the order statistics at floor(rank) and ceil(rank). p outside
// [0, 100] is clamped. An empty set returns NaN.
func (s *RangeStats) PercentileInc(p float64) float64 {
	n := len(s.Sorted)
	if n == 0 {
		return math.NaN()
	}
	if n == 1 {
		return s.Sorted[0]
	}
	p = math.Max(0, math.Min(100, p))
	rank := p / 100 * float64(n-1)
	lo, hi := int(math.Floor(rank)), int(math.Ceil(rank))
	return s.Sorted[lo] + (rank-float64(lo))*(s.Sorted[hi]-s.Sorted[lo])
}

// PercentRank returns the percentile rank (0..100) of v, placing tied values
// at the midpoint of their run: the first and last ascending index equal to
// v are averaged and divided by n-1. A single-value set ranks at 50.
// Values absent from the set rank at the insertion point.
func (s *RangeStats) PercentRank(v float64) float64 {
	n := len(s.Sorted)
	if n == 0 {
		return math.NaN()
	}
	if n == 1 {
		return 50
	}
	first := sort.SearchFloat64s(s.Sorted, v)
	last := sort.Search(n, func(i int) bool { return s.Sorted[i] > v }) - 1
	if last < first {
		last = first
	}
	mid := float64(first+last) / 2
	return math.Min(100, mid/float64(n-1)*100)
}

// Aggregate is the raw aggregate an Aggregator produces from a value set.
type Aggregate struct {
	Count         int
	Min, Max, Sum float64
	Sorted        []float64
}

// Aggregator computes aggregates from the numeric values of a range set.
// The in-memory scan is the default; the duckdb subpackage provides a SQL
// backed implementation.
type Aggregator interface {
	Aggregate(values []float64) (Aggregate, error)
}

// scanAggregator computes aggregates with one sort over the values.
type scanAggregator struct{}

func (scanAggregator) Aggregate(values []float64) (Aggregate, error) {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	agg := Aggregate{Count: len(sorted), Sorted: sorted}
	if len(sorted) == 0 {
		return agg, nil
	}
	agg.Min, agg.Max = sorted[0], sorted[len(sorted)-1]
	for _, v := range sorted {
		agg.Sum += v
	}
	return agg, nil
}

// rangeStatsEntry is one cached computation and the ranges it covers.
type rangeStatsEntry struct {
	ranges []Range
	stats  *RangeStats
}

// CacheStats report cache effectiveness.
type CacheStats struct {
	Hits     int64   `json:"hits"`
	Misses   int64   `json:"misses"`
	HitRatio float64 `json:"hitRatio"`
	Size     int     `json:"size"`
}

func newCacheStats(hits, misses int64, size int) CacheStats {
	st := CacheStats{Hits: hits, Misses: misses, Size: size}
	if total := hits + misses; total > 0 {
		st.HitRatio = float64(hits) / float64(total)
	}
	return st
}

// RangeStatsManager computes and caches RangeStats per range set. A cached
// entry is returned as the identical instance until a dirty mark touching
// any of its ranges drops it; the next call scans the values once and
// produces a new instance.
type RangeStatsManager struct {
	mu         sync.Mutex
	cache      map[string]*rangeStatsEntry
	aggregator Aggregator
	logger     hclog.Logger
	generation func() uint64
	hits       int64
	misses     int64
}

// NewRangeStatsManager returns an empty manager. A nil aggregator selects
// the in-memory scan.
func NewRangeStatsManager(aggregator Aggregator, logger hclog.Logger) *RangeStatsManager {
	if aggregator == nil {
		aggregator = scanAggregator{}
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &RangeStatsManager{
		cache:      make(map[string]*rangeStatsEntry),
		aggregator: aggregator,
		logger:     logger,
	}
}

// ComputeOnce returns the statistics of one range.
func (m *RangeStatsManager) ComputeOnce(r Range, getValue ValueFunc) (*RangeStats, error) {
	return m.ComputeOnceForRanges([]Range{r}, getValue)
}

// ComputeOnceForRanges returns the statistics over the union of several
// ranges. Non-numeric and empty cells are skipped; overlapping cells are
// counted once.
func (m *RangeStatsManager) ComputeOnceForRanges(ranges []Range, getValue ValueFunc) (*RangeStats, error) {
	if getValue == nil {
		return nil, ErrMissingValueFunc
	}
	key := RangeSignature(ranges)

	m.mu.Lock()
	defer m.mu.Unlock()

	if entry, ok := m.cache[key]; ok {
		m.hits++
		return entry.stats, nil
	}
	m.misses++

	agg, err := m.aggregator.Aggregate(numericValues(ranges, getValue))
	if err != nil {
		return nil, err
	}
	stats := &RangeStats{
		Min:    agg.Min,
		Max:    agg.Max,
		Sum:    agg.Sum,
		Count:  agg.Count,
		Sorted: agg.Sorted,
	}
	if stats.Count > 0 {
		stats.Avg = stats.Sum / float64(stats.Count)
	}
	if m.generation != nil {
		stats.Generation = m.generation()
	}
	m.cache[key] = &rangeStatsEntry{ranges: ranges, stats: stats}
	m.logger.Trace("range statistics computed", "ranges", key, "count", stats.Count)
	return stats, nil
}

// MarkDirty drops every cached entry whose ranges intersect r, so
// single-range and multi-range computations over a shared cell are both
// recomputed.
func (m *RangeStatsManager) MarkDirty(r Range) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, entry := range m.cache {
		if rangesOverlap(entry.ranges, r) {
			delete(m.cache, key)
		}
	}
}

// MarkDirtyRanges drops the union entry of ranges and every entry touching
// any of its member ranges.
func (m *RangeStatsManager) MarkDirtyRanges(ranges []Range) {
	m.mu.Lock()
	delete(m.cache, RangeSignature(ranges))
	m.mu.Unlock()
	for _, r := range ranges {
		m.MarkDirty(r)
	}
}

// Clear drops every cached entry and resets the counters.
func (m *RangeStatsManager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache = make(map[string]*rangeStatsEntry)
	m.hits, m.misses = 0, 0
}

// CacheStats returns hit/miss counters.
func (m *RangeStatsManager) CacheStats() CacheStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return newCacheStats(m.hits, m.misses, len(m.cache))
}

// numericValues collects the numeric values of the union of ranges.
func numericValues(ranges []Range, getValue ValueFunc) []float64 {
	var values []float64
	visitUnion(ranges, func(addr Address) {
		if v, ok := toNumber(getValue(addr)); ok {
			values = append(values, v)
		}
	})
	return values
}

// visitUnion calls fn once for every distinct cell of the union of ranges.
func visitUnion(ranges []Range, fn func(Address)) {
	if len(ranges) == 1 {
		ranges[0].ForEach(fn)
		return
	}
	for i, r := range ranges {
		r.ForEach(func(addr Address) {
			for _, prev := range ranges[:i] {
				if prev.Contains(addr) {
					return
				}
			}
			fn(addr)
		})
	}
}
