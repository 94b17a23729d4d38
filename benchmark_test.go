package cfengine

import (
	"context"
	"fmt"
	"runtime"
	"testing"
)

func BenchmarkLRUCacheMemory(b *testing.B) {
	// 200 sorted value sets through a cache limited to 50 entries
	cache := newLRUCache[string, []float64](50)

	runtime.GC()
	var m1 runtime.MemStats
	runtime.ReadMemStats(&m1)

	for i := 0; i < 200; i++ {
		key := fmt.Sprintf("A%d:A%d", i*10000+1, (i+1)*10000)
		sorted := make([]float64, 10000)
		for j := range sorted {
			sorted[j] = float64(i*10000 + j)
		}
		cache.Store(key, sorted)
	}

	runtime.GC()
	var m2 runtime.MemStats
	runtime.ReadMemStats(&m2)

	cacheLen := cache.Len()
	allocMB := float64(m2.Alloc-m1.Alloc) / 1024 / 1024
	b.Logf("LRU cache: stored 200, kept %d, %.2f MB", cacheLen, allocMB)

	if cacheLen != 50 {
		b.Errorf("Expected cache to hold 50 entries, got %d", cacheLen)
	}
	for i := 0; i < 150; i++ {
		key := fmt.Sprintf("A%d:A%d", i*10000+1, (i+1)*10000)
		if _, ok := cache.Load(key); ok {
			b.Errorf("Expected %s to be evicted", key)
		}
	}
}

func benchmarkSheet(rows int) *lockedSheet {
	s := &lockedSheet{s: sheet{}}
	for row := 1; row <= rows; row++ {
		s.s[Address{Row: row, Col: 1}] = float64((row * 7919) % 1000)
	}
	return s
}

func benchmarkEngine(b *testing.B, rows int) *Engine {
	e := NewEngine(Options{Workers: runtime.NumCPU()})
	ref := fmt.Sprintf("A1:A%d", rows)
	_, err := e.AddRules([]Rule{
		{ID: "top", Ranges: []Range{MustParseRange(ref)}, Condition: &TopBottomCondition{Mode: ModeTop, RankType: RankPercent, Rank: 10}},
		{ID: "above", Ranges: []Range{MustParseRange(ref)}, Condition: &AboveAverageCondition{Mode: ModeAbove}},
		greaterThan("gt", ref, 500, &Style{Bold: boolPtr(true)}),
	})
	if err != nil {
		b.Fatal(err)
	}
	return e
}

func BenchmarkEvaluateRangeAfterEdit(b *testing.B) {
	const rows = 10000
	s := benchmarkSheet(rows)
	e := benchmarkEngine(b, rows)
	rng := MustParseRange(fmt.Sprintf("A1:A%d", rows))
	opts := EvalOptions{GetValue: s.get}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		e.MarkCellDirty(Address{Row: i%rows + 1, Col: 1})
		if _, err := e.EvaluateRange(context.Background(), rng, opts); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkEvaluateCellCFClean(b *testing.B) {
	const rows = 10000
	s := benchmarkSheet(rows)
	e := benchmarkEngine(b, rows)
	rng := MustParseRange(fmt.Sprintf("A1:A%d", rows))
	opts := EvalOptions{GetValue: s.get}
	if _, err := e.EvaluateRange(context.Background(), rng, opts); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := e.EvaluateCellCF(Address{Row: i%rows + 1, Col: 1}, opts); err != nil {
			b.Fatal(err)
		}
	}
}
