package cfengine

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestValueCacheReadsOnce(t *testing.T) {
	var reads atomic.Int64
	vc := newValueCache(func(addr Address) any {
		reads.Add(1)
		return addr.Row * 10
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for row := 1; row <= 5; row++ {
				if got := vc.Get(Address{Row: row, Col: 1}); got != row*10 {
					t.Errorf("Get row %d: got %v", row, got)
				}
			}
		}()
	}
	wg.Wait()

	if vc.Len() != 5 {
		t.Fatalf("expected 5 cached cells, got %d", vc.Len())
	}
	// concurrent misses may read a cell more than once, never more than once per goroutine
	if n := reads.Load(); n < 5 || n > 40 {
		t.Fatalf("unexpected read count %d", n)
	}

	before := reads.Load()
	vc.Get(Address{Row: 1, Col: 1})
	if reads.Load() != before {
		t.Fatalf("cached cell read from storage again")
	}
}

func TestValueCacheCachesEmptyCells(t *testing.T) {
	reads := 0
	vc := newValueCache(func(Address) any {
		reads++
		return nil
	})
	vc.Get(Address{Row: 1, Col: 1})
	vc.Get(Address{Row: 1, Col: 1})
	if reads != 1 {
		t.Fatalf("expected one read of an empty cell, got %d", reads)
	}
}

func TestCachedValuesKeepsNilAccessor(t *testing.T) {
	if opts := cachedValues(EvalOptions{}); opts.GetValue != nil {
		t.Fatalf("nil accessor must stay nil")
	}
}
