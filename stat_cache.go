// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package cfengine

import (
	"encoding/binary"
	"math"
	"sort"
	"strconv"
	"sync"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/text/cases"
)

// TopBottomStats is the cached threshold of a top/bottom rule over a range
// set. Matching a cell is a single comparison against Threshold.
type TopBottomStats struct {
	RangeSignature string
	Mode           TopBottomMode
	RankType       RankType
	Rank           int
	// Sorted holds the numeric values, descending for top and ascending for
	// bottom.
	Sorted    []float64
	Threshold float64
}

// Matches reports whether v is within the top (or bottom) rank.
func (s *TopBottomStats) Matches(v float64) bool {
	if len(s.Sorted) == 0 {
		return false
	}
	if s.Mode == ModeBottom {
		return v <= s.Threshold
	}
	return v >= s.Threshold
}

// AboveAverageStats is the cached mean, and optionally the standard
// deviation shifted threshold, of an above-average rule over a range set.
type AboveAverageStats struct {
	RangeSignature string
	Mode           AverageMode
	Count          int
	Average        float64
	// StdDev and AdjustedThreshold are set only when the rule asks for a
	// number of standard deviations.
	StdDev            *float64
	AdjustedThreshold *float64
}

// Threshold returns the value cells are classified against.
func (s *AboveAverageStats) Threshold() float64 {
	if s.AdjustedThreshold != nil {
		return *s.AdjustedThreshold
	}
	return s.Average
}

// Matches reports whether v falls on the side of the threshold the mode
// selects. Strict modes never match a value equal to the threshold.
func (s *AboveAverageStats) Matches(v float64) bool {
	if s.Count == 0 {
		return false
	}
	t := s.Threshold()
	switch s.Mode {
	case ModeBelow:
		return v < t
	case ModeEqualOrAbove:
		return v >= t
	case ModeEqualOrBelow:
		return v <= t
	default:
		return v > t
	}
}

// DuplicateUniqueStats is the cached occurrence count of every non-empty
// normalized value of a range set.
type DuplicateUniqueStats struct {
	RangeSignature string
	Mode           DuplicateMode
	CaseSensitive  bool
	Counts         map[string]int
	// Duplicates holds the normalized values that occur more than once.
	Duplicates map[string]struct{}
}

// Matches reports whether v is a duplicate (or unique) value. Empty cells
// never match.
func (s *DuplicateUniqueStats) Matches(v any) bool {
	if isEmpty(v) {
		return false
	}
	count := s.Counts[textNormalizer(s.CaseSensitive)(valueText(v))]
	if s.Mode == ModeUnique {
		return count == 1
	}
	return count > 1
}

// textNormalizer returns the key function of duplicate counting. The
// returned function holds a single caser and must not be shared between
// goroutines.
func textNormalizer(caseSensitive bool) func(string) string {
	if caseSensitive {
		return func(text string) string { return text }
	}
	caser := cases.Fold()
	return caser.String
}

// statEntry is one cached statistic and the ranges it was computed over.
type statEntry struct {
	ranges []Range
	value  any
}

// StatisticalCacheManager caches the rule-shaped statistics of top/bottom,
// above-average and duplicate/unique rules. Entries are keyed by a
// structural hash of the rule parameters and range set, bounded by an LRU,
// and dropped by range intersection.
type StatisticalCacheManager struct {
	cache  *lruCache[[blake2b.Size256]byte, *statEntry]
	logger hclog.Logger

	mu     sync.Mutex
	hits   int64
	misses int64
}

// NewStatisticalCacheManager returns an empty cache holding at most size
// entries.
func NewStatisticalCacheManager(size int, logger hclog.Logger) *StatisticalCacheManager {
	if size <= 0 {
		size = DefaultOptions().StatCacheSize
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &StatisticalCacheManager{cache: newLRUCache[[blake2b.Size256]byte, *statEntry](size), logger: logger}
}

// statKey is the canonical key tuple of a statistical cache entry.
type statKey struct {
	ruleType      RuleType
	signature     string
	mode          string
	rank          int
	rankType      RankType
	stdDevs       float64
	caseSensitive bool
}

// hash returns BLAKE2b-256 over the length-prefixed fields of the tuple.
func (k statKey) hash() [blake2b.Size256]byte {
	var buf []byte
	field := func(s string) {
		buf = binary.AppendUvarint(buf, uint64(len(s)))
		buf = append(buf, s...)
	}
	field(string(k.ruleType))
	field(k.signature)
	field(k.mode)
	field(strconv.Itoa(k.rank))
	field(string(k.rankType))
	field(strconv.FormatFloat(k.stdDevs, 'g', -1, 64))
	field(strconv.FormatBool(k.caseSensitive))
	return blake2b.Sum256(buf)
}

// load returns the cached entry for key or stores the one compute builds.
func (m *StatisticalCacheManager) load(key statKey, ranges []Range, compute func() any) any {
	h := key.hash()
	if entry, ok := m.cache.Load(h); ok {
		m.count(true)
		return entry.value
	}
	m.count(false)
	value := compute()
	if m.cache.Store(h, &statEntry{ranges: ranges, value: value}) {
		m.logger.Trace("statistical cache eviction")
	}
	m.logger.Trace("statistical cache miss", "type", key.ruleType, "ranges", key.signature)
	return value
}

func (m *StatisticalCacheManager) count(hit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if hit {
		m.hits++
	} else {
		m.misses++
	}
}

// TopBottomStats returns the threshold of a top/bottom condition over the
// numeric values of ranges.
func (m *StatisticalCacheManager) TopBottomStats(c *TopBottomCondition, ranges []Range, getValue ValueFunc) (*TopBottomStats, error) {
	if getValue == nil {
		return nil, ErrMissingValueFunc
	}
	key := statKey{ruleType: RuleTypeTopBottom, signature: RangeSignature(ranges),
		mode: string(c.Mode), rank: c.Rank, rankType: c.RankType}
	return m.load(key, ranges, func() any {
		sorted := numericValues(ranges, getValue)
		if c.Mode == ModeBottom {
			sort.Float64s(sorted)
		} else {
			sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))
		}
		stats := &TopBottomStats{
			RangeSignature: key.signature,
			Mode:           c.Mode,
			RankType:       c.RankType,
			Rank:           c.Rank,
			Sorted:         sorted,
		}
		if n := len(sorted); n > 0 {
			stats.Threshold = sorted[topBottomIndex(n, c.Rank, c.RankType)]
		}
		return stats
	}).(*TopBottomStats), nil
}

// topBottomIndex returns the position of the threshold value: rank items
// clamped to [1, n], or ceil(n * rank / 100) items for a percent rank.
func topBottomIndex(n, rank int, rankType RankType) int {
	if rankType == RankPercent {
		rank = int(math.Ceil(float64(n) * float64(rank) / 100))
	}
	return max(1, min(rank, n)) - 1
}

// AboveAverageStats returns the mean, and standard deviation threshold
// when requested, of the numeric values of ranges. The deviation is the
// population one; the threshold lies k deviations above the mean for the
// above modes and k below it for the below modes.
func (m *StatisticalCacheManager) AboveAverageStats(c *AboveAverageCondition, ranges []Range, getValue ValueFunc) (*AboveAverageStats, error) {
	if getValue == nil {
		return nil, ErrMissingValueFunc
	}
	key := statKey{ruleType: RuleTypeAboveAverage, signature: RangeSignature(ranges),
		mode: string(c.Mode), stdDevs: c.StandardDeviations}
	return m.load(key, ranges, func() any {
		values := numericValues(ranges, getValue)
		stats := &AboveAverageStats{RangeSignature: key.signature, Mode: c.Mode, Count: len(values)}
		if len(values) == 0 {
			return stats
		}
		var sum float64
		for _, v := range values {
			sum += v
		}
		stats.Average = sum / float64(len(values))
		if c.StandardDeviations > 0 {
			var sq float64
			for _, v := range values {
				sq += (v - stats.Average) * (v - stats.Average)
			}
			sd := math.Sqrt(sq / float64(len(values)))
			shift := c.StandardDeviations * sd
			if c.Mode.below() {
				shift = -shift
			}
			threshold := stats.Average + shift
			stats.StdDev, stats.AdjustedThreshold = &sd, &threshold
		}
		return stats
	}).(*AboveAverageStats), nil
}

// DuplicateUniqueStats returns the occurrence counts of the non-empty values
// of ranges. Text is case-folded unless the condition is case sensitive.
func (m *StatisticalCacheManager) DuplicateUniqueStats(c *DuplicateUniqueCondition, ranges []Range, getValue ValueFunc) (*DuplicateUniqueStats, error) {
	if getValue == nil {
		return nil, ErrMissingValueFunc
	}
	key := statKey{ruleType: RuleTypeDuplicateUnique, signature: RangeSignature(ranges),
		mode: string(c.Mode), caseSensitive: c.CaseSensitive}
	return m.load(key, ranges, func() any {
		stats := &DuplicateUniqueStats{
			RangeSignature: key.signature,
			Mode:           c.Mode,
			CaseSensitive:  c.CaseSensitive,
			Counts:         make(map[string]int),
			Duplicates:     make(map[string]struct{}),
		}
		normalize := textNormalizer(c.CaseSensitive)
		visitUnion(ranges, func(addr Address) {
			v := getValue(addr)
			if isEmpty(v) {
				return
			}
			text := normalize(valueText(v))
			if stats.Counts[text]++; stats.Counts[text] > 1 {
				stats.Duplicates[text] = struct{}{}
			}
		})
		return stats
	}).(*DuplicateUniqueStats), nil
}

// InvalidateRange drops every entry computed over a range that intersects
// r and returns how many were dropped.
func (m *StatisticalCacheManager) InvalidateRange(r Range) int {
	return m.cache.DeleteFunc(func(_ [blake2b.Size256]byte, entry *statEntry) bool {
		return rangesOverlap(entry.ranges, r)
	})
}

// ClearCache drops every entry and resets the counters.
func (m *StatisticalCacheManager) ClearCache() {
	m.cache.Clear()
	m.mu.Lock()
	m.hits, m.misses = 0, 0
	m.mu.Unlock()
}

// CacheStats returns hit/miss counters and the current size.
func (m *StatisticalCacheManager) CacheStats() CacheStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return newCacheStats(m.hits, m.misses, m.cache.Len())
}
