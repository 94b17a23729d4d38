package cfengine

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sheet is a map-backed cell store used by the tests.
type sheet map[Address]any

func (s sheet) get(addr Address) any { return s[addr] }

func (s sheet) set(cell string, v any) {
	col, row, err := CellNameToCoordinates(cell)
	if err != nil {
		panic(err)
	}
	s[Address{Row: row, Col: col}] = v
}

func columnSheet(col string, values ...any) sheet {
	c, err := ColumnNameToNumber(col)
	if err != nil {
		panic(err)
	}
	s := sheet{}
	for i, v := range values {
		s[Address{Row: i + 1, Col: c}] = v
	}
	return s
}

func TestPercentileInc(t *testing.T) {
	stats := &RangeStats{Sorted: []float64{10, 20, 30, 40, 50}}
	assert.Equal(t, 10.0, stats.PercentileInc(0))
	assert.Equal(t, 20.0, stats.PercentileInc(25))
	assert.Equal(t, 30.0, stats.PercentileInc(50))
	assert.Equal(t, 50.0, stats.PercentileInc(100))
	assert.InDelta(t, 14.0, stats.PercentileInc(10), 1e-9)

	single := &RangeStats{Sorted: []float64{7}}
	for _, p := range []float64{0, 33, 100} {
		assert.Equal(t, 7.0, single.PercentileInc(p))
	}
	assert.True(t, math.IsNaN((&RangeStats{}).PercentileInc(50)))
}

func TestPercentRankMidpointOfTies(t *testing.T) {
	stats := &RangeStats{Sorted: []float64{50, 50, 50, 50, 50}}
	assert.Equal(t, 50.0, stats.PercentRank(50))

	stats = &RangeStats{Sorted: []float64{1, 2, 2, 3}}
	assert.Equal(t, 0.0, stats.PercentRank(1))
	assert.Equal(t, 50.0, stats.PercentRank(2))
	assert.Equal(t, 100.0, stats.PercentRank(3))

	assert.Equal(t, 50.0, (&RangeStats{Sorted: []float64{4}}).PercentRank(4))
}

func TestRangeStatsManagerComputeOnce(t *testing.T) {
	s := columnSheet("A", 10, 20, "text", nil, 50, true, "30")
	m := NewRangeStatsManager(nil, nil)
	rng := MustParseRange("A1:A7")

	stats, err := m.ComputeOnce(rng, s.get)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Count)
	assert.Equal(t, 10.0, stats.Min)
	assert.Equal(t, 50.0, stats.Max)
	assert.Equal(t, 80.0, stats.Sum)
	assert.InDelta(t, 80.0/3, stats.Avg, 1e-9)
	assert.Equal(t, []float64{10, 20, 50}, stats.Sorted)

	again, err := m.ComputeOnce(rng, s.get)
	require.NoError(t, err)
	assert.Same(t, stats, again)

	s.set("A2", 90)
	m.MarkDirty(CellRange(Address{Row: 2, Col: 1}))
	fresh, err := m.ComputeOnce(rng, s.get)
	require.NoError(t, err)
	assert.NotSame(t, stats, fresh)
	assert.Equal(t, 90.0, fresh.Max)
	assert.Equal(t, 50.0, stats.Max, "previous instance must stay immutable")

	st := m.CacheStats()
	assert.Equal(t, int64(1), st.Hits)
	assert.Equal(t, int64(2), st.Misses)
	assert.Equal(t, 1, st.Size)
}

func TestRangeStatsManagerMultiRange(t *testing.T) {
	s := sheet{}
	s.set("A1", 1)
	s.set("A2", 2)
	s.set("C1", 10)
	s.set("C2", 20)
	m := NewRangeStatsManager(nil, nil)
	ranges := []Range{MustParseRange("A1:A2"), MustParseRange("C1:C2")}

	union, err := m.ComputeOnceForRanges(ranges, s.get)
	require.NoError(t, err)
	assert.Equal(t, 4, union.Count)
	assert.Equal(t, 20.0, union.Max)

	single, err := m.ComputeOnce(ranges[1], s.get)
	require.NoError(t, err)
	assert.Equal(t, 2, single.Count)

	// a dirty mark on one member range drops both the union and the sub-range
	s.set("C2", 99)
	m.MarkDirtyRanges([]Range{ranges[1]})
	union2, err := m.ComputeOnceForRanges(ranges, s.get)
	require.NoError(t, err)
	assert.Equal(t, 99.0, union2.Max)
	single2, err := m.ComputeOnce(ranges[1], s.get)
	require.NoError(t, err)
	assert.Equal(t, 99.0, single2.Max)
}

func TestRangeStatsManagerOverlapCountedOnce(t *testing.T) {
	s := columnSheet("A", 1, 2, 3)
	m := NewRangeStatsManager(nil, nil)
	stats, err := m.ComputeOnceForRanges([]Range{MustParseRange("A1:A2"), MustParseRange("A2:A3")}, s.get)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Count)
	assert.Equal(t, 6.0, stats.Sum)
}

func TestRangeStatsManagerErrors(t *testing.T) {
	m := NewRangeStatsManager(nil, nil)
	_, err := m.ComputeOnce(MustParseRange("A1:A2"), nil)
	assert.ErrorIs(t, err, ErrMissingValueFunc)

	failing := NewRangeStatsManager(aggregatorFunc(func([]float64) (Aggregate, error) {
		return Aggregate{}, errors.New("backend down")
	}), nil)
	_, err = failing.ComputeOnce(MustParseRange("A1:A2"), columnSheet("A", 1).get)
	assert.EqualError(t, err, "backend down")
}

func TestRangeStatsManagerClear(t *testing.T) {
	s := columnSheet("A", 1)
	m := NewRangeStatsManager(nil, nil)
	_, err := m.ComputeOnce(MustParseRange("A1"), s.get)
	require.NoError(t, err)
	m.Clear()
	assert.Equal(t, CacheStats{}, m.CacheStats())
}

type aggregatorFunc func([]float64) (Aggregate, error)

func (f aggregatorFunc) Aggregate(values []float64) (Aggregate, error) { return f(values) }
