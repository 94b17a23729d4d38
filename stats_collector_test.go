package cfengine

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatsCollector(t *testing.T) {
	e := newTestEngine()
	_, err := e.AddRules([]Rule{
		greaterThan("a", "A1:A3", 1, nil),
		greaterThan("b", "A1:A3", 5, nil),
	})
	require.NoError(t, err)

	s := columnSheet("A", 1, 2, 10)
	opts := EvalOptions{GetValue: s.get}
	_, err = e.EvaluateDirtyRulesForRange(MustParseRange("A1:A3"), opts)
	require.NoError(t, err)
	_, err = e.EvaluateDirtyRulesForRange(MustParseRange("A1:A3"), opts)
	require.NoError(t, err)
	e.MarkCellDirty(Address{Row: 1, Col: 1})

	c := NewStatsCollector(e)
	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(c))

	expected := `
# HELP cfengine_cell_edits_total Cells reported as edited.
# TYPE cfengine_cell_edits_total counter
cfengine_cell_edits_total 1
# HELP cfengine_evaluations_total Rule evaluations performed.
# TYPE cfengine_evaluations_total counter
cfengine_evaluations_total 2
# HELP cfengine_rules Rules by lifecycle state.
# TYPE cfengine_rules gauge
cfengine_rules{state="clean"} 0
cfengine_rules{state="dirty"} 2
cfengine_rules{state="evaluating"} 0
# HELP cfengine_skipped_clean_rules_total Clean rules skipped by evaluation calls.
# TYPE cfengine_skipped_clean_rules_total counter
cfengine_skipped_clean_rules_total 2
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"cfengine_cell_edits_total", "cfengine_evaluations_total",
		"cfengine_rules", "cfengine_skipped_clean_rules_total"))
	assert.Equal(t, 19, testutil.CollectAndCount(c))
}
