// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package cfengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cellAddr(name string) Address {
	return MustParseRange(name).Start
}

func addGraphRule(g *DependencyGraph, rule Rule) {
	g.AddRule(rule.ID, &rule)
}

func topRule(id, ref string) Rule {
	return Rule{
		ID:        id,
		Ranges:    []Range{MustParseRange(ref)},
		Condition: &TopBottomCondition{Mode: ModeTop, RankType: RankNumber, Rank: 1},
	}
}

func TestDependencyGraphDirtyLifecycle(t *testing.T) {
	g := NewDependencyGraph()
	addGraphRule(g, greaterThan("r", "A1:A3", 1, nil))

	dirty, ok := g.IsDirty("r")
	assert.True(t, ok)
	assert.True(t, dirty, "new rules start dirty")

	assert.True(t, g.ClearDirty("r"))
	assert.Empty(t, g.DirtyRules())

	assert.Nil(t, g.MarkCellDirty(cellAddr("B1")), "unreferenced cells affect nothing")
	assert.Equal(t, []string{"r"}, g.MarkCellDirty(cellAddr("A2")))
	assert.Equal(t, []string{"r"}, g.DirtyRules())

	_, ok = g.IsDirty("missing")
	assert.False(t, ok)
	assert.False(t, g.ClearDirty("missing"))
}

func TestDependencyGraphFormulaHop(t *testing.T) {
	g := NewDependencyGraph()
	addGraphRule(g, greaterThan("b", "B1", 1, nil))
	addGraphRule(g, greaterThan("c", "C1", 1, nil))
	g.AddFormula(cellAddr("B1"), "A1*2", nil)
	g.AddFormula(cellAddr("C1"), "B1+1", nil)
	g.ClearDirty("b")
	g.ClearDirty("c")

	// A1 reaches B1 through one formula; C1 is a second hop away.
	assert.Equal(t, []string{"b"}, g.MarkCellDirty(cellAddr("A1")))
	assert.Equal(t, []string{"b", "c"}, g.MarkCellDirty(cellAddr("B1")))

	expr, ok := g.Formula(cellAddr("B1"))
	assert.True(t, ok)
	assert.Equal(t, "A1*2", expr)
	_, ok = g.Formula(cellAddr("A1"))
	assert.False(t, ok)
}

func TestDependencyGraphReplaceFormula(t *testing.T) {
	g := NewDependencyGraph()
	addGraphRule(g, greaterThan("r", "B1", 1, nil))
	g.AddFormula(cellAddr("B1"), "A1", nil)
	g.AddFormula(cellAddr("B1"), "A2", nil)
	g.ClearDirty("r")

	assert.Nil(t, g.MarkCellDirty(cellAddr("A1")))
	assert.Equal(t, []string{"r"}, g.MarkCellDirty(cellAddr("A2")))
	assert.Equal(t, 1, g.Stats().Formulas)

	// Explicit references override extraction.
	g.AddFormula(cellAddr("B1"), "INDIRECT(\"A9\")", []Address{cellAddr("A9")})
	g.ClearDirty("r")
	assert.Equal(t, []string{"r"}, g.MarkCellDirty(cellAddr("A9")))
}

func TestDependencyGraphFormulaRuleReferences(t *testing.T) {
	g := NewDependencyGraph()
	addGraphRule(g, Rule{
		ID:        "f",
		Ranges:    []Range{MustParseRange("A1:A2")},
		Condition: &FormulaCondition{Expression: "$B1>$D$1"},
	})
	g.ClearDirty("f")

	for _, name := range []string{"B1", "B2", "D1"} {
		assert.Equal(t, []string{"f"}, g.MarkCellDirty(cellAddr(name)), name)
	}
	assert.Nil(t, g.MarkCellDirty(cellAddr("B3")))
	assert.Nil(t, g.MarkCellDirty(cellAddr("C1")))
}

func TestDependencyGraphAbsoluteRangeListedOnce(t *testing.T) {
	rule := Rule{
		ID:        "avg",
		Ranges:    []Range{MustParseRange("A1:A1000")},
		Condition: &FormulaCondition{Expression: "A1>AVERAGE($B$1:$B$1000)"},
	}
	refs := formulaReferenceRanges(&rule)
	assert.Len(t, refs, 1001, "one range per row for A1 and a single shared $B$1:$B$1000")

	g := NewDependencyGraph()
	addGraphRule(g, rule)
	assert.Equal(t, 2000, g.Stats().Cells)
	assert.Len(t, ruleDependencies(&rule), 2000)

	g.ClearDirty("avg")
	assert.Equal(t, []string{"avg"}, g.MarkCellDirty(cellAddr("B1000")))
}

func TestDependencyGraphRangeStatNodes(t *testing.T) {
	g := NewDependencyGraph()
	addGraphRule(g, topRule("top", "A1:A3"))
	addGraphRule(g, Rule{
		ID:        "avg",
		Ranges:    []Range{MustParseRange("A1:A3")},
		Condition: &AboveAverageCondition{Mode: ModeAbove},
	})
	addGraphRule(g, greaterThan("plain", "A1:A3", 1, nil))

	key := RangeSignature([]Range{MustParseRange("A1:A3")})
	st := g.Stats()
	assert.Equal(t, 1, st.RangeStats, "rules over the same ranges share one node")
	assert.Equal(t, 1, st.DirtyRangeStats)

	nodes := g.DirtyStatNodes()
	require.Len(t, nodes, 1)
	assert.Equal(t, key, nodes[0].Key)
	assert.Equal(t, []string{"top", "avg"}, nodes[0].RuleIDs)

	assert.True(t, g.ClearStatDirty(key))
	assert.Empty(t, g.DirtyStatNodes())
	for _, id := range g.RuleIDs() {
		g.ClearDirty(id)
	}

	assert.Equal(t, []string{"top", "avg", "plain"}, g.MarkCellDirty(cellAddr("A3")))
	assert.Len(t, g.DirtyStatNodes(), 1)

	assert.True(t, g.RemoveRule("top"))
	assert.Equal(t, 1, g.Stats().RangeStats)
	assert.True(t, g.RemoveRule("avg"))
	assert.Equal(t, 0, g.Stats().RangeStats)
	assert.False(t, g.ClearStatDirty(key))
}

func TestDependencyGraphStatNodeReachedThroughFormula(t *testing.T) {
	g := NewDependencyGraph()
	addGraphRule(g, topRule("top", "B1:B3"))
	g.AddFormula(cellAddr("B2"), "A2*10", nil)
	g.ClearStatDirty(RangeSignature([]Range{MustParseRange("B1:B3")}))
	g.ClearDirty("top")

	assert.Equal(t, []string{"top"}, g.MarkCellDirty(cellAddr("A2")))
	nodes := g.DirtyStatNodes()
	require.Len(t, nodes, 1)
	assert.Equal(t, []Range{MustParseRange("B1:B3")}, nodes[0].Ranges)
}

func TestDependencyGraphReplaceAndRemoveRule(t *testing.T) {
	g := NewDependencyGraph()
	addGraphRule(g, greaterThan("r", "A1", 1, nil))
	addGraphRule(g, greaterThan("r", "B1", 1, nil))
	g.ClearDirty("r")

	assert.Nil(t, g.MarkCellDirty(cellAddr("A1")), "replaced rule is unlinked")
	assert.Equal(t, []string{"r"}, g.MarkCellDirty(cellAddr("B1")))
	rule, ok := g.Rule("r")
	require.True(t, ok)
	assert.Equal(t, []Range{MustParseRange("B1")}, rule.Ranges)

	assert.True(t, g.RemoveRule("r"))
	assert.False(t, g.RemoveRule("r"))
	assert.Nil(t, g.MarkCellDirty(cellAddr("B1")))
	_, ok = g.Rule("r")
	assert.False(t, ok)

	// Released handles are reused.
	addGraphRule(g, greaterThan("s", "C1", 1, nil))
	assert.Equal(t, []string{"s"}, g.RuleIDs())
	assert.Equal(t, []string{"s"}, g.RulesCovering(cellAddr("C1")))
}

func TestDependencyGraphOrder(t *testing.T) {
	g := NewDependencyGraph()
	low := greaterThan("low", "A1:A5", 1, nil)
	high := greaterThan("high", "A1:A2", 1, nil)
	high.Priority = 10
	mid := greaterThan("mid", "A3:A5", 1, nil)
	mid.Priority = 5
	addGraphRule(g, low)
	addGraphRule(g, high)
	addGraphRule(g, mid)

	assert.Equal(t, []string{"high", "mid", "low"}, g.RuleIDs())
	assert.Equal(t, []string{"high", "low"}, g.RulesCovering(cellAddr("A1")))
	assert.Equal(t, []string{"mid", "low"}, g.RulesCovering(cellAddr("A4")))
	assert.Empty(t, g.RulesCovering(cellAddr("B1")))

	for _, id := range g.RuleIDs() {
		g.ClearDirty(id)
	}
	assert.Equal(t, []string{"high", "mid", "low"}, g.MarkRangeDirty(MustParseRange("A2:A3")))
	for _, id := range g.RuleIDs() {
		g.ClearDirty(id)
	}
	assert.Equal(t, []string{"high", "mid", "low"}, g.MarkAllDirty())
}

func TestDependencyGraphStatsAndClear(t *testing.T) {
	g := NewDependencyGraph()
	gen := g.Generation()
	addGraphRule(g, greaterThan("r", "A1:B2", 1, nil))
	g.AddFormula(cellAddr("C1"), "A1+B1", nil)
	assert.Greater(t, g.Generation(), gen)

	st := g.Stats()
	assert.Equal(t, 5, st.Cells)
	assert.Equal(t, 1, st.Formulas)
	assert.Equal(t, 1, st.Rules)
	assert.Equal(t, 1, st.DirtyRules)
	assert.True(t, g.HasCell(cellAddr("B2")))
	assert.False(t, g.HasCell(cellAddr("D4")))

	gen = g.Generation()
	g.MarkCellDirty(cellAddr("Z99"))
	assert.Greater(t, g.Generation(), gen, "every mark advances the generation")

	g.Clear()
	st = g.Stats()
	assert.Zero(t, st.Cells)
	assert.Zero(t, st.Rules)
	assert.Empty(t, g.RuleIDs())
}
