// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package cfengine

import (
	"fmt"
	"sort"
)

type (
	cellID     int32
	ruleHandle int32
	statHandle int32
)

const noStat statHandle = -1

// cellNode is a cell referenced by a rule range, a formula or a range
// statistic. Cells are created lazily and only released by Clear.
type cellNode struct {
	addr         Address
	formula      int32        // index into formulas, -1 when the cell holds none
	dependsOn    []cellID     // cells the formula in this cell reads
	readBy       []cellID     // formula cells reading this cell
	affectsRules []ruleHandle // rules whose dependencies include this cell
	affectsStats []statHandle // range statistics computed over this cell
}

// formulaNode is a worksheet formula. Only its references matter here:
// they carry dirtiness one hop from an input cell to the rules and range
// statistics covering the formula's own cell.
type formulaNode struct {
	cell       cellID
	expression string
	references []cellID
}

// ruleNode is a registered rule and its dirty bit.
type ruleNode struct {
	id             string
	rule           *Rule
	seq            uint64
	dependsOnCells []cellID
	stat           statHandle
	dirty          bool
	live           bool
}

// rangeStatNode is one aggregate computation over a range set, shared by
// every rule bound to exactly that range set. Its dirty bit is independent
// of any single rule.
type rangeStatNode struct {
	key    string
	ranges []Range
	cells  []cellID
	rules  []ruleHandle
	dirty  bool
	live   bool
}

// GraphStats is a point-in-time count of graph nodes.
type GraphStats struct {
	Cells           int    `json:"cells"`
	Formulas        int    `json:"formulas"`
	Rules           int    `json:"rules"`
	DirtyRules      int    `json:"dirtyRules"`
	RangeStats      int    `json:"rangeStats"`
	DirtyRangeStats int    `json:"dirtyRangeStats"`
	Generation      uint64 `json:"generation"`
}

// DependencyGraph is the bidirectional index between cells, formulas,
// rules and range statistics. Nodes live in slices addressed by integer
// handles and edges are handle slices, so dirty propagation is a walk over
// small arrays.
//
// DependencyGraph is not safe for concurrent use; the Engine serializes
// access to it.
type DependencyGraph struct {
	cells        []cellNode
	cellIndex    map[Address]cellID
	formulas     []formulaNode
	formulaIndex map[Address]int32
	rules        []ruleNode
	ruleIndex    map[string]ruleHandle
	freeRules    []ruleHandle
	stats        []rangeStatNode
	statIndex    map[string]statHandle
	freeStats    []statHandle
	seq          uint64
	generation   uint64
}

// NewDependencyGraph returns an empty graph.
func NewDependencyGraph() *DependencyGraph {
	g := &DependencyGraph{}
	g.Clear()
	return g
}

// Clear drops every node.
func (g *DependencyGraph) Clear() {
	g.cells = nil
	g.cellIndex = make(map[Address]cellID)
	g.formulas = nil
	g.formulaIndex = make(map[Address]int32)
	g.rules = nil
	g.ruleIndex = make(map[string]ruleHandle)
	g.freeRules = nil
	g.stats = nil
	g.statIndex = make(map[string]statHandle)
	g.freeStats = nil
	g.generation++
}

// Generation is incremented on every dirty mark and structural change.
// Statistics computed under one generation are valid until it changes.
func (g *DependencyGraph) Generation() uint64 {
	return g.generation
}

// AddCell registers addr, creating its node on first reference.
func (g *DependencyGraph) AddCell(addr Address) {
	g.cell(addr)
}

func (g *DependencyGraph) cell(addr Address) cellID {
	if id, ok := g.cellIndex[addr]; ok {
		return id
	}
	id := cellID(len(g.cells))
	g.cells = append(g.cells, cellNode{addr: addr, formula: -1})
	g.cellIndex[addr] = id
	return id
}

// HasCell reports whether addr has been referenced.
func (g *DependencyGraph) HasCell(addr Address) bool {
	_, ok := g.cellIndex[addr]
	return ok
}

// AddFormula registers the formula held by the cell at addr. refs lists the
// cells it reads; when refs is nil they are extracted from expression.
// Re-adding a formula at the same address replaces its references.
func (g *DependencyGraph) AddFormula(addr Address, expression string, refs []Address) {
	if refs == nil {
		refs = ExtractReferences(expression)
	}
	owner := g.cell(addr)
	idx, ok := g.formulaIndex[addr]
	if ok {
		for _, ref := range g.formulas[idx].references {
			g.cells[ref].readBy = removeHandle(g.cells[ref].readBy, owner)
		}
		g.cells[owner].dependsOn = nil
	} else {
		idx = int32(len(g.formulas))
		g.formulas = append(g.formulas, formulaNode{cell: owner})
		g.formulaIndex[addr] = idx
	}
	references := make([]cellID, 0, len(refs))
	for _, ref := range refs {
		id := g.cell(ref)
		references = appendUnique(references, id)
		g.cells[id].readBy = appendUnique(g.cells[id].readBy, owner)
	}
	g.formulas[idx].expression = expression
	g.formulas[idx].references = references
	g.cells[owner].formula = idx
	g.cells[owner].dependsOn = references
	g.generation++
}

// Formula returns the expression registered at addr.
func (g *DependencyGraph) Formula(addr Address) (string, bool) {
	idx, ok := g.formulaIndex[addr]
	if !ok {
		return "", false
	}
	return g.formulas[idx].expression, true
}

// AddRule registers rule under id, replacing and fully unlinking any rule
// previously registered under the same id. The new rule starts dirty. A
// rule without ranges depends on no cells.
func (g *DependencyGraph) AddRule(id string, rule *Rule) {
	g.RemoveRule(id)

	var h ruleHandle
	if n := len(g.freeRules); n > 0 {
		h, g.freeRules = g.freeRules[n-1], g.freeRules[:n-1]
	} else {
		h = ruleHandle(len(g.rules))
		g.rules = append(g.rules, ruleNode{})
	}
	g.seq++
	node := ruleNode{id: id, rule: rule, seq: g.seq, stat: noStat, dirty: true, live: true}
	for _, addr := range ruleDependencies(rule) {
		cid := g.cell(addr)
		node.dependsOnCells = append(node.dependsOnCells, cid)
		g.cells[cid].affectsRules = append(g.cells[cid].affectsRules, h)
	}
	if rule.needsRangeStats() {
		node.stat = g.attachStat(rule.Ranges, h)
	}
	g.rules[h] = node
	g.ruleIndex[id] = h
	g.generation++
}

// ruleDependencies flattens every cell of every range of the rule. Formula
// rules additionally depend on the cells their references resolve to at
// each cell of the range.
func ruleDependencies(rule *Rule) []Address {
	seen := make(map[Address]struct{})
	var cells []Address
	add := func(addr Address) {
		if _, ok := seen[addr]; !ok {
			seen[addr] = struct{}{}
			cells = append(cells, addr)
		}
	}
	for _, r := range rule.Ranges {
		r.ForEach(add)
	}
	for _, ref := range formulaReferenceRanges(rule) {
		ref.ForEach(add)
	}
	return cells
}

// formulaReferenceRanges returns the distinct ranges a formula rule reads
// across all of its cells. An absolute reference resolves to the same range
// at every cell and is listed once.
func formulaReferenceRanges(rule *Rule) []Range {
	c, ok := rule.Condition.(*FormulaCondition)
	if !ok || len(rule.Ranges) == 0 {
		return nil
	}
	compiled := CompileFormula(c.Expression, rule.anchor())
	seen := make(map[Range]struct{})
	var refs []Range
	for _, r := range rule.Ranges {
		r.ForEach(func(target Address) {
			for _, ref := range compiled.References(target) {
				if _, dup := seen[ref]; !dup {
					seen[ref] = struct{}{}
					refs = append(refs, ref)
				}
			}
		})
	}
	return refs
}

// attachStat links rule h to the range statistic node of ranges, creating
// the node when it is the first rule over that range set.
func (g *DependencyGraph) attachStat(ranges []Range, h ruleHandle) statHandle {
	key := RangeSignature(ranges)
	if s, ok := g.statIndex[key]; ok {
		g.stats[s].rules = append(g.stats[s].rules, h)
		return s
	}
	var s statHandle
	if n := len(g.freeStats); n > 0 {
		s, g.freeStats = g.freeStats[n-1], g.freeStats[:n-1]
	} else {
		s = statHandle(len(g.stats))
		g.stats = append(g.stats, rangeStatNode{})
	}
	node := rangeStatNode{key: key, ranges: ranges, rules: []ruleHandle{h}, dirty: true, live: true}
	seen := make(map[cellID]struct{})
	for _, r := range ranges {
		r.ForEach(func(addr Address) {
			cid := g.cell(addr)
			if _, dup := seen[cid]; dup {
				return
			}
			seen[cid] = struct{}{}
			node.cells = append(node.cells, cid)
			g.cells[cid].affectsStats = append(g.cells[cid].affectsStats, s)
		})
	}
	g.stats[s] = node
	g.statIndex[key] = s
	return s
}

// detachStat unlinks rule h from range statistic node s and releases the
// node when no rule uses it any more.
func (g *DependencyGraph) detachStat(s statHandle, h ruleHandle) {
	node := &g.stats[s]
	node.rules = removeHandle(node.rules, h)
	if len(node.rules) > 0 {
		return
	}
	for _, cid := range node.cells {
		g.cells[cid].affectsStats = removeHandle(g.cells[cid].affectsStats, s)
	}
	delete(g.statIndex, node.key)
	*node = rangeStatNode{}
	g.freeStats = append(g.freeStats, s)
}

// RemoveRule unregisters a rule and reports whether it existed.
func (g *DependencyGraph) RemoveRule(id string) bool {
	h, ok := g.ruleIndex[id]
	if !ok {
		return false
	}
	node := g.ruleNode(h)
	for _, cid := range node.dependsOnCells {
		g.cells[cid].affectsRules = removeHandle(g.cells[cid].affectsRules, h)
	}
	if node.stat != noStat {
		g.detachStat(node.stat, h)
	}
	delete(g.ruleIndex, id)
	*node = ruleNode{}
	g.freeRules = append(g.freeRules, h)
	g.generation++
	return true
}

func (g *DependencyGraph) ruleNode(h ruleHandle) *ruleNode {
	node := &g.rules[h]
	if !node.live {
		panic(fmt.Sprintf("cfengine: rule handle %d points at a released node", h))
	}
	return node
}

// Rule returns the rule registered under id.
func (g *DependencyGraph) Rule(id string) (*Rule, bool) {
	h, ok := g.ruleIndex[id]
	if !ok {
		return nil, false
	}
	return g.ruleNode(h).rule, true
}

// IsDirty returns the dirty bit of a rule. The second result is false when
// the rule does not exist.
func (g *DependencyGraph) IsDirty(id string) (bool, bool) {
	h, ok := g.ruleIndex[id]
	if !ok {
		return false, false
	}
	return g.ruleNode(h).dirty, true
}

// MarkCellDirty flags every rule and range statistic that depends on addr,
// directly or through one formula that reads addr, and returns the ids of
// the rules it flagged. Unreferenced cells affect nothing.
func (g *DependencyGraph) MarkCellDirty(addr Address) []string {
	g.generation++
	cid, ok := g.cellIndex[addr]
	if !ok {
		return nil
	}
	marked := make(map[ruleHandle]struct{})
	g.markCell(cid, marked)
	for _, reader := range g.cells[cid].readBy {
		g.markCell(reader, marked)
	}
	return g.ruleIDs(marked)
}

// MarkRangeDirty applies MarkCellDirty to every cell of the rectangle and
// returns the union of flagged rule ids.
func (g *DependencyGraph) MarkRangeDirty(r Range) []string {
	g.generation++
	marked := make(map[ruleHandle]struct{})
	r.ForEach(func(addr Address) {
		cid, ok := g.cellIndex[addr]
		if !ok {
			return
		}
		g.markCell(cid, marked)
		for _, reader := range g.cells[cid].readBy {
			g.markCell(reader, marked)
		}
	})
	return g.ruleIDs(marked)
}

func (g *DependencyGraph) markCell(cid cellID, marked map[ruleHandle]struct{}) {
	c := &g.cells[cid]
	for _, h := range c.affectsRules {
		g.rules[h].dirty = true
		marked[h] = struct{}{}
	}
	for _, s := range c.affectsStats {
		stat := &g.stats[s]
		stat.dirty = true
		for _, h := range stat.rules {
			g.rules[h].dirty = true
			marked[h] = struct{}{}
		}
	}
}

// MarkAllDirty flags every rule and range statistic.
func (g *DependencyGraph) MarkAllDirty() []string {
	g.generation++
	ids := make([]string, 0, len(g.ruleIndex))
	for _, h := range g.sortedRules() {
		g.rules[h].dirty = true
		ids = append(ids, g.rules[h].id)
	}
	for i := range g.stats {
		if g.stats[i].live {
			g.stats[i].dirty = true
		}
	}
	return ids
}

// ClearDirty clears the dirty bit of a rule and reports whether it exists.
func (g *DependencyGraph) ClearDirty(id string) bool {
	h, ok := g.ruleIndex[id]
	if !ok {
		return false
	}
	g.ruleNode(h).dirty = false
	return true
}

// MarkRuleDirty sets the dirty bit of a rule and reports whether it exists.
func (g *DependencyGraph) MarkRuleDirty(id string) bool {
	h, ok := g.ruleIndex[id]
	if !ok {
		return false
	}
	g.ruleNode(h).dirty = true
	g.generation++
	return true
}

// DirtyRules returns the ids of all dirty rules in evaluation order.
func (g *DependencyGraph) DirtyRules() []string {
	var ids []string
	for _, h := range g.sortedRules() {
		if g.rules[h].dirty {
			ids = append(ids, g.rules[h].id)
		}
	}
	return ids
}

// RuleIDs returns the ids of all rules in evaluation order: descending
// priority, then insertion order.
func (g *DependencyGraph) RuleIDs() []string {
	handles := g.sortedRules()
	ids := make([]string, len(handles))
	for i, h := range handles {
		ids[i] = g.rules[h].id
	}
	return ids
}

// RulesCovering returns, in evaluation order, the ids of the rules whose
// ranges contain addr.
func (g *DependencyGraph) RulesCovering(addr Address) []string {
	var ids []string
	for _, h := range g.sortedRules() {
		if rangesContain(g.rules[h].rule.Ranges, addr) {
			ids = append(ids, g.rules[h].id)
		}
	}
	return ids
}

func (g *DependencyGraph) sortedRules() []ruleHandle {
	handles := make([]ruleHandle, 0, len(g.ruleIndex))
	for _, h := range g.ruleIndex {
		handles = append(handles, h)
	}
	g.sortHandles(handles)
	return handles
}

// sortHandles orders rule handles by descending priority, then insertion.
func (g *DependencyGraph) sortHandles(handles []ruleHandle) {
	sort.Slice(handles, func(i, j int) bool {
		a, b := &g.rules[handles[i]], &g.rules[handles[j]]
		if a.rule.Priority != b.rule.Priority {
			return a.rule.Priority > b.rule.Priority
		}
		return a.seq < b.seq
	})
}

// DirtyStatNode is a dirty range statistic together with the rules that
// read it.
type DirtyStatNode struct {
	Key     string
	Ranges  []Range
	RuleIDs []string
}

// DirtyStatNodes returns every dirty range statistic node ordered by key.
func (g *DependencyGraph) DirtyStatNodes() []DirtyStatNode {
	var nodes []DirtyStatNode
	for i := range g.stats {
		s := &g.stats[i]
		if !s.live || !s.dirty {
			continue
		}
		marked := make(map[ruleHandle]struct{}, len(s.rules))
		for _, h := range s.rules {
			marked[h] = struct{}{}
		}
		nodes = append(nodes, DirtyStatNode{Key: s.key, Ranges: s.ranges, RuleIDs: g.ruleIDs(marked)})
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Key < nodes[j].Key })
	return nodes
}

// ClearStatDirty clears the dirty bit of a range statistic node.
func (g *DependencyGraph) ClearStatDirty(key string) bool {
	s, ok := g.statIndex[key]
	if !ok {
		return false
	}
	g.stats[s].dirty = false
	return true
}

// Stats returns node counts for observability.
func (g *DependencyGraph) Stats() GraphStats {
	st := GraphStats{
		Cells:      len(g.cells),
		Formulas:   len(g.formulas),
		Rules:      len(g.ruleIndex),
		RangeStats: len(g.statIndex),
		Generation: g.generation,
	}
	for _, h := range g.ruleIndex {
		if g.rules[h].dirty {
			st.DirtyRules++
		}
	}
	for _, s := range g.statIndex {
		if g.stats[s].dirty {
			st.DirtyRangeStats++
		}
	}
	return st
}

// ruleIDs converts a handle set to ids in evaluation order.
func (g *DependencyGraph) ruleIDs(set map[ruleHandle]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	handles := make([]ruleHandle, 0, len(set))
	for h := range set {
		handles = append(handles, h)
	}
	g.sortHandles(handles)
	ids := make([]string, len(handles))
	for i, h := range handles {
		ids[i] = g.rules[h].id
	}
	return ids
}

func appendUnique[T comparable](s []T, v T) []T {
	for _, x := range s {
		if x == v {
			return s
		}
	}
	return append(s, v)
}

func removeHandle[T comparable](s []T, v T) []T {
	for i, x := range s {
		if x == v {
			s[i] = s[len(s)-1]
			return s[:len(s)-1]
		}
	}
	return s
}
