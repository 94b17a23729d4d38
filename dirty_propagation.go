// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package cfengine

import (
	"github.com/hashicorp/go-hclog"
)

// FlushResult reports what a flush recomputed: the keys of the range
// statistics that were dirty and the rules reading them, in evaluation
// order.
type FlushResult struct {
	RecomputedRangeStats []string `json:"recomputedRangeStats"`
	AffectedRules        []string `json:"affectedRules"`
}

// DirtyPropagationEngine turns cell edits into graph dirty marks and, on
// flush, recomputes the range statistics those edits invalidated.
//
// Rules over an edited cell are flagged dirty whether or not the edit
// changes any aggregate; a flush never clears a rule's dirty bit.
type DirtyPropagationEngine struct {
	graph      *DependencyGraph
	rangeStats *RangeStatsManager
	statCache  *StatisticalCacheManager
	logger     hclog.Logger
}

// NewDirtyPropagationEngine wires the graph to the two statistic caches.
func NewDirtyPropagationEngine(graph *DependencyGraph, rangeStats *RangeStatsManager, statCache *StatisticalCacheManager, logger hclog.Logger) *DirtyPropagationEngine {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &DirtyPropagationEngine{graph: graph, rangeStats: rangeStats, statCache: statCache, logger: logger}
}

// OnCellChange flags everything that depends on addr and returns the ids
// of the rules flagged.
func (d *DirtyPropagationEngine) OnCellChange(addr Address) []string {
	d.invalidate(CellRange(addr))
	return d.graph.MarkCellDirty(addr)
}

// OnRangeChange flags everything that depends on any cell of r.
func (d *DirtyPropagationEngine) OnRangeChange(r Range) []string {
	d.invalidate(r)
	return d.graph.MarkRangeDirty(r)
}

// invalidate drops cached statistics over the edited cells themselves.
// Statistics reached through a formula hop are dropped on flush.
func (d *DirtyPropagationEngine) invalidate(r Range) {
	d.rangeStats.MarkDirty(r)
	d.statCache.InvalidateRange(r)
}

// Flush recomputes every dirty range statistic, clears its dirty bit and
// returns the recomputed keys with the rules that read them. A failed
// recompute leaves its node dirty for the next flush.
func (d *DirtyPropagationEngine) Flush(getValue ValueFunc) (FlushResult, error) {
	var res FlushResult
	nodes := d.graph.DirtyStatNodes()
	if len(nodes) == 0 {
		return res, nil
	}
	if getValue == nil {
		return res, ErrMissingValueFunc
	}
	affected := make(map[string]struct{})
	for _, node := range nodes {
		d.rangeStats.MarkDirtyRanges(node.Ranges)
		for _, r := range node.Ranges {
			d.statCache.InvalidateRange(r)
		}
		if _, err := d.rangeStats.ComputeOnceForRanges(node.Ranges, getValue); err != nil {
			return res, err
		}
		d.graph.ClearStatDirty(node.Key)
		res.RecomputedRangeStats = append(res.RecomputedRangeStats, node.Key)
		for _, id := range node.RuleIDs {
			affected[id] = struct{}{}
		}
	}
	for _, id := range d.graph.RuleIDs() {
		if _, ok := affected[id]; ok {
			res.AffectedRules = append(res.AffectedRules, id)
		}
	}
	d.logger.Debug("flushed range statistics", "recomputed", len(res.RecomputedRangeStats), "rules", len(res.AffectedRules))
	return res, nil
}
