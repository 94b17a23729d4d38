// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package cfengine

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "cfengine"

// StatsCollector exports the engine counters as Prometheus metrics. Values
// are read from Engine.Stats on every scrape.
type StatsCollector struct {
	engine *Engine

	evaluations *prometheus.Desc
	skipped     *prometheus.Desc
	cellEdits   *prometheus.Desc
	rules       *prometheus.Desc
	graphNodes  *prometheus.Desc
	graphDirty  *prometheus.Desc
	generation  *prometheus.Desc
	cacheHits   *prometheus.Desc
	cacheMisses *prometheus.Desc
	cacheSize   *prometheus.Desc
}

var _ prometheus.Collector = (*StatsCollector)(nil)

// NewStatsCollector returns a collector for engine. Register it with a
// prometheus.Registerer to expose it.
func NewStatsCollector(engine *Engine) *StatsCollector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(metricsNamespace, "", name), help, labels, nil)
	}
	return &StatsCollector{
		engine:      engine,
		evaluations: desc("evaluations_total", "Rule evaluations performed."),
		skipped:     desc("skipped_clean_rules_total", "Clean rules skipped by evaluation calls."),
		cellEdits:   desc("cell_edits_total", "Cells reported as edited."),
		rules:       desc("rules", "Rules by lifecycle state.", "state"),
		graphNodes:  desc("graph_nodes", "Dependency graph nodes by kind.", "kind"),
		graphDirty:  desc("graph_dirty_nodes", "Dirty dependency graph nodes by kind.", "kind"),
		generation:  desc("graph_generation", "Number of dirty propagations applied to the graph."),
		cacheHits:   desc("cache_hits_total", "Statistics cache hits.", "cache"),
		cacheMisses: desc("cache_misses_total", "Statistics cache misses.", "cache"),
		cacheSize:   desc("cache_entries", "Statistics cache entries.", "cache"),
	}
}

// Describe implements prometheus.Collector.
func (c *StatsCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.evaluations, c.skipped, c.cellEdits, c.rules, c.graphNodes,
		c.graphDirty, c.generation, c.cacheHits, c.cacheMisses, c.cacheSize,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *StatsCollector) Collect(ch chan<- prometheus.Metric) {
	st := c.engine.Stats()

	ch <- prometheus.MustNewConstMetric(c.evaluations, prometheus.CounterValue, float64(st.TotalEvaluations))
	ch <- prometheus.MustNewConstMetric(c.skipped, prometheus.CounterValue, float64(st.SkippedCleanRules))
	ch <- prometheus.MustNewConstMetric(c.cellEdits, prometheus.CounterValue, float64(st.CellEdits))

	states := map[RuleState]int{RuleStateClean: 0, RuleStateDirty: 0, RuleStateEvaluating: 0}
	for _, r := range st.Rules {
		states[r.State]++
	}
	for state, n := range states {
		ch <- prometheus.MustNewConstMetric(c.rules, prometheus.GaugeValue, float64(n), string(state))
	}

	g := st.Graph
	for kind, n := range map[string]int{
		"cells":       g.Cells,
		"formulas":    g.Formulas,
		"rules":       g.Rules,
		"range_stats": g.RangeStats,
	} {
		ch <- prometheus.MustNewConstMetric(c.graphNodes, prometheus.GaugeValue, float64(n), kind)
	}
	ch <- prometheus.MustNewConstMetric(c.graphDirty, prometheus.GaugeValue, float64(g.DirtyRules), "rules")
	ch <- prometheus.MustNewConstMetric(c.graphDirty, prometheus.GaugeValue, float64(g.DirtyRangeStats), "range_stats")
	ch <- prometheus.MustNewConstMetric(c.generation, prometheus.GaugeValue, float64(g.Generation))

	for name, cs := range map[string]CacheStats{
		"range_stats": st.RangeStatsCache,
		"statistical": st.StatisticalCache,
	} {
		ch <- prometheus.MustNewConstMetric(c.cacheHits, prometheus.CounterValue, float64(cs.Hits), name)
		ch <- prometheus.MustNewConstMetric(c.cacheMisses, prometheus.CounterValue, float64(cs.Misses), name)
		ch <- prometheus.MustNewConstMetric(c.cacheSize, prometheus.GaugeValue, float64(cs.Size), name)
	}
}
