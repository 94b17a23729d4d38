// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package cfengine

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/tiendc/go-deepcopy"
)

// RuleState is the lifecycle state of a rule.
type RuleState string

// Rule lifecycle states. A rule is dirty from creation until its first
// evaluation and again after any change to a cell it depends on;
// evaluating lasts only for the duration of one evaluation call.
const (
	RuleStateClean      RuleState = "clean"
	RuleStateDirty      RuleState = "dirty"
	RuleStateEvaluating RuleState = "evaluating"
)

// RuleEvaluationState is the lifecycle snapshot of one rule.
type RuleEvaluationState struct {
	RuleID          string    `json:"ruleId"`
	State           RuleState `json:"state"`
	LastEvaluated   time.Time `json:"lastEvaluated"`
	EvaluationCount int64     `json:"evaluationCount"`
}

// EngineStats is a point-in-time view of the engine counters.
type EngineStats struct {
	TotalEvaluations  int64                 `json:"totalEvaluations"`
	SkippedCleanRules int64                 `json:"skippedCleanRules"`
	CellEdits         int64                 `json:"cellEdits"`
	Rules             []RuleEvaluationState `json:"rules"`
	Graph             GraphStats            `json:"graph"`
	RangeStatsCache   CacheStats            `json:"rangeStatsCache"`
	StatisticalCache  CacheStats            `json:"statisticalCache"`
}

// Engine owns the dependency graph, both statistic caches, the dirty
// propagation and the rule lifecycle table. Every public method takes the
// engine lock, so edits and evaluations are applied in call order and an
// evaluation observes every dirty mark made before it.
//
// Evaluation is gated strictly by the graph dirty bit: a clean rule is
// never re-evaluated, it contributes the outcome memoized by its last
// evaluation instead. A dirty rule is always evaluated over every cell of
// its ranges, so the memo of a clean rule covers all of them.
type Engine struct {
	mu          sync.Mutex
	options     Options
	logger      hclog.Logger
	graph       *DependencyGraph
	rangeStats  *RangeStatsManager
	statCache   *StatisticalCacheManager
	evaluator   *RuleEvaluator
	propagation *DirtyPropagationEngine
	states      map[string]*RuleEvaluationState
	// memo holds the last outcome of each clean rule per covered cell.
	memo map[string]map[Address]outcome

	totalEvaluations  int64
	skippedCleanRules int64
	cellEdits         int64
}

// NewEngine provides a function to create a new conditional formatting
// engine. Unset option fields take their DefaultOptions values.
func NewEngine(opts ...Options) *Engine {
	var o Options
	if len(opts) > 0 {
		o = opts[len(opts)-1]
	}
	o = o.withDefaults()
	graph := NewDependencyGraph()
	rangeStats := NewRangeStatsManager(o.Aggregator, o.Logger.Named("range-stats"))
	rangeStats.generation = graph.Generation
	statCache := NewStatisticalCacheManager(o.StatCacheSize, o.Logger.Named("stat-cache"))
	return &Engine{
		options:     o,
		logger:      o.Logger,
		graph:       graph,
		rangeStats:  rangeStats,
		statCache:   statCache,
		evaluator:   NewRuleEvaluator(rangeStats, statCache, o.Logger.Named("evaluator")),
		propagation: NewDirtyPropagationEngine(graph, rangeStats, statCache, o.Logger.Named("propagation")),
		states:      make(map[string]*RuleEvaluationState),
		memo:        make(map[string]map[Address]outcome),
	}
}

// AddRule registers a deep copy of rule under id, replacing any rule with
// the same id. An empty id falls back to rule.ID and then to a generated
// UUID; the id used is returned. Malformed rules are rejected with a
// *RuleConfigError. The rule starts dirty.
func (e *Engine) AddRule(id string, rule Rule) (string, error) {
	if id == "" {
		id = rule.ID
	}
	if id == "" {
		id = uuid.NewString()
	}
	var cp Rule
	if err := deepcopy.Copy(&cp, rule); err != nil {
		return "", fmt.Errorf("copy rule %s: %w", id, err)
	}
	cp.ID = id
	if err := cp.Validate(); err != nil {
		return "", err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.graph.AddRule(id, &cp)
	e.evaluator.forgetRule(id)
	delete(e.memo, id)
	e.states[id] = &RuleEvaluationState{RuleID: id, State: RuleStateDirty}
	e.logger.Debug("rule added", "rule", id, "type", cp.Type(), "ranges", len(cp.Ranges))
	return id, nil
}

// AddRules registers several rules and returns their ids in order. Valid
// rules are registered even when others are rejected; the rejections are
// returned together.
func (e *Engine) AddRules(rules []Rule) ([]string, error) {
	var (
		ids  []string
		errs *multierror.Error
	)
	for _, rule := range rules {
		id, err := e.AddRule(rule.ID, rule)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		ids = append(ids, id)
	}
	return ids, errs.ErrorOrNil()
}

// RemoveRule unregisters a rule and reports whether it existed.
func (e *Engine) RemoveRule(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.removeRule(id)
}

func (e *Engine) removeRule(id string) bool {
	if !e.graph.RemoveRule(id) {
		return false
	}
	e.evaluator.forgetRule(id)
	delete(e.memo, id)
	delete(e.states, id)
	e.logger.Debug("rule removed", "rule", id)
	return true
}

// ClearRules unregisters every rule and drops all cached statistics.
// Registered formulas are kept.
func (e *Engine) ClearRules() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, id := range e.graph.RuleIDs() {
		e.removeRule(id)
	}
	e.rangeStats.Clear()
	e.statCache.ClearCache()
}

// Rule returns a copy of the rule registered under id.
func (e *Engine) Rule(id string) (Rule, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rule, ok := e.graph.Rule(id)
	if !ok {
		return Rule{}, false
	}
	var cp Rule
	if err := deepcopy.Copy(&cp, *rule); err != nil {
		panic(fmt.Sprintf("cfengine: copy registered rule %s: %v", id, err))
	}
	return cp, true
}

// AddFormula registers the worksheet formula held by the cell at addr, so
// edits to the cells it reads dirty the rules over addr. refs lists the
// cells it reads; nil extracts them from expression.
func (e *Engine) AddFormula(addr Address, expression string, refs []Address) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.graph.AddFormula(addr, expression, refs)
}

// MarkCellDirty records an edit of the cell at addr and returns the ids of
// the rules it dirtied.
func (e *Engine) MarkCellDirty(addr Address) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cellEdits++
	return e.markRules(e.propagation.OnCellChange(addr))
}

// MarkRangeDirty records an edit of every cell of r; the edit counter
// grows by the number of cells.
func (e *Engine) MarkRangeDirty(r Range) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cellEdits += int64(r.Area())
	return e.markRules(e.propagation.OnRangeChange(r))
}

// MarkRuleDirty forces the rule with the given id to be re-evaluated on
// the next evaluation call, without any cell edit.
func (e *Engine) MarkRuleDirty(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.graph.MarkRuleDirty(id) {
		return ErrRuleNotFound
	}
	e.markRules([]string{id})
	return nil
}

func (e *Engine) markRules(ids []string) []string {
	for _, id := range ids {
		e.state(id).State = RuleStateDirty
		delete(e.memo, id)
	}
	return ids
}

// state returns the lifecycle entry of a registered rule. A rule in the
// graph without an entry is an invariant violation.
func (e *Engine) state(id string) *RuleEvaluationState {
	st, ok := e.states[id]
	if !ok {
		panic(fmt.Sprintf("cfengine: rule %s has no lifecycle state", id))
	}
	return st
}

// RuleState returns the lifecycle snapshot of a rule.
func (e *Engine) RuleState(id string) (RuleEvaluationState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.graph.Rule(id); !ok {
		return RuleEvaluationState{}, false
	}
	return *e.state(id), true
}

// Stats returns the engine counters and a lifecycle snapshot of every
// rule in evaluation order.
func (e *Engine) Stats() EngineStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := EngineStats{
		TotalEvaluations:  e.totalEvaluations,
		SkippedCleanRules: e.skippedCleanRules,
		CellEdits:         e.cellEdits,
		Graph:             e.graph.Stats(),
		RangeStatsCache:   e.rangeStats.CacheStats(),
		StatisticalCache:  e.statCache.CacheStats(),
	}
	for _, id := range e.graph.RuleIDs() {
		st.Rules = append(st.Rules, *e.state(id))
	}
	return st
}

// ResetStats zeroes the engine counters and per-rule evaluation counts.
// Lifecycle states are kept.
func (e *Engine) ResetStats() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.totalEvaluations, e.skippedCleanRules, e.cellEdits = 0, 0, 0
	for _, st := range e.states {
		st.EvaluationCount = 0
		st.LastEvaluated = time.Time{}
	}
}

// EvaluateDirtyRulesForRange evaluates every dirty rule whose ranges
// overlap rng, together with dirty rules that have no ranges. Each is
// evaluated over all of its cells. Clean rules are skipped and counted.
// The result maps each evaluated rule id to its result at the rule's first
// cell inside rng. Failed rules stay dirty and their errors are returned
// together, next to the results of the rules that succeeded.
func (e *Engine) EvaluateDirtyRulesForRange(rng Range, opts EvalOptions) (map[string]Result, error) {
	if opts.GetValue == nil {
		return nil, ErrMissingValueFunc
	}
	opts = cachedValues(opts)
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.propagation.Flush(opts.GetValue); err != nil {
		return nil, err
	}

	var errs *multierror.Error
	results := make(map[string]Result)
	for _, id := range e.graph.RuleIDs() {
		rule, _ := e.graph.Rule(id)
		cells := coveredCells(rule, rng)
		if len(cells) == 0 {
			continue
		}
		if dirty, _ := e.graph.IsDirty(id); !dirty {
			e.skippedCleanRules++
			continue
		}
		outcomes, err := e.runRule(id, rule, ruleCells(rule, rng), opts, e.evaluateSerial)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		var res Result
		if o := outcomes[cells[0]]; o.matched {
			res.apply(id, o)
		}
		res.finish(opts.GetValue(cells[0]))
		results[id] = res
	}
	return results, errs.ErrorOrNil()
}

// EvaluateCellCF evaluates the cell at addr: dirty rules covering it are
// evaluated over their ranges and become clean, clean rules contribute
// their memoized outcome for the cell. Rules are merged in precedence order and a
// matching StopIfTrue rule ends the walk before later rules are touched.
func (e *Engine) EvaluateCellCF(addr Address, opts EvalOptions) (Result, error) {
	if opts.GetValue == nil {
		return Result{}, ErrMissingValueFunc
	}
	opts = cachedValues(opts)
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.propagation.Flush(opts.GetValue); err != nil {
		return Result{}, err
	}

	value := opts.GetValue(addr)
	var result Result
	for _, id := range e.graph.RulesCovering(addr) {
		rule, _ := e.graph.Rule(id)
		var o outcome
		if dirty, _ := e.graph.IsDirty(id); dirty {
			outcomes, err := e.runRule(id, rule, ruleCells(rule, CellRange(addr)), opts, e.evaluateSerial)
			if err != nil {
				return result, err
			}
			o = outcomes[addr]
		} else {
			e.skippedCleanRules++
			o = e.memo[id][addr]
		}
		if !o.matched {
			continue
		}
		result.apply(id, o)
		if rule.StopIfTrue {
			break
		}
	}
	result.finish(value)
	return result, nil
}

// cellEvaluator evaluates a rule over cells and returns the outcome of
// each, index aligned with cells.
type cellEvaluator func(rule *Rule, cells []Address, opts EvalOptions) ([]outcome, error)

// runRule drives one rule through dirty -> evaluating -> clean. The rule
// is restored to dirty if evaluation fails or panics, so it is never left
// evaluating.
func (e *Engine) runRule(id string, rule *Rule, cells []Address, opts EvalOptions, eval cellEvaluator) (map[Address]outcome, error) {
	st := e.state(id)
	st.State = RuleStateEvaluating
	done := false
	defer func() {
		if !done {
			st.State = RuleStateDirty
		}
	}()

	list, err := eval(rule, cells, opts)
	if err != nil {
		return nil, err
	}
	outcomes := make(map[Address]outcome, len(cells))
	for i, addr := range cells {
		outcomes[addr] = list[i]
	}

	e.memo[id] = outcomes
	e.graph.ClearDirty(id)
	st.State = RuleStateClean
	st.LastEvaluated = e.options.Now()
	st.EvaluationCount++
	e.totalEvaluations++
	done = true
	e.logger.Debug("rule evaluated", "rule", id, "cells", len(cells), "count", st.EvaluationCount)
	return outcomes, nil
}

// evaluateSerial evaluates a rule cell by cell on the calling goroutine.
func (e *Engine) evaluateSerial(rule *Rule, cells []Address, opts EvalOptions) ([]outcome, error) {
	list := make([]outcome, len(cells))
	for i, addr := range cells {
		o, err := e.evaluator.evaluateRule(rule, opts.GetValue(addr), e.evalContext(addr, opts))
		if err != nil {
			return nil, err
		}
		list[i] = o
	}
	return list, nil
}

func (e *Engine) evalContext(addr Address, opts EvalOptions) EvalContext {
	return EvalContext{Address: addr, GetValue: opts.GetValue, FormulaEvaluator: opts.FormulaEvaluator}
}

// ruleCells returns every cell a dirty rule is evaluated at: the union of
// its ranges, or the top-left cell of rng for a rule without ranges.
func ruleCells(rule *Rule, rng Range) []Address {
	if len(rule.Ranges) == 0 {
		return []Address{rng.Start}
	}
	var cells []Address
	visitUnion(rule.Ranges, func(addr Address) {
		cells = append(cells, addr)
	})
	return cells
}

// coveredCells returns the cells of rng a rule applies to: the union
// of its ranges clipped to rng, or the top-left cell of rng for a rule
// without ranges.
func coveredCells(rule *Rule, rng Range) []Address {
	if len(rule.Ranges) == 0 {
		return []Address{rng.Start}
	}
	var clipped []Range
	for _, r := range rule.Ranges {
		if part, ok := r.Intersect(rng); ok {
			clipped = append(clipped, part)
		}
	}
	var cells []Address
	visitUnion(clipped, func(addr Address) {
		cells = append(cells, addr)
	})
	return cells
}
