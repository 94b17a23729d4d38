// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package cfengine

import (
	"fmt"

	"github.com/hashicorp/go-hclog"
)

// EvalContext is the per-cell input of a rule evaluation.
type EvalContext struct {
	Address          Address
	GetValue         ValueFunc
	FormulaEvaluator FormulaEvaluator
}

// RuleEvaluator applies rules to a cell value. Statistic based rules read
// through the two caches, so a range is scanned once per dirty epoch no
// matter how many of its cells are evaluated.
type RuleEvaluator struct {
	rangeStats *RangeStatsManager
	statCache  *StatisticalCacheManager
	formulas   *compiledFormulaCache
	logger     hclog.Logger
}

// NewRuleEvaluator returns an evaluator reading statistics from the given
// caches.
func NewRuleEvaluator(rangeStats *RangeStatsManager, statCache *StatisticalCacheManager, logger hclog.Logger) *RuleEvaluator {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &RuleEvaluator{
		rangeStats: rangeStats,
		statCache:  statCache,
		formulas:   newCompiledFormulaCache(),
		logger:     logger,
	}
}

// ApplyRules evaluates rules against value in the order given, which the
// caller is expected to have sorted by precedence. Every matching rule is
// recorded; style fields merge with later matches winning, icon and data
// bar are replaced by the latest match, and a matching rule with
// StopIfTrue ends the walk. A configuration error of any rule aborts the
// call; a value a rule cannot interpret is simply not a match.
func (e *RuleEvaluator) ApplyRules(value any, rules []*Rule, ctx EvalContext) (Result, error) {
	var result Result
	for _, rule := range rules {
		o, err := e.evaluateRule(rule, value, ctx)
		if err != nil {
			return result, err
		}
		if !o.matched {
			continue
		}
		result.apply(rule.ID, o)
		if rule.StopIfTrue {
			break
		}
	}
	result.finish(value)
	return result, nil
}

// finish renders the formatted value once every rule has been merged.
func (r *Result) finish(value any) {
	if r.Style != nil && r.Style.NumFmt != "" {
		r.FormattedValue = formatValue(value, r.Style.NumFmt)
	}
}

// evaluateRule runs one rule against one cell.
func (e *RuleEvaluator) evaluateRule(rule *Rule, value any, ctx EvalContext) (outcome, error) {
	var (
		o   outcome
		err error
	)
	switch c := rule.Condition.(type) {
	case *ValueCondition:
		o.matched = matchValue(c, value)
	case *FormulaCondition:
		o.matched = e.matchFormula(rule, c, value, ctx)
	case *TopBottomCondition:
		o.matched, err = e.matchTopBottom(rule, c, value, ctx)
	case *AboveAverageCondition:
		o.matched, err = e.matchAboveAverage(rule, c, value, ctx)
	case *DuplicateUniqueCondition:
		o.matched, err = e.matchDuplicateUnique(rule, c, value, ctx)
	case *IconSetCondition:
		o, err = e.evaluateIconSet(rule, c, value, ctx)
	case *ColorScaleCondition:
		o, err = e.evaluateColorScale(rule, c, value, ctx)
	case *DataBarCondition:
		o, err = e.evaluateDataBar(rule, c, value, ctx)
	case nil:
		err = &RuleConfigError{RuleID: rule.ID, Err: ErrMissingCondition}
	default:
		panic(fmt.Sprintf("cfengine: unhandled condition type %T", c))
	}
	if err != nil {
		return outcome{}, err
	}
	if o.matched && o.style == nil {
		o.style = rule.Style
	}
	return o, nil
}

// matchValue compares value against the literal of a value rule.
// Incomparable kinds never match.
func matchValue(c *ValueCondition, value any) bool {
	cmp, ok := compareValues(value, c.Value)
	if !ok {
		return false
	}
	switch c.Operator {
	case OperatorGreater:
		return cmp > 0
	case OperatorGreaterOrEqual:
		return cmp >= 0
	case OperatorLess:
		return cmp < 0
	case OperatorLessOrEqual:
		return cmp <= 0
	case OperatorEqual:
		return cmp == 0
	case OperatorNotEqual:
		return cmp != 0
	case OperatorBetween, OperatorNotBetween:
		cmp2, ok := compareValues(value, c.Value2)
		if !ok {
			return false
		}
		// bounds may be given in either order
		lo, hi := cmp, cmp2
		if order, ok := compareValues(c.Value, c.Value2); ok && order > 0 {
			lo, hi = cmp2, cmp
		}
		inside := lo >= 0 && hi <= 0
		if c.Operator == OperatorBetween {
			return inside
		}
		return !inside
	}
	return false
}

// matchFormula shifts the rule expression to the cell and asks the formula
// evaluator for a verdict. A missing evaluator, an error or a panic inside
// the evaluator is not a match.
func (e *RuleEvaluator) matchFormula(rule *Rule, c *FormulaCondition, value any, ctx EvalContext) (matched bool) {
	if ctx.FormulaEvaluator == nil {
		return false
	}
	anchor := rule.anchor()
	expression := e.formulas.Load(rule.ID, anchor, c.Expression).Shift(ctx.Address)
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("formula evaluator panicked", "rule", rule.ID, "cell", ctx.Address.String(), "panic", r)
			matched = false
		}
	}()
	res, err := ctx.FormulaEvaluator.Evaluate(expression, FormulaContext{
		RuleID:   rule.ID,
		Address:  ctx.Address,
		Anchor:   anchor,
		Value:    value,
		GetValue: ctx.GetValue,
	})
	if err != nil {
		e.logger.Debug("formula evaluation failed", "rule", rule.ID, "cell", ctx.Address.String(), "error", err)
		return false
	}
	return truthy(res)
}

func (e *RuleEvaluator) matchTopBottom(rule *Rule, c *TopBottomCondition, value any, ctx EvalContext) (bool, error) {
	v, ok := toNumber(value)
	if !ok {
		return false, nil
	}
	stats, err := e.statCache.TopBottomStats(c, rule.Ranges, ctx.GetValue)
	if err != nil {
		return false, err
	}
	return stats.Matches(v), nil
}

func (e *RuleEvaluator) matchAboveAverage(rule *Rule, c *AboveAverageCondition, value any, ctx EvalContext) (bool, error) {
	v, ok := toNumber(value)
	if !ok {
		return false, nil
	}
	stats, err := e.statCache.AboveAverageStats(c, rule.Ranges, ctx.GetValue)
	if err != nil {
		return false, err
	}
	return stats.Matches(v), nil
}

func (e *RuleEvaluator) matchDuplicateUnique(rule *Rule, c *DuplicateUniqueCondition, value any, ctx EvalContext) (bool, error) {
	if isEmpty(value) {
		return false, nil
	}
	stats, err := e.statCache.DuplicateUniqueStats(c, rule.Ranges, ctx.GetValue)
	if err != nil {
		return false, err
	}
	return stats.Matches(value), nil
}

// forgetRule drops the compiled formulas of a rule.
func (e *RuleEvaluator) forgetRule(ruleID string) {
	e.formulas.DeleteRule(ruleID)
}
