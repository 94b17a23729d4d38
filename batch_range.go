// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package cfengine

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// EvaluateRange produces the result of every cell of rng. Dirty rules
// overlapping rng are first evaluated over every cell of their ranges,
// fanned out across Options.Workers goroutines; each cell result is then
// merged from the per-rule outcomes in precedence order, honoring
// StopIfTrue. Cells no rule covers are left out of the returned map.
//
// Unlike EvaluateCellCF, StopIfTrue only applies to the merge here: a dirty
// rule below a matching StopIfTrue rule is still evaluated, reaches the
// FormulaEvaluator and counts an evaluation.
//
// opts.GetValue and opts.FormulaEvaluator must be safe for concurrent use.
func (e *Engine) EvaluateRange(ctx context.Context, rng Range, opts EvalOptions) (map[Address]Result, error) {
	if opts.GetValue == nil {
		return nil, ErrMissingValueFunc
	}
	opts = cachedValues(opts)
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.propagation.Flush(opts.GetValue); err != nil {
		return nil, err
	}

	parallel := func(rule *Rule, cells []Address, opts EvalOptions) ([]outcome, error) {
		return e.evaluateParallel(ctx, rule, cells, opts)
	}
	var rules []*Rule
	for _, id := range e.graph.RuleIDs() {
		rule, _ := e.graph.Rule(id)
		if len(rule.Ranges) == 0 || !rangesOverlap(rule.Ranges, rng) {
			continue
		}
		rules = append(rules, rule)
		if dirty, _ := e.graph.IsDirty(id); !dirty {
			e.skippedCleanRules++
			continue
		}
		if _, err := e.runRule(id, rule, ruleCells(rule, rng), opts, parallel); err != nil {
			return nil, err
		}
	}

	cells := rng.Cells()
	results := make([]*Result, len(cells))
	err := e.forEachChunk(ctx, len(cells), func(lo, hi int) error {
		for i := lo; i < hi; i++ {
			results[i] = e.mergeCell(cells[i], rules, opts.GetValue)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := make(map[Address]Result)
	for i, res := range results {
		if res != nil {
			out[cells[i]] = *res
		}
	}
	return out, nil
}

// mergeCell folds the memoized outcomes of the rules covering addr. It
// returns nil when no rule covers the cell.
func (e *Engine) mergeCell(addr Address, rules []*Rule, getValue ValueFunc) *Result {
	var (
		res     Result
		covered bool
	)
	for _, rule := range rules {
		if !rangesContain(rule.Ranges, addr) {
			continue
		}
		covered = true
		o := e.memo[rule.ID][addr]
		if !o.matched {
			continue
		}
		res.apply(rule.ID, o)
		if rule.StopIfTrue {
			break
		}
	}
	if !covered {
		return nil
	}
	res.finish(getValue(addr))
	return &res
}

// evaluateParallel evaluates a rule over cells. The first cell is
// evaluated alone so the statistics it needs are cached before the
// remaining cells fan out.
func (e *Engine) evaluateParallel(ctx context.Context, rule *Rule, cells []Address, opts EvalOptions) ([]outcome, error) {
	list := make([]outcome, len(cells))
	if len(cells) == 0 {
		return list, nil
	}
	first, err := e.evaluateSerial(rule, cells[:1], opts)
	if err != nil {
		return nil, err
	}
	list[0] = first[0]
	rest := cells[1:]
	err = e.forEachChunk(ctx, len(rest), func(lo, hi int) error {
		for i := lo; i < hi; i++ {
			o, err := e.evaluator.evaluateRule(rule, opts.GetValue(rest[i]), e.evalContext(rest[i], opts))
			if err != nil {
				return err
			}
			list[i+1] = o
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return list, nil
}

// forEachChunk splits [0, n) into one contiguous chunk per worker and runs
// fn on each concurrently. The first error cancels the remaining chunks.
func (e *Engine) forEachChunk(ctx context.Context, n int, fn func(lo, hi int) error) error {
	if n == 0 {
		return nil
	}
	numWorkers := min(e.options.Workers, n)
	chunkSize := (n + numWorkers - 1) / numWorkers
	g, ctx := errgroup.WithContext(ctx)
	for lo := 0; lo < n; lo += chunkSize {
		lo, hi := lo, min(lo+chunkSize, n)
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return fn(lo, hi)
		})
	}
	return g.Wait()
}
