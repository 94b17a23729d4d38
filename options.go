// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package cfengine

import (
	"runtime"
	"time"

	"github.com/hashicorp/go-hclog"
)

// Options define the options for creating an engine.
//
// StatCacheSize bounds the number of rule-shaped statistics entries kept by
// the statistical cache; the least recently used entry is evicted first.
//
// Workers caps the goroutines EvaluateRange fans out to. Zero means
// runtime.NumCPU().
//
// Logger receives lifecycle and cache diagnostics. Nil discards them.
//
// Aggregator computes range statistics from the collected numeric values.
// Nil selects the in-memory scan.
//
// Now is the clock used for lifecycle timestamps. Nil means time.Now.
type Options struct {
	StatCacheSize int
	Workers       int
	Logger        hclog.Logger
	Aggregator    Aggregator
	Now           func() time.Time
}

// DefaultOptions returns the default engine options.
func DefaultOptions() Options {
	return Options{
		StatCacheSize: 1024,
		Workers:       runtime.NumCPU(),
		Logger:        hclog.NewNullLogger(),
		Aggregator:    scanAggregator{},
		Now:           time.Now,
	}
}

// withDefaults fills unset fields from DefaultOptions.
func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.StatCacheSize <= 0 {
		o.StatCacheSize = def.StatCacheSize
	}
	if o.Workers <= 0 {
		o.Workers = def.Workers
	}
	if o.Logger == nil {
		o.Logger = def.Logger
	}
	if o.Aggregator == nil {
		o.Aggregator = def.Aggregator
	}
	if o.Now == nil {
		o.Now = def.Now
	}
	return o
}

// EvalOptions carry the collaborators of one evaluation call: the cell
// value accessor and, optionally, the formula language.
type EvalOptions struct {
	GetValue         ValueFunc
	FormulaEvaluator FormulaEvaluator
}

// ValueFunc returns the raw value of a cell: a number, string, bool or nil
// for an empty cell.
type ValueFunc func(addr Address) any

// FormulaContext is passed to the formula evaluator for one cell.
// Expression in the Evaluate call has already been shifted from the rule's
// anchor to Address.
type FormulaContext struct {
	RuleID   string
	Address  Address
	Anchor   Address
	Value    any
	GetValue ValueFunc
}

// FormulaEvaluator is the capability through which formula rules reach the
// external formula language. A returned error means "no match".
type FormulaEvaluator interface {
	Evaluate(expression string, ctx FormulaContext) (any, error)
}

// FormulaFunc adapts a plain function to FormulaEvaluator.
type FormulaFunc func(expression string, ctx FormulaContext) (any, error)

// Evaluate calls f(expression, ctx).
func (f FormulaFunc) Evaluate(expression string, ctx FormulaContext) (any, error) {
	return f(expression, ctx)
}
