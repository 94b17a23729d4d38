// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package celeval implements the formula language of formula rules on top
// of Google's Common Expression Language. Formulas are written in the
// spreadsheet style ("=$B2>100", "AND(A1>=1, A1<=5)") and compiled once
// per shape into a CEL program.
//
// Besides A1-style cell references, formulas can read the variables value
// (the evaluated cell's value), row and col (its 1-based coordinates).
// Empty cells read as null. Text comparisons are case-sensitive.
package celeval

import (
	"errors"
	"fmt"
	"sync"

	"github.com/OmniMCP-AI/cfengine"
	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/checker/decls"
	"github.com/google/cel-go/common/types"
)

// Variables available to every formula.
const (
	varValue = "value"
	varRow   = "row"
	varCol   = "col"
)

var (
	// ErrEmptyExpression is returned for a blank formula.
	ErrEmptyExpression = errors.New("empty formula expression")
	// ErrSyntax is returned for a formula that cannot be translated.
	ErrSyntax = errors.New("formula syntax error")
	// ErrUnsupportedFunction is returned for functions other than AND, OR,
	// NOT and IF.
	ErrUnsupportedFunction = errors.New("unsupported formula function")
	// ErrUnsupportedOperator is returned for operators with no CEL
	// counterpart.
	ErrUnsupportedOperator = errors.New("unsupported formula operator")
	// ErrUnsupportedReference is returned for cross-sheet and multi-cell
	// references.
	ErrUnsupportedReference = errors.New("unsupported formula reference")
)

var _ cfengine.FormulaEvaluator = (*Evaluator)(nil)

// compiled is a checked CEL program.
type compiled struct {
	prg cel.Program
}

// Evaluator evaluates formula rules with CEL. It is safe for concurrent
// use; programs are cached per translated source.
type Evaluator struct {
	mu       sync.RWMutex
	programs map[string]*compiled
}

// New returns an evaluator with an empty program cache.
func New() *Evaluator {
	return &Evaluator{programs: make(map[string]*compiled)}
}

// Evaluate translates expression, compiles it on first use and runs it
// against the cell in ctx. The result is the native Go value of the CEL
// result.
func (e *Evaluator) Evaluate(expression string, ctx cfengine.FormulaContext) (any, error) {
	p, err := translate(expression)
	if err != nil {
		return nil, err
	}
	c, err := e.program(p)
	if err != nil {
		return nil, err
	}
	vars := map[string]interface{}{
		varValue: bind(ctx.Value),
		varRow:   float64(ctx.Address.Row),
		varCol:   float64(ctx.Address.Col),
	}
	for i, addr := range p.refs {
		var v any
		if ctx.GetValue != nil {
			v = ctx.GetValue(addr)
		}
		vars[refVar(i)] = bind(v)
	}
	out, _, err := c.prg.Eval(vars)
	if err != nil {
		return nil, fmt.Errorf("evaluating %q: %w", expression, err)
	}
	return out.Value(), nil
}

// Len returns the number of compiled programs.
func (e *Evaluator) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.programs)
}

// program returns the compiled program of p, compiling it on first use.
func (e *Evaluator) program(p *program) (*compiled, error) {
	e.mu.RLock()
	c, ok := e.programs[p.source]
	e.mu.RUnlock()
	if ok {
		return c, nil
	}
	c, err := compile(p)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.programs[p.source] = c
	e.mu.Unlock()
	return c, nil
}

// compile parses, checks and plans the CEL source of p.
func compile(p *program) (*compiled, error) {
	opts := []cel.EnvOption{cel.Declarations(
		decls.NewIdent(varValue, decls.Dyn, nil),
		decls.NewIdent(varRow, decls.Double, nil),
		decls.NewIdent(varCol, decls.Double, nil),
	)}
	for i := range p.refs {
		opts = append(opts, cel.Declarations(decls.NewIdent(refVar(i), decls.Dyn, nil)))
	}
	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, err
	}

	ast, iss := env.Parse(p.source)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("parsing %q: %w", p.source, iss.Err())
	}
	checked, iss := env.Check(ast)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("checking %q: %w", p.source, iss.Err())
	}
	prg, err := env.Program(checked)
	if err != nil {
		return nil, fmt.Errorf("generating program %q: %w", p.source, err)
	}
	return &compiled{prg: prg}, nil
}

// bind converts a cell value to the value CEL sees: every numeric kind
// becomes a double and an empty cell becomes null.
func bind(v any) interface{} {
	switch n := v.(type) {
	case nil:
		return types.NullValue
	case int:
		return float64(n)
	case int8:
		return float64(n)
	case int16:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case uint8:
		return float64(n)
	case uint16:
		return float64(n)
	case uint32:
		return float64(n)
	case uint64:
		return float64(n)
	case float32:
		return float64(n)
	}
	return v
}
