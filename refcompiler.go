// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package cfengine

import (
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/xuri/efp"
)

// refPartPattern matches one side of a reference: an optional absolute
// column and an optional absolute row ("$A$1", "A1", "$A", "1").
var refPartPattern = regexp.MustCompile(`^(\$?)([A-Za-z]{1,3})?(\$?)([0-9]+)?$`)

// cellRef is one parsed corner of a reference. col or row is zero when the
// reference spans whole rows or whole columns.
type cellRef struct {
	col, row       int
	colAbs, rowAbs bool
}

func (c cellRef) shift(dRow, dCol int) (cellRef, bool) {
	if c.col > 0 && !c.colAbs {
		if c.col += dCol; c.col < 1 || c.col > MaxColumns {
			return c, false
		}
	}
	if c.row > 0 && !c.rowAbs {
		if c.row += dRow; c.row < 1 || c.row > TotalRows {
			return c, false
		}
	}
	return c, true
}

func (c cellRef) String() string {
	var sb strings.Builder
	if c.col > 0 {
		if c.colAbs {
			sb.WriteByte('$')
		}
		name, _ := ColumnNumberToName(c.col)
		sb.WriteString(name)
	}
	if c.row > 0 {
		if c.rowAbs {
			sb.WriteByte('$')
		}
		sb.WriteString(strconv.Itoa(c.row))
	}
	return sb.String()
}

// refToken is one reference operand located in the source expression.
type refToken struct {
	offset, length int
	sheet          string
	parts          []cellRef
}

// CompiledFormula is a formula expression whose references have been
// located once, so it can be re-targeted to any cell of a rule range
// without tokenizing again.
type CompiledFormula struct {
	expression string
	anchor     Address
	refs       []refToken
}

// CompileFormula tokenizes expression and records its references relative
// to anchor.
func CompileFormula(expression string, anchor Address) *CompiledFormula {
	return &CompiledFormula{
		expression: expression,
		anchor:     anchor,
		refs:       locateReferences(expression),
	}
}

// Expression returns the source expression.
func (c *CompiledFormula) Expression() string {
	return c.expression
}

// Shift returns the expression re-targeted from the anchor to target:
// relative rows and columns move by the offset between the two cells,
// absolute ones stay. References pushed off the grid become #REF!.
func (c *CompiledFormula) Shift(target Address) string {
	dRow, dCol := target.Row-c.anchor.Row, target.Col-c.anchor.Col
	if (dRow == 0 && dCol == 0) || len(c.refs) == 0 {
		return c.expression
	}
	var sb strings.Builder
	last := 0
	for _, ref := range c.refs {
		sb.WriteString(c.expression[last:ref.offset])
		sb.WriteString(ref.render(dRow, dCol))
		last = ref.offset + ref.length
	}
	sb.WriteString(c.expression[last:])
	return sb.String()
}

// References returns the same-sheet ranges the expression reads when
// evaluated at target. Whole-row, whole-column, cross-sheet and off-grid
// references are left out.
func (c *CompiledFormula) References(target Address) []Range {
	dRow, dCol := target.Row-c.anchor.Row, target.Col-c.anchor.Col
	var ranges []Range
	for _, ref := range c.refs {
		if ref.sheet != "" {
			continue
		}
		if r, ok := ref.resolve(dRow, dCol); ok {
			ranges = append(ranges, r)
		}
	}
	return ranges
}

func (t refToken) render(dRow, dCol int) string {
	parts := make([]string, len(t.parts))
	for i, p := range t.parts {
		shifted, ok := p.shift(dRow, dCol)
		if !ok {
			return "#REF!"
		}
		parts[i] = shifted.String()
	}
	return t.sheet + strings.Join(parts, ":")
}

func (t refToken) resolve(dRow, dCol int) (Range, bool) {
	corners := make([]Address, 0, 2)
	for _, p := range t.parts {
		shifted, ok := p.shift(dRow, dCol)
		if !ok || shifted.col == 0 || shifted.row == 0 {
			return Range{}, false
		}
		corners = append(corners, Address{Row: shifted.row, Col: shifted.col})
	}
	if len(corners) == 1 {
		return CellRange(corners[0]), true
	}
	return NewRange(corners[0], corners[1]), true
}

// locateReferences finds every reference operand of expression together
// with its byte position, skipping text inside string literals.
func locateReferences(expression string) []refToken {
	ps := efp.ExcelParser()
	tokens := ps.Parse(expression)
	if tokens == nil {
		return nil
	}
	quoted := quotedMask(expression)
	var refs []refToken
	cursor := 0
	for _, token := range tokens {
		if token.TType != efp.TokenTypeOperand || token.TSubType != efp.TokenSubTypeRange {
			continue
		}
		ref, ok := parseReference(token.TValue)
		if !ok {
			continue
		}
		offset := indexReference(expression, token.TValue, cursor, quoted)
		if offset < 0 {
			continue
		}
		ref.offset, ref.length = offset, len(token.TValue)
		refs = append(refs, ref)
		cursor = offset + len(token.TValue)
	}
	return refs
}

// parseReference parses "A1", "$A$1:B2", "Sheet1!A1", "$A:$A" or "1:3".
// Defined names and anything else that is not a reference return false.
func parseReference(value string) (refToken, bool) {
	var ref refToken
	body := value
	if idx := strings.LastIndex(value, "!"); idx >= 0 {
		ref.sheet, body = value[:idx+1], value[idx+1:]
	}
	sides := strings.Split(body, ":")
	if len(sides) > 2 {
		return ref, false
	}
	for _, side := range sides {
		m := refPartPattern.FindStringSubmatch(side)
		if m == nil || (m[2] == "" && m[4] == "") {
			return ref, false
		}
		var p cellRef
		p.colAbs = m[1] == "$"
		p.rowAbs = m[3] == "$"
		if m[2] != "" {
			col, err := ColumnNameToNumber(m[2])
			if err != nil {
				return ref, false
			}
			p.col = col
		} else if p.colAbs {
			// "$1" style: the marker belongs to the row
			p.colAbs, p.rowAbs = false, true
		}
		if m[4] != "" {
			row, err := strconv.Atoi(m[4])
			if err != nil || row < 1 || row > TotalRows {
				return ref, false
			}
			p.row = row
		}
		ref.parts = append(ref.parts, p)
	}
	if len(ref.parts) == 1 && (ref.parts[0].col == 0 || ref.parts[0].row == 0) {
		return ref, false
	}
	if len(ref.parts) == 2 {
		a, b := ref.parts[0], ref.parts[1]
		if (a.col == 0) != (b.col == 0) || (a.row == 0) != (b.row == 0) {
			return ref, false
		}
	}
	return ref, true
}

// quotedMask marks the bytes of expression that sit inside a double-quoted
// string literal.
func quotedMask(expression string) []bool {
	mask := make([]bool, len(expression))
	in := false
	for i := 0; i < len(expression); i++ {
		if expression[i] == '"' {
			in = !in
			mask[i] = true
			continue
		}
		mask[i] = in
	}
	return mask
}

// indexReference finds value in expression at or after from, outside
// string literals and not embedded in a longer identifier.
func indexReference(expression, value string, from int, quoted []bool) int {
	for from <= len(expression)-len(value) {
		idx := strings.Index(expression[from:], value)
		if idx < 0 {
			return -1
		}
		idx += from
		end := idx + len(value)
		if !quoted[idx] && (idx == 0 || !isIdentByte(expression[idx-1])) &&
			(end == len(expression) || !isIdentByte(expression[end])) {
			return idx
		}
		from = idx + 1
	}
	return -1
}

func isIdentByte(b byte) bool {
	return b == '$' || b == '_' || b == '.' ||
		(b >= '0' && b <= '9') || (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z')
}

// ExtractReferences returns every same-sheet cell the expression reads, as
// written. Ranges are expanded cell by cell; whole-row and whole-column
// references are skipped.
func ExtractReferences(expression string) []Address {
	seen := make(map[Address]struct{})
	var cells []Address
	for _, ref := range locateReferences(expression) {
		if ref.sheet != "" {
			continue
		}
		r, ok := ref.resolve(0, 0)
		if !ok {
			continue
		}
		r.ForEach(func(addr Address) {
			if _, dup := seen[addr]; !dup {
				seen[addr] = struct{}{}
				cells = append(cells, addr)
			}
		})
	}
	return cells
}

// formulaKey identifies one compiled formula: a rule at an anchor.
type formulaKey struct {
	ruleID string
	anchor Address
}

// compiledFormulaCache stores compiled formulas per (rule, anchor) so every
// cell of a rule range reuses one tokenization.
type compiledFormulaCache struct {
	mu    sync.RWMutex
	cache map[formulaKey]*CompiledFormula
}

func newCompiledFormulaCache() *compiledFormulaCache {
	return &compiledFormulaCache{cache: make(map[formulaKey]*CompiledFormula)}
}

// Load returns the compiled expression of a rule, compiling it on first use.
func (c *compiledFormulaCache) Load(ruleID string, anchor Address, expression string) *CompiledFormula {
	key := formulaKey{ruleID: ruleID, anchor: anchor}
	c.mu.RLock()
	compiled, ok := c.cache[key]
	c.mu.RUnlock()
	if ok && compiled.expression == expression {
		return compiled
	}
	compiled = CompileFormula(expression, anchor)
	c.mu.Lock()
	c.cache[key] = compiled
	c.mu.Unlock()
	return compiled
}

// DeleteRule drops every compiled formula of a rule.
func (c *compiledFormulaCache) DeleteRule(ruleID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.cache {
		if key.ruleID == ruleID {
			delete(c.cache, key)
		}
	}
}

// Clear clears the cache.
func (c *compiledFormulaCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[formulaKey]*CompiledFormula)
}

// Len returns the number of compiled formulas.
func (c *compiledFormulaCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}
