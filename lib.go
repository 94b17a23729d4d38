// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package cfengine

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

const (
	// MaxColumns is the largest column number addressable on a sheet.
	MaxColumns = 16384
	// TotalRows is the largest row number addressable on a sheet.
	TotalRows = 1048576
)

// Address identifies one cell by its 1-based row and column numbers.
type Address struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// String returns the A1-style name of the address, e.g. "C7". Out of grid
// addresses are rendered as "R<row>C<col>".
func (a Address) String() string {
	name, err := CoordinatesToCellName(a.Col, a.Row)
	if err != nil {
		return fmt.Sprintf("R%dC%d", a.Row, a.Col)
	}
	return name
}

// Less orders addresses row-major.
func (a Address) Less(b Address) bool {
	if a.Row != b.Row {
		return a.Row < b.Row
	}
	return a.Col < b.Col
}

// Range is an inclusive rectangle of cells. Use NewRange or ParseRange to
// build a normalized range whose Start is the top-left corner.
type Range struct {
	Start Address `json:"start"`
	End   Address `json:"end"`
}

// NewRange returns the normalized rectangle spanned by two corners.
func NewRange(a, b Address) Range {
	r := Range{Start: a, End: b}
	if r.Start.Row > r.End.Row {
		r.Start.Row, r.End.Row = r.End.Row, r.Start.Row
	}
	if r.Start.Col > r.End.Col {
		r.Start.Col, r.End.Col = r.End.Col, r.Start.Col
	}
	return r
}

// CellRange returns the single-cell range at addr.
func CellRange(addr Address) Range {
	return Range{Start: addr, End: addr}
}

// ParseRange parses a reference such as "A1:C10" or "B4" into a normalized
// range. Absolute markers ($) are ignored.
func ParseRange(ref string) (Range, error) {
	parts := strings.Split(strings.ReplaceAll(ref, "$", ""), ":")
	if len(parts) == 0 || len(parts) > 2 {
		return Range{}, newInvalidRangeError(ref)
	}
	col, row, err := CellNameToCoordinates(parts[0])
	if err != nil {
		return Range{}, newInvalidRangeError(ref)
	}
	start := Address{Row: row, Col: col}
	if len(parts) == 1 {
		return CellRange(start), nil
	}
	col, row, err = CellNameToCoordinates(parts[1])
	if err != nil {
		return Range{}, newInvalidRangeError(ref)
	}
	return NewRange(start, Address{Row: row, Col: col}), nil
}

// MustParseRange is like ParseRange but panics on malformed input. It is
// intended for literals in tests and static rule tables.
func MustParseRange(ref string) Range {
	r, err := ParseRange(ref)
	if err != nil {
		panic(err)
	}
	return r
}

// String returns the A1-style reference of the range.
func (r Range) String() string {
	if r.Start == r.End {
		return r.Start.String()
	}
	return r.Start.String() + ":" + r.End.String()
}

// Key returns the deterministic cache key of the range built from its
// corner coordinates.
func (r Range) Key() string {
	return strconv.Itoa(r.Start.Row) + "," + strconv.Itoa(r.Start.Col) + ":" +
		strconv.Itoa(r.End.Row) + "," + strconv.Itoa(r.End.Col)
}

// Contains reports whether addr lies inside the range.
func (r Range) Contains(addr Address) bool {
	return addr.Row >= r.Start.Row && addr.Row <= r.End.Row &&
		addr.Col >= r.Start.Col && addr.Col <= r.End.Col
}

// Intersect returns the overlap of two ranges and whether they overlap.
func (r Range) Intersect(o Range) (Range, bool) {
	out := Range{
		Start: Address{Row: max(r.Start.Row, o.Start.Row), Col: max(r.Start.Col, o.Start.Col)},
		End:   Address{Row: min(r.End.Row, o.End.Row), Col: min(r.End.Col, o.End.Col)},
	}
	if out.Start.Row > out.End.Row || out.Start.Col > out.End.Col {
		return Range{}, false
	}
	return out, true
}

// Overlaps reports whether two ranges share at least one cell.
func (r Range) Overlaps(o Range) bool {
	_, ok := r.Intersect(o)
	return ok
}

// Area returns the number of cells in the range.
func (r Range) Area() int {
	return (r.End.Row - r.Start.Row + 1) * (r.End.Col - r.Start.Col + 1)
}

// Cells returns every address of the range in row-major order.
func (r Range) Cells() []Address {
	cells := make([]Address, 0, r.Area())
	r.ForEach(func(addr Address) {
		cells = append(cells, addr)
	})
	return cells
}

// ForEach calls fn for every address of the range in row-major order.
func (r Range) ForEach(fn func(Address)) {
	for row := r.Start.Row; row <= r.End.Row; row++ {
		for col := r.Start.Col; col <= r.End.Col; col++ {
			fn(Address{Row: row, Col: col})
		}
	}
}

// RangeSignature returns the canonical signature of a range set: the
// per-range keys sorted and joined, so the order ranges were listed in does
// not matter.
func RangeSignature(ranges []Range) string {
	keys := make([]string, len(ranges))
	for i, r := range ranges {
		keys[i] = r.Key()
	}
	sort.Strings(keys)
	return strings.Join(keys, "|")
}

// rangesOverlap reports whether any range of the set overlaps target.
func rangesOverlap(ranges []Range, target Range) bool {
	for _, r := range ranges {
		if r.Overlaps(target) {
			return true
		}
	}
	return false
}

// rangesContain reports whether any range of the set contains addr.
func rangesContain(ranges []Range, addr Address) bool {
	for _, r := range ranges {
		if r.Contains(addr) {
			return true
		}
	}
	return false
}

// ColumnNameToNumber converts a column name such as "AK" to its 1-based
// number.
func ColumnNameToNumber(name string) (int, error) {
	if len(name) == 0 {
		return -1, newInvalidColumnNameError(name)
	}
	col, multi := 0, 1
	for i := len(name) - 1; i >= 0; i-- {
		r := name[i]
		switch {
		case r >= 'A' && r <= 'Z':
			col += int(r-'A'+1) * multi
		case r >= 'a' && r <= 'z':
			col += int(r-'a'+1) * multi
		default:
			return -1, newInvalidColumnNameError(name)
		}
		multi *= 26
		if col > MaxColumns {
			return -1, ErrColumnNumber
		}
	}
	return col, nil
}

// ColumnNumberToName converts a 1-based column number to its name.
func ColumnNumberToName(num int) (string, error) {
	if num < 1 || num > MaxColumns {
		return "", ErrColumnNumber
	}
	var col []byte
	for num > 0 {
		num--
		col = append([]byte{byte('A' + num%26)}, col...)
		num /= 26
	}
	return string(col), nil
}

// CellNameToCoordinates converts an A1-style cell name to its (col, row)
// coordinates.
func CellNameToCoordinates(cell string) (int, int, error) {
	colName, row, err := splitCellName(cell)
	if err != nil {
		return -1, -1, err
	}
	if row > TotalRows {
		return -1, -1, ErrMaxRows
	}
	col, err := ColumnNameToNumber(colName)
	return col, row, err
}

// CoordinatesToCellName converts (col, row) coordinates to an A1-style cell
// name.
func CoordinatesToCellName(col, row int) (string, error) {
	if col < 1 || row < 1 {
		return "", fmt.Errorf("invalid cell reference [%d, %d]", col, row)
	}
	if row > TotalRows {
		return "", ErrMaxRows
	}
	colName, err := ColumnNumberToName(col)
	if err != nil {
		return "", err
	}
	return colName + strconv.Itoa(row), nil
}

// splitCellName splits "AK74" into ("AK", 74).
func splitCellName(cell string) (string, int, error) {
	idx := strings.IndexFunc(cell, unicode.IsDigit)
	if idx <= 0 {
		return "", -1, newCellNameToCoordinatesError(cell)
	}
	row, err := strconv.Atoi(cell[idx:])
	if err != nil || row < 1 {
		return "", -1, newCellNameToCoordinatesError(cell)
	}
	return cell[:idx], row, nil
}
