// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package cfengine

import "sort"

// RuleType tags the variant of a rule condition.
type RuleType string

// Rule condition variants.
const (
	RuleTypeValue           RuleType = "value"
	RuleTypeFormula         RuleType = "formula"
	RuleTypeTopBottom       RuleType = "top-bottom"
	RuleTypeAboveAverage    RuleType = "above-average"
	RuleTypeDuplicateUnique RuleType = "duplicate-unique"
	RuleTypeIconSet         RuleType = "icon-set"
	RuleTypeColorScale      RuleType = "color-scale"
	RuleTypeDataBar         RuleType = "data-bar"
)

// Rule is one conditional formatting rule: the ranges it is bound to, its
// precedence, the visual outcome and the condition that decides whether a
// cell matches.
//
// Rules are evaluated in descending Priority; rules with equal priority keep
// the order they were added in. A matching rule with StopIfTrue ends the
// evaluation for that cell.
type Rule struct {
	ID         string    `json:"id,omitempty"`
	Priority   int       `json:"priority,omitempty"`
	StopIfTrue bool      `json:"stopIfTrue,omitempty"`
	Ranges     []Range   `json:"ranges"`
	Style      *Style    `json:"style,omitempty"`
	Condition  Condition `json:"condition"`
}

// Type returns the variant tag of the rule condition, or "" when the rule
// has no condition.
func (r *Rule) Type() RuleType {
	if r.Condition == nil {
		return ""
	}
	return r.Condition.Type()
}

// Validate checks the rule for configuration errors: a missing condition,
// unknown operators, icon set names or colors, and icon sets without
// thresholds.
func (r *Rule) Validate() error {
	var err error
	switch c := r.Condition.(type) {
	case nil:
		err = ErrMissingCondition
	case *ValueCondition:
		if !c.Operator.valid() {
			err = ErrOperator
		}
	case *FormulaCondition, *TopBottomCondition, *AboveAverageCondition, *DuplicateUniqueCondition:
	case *IconSetCondition:
		err = c.validate()
	case *ColorScaleCondition:
		err = c.validate()
	case *DataBarCondition:
		if c.Color != "" {
			_, err = parseColor(c.Color)
		}
	}
	if err != nil {
		return &RuleConfigError{RuleID: r.ID, Err: err}
	}
	return nil
}

// needsRangeStats reports whether the rule reads aggregate statistics of
// its ranges.
func (r *Rule) needsRangeStats() bool {
	switch r.Condition.(type) {
	case *TopBottomCondition, *AboveAverageCondition, *DuplicateUniqueCondition,
		*IconSetCondition, *ColorScaleCondition, *DataBarCondition:
		return len(r.Ranges) > 0
	}
	return false
}

// anchor returns the top-left cell of the first range, the cell relative
// formula references are written against.
func (r *Rule) anchor() Address {
	if len(r.Ranges) == 0 {
		return Address{Row: 1, Col: 1}
	}
	return r.Ranges[0].Start
}

// Condition is the sealed sum type of rule conditions. Each variant carries
// only the fields its algorithm needs.
type Condition interface {
	Type() RuleType
	isCondition()
}

// Operator is a comparison operator of a value rule or icon threshold.
type Operator string

// Supported operators.
const (
	OperatorGreater        Operator = ">"
	OperatorGreaterOrEqual Operator = ">="
	OperatorLess           Operator = "<"
	OperatorLessOrEqual    Operator = "<="
	OperatorEqual          Operator = "="
	OperatorNotEqual       Operator = "<>"
	OperatorBetween        Operator = "between"
	OperatorNotBetween     Operator = "not-between"
)

func (op Operator) valid() bool {
	switch op {
	case OperatorGreater, OperatorGreaterOrEqual, OperatorLess, OperatorLessOrEqual,
		OperatorEqual, OperatorNotEqual, OperatorBetween, OperatorNotBetween:
		return true
	}
	return false
}

// ValueCondition compares the cell value against a literal. Value2 is the
// upper bound of between / not-between.
type ValueCondition struct {
	Operator Operator `json:"operator"`
	Value    any      `json:"value"`
	Value2   any      `json:"value2,omitempty"`
}

// FormulaCondition delegates the match decision to the injected formula
// evaluator. Relative references in Expression are written against the
// top-left cell of the rule's first range.
type FormulaCondition struct {
	Expression string `json:"expression"`
}

// TopBottomMode selects the end of the sorted range a top/bottom rule picks.
type TopBottomMode string

// Top/bottom modes.
const (
	ModeTop    TopBottomMode = "top"
	ModeBottom TopBottomMode = "bottom"
)

// RankType selects whether Rank counts items or a percentage of items.
type RankType string

// Rank types.
const (
	RankNumber  RankType = "number"
	RankPercent RankType = "percent"
)

// TopBottomCondition matches the Rank highest (or lowest) numeric values.
type TopBottomCondition struct {
	Mode     TopBottomMode `json:"mode"`
	RankType RankType      `json:"rankType"`
	Rank     int           `json:"rank"`
}

// AverageMode selects the side of the average an above-average rule matches.
type AverageMode string

// Above-average modes.
const (
	ModeAbove        AverageMode = "above"
	ModeBelow        AverageMode = "below"
	ModeEqualOrAbove AverageMode = "equal-or-above"
	ModeEqualOrBelow AverageMode = "equal-or-below"
)

func (m AverageMode) below() bool {
	return m == ModeBelow || m == ModeEqualOrBelow
}

// AboveAverageCondition matches values above or below the range mean,
// optionally shifted by a number of population standard deviations.
type AboveAverageCondition struct {
	Mode               AverageMode `json:"mode"`
	StandardDeviations float64     `json:"standardDeviations,omitempty"`
}

// DuplicateMode selects duplicate or unique matching.
type DuplicateMode string

// Duplicate/unique modes.
const (
	ModeDuplicate DuplicateMode = "duplicate"
	ModeUnique    DuplicateMode = "unique"
)

// DuplicateUniqueCondition matches values that occur more than once (or
// exactly once) across the rule's ranges.
type DuplicateUniqueCondition struct {
	Mode          DuplicateMode `json:"mode"`
	CaseSensitive bool          `json:"caseSensitive,omitempty"`
}

// ThresholdType selects what an icon threshold is compared against.
type ThresholdType string

// Threshold types. Percent and percentile both compare against the cell's
// percentile rank within the range; number compares against the raw value.
const (
	ThresholdPercent    ThresholdType = "percent"
	ThresholdPercentile ThresholdType = "percentile"
	ThresholdNumber     ThresholdType = "number"
)

// IconThreshold is one cut point of an icon set, listed from the highest
// icon to the lowest. Operator defaults to ">=".
type IconThreshold struct {
	Value    float64       `json:"value"`
	Type     ThresholdType `json:"type,omitempty"`
	Operator Operator      `json:"operator,omitempty"`
}

// IconSetCondition buckets numeric values into the icons of a named set.
type IconSetCondition struct {
	IconSet    string          `json:"iconSet"`
	Thresholds []IconThreshold `json:"thresholds"`
	Reverse    bool            `json:"reverse,omitempty"`
	ShowValue  bool            `json:"showValue,omitempty"`
}

func (c *IconSetCondition) validate() error {
	if _, ok := iconSetSizes[c.IconSet]; !ok {
		return ErrUnknownIconSet{Name: c.IconSet}
	}
	if len(c.Thresholds) == 0 {
		return ErrIconSetThresholds
	}
	for _, t := range c.Thresholds {
		switch t.Operator {
		case "", OperatorGreaterOrEqual, OperatorGreater:
		default:
			return ErrOperator
		}
	}
	return nil
}

// ValueType selects how a color scale point resolves to a number.
type ValueType string

// Color scale point types.
const (
	ValueMin        ValueType = "min"
	ValueMax        ValueType = "max"
	ValueNumber     ValueType = "number"
	ValuePercent    ValueType = "percent"
	ValuePercentile ValueType = "percentile"
	ValueMidpoint   ValueType = "midpoint"
)

// ColorScalePoint is one stop of a color scale.
type ColorScalePoint struct {
	Type  ValueType `json:"type,omitempty"`
	Value float64   `json:"value,omitempty"`
	Color string    `json:"color"`
}

// ColorScaleCondition fills cells with a color interpolated between two or
// three stops. Mid is nil for a 2-color scale.
type ColorScaleCondition struct {
	Min ColorScalePoint  `json:"min"`
	Mid *ColorScalePoint `json:"mid,omitempty"`
	Max ColorScalePoint  `json:"max"`
}

func (c *ColorScaleCondition) validate() error {
	points := []ColorScalePoint{c.Min, c.Max}
	if c.Mid != nil {
		points = append(points, *c.Mid)
	}
	for _, p := range points {
		if _, err := parseColor(p.Color); err != nil {
			return err
		}
	}
	return nil
}

// DataBarCondition renders a bar whose length is the value's position
// between the range minimum and maximum. MinValue and MaxValue pin either
// end to a fixed number.
type DataBarCondition struct {
	Color     string   `json:"color"`
	Gradient  bool     `json:"gradient,omitempty"`
	ShowValue bool     `json:"showValue,omitempty"`
	MinValue  *float64 `json:"minValue,omitempty"`
	MaxValue  *float64 `json:"maxValue,omitempty"`
}

func (*ValueCondition) Type() RuleType           { return RuleTypeValue }
func (*FormulaCondition) Type() RuleType         { return RuleTypeFormula }
func (*TopBottomCondition) Type() RuleType       { return RuleTypeTopBottom }
func (*AboveAverageCondition) Type() RuleType    { return RuleTypeAboveAverage }
func (*DuplicateUniqueCondition) Type() RuleType { return RuleTypeDuplicateUnique }
func (*IconSetCondition) Type() RuleType         { return RuleTypeIconSet }
func (*ColorScaleCondition) Type() RuleType      { return RuleTypeColorScale }
func (*DataBarCondition) Type() RuleType         { return RuleTypeDataBar }

func (*ValueCondition) isCondition()           {}
func (*FormulaCondition) isCondition()         {}
func (*TopBottomCondition) isCondition()       {}
func (*AboveAverageCondition) isCondition()    {}
func (*DuplicateUniqueCondition) isCondition() {}
func (*IconSetCondition) isCondition()         {}
func (*ColorScaleCondition) isCondition()      {}
func (*DataBarCondition) isCondition()         {}

// iconSetSizes is the built-in icon set catalog: name -> number of icons.
var iconSetSizes = map[string]int{
	"3-arrows":                3,
	"3-arrows-gray":           3,
	"3-flags":                 3,
	"3-traffic-lights":        3,
	"3-traffic-lights-rimmed": 3,
	"3-signs":                 3,
	"3-symbols":               3,
	"3-symbols-uncircled":     3,
	"3-stars":                 3,
	"3-triangles":             3,
	"4-arrows":                4,
	"4-arrows-gray":           4,
	"4-red-to-black":          4,
	"4-rating":                4,
	"4-traffic-lights":        4,
	"5-arrows":                5,
	"5-arrows-gray":           5,
	"5-rating":                5,
	"5-quarters":              5,
}

// IconSetNames returns the sorted names of the built-in icon sets.
func IconSetNames() []string {
	names := make([]string, 0, len(iconSetSizes))
	for name := range iconSetSizes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IconSetSize returns the number of icons of a named set.
func IconSetSize(name string) (int, bool) {
	n, ok := iconSetSizes[name]
	return n, ok
}
