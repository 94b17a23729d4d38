// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package cfengine

import "math"

// defaultDataBarColor is the bar color used when a data bar rule sets none.
const defaultDataBarColor = "#638EC6"

// rangeStatsFor returns the statistics of the rule ranges, or nil when the
// ranges hold no numbers.
func (e *RuleEvaluator) rangeStatsFor(rule *Rule, ctx EvalContext) (*RangeStats, error) {
	stats, err := e.rangeStats.ComputeOnceForRanges(rule.Ranges, ctx.GetValue)
	if err != nil || stats.Count == 0 {
		return nil, err
	}
	return stats, nil
}

// evaluateIconSet buckets the cell's percentile rank, or its raw value for
// number thresholds, into an icon. Thresholds are walked from the highest
// icon down; the first one that holds wins and the last icon is the
// fallback, so tied values always share an icon.
func (e *RuleEvaluator) evaluateIconSet(rule *Rule, c *IconSetCondition, value any, ctx EvalContext) (outcome, error) {
	if err := c.validate(); err != nil {
		return outcome{}, &RuleConfigError{RuleID: rule.ID, Err: err}
	}
	v, ok := toNumber(value)
	if !ok {
		return outcome{}, nil
	}
	stats, err := e.rangeStatsFor(rule, ctx)
	if err != nil || stats == nil {
		return outcome{}, err
	}
	index := iconIndex(c, v, stats.PercentRank(v))
	return outcome{matched: true, icon: &IconResult{IconSet: c.IconSet, IconIndex: index, ShowValue: c.ShowValue}}, nil
}

// iconIndex picks the icon for a value and its percent rank.
func iconIndex(c *IconSetCondition, v, percent float64) int {
	size, _ := IconSetSize(c.IconSet)
	index := len(c.Thresholds) - 1
	for i, t := range c.Thresholds {
		subject := percent
		if t.Type == ThresholdNumber {
			subject = v
		}
		var holds bool
		if t.Operator == OperatorGreater {
			holds = subject > t.Value
		} else {
			holds = subject >= t.Value
		}
		if holds {
			index = i
			break
		}
	}
	index = min(index, size-1)
	if c.Reverse {
		index = size - 1 - index
	}
	return index
}

// evaluateColorScale fills the cell with a color interpolated between the
// scale stops. A scale whose ends resolve to the same number collapses to
// the minimum color.
func (e *RuleEvaluator) evaluateColorScale(rule *Rule, c *ColorScaleCondition, value any, ctx EvalContext) (outcome, error) {
	if err := c.validate(); err != nil {
		return outcome{}, &RuleConfigError{RuleID: rule.ID, Err: err}
	}
	v, ok := toNumber(value)
	if !ok {
		return outcome{}, nil
	}
	stats, err := e.rangeStatsFor(rule, ctx)
	if err != nil || stats == nil {
		return outcome{}, err
	}
	// colors were validated above
	minColor, _ := parseColor(c.Min.Color)
	maxColor, _ := parseColor(c.Max.Color)
	lo := scalePoint(c.Min, ValueMin, stats)
	hi := scalePoint(c.Max, ValueMax, stats)

	var fill rgbColor
	switch {
	case hi == lo:
		fill = minColor
	case c.Mid == nil:
		fill = minColor.lerp(maxColor, (v-lo)/(hi-lo))
	default:
		midColor, _ := parseColor(c.Mid.Color)
		mid := scalePoint(*c.Mid, ValuePercentile, stats)
		if v <= mid {
			fill = lerpSegment(minColor, midColor, lo, mid, v)
		} else {
			fill = lerpSegment(midColor, maxColor, mid, hi, v)
		}
	}
	style := &Style{}
	style.merge(rule.Style)
	style.FillColor = fill.String()
	return outcome{matched: true, style: style}, nil
}

// lerpSegment interpolates v over [lo, hi]; an empty segment yields to.
func lerpSegment(from, to rgbColor, lo, hi, v float64) rgbColor {
	if hi == lo {
		return to
	}
	return from.lerp(to, (v-lo)/(hi-lo))
}

// scalePoint resolves a color scale stop to a number. An untyped stop uses
// def; an untyped percentile stop is the median.
func scalePoint(p ColorScalePoint, def ValueType, stats *RangeStats) float64 {
	typ := p.Type
	if typ == "" {
		typ = def
	}
	switch typ {
	case ValueMin:
		return stats.Min
	case ValueMax:
		return stats.Max
	case ValueNumber:
		return p.Value
	case ValuePercent:
		return stats.Min + (stats.Max-stats.Min)*p.Value/100
	case ValuePercentile:
		if p.Type == "" {
			return stats.PercentileInc(50)
		}
		return stats.PercentileInc(p.Value)
	case ValueMidpoint:
		return (stats.Min + stats.Max) / 2
	}
	return stats.Min
}

// evaluateDataBar scales the cell between the range minimum and maximum,
// or the pinned bounds when set.
func (e *RuleEvaluator) evaluateDataBar(rule *Rule, c *DataBarCondition, value any, ctx EvalContext) (outcome, error) {
	v, ok := toNumber(value)
	if !ok {
		return outcome{}, nil
	}
	var lo, hi float64
	if c.MinValue == nil || c.MaxValue == nil {
		stats, err := e.rangeStatsFor(rule, ctx)
		if err != nil || stats == nil {
			return outcome{}, err
		}
		lo, hi = stats.Min, stats.Max
	}
	if c.MinValue != nil {
		lo = *c.MinValue
	}
	if c.MaxValue != nil {
		hi = *c.MaxValue
	}
	percent := 100.0
	if hi != lo {
		percent = math.Max(0, math.Min(1, (v-lo)/(hi-lo))) * 100
	}
	color := defaultDataBarColor
	if c.Color != "" {
		color = normalizeColor(c.Color)
	}
	return outcome{matched: true, dataBar: &DataBarResult{
		Percent:   percent,
		Color:     color,
		Gradient:  c.Gradient,
		ShowValue: c.ShowValue,
	}}, nil
}
