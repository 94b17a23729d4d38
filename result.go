// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package cfengine

// Style is the differential fill/font format a matching rule applies. Zero
// fields are unset; when several rules match, later matches overwrite the
// fields they set and keep the rest.
type Style struct {
	FillColor     string `json:"fillColor,omitempty"`
	FontColor     string `json:"fontColor,omitempty"`
	Bold          *bool  `json:"bold,omitempty"`
	Italic        *bool  `json:"italic,omitempty"`
	Underline     *bool  `json:"underline,omitempty"`
	Strikethrough *bool  `json:"strikethrough,omitempty"`
	NumFmt        string `json:"numFmt,omitempty"`
}

// merge overlays the set fields of o onto s.
func (s *Style) merge(o *Style) {
	if o == nil {
		return
	}
	if o.FillColor != "" {
		s.FillColor = o.FillColor
	}
	if o.FontColor != "" {
		s.FontColor = o.FontColor
	}
	if o.Bold != nil {
		s.Bold = boolPtr(*o.Bold)
	}
	if o.Italic != nil {
		s.Italic = boolPtr(*o.Italic)
	}
	if o.Underline != nil {
		s.Underline = boolPtr(*o.Underline)
	}
	if o.Strikethrough != nil {
		s.Strikethrough = boolPtr(*o.Strikethrough)
	}
	if o.NumFmt != "" {
		s.NumFmt = o.NumFmt
	}
}

// IconResult is the icon an icon set rule picked for a cell.
type IconResult struct {
	IconSet   string `json:"iconSet"`
	IconIndex int    `json:"iconIndex"`
	ShowValue bool   `json:"showValue"`
}

// DataBarResult is the data bar render of a cell.
type DataBarResult struct {
	Percent   float64 `json:"percent"`
	Color     string  `json:"color"`
	Gradient  bool    `json:"gradient"`
	ShowValue bool    `json:"showValue"`
}

// Result is the merged visual outcome of every rule that matched a cell.
// AppliedRuleIDs lists the matching rules in evaluation order. Icon and
// DataBar hold the last matching icon set and data bar rule respectively.
// FormattedValue is the cell value rendered with the merged style's number
// format, empty when no number format applies.
type Result struct {
	AppliedRuleIDs []string       `json:"appliedRuleIds"`
	Style          *Style         `json:"style,omitempty"`
	Icon           *IconResult    `json:"icon,omitempty"`
	DataBar        *DataBarResult `json:"dataBar,omitempty"`
	FormattedValue string         `json:"formattedValue,omitempty"`
}

// Matched reports whether any rule matched.
func (r Result) Matched() bool {
	return len(r.AppliedRuleIDs) > 0
}

// outcome is what a single rule produced for a single cell.
type outcome struct {
	matched bool
	style   *Style
	icon    *IconResult
	dataBar *DataBarResult
}

// apply folds one matching rule's outcome into the result.
func (r *Result) apply(ruleID string, o outcome) {
	r.AppliedRuleIDs = append(r.AppliedRuleIDs, ruleID)
	if o.style != nil {
		if r.Style == nil {
			r.Style = &Style{}
		}
		r.Style.merge(o.style)
	}
	if o.icon != nil {
		icon := *o.icon
		r.Icon = &icon
	}
	if o.dataBar != nil {
		bar := *o.dataBar
		r.DataBar = &bar
	}
}

func boolPtr(b bool) *bool { return &b }
