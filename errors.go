// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package cfengine

import (
	"errors"
	"fmt"
)

var (
	// ErrColumnNumber defined the error message on receive an invalid column
	// number.
	ErrColumnNumber = fmt.Errorf("the column number must be greater than or equal to 1 and less than or equal to %d", MaxColumns)
	// ErrMaxRows defined the error message on receive a row number exceeds maximum limit.
	ErrMaxRows = errors.New("row number exceeds maximum limit")
	// ErrRuleNotFound defined the error message on looking up a rule id that
	// is not registered with the engine.
	ErrRuleNotFound = errors.New("conditional formatting rule not found")
	// ErrMissingValueFunc defined the error message on evaluating without a
	// cell value accessor.
	ErrMissingValueFunc = errors.New("evaluation options require a GetValue accessor")
	// ErrIconSetThresholds defined the error message on an icon set rule
	// without thresholds.
	ErrIconSetThresholds = errors.New("icon set rule requires at least one threshold")
	// ErrMissingCondition defined the error message on a rule without a
	// condition.
	ErrMissingCondition = errors.New("conditional formatting rule has no condition")
	// ErrOperator defined the error message on an unsupported comparison
	// operator.
	ErrOperator = errors.New("unsupported comparison operator")
	// ErrColorValue defined the error message on a color that cannot be
	// parsed.
	ErrColorValue = errors.New("invalid color value")
)

// ErrUnknownIconSet defined the error message on an icon set name outside
// the built-in catalog.
type ErrUnknownIconSet struct {
	Name string
}

func (err ErrUnknownIconSet) Error() string {
	return fmt.Sprintf("unknown icon set %q", err.Name)
}

// RuleConfigError reports a malformed rule. It wraps the underlying
// configuration error so callers can match it with errors.Is / errors.As.
type RuleConfigError struct {
	RuleID string
	Err    error
}

func (err *RuleConfigError) Error() string {
	return fmt.Sprintf("rule %s: %v", err.RuleID, err.Err)
}

func (err *RuleConfigError) Unwrap() error {
	return err.Err
}

// newInvalidRangeError defined the error message on receiving an invalid
// range reference.
func newInvalidRangeError(ref string) error {
	return fmt.Errorf("invalid range reference %q", ref)
}

// newInvalidColumnNameError defined the error message on receiving the
// invalid column name.
func newInvalidColumnNameError(col string) error {
	return fmt.Errorf("invalid column name %q", col)
}

// newCellNameToCoordinatesError defined the error message on converts
// invalid cell reference to the coordinates.
func newCellNameToCoordinatesError(cell string) error {
	return fmt.Errorf("cannot convert cell %q to coordinates: invalid cell name %q", cell, cell)
}

// newColorValueError wraps ErrColorValue with the offending text.
func newColorValueError(value string) error {
	return fmt.Errorf("%w %q", ErrColorValue, value)
}
