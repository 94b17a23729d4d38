// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package cfengine

import (
	"math"
	"strconv"
	"strings"

	"github.com/xuri/nfp"
)

// numberFormat holds the placeholders of one number format section.
type numberFormat struct {
	section    nfp.Section
	intZeros   int
	fracZeros  int
	fracHashes int
	thousands  bool
	percent    int
	hasPoint   bool
	hasDigits  bool
}

// formatValue renders a cell value with a number format code. Only the
// digit, decimal point, thousands separator, percent and literal parts of
// the code are honored; text and booleans are returned as written.
func formatValue(value any, numFmt string) string {
	if numFmt == "" {
		return ""
	}
	f, ok := toNumber(value)
	if !ok {
		switch v := value.(type) {
		case string:
			return v
		case bool:
			return strings.ToUpper(strconv.FormatBool(v))
		}
		return ""
	}
	if strings.EqualFold(numFmt, "general") {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	p := nfp.NumberFormatParser()
	sections := p.Parse(numFmt)
	if len(sections) == 0 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	section, sign := sections[0], ""
	switch {
	case f < 0 && len(sections) > 1:
		section, f = sections[1], -f
	case f == 0 && len(sections) > 2:
		section = sections[2]
	case f < 0:
		sign, f = "-", -f
	}
	nf := newNumberFormat(section)
	out := nf.render(f)
	if sign != "" && nf.hasDigits {
		out = sign + out
	}
	return out
}

func newNumberFormat(section nfp.Section) *numberFormat {
	nf := &numberFormat{section: section}
	for _, token := range section.Items {
		switch token.TType {
		case nfp.TokenTypeZeroPlaceHolder:
			nf.hasDigits = true
			if nf.hasPoint {
				nf.fracZeros += len(token.TValue)
			} else {
				nf.intZeros += len(token.TValue)
			}
		case nfp.TokenTypeHashPlaceHolder:
			nf.hasDigits = true
			if nf.hasPoint {
				nf.fracHashes += len(token.TValue)
			}
		case nfp.TokenTypeDecimalPoint:
			nf.hasPoint = true
		case nfp.TokenTypeThousandsSeparator:
			if !nf.hasPoint {
				nf.thousands = true
			}
		case nfp.TokenTypePercent:
			nf.percent++
		}
	}
	return nf
}

func (nf *numberFormat) render(f float64) string {
	for i := 0; i < nf.percent; i++ {
		f *= 100
	}
	intPart, fracPart := nf.digits(f)
	var sb strings.Builder
	intWritten, fracWritten := false, false
	for _, token := range nf.section.Items {
		switch token.TType {
		case nfp.TokenTypeZeroPlaceHolder, nfp.TokenTypeHashPlaceHolder:
			if !intWritten {
				sb.WriteString(intPart)
				intWritten = true
			}
		case nfp.TokenTypeDecimalPoint:
			if !intWritten {
				sb.WriteString(intPart)
				intWritten = true
			}
			if !fracWritten && fracPart != "" {
				sb.WriteByte('.')
				sb.WriteString(fracPart)
			}
			fracWritten = true
		case nfp.TokenTypePercent:
			sb.WriteString("%")
		case nfp.TokenTypeLiteral:
			sb.WriteString(token.TValue)
		case nfp.TokenTypeGeneral:
			sb.WriteString(strconv.FormatFloat(f, 'f', -1, 64))
		}
	}
	return sb.String()
}

// digits returns the integer and fraction digits of f rounded to the
// section's decimal places. Trailing fraction zeros beyond the required
// ones are dropped for "#" placeholders.
func (nf *numberFormat) digits(f float64) (string, string) {
	places := nf.fracZeros + nf.fracHashes
	text := strconv.FormatFloat(math.Abs(f), 'f', places, 64)
	intPart, fracPart, _ := strings.Cut(text, ".")
	if nf.fracHashes > 0 {
		trimmed := strings.TrimRight(fracPart, "0")
		if len(trimmed) < nf.fracZeros {
			trimmed = fracPart[:nf.fracZeros]
		}
		fracPart = trimmed
	}
	if intPart == "0" && nf.intZeros == 0 {
		intPart = ""
	}
	for len(intPart) < nf.intZeros {
		intPart = "0" + intPart
	}
	if nf.thousands {
		intPart = groupThousands(intPart)
	}
	return intPart, fracPart
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var sb strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		sb.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if sb.Len() > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(digits[i : i+3])
	}
	return sb.String()
}
