// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package cfengine

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/image/colornames"
)

// rgbColor is an opaque 24-bit color.
type rgbColor struct {
	r, g, b uint8
}

// parseColor accepts "#RRGGBB", "RRGGBB", "#AARRGGBB" (alpha ignored) and
// CSS color names such as "red" or "lightgreen".
func parseColor(value string) (rgbColor, error) {
	s := strings.TrimSpace(value)
	if named, ok := colornames.Map[strings.ToLower(s)]; ok {
		return rgbColor{r: named.R, g: named.G, b: named.B}, nil
	}
	s = strings.TrimPrefix(s, "#")
	if len(s) == 8 {
		s = s[2:]
	}
	if len(s) != 6 {
		return rgbColor{}, newColorValueError(value)
	}
	n, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return rgbColor{}, newColorValueError(value)
	}
	return rgbColor{r: uint8(n >> 16), g: uint8(n >> 8), b: uint8(n)}, nil
}

// String returns the color as "#RRGGBB".
func (c rgbColor) String() string {
	return fmt.Sprintf("#%02X%02X%02X", c.r, c.g, c.b)
}

// lerp linearly interpolates each channel from c to o; t is clamped to
// [0, 1].
func (c rgbColor) lerp(o rgbColor, t float64) rgbColor {
	t = math.Max(0, math.Min(1, t))
	channel := func(a, b uint8) uint8 {
		return uint8(math.Round(float64(a) + (float64(b)-float64(a))*t))
	}
	return rgbColor{r: channel(c.r, o.r), g: channel(c.g, o.g), b: channel(c.b, o.b)}
}

// normalizeColor returns value in "#RRGGBB" form, or value unchanged when
// it cannot be parsed.
func normalizeColor(value string) string {
	c, err := parseColor(value)
	if err != nil {
		return value
	}
	return c.String()
}
