package theme

import (
	"math"
	"strconv"
	"strings"
)

// Text colors returned by PickReadableTextColor.
const (
	DarkText  = "#111827"
	LightText = "#ffffff"
)

// luminanceThreshold splits backgrounds into bright (dark text) and dark (light text).
const luminanceThreshold = 0.5

// PickReadableTextColor returns a text color that stays readable on the given
// background. Input is a 3- or 6-digit hex color with an optional leading '#'.
// Unparseable input is treated as a bright background, so the result is DarkText.
func PickReadableTextColor(background string) string {
	l, ok := RelativeLuminance(background)
	if !ok || l > luminanceThreshold {
		return DarkText
	}
	return LightText
}

// RelativeLuminance returns the WCAG relative luminance of a hex color.
// ok is false when the color cannot be parsed.
func RelativeLuminance(hex string) (l float64, ok bool) {
	r, g, b, ok := parseHex(hex)
	if !ok {
		return 0, false
	}
	return 0.2126*linearize(r) + 0.7152*linearize(g) + 0.0722*linearize(b), true
}

// ContrastRatio returns the WCAG contrast ratio between two hex colors, in [1, 21].
// Unparseable colors count as white.
func ContrastRatio(a, b string) float64 {
	la, ok := RelativeLuminance(a)
	if !ok {
		la = 1
	}
	lb, ok := RelativeLuminance(b)
	if !ok {
		lb = 1
	}
	if la < lb {
		la, lb = lb, la
	}
	return (la + 0.05) / (lb + 0.05)
}

// IsHexColor reports whether s parses as a 3- or 6-digit hex color.
func IsHexColor(s string) bool {
	_, _, _, ok := parseHex(s)
	return ok
}

// linearize converts an 8-bit sRGB channel to linear light.
func linearize(c uint8) float64 {
	v := float64(c) / 255
	if v <= 0.03928 {
		return v / 12.92
	}
	return math.Pow((v+0.055)/1.055, 2.4)
}

func parseHex(s string) (r, g, b uint8, ok bool) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	switch len(s) {
	case 3:
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	case 6:
	default:
		return 0, 0, 0, false
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, 0, 0, false
	}
	return uint8(v >> 16), uint8(v >> 8), uint8(v), true
}
