package feature

import "regexp"

// FallbackColor replaces any color value that is not a 7-character
// #rrggbb string. Invalid input is never propagated to the render layer.
const FallbackColor = "#ff0000"

var hexColorExpr = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// NormalizeColor is idempotent: a valid #rrggbb value passes through
// unchanged, everything else becomes FallbackColor.
func NormalizeColor(v string) string {
	if hexColorExpr.MatchString(v) {
		return v
	}
	return FallbackColor
}
