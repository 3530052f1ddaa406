// Package utils contains small helpers shared across pickplace packages.
package utils

import "math"

// DegToRad converts degrees to radians.
func DegToRad(degrees float64) float64 {
	return degrees * math.Pi / 180
}

// Clamp limits x to the closed interval [lo, hi].
func Clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}

// IsFinite reports whether every value is neither NaN nor infinite.
func IsFinite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// ScaleOrDefault returns 1 for a zero scaling factor, otherwise the factor itself.
func ScaleOrDefault(factor float64) float64 {
	if factor == 0 {
		return 1
	}
	return factor
}
