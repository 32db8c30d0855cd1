package utils

import (
	"math"
	"sort"
)

// DegToRad converts degrees to radians.
func DegToRad(degrees float64) float64 {
	return degrees * math.Pi / 180
}

// RadToDeg converts radians to degrees.
func RadToDeg(radians float64) float64 {
	return radians * 180 / math.Pi
}

// Median returns the middle element of values, sorting them in place. The upper middle element
// is returned for even lengths.
func Median(values ...float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sort.Float64s(values)

	return values[int(math.Floor(float64(len(values))/2))]
}

// MaxInt returns the larger of a and b.
func MaxInt(a, b int) int {
	if a < b {
		return b
	}
	return a
}

// MinInt returns the smaller of a and b.
func MinInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// ClampF64 restricts n to [low, high].
func ClampF64(n, low, high float64) float64 {
	if n < low {
		return low
	}
	if n > high {
		return high
	}
	return n
}

// IsFinite is false for NaN and infinite values.
func IsFinite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
