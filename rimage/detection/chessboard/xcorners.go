package chessboard

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"go.viam.com/stereocal/rimage"
)

// CornerConfiguration stores the parameters of the circular test that separates chessboard X-corners from other
// saddle-like structures.
type CornerConfiguration struct {
	RingRadius  float64 `json:"ring-radius" yaml:"ring-radius" mapstructure:"ring-radius"`    // radius of the sampling circle, in pixels
	RingSamples int     `json:"ring-samples" yaml:"ring-samples" mapstructure:"ring-samples"` // number of samples on the circle
	MinContrast float64 `json:"min-contrast" yaml:"min-contrast" mapstructure:"min-contrast"` // minimum gray level spread on the circle
	MinArc      int     `json:"min-arc" yaml:"min-arc" mapstructure:"min-arc"`                // minimum number of consecutive samples per sector
}

// DefaultCornerConf stores the default parameters for X-corner verification
var DefaultCornerConf = CornerConfiguration{
	RingRadius:  4,
	RingSamples: 32,
	MinContrast: 15,
	MinArc:      2,
}

// isXCorner samples a circle around (x, y) and checks that it crosses exactly four dark/light boundaries, which is
// the signature of two chessboard squares meeting two others at a point.
func isXCorner(img *mat.Dense, x, y float64, cfg *CornerConfiguration) bool {
	h, w := img.Dims()
	r := cfg.RingRadius
	if x-r < 0 || y-r < 0 || x+r > float64(w-1) || y+r > float64(h-1) {
		return false
	}
	n := cfg.RingSamples
	samples := make([]float64, n)
	lo, hi := math.Inf(1), math.Inf(-1)
	for k := 0; k < n; k++ {
		theta := 2 * math.Pi * float64(k) / float64(n)
		v := rimage.BilinearInterpolation(img, x+r*math.Cos(theta), y+r*math.Sin(theta))
		samples[k] = v
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if hi-lo < cfg.MinContrast {
		return false
	}
	mid := 0.5 * (lo + hi)

	// find a transition to start the run-length count from
	start := -1
	for k := 0; k < n; k++ {
		if (samples[k] > mid) != (samples[(k+n-1)%n] > mid) {
			start = k
			break
		}
	}
	if start < 0 {
		return false
	}
	transitions := 0
	run := 0
	for i := 0; i < n; i++ {
		k := (start + i) % n
		if i > 0 && (samples[k] > mid) != (samples[(k+n-1)%n] > mid) {
			if run < cfg.MinArc {
				return false
			}
			transitions++
			run = 0
		}
		run++
	}
	// closing transition back at start
	if run < cfg.MinArc {
		return false
	}
	transitions++
	return transitions == 4
}

// filterXCorners keeps the saddles passing the circular test on the smoothed image.
func filterXCorners(img *mat.Dense, saddles []Saddle, cfg *CornerConfiguration) []Saddle {
	out := make([]Saddle, 0, len(saddles))
	for _, s := range saddles {
		if isXCorner(img, s.Point.X, s.Point.Y, cfg) {
			out = append(out, s)
		}
	}
	return out
}
