package chessboard

import (
	"image"
	"math"

	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/stereocal/rimage"
	"go.viam.com/stereocal/utils"
)

// SubPixelConfiguration stores the window and stopping criteria of the corner refinement
type SubPixelConfiguration struct {
	HalfWindow    int     `json:"half-window" yaml:"half-window" mapstructure:"half-window"`
	MaxIterations int     `json:"max-iterations" yaml:"max-iterations" mapstructure:"max-iterations"`
	Epsilon       float64 `json:"epsilon" yaml:"epsilon" mapstructure:"epsilon"`
}

// DefaultSubPixelConf stores the default refinement parameters
var DefaultSubPixelConf = SubPixelConfiguration{
	HalfWindow:    5,
	MaxIterations: 30,
	Epsilon:       0.001,
}

// CornerSubPix refines corner positions on a gray image. See RefineCorners.
func CornerSubPix(gray *image.Gray, corners []r2.Point, cfg SubPixelConfiguration) []r2.Point {
	return RefineCorners(rimage.GrayToFloat(gray), corners, cfg)
}

// RefineCorners moves each corner to the point q minimizing sum over the window of (g(p)·(q-p))², g being the image
// gradient at p: at a true corner every gradient is orthogonal to the vector joining it to the corner. Corners
// wandering further than the half window from their start keep their initial position.
func RefineCorners(img *mat.Dense, corners []r2.Point, cfg SubPixelConfiguration) []r2.Point {
	win := cfg.HalfWindow
	if win < 1 {
		out := make([]r2.Point, len(corners))
		copy(out, corners)
		return out
	}
	side := 2*win + 1
	weights := make([]float64, side*side)
	for j := 0; j < side; j++ {
		y := float64(j-win) / float64(win)
		for i := 0; i < side; i++ {
			x := float64(i-win) / float64(win)
			weights[j*side+i] = math.Exp(-x*x) * math.Exp(-y*y)
		}
	}
	h, w := img.Dims()
	eps2 := cfg.Epsilon * cfg.Epsilon
	maxIter := utils.MaxInt(cfg.MaxIterations, 1)

	out := make([]r2.Point, len(corners))
	utils.ParallelForEachRow(len(corners), func(k int) {
		start := corners[k]
		c := start
		for iter := 0; iter < maxIter; iter++ {
			var a, b, cc, bb1, bb2 float64
			for j := 0; j < side; j++ {
				py := c.Y + float64(j-win)
				for i := 0; i < side; i++ {
					px := c.X + float64(i-win)
					gx := 0.5 * (rimage.BilinearInterpolation(img, px+1, py) - rimage.BilinearInterpolation(img, px-1, py))
					gy := 0.5 * (rimage.BilinearInterpolation(img, px, py+1) - rimage.BilinearInterpolation(img, px, py-1))
					m := weights[j*side+i]
					gxx, gxy, gyy := gx*gx*m, gx*gy*m, gy*gy*m
					a += gxx
					b += gxy
					cc += gyy
					bb1 += gxx*px + gxy*py
					bb2 += gxy*px + gyy*py
				}
			}
			det := a*cc - b*b
			if math.Abs(det) <= 1e-12 {
				break
			}
			next := r2.Point{X: (cc*bb1 - b*bb2) / det, Y: (a*bb2 - b*bb1) / det}
			move := next.Sub(c)
			c = next
			if c.X < 0 || c.X >= float64(w) || c.Y < 0 || c.Y >= float64(h) || move.Dot(move) <= eps2 {
				break
			}
		}
		if math.Abs(c.X-start.X) > float64(win) || math.Abs(c.Y-start.Y) > float64(win) || !utils.IsFinite(c.X, c.Y) {
			c = start
		}
		out[k] = c
	})
	return out
}
