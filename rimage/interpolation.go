package rimage

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// BilinearInterpolation samples m at the sub-pixel position (x, y), x being the column. Positions
// outside the matrix are clamped to the nearest border value.
func BilinearInterpolation(m *mat.Dense, x, y float64) float64 {
	h, w := m.Dims()
	x = math.Max(0, math.Min(x, float64(w-1)))
	y = math.Max(0, math.Min(y, float64(h-1)))
	x0, y0 := int(math.Floor(x)), int(math.Floor(y))
	x1, y1 := x0+1, y0+1
	if x1 >= w {
		x1 = w - 1
	}
	if y1 >= h {
		y1 = h - 1
	}
	fx, fy := x-float64(x0), y-float64(y0)
	top := m.At(y0, x0)*(1-fx) + m.At(y0, x1)*fx
	bottom := m.At(y1, x0)*(1-fx) + m.At(y1, x1)*fx
	return top*(1-fy) + bottom*fy
}
