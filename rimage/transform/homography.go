package transform

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Homography is a 3x3 matrix (represented as a 2D array) used to transform points of one plane
// to another plane. Indices are [row][column].
type Homography [3][3]float64

// NewHomography copies a 3x3 matrix into a Homography.
func NewHomography(m mat.Matrix) (*Homography, error) {
	if r, c := m.Dims(); r != 3 || c != 3 {
		return nil, errors.Errorf("homography must be 3x3, got %dx%d", r, c)
	}
	var h Homography
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			h[i][j] = m.At(i, j)
		}
	}
	return &h, nil
}

// At returns the value at the given row and column.
func (h *Homography) At(row, col int) float64 {
	return h[row][col]
}

// Apply maps a point through the homography.
func (h *Homography) Apply(pt r2.Point) r2.Point {
	x := h.At(0, 0)*pt.X + h.At(0, 1)*pt.Y + h.At(0, 2)
	y := h.At(1, 0)*pt.X + h.At(1, 1)*pt.Y + h.At(1, 2)
	z := h.At(2, 0)*pt.X + h.At(2, 1)*pt.Y + h.At(2, 2)
	return r2.Point{X: x / z, Y: y / z}
}

// Matrix returns the homography as a dense matrix.
func (h *Homography) Matrix() *mat.Dense {
	m := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			m.Set(i, j, h[i][j])
		}
	}
	return m
}

// Column returns column j as a 3-vector.
func (h *Homography) Column(j int) [3]float64 {
	return [3]float64{h[0][j], h[1][j], h[2][j]}
}

// Inverse returns the inverse mapping.
func (h *Homography) Inverse() (*Homography, error) {
	var inv mat.Dense
	if err := inv.Inverse(h.Matrix()); err != nil {
		return nil, NewDegenerateGeometryError("homography is not invertible")
	}
	return NewHomography(&inv)
}

// EstimateHomography computes the homography taking src points to dst points with the
// normalized direct linear transform. At least 4 correspondences are needed and they must not
// be (close to) collinear.
func EstimateHomography(src, dst []r2.Point) (*Homography, error) {
	if len(src) != len(dst) {
		return nil, errors.Errorf("point sets differ in length: %d != %d", len(src), len(dst))
	}
	if len(src) < 4 {
		return nil, errors.Errorf("homography needs at least 4 points, got %d", len(src))
	}
	srcN, t1, ok := normalizePointsChecked(src)
	if !ok {
		return nil, NewDegenerateGeometryError("source points are coincident")
	}
	dstN, t2, ok := normalizePointsChecked(dst)
	if !ok {
		return nil, NewDegenerateGeometryError("destination points are coincident")
	}

	a := mat.NewDense(2*len(src), 9, nil)
	for i := range srcN {
		x, y := srcN[i].X, srcN[i].Y
		u, v := dstN[i].X, dstN[i].Y
		a.SetRow(2*i, []float64{-x, -y, -1, 0, 0, 0, u * x, u * y, u})
		a.SetRow(2*i+1, []float64{0, 0, 0, -x, -y, -1, v * x, v * y, v})
	}

	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDFull); !ok {
		return nil, NewDegenerateGeometryError("homography svd failed")
	}
	values := svd.Values(nil)
	// The solution is the null vector; a second (near) null vector means the points do not
	// constrain the mapping.
	if values[7] < 1e-10*values[0] {
		return nil, NewDegenerateGeometryError("points are collinear")
	}
	var v mat.Dense
	svd.VTo(&v)
	hn := mat.NewDense(3, 3, nil)
	for k := 0; k < 9; k++ {
		hn.Set(k/3, k%3, v.At(k, 8))
	}

	// H = T2^-1 * Hn * T1
	var t2Inv, hm mat.Dense
	if err := t2Inv.Inverse(t2); err != nil {
		return nil, NewDegenerateGeometryError("normalization is singular")
	}
	hm.Mul(&t2Inv, hn)
	hm.Mul(&hm, t1)

	if s := hm.At(2, 2); math.Abs(s) > 1e-12 {
		hm.Scale(1/s, &hm)
	} else {
		hm.Scale(1/mat.Norm(&hm, 2), &hm)
	}
	return NewHomography(&hm)
}

// normalizePointsChecked is normalizePoints that also reports whether the points have any spread.
func normalizePointsChecked(pts []r2.Point) ([]r2.Point, *mat.Dense, bool) {
	out, t := normalizePoints(pts)
	scale := t.At(0, 0)
	return out, t, !math.IsInf(scale, 0) && !math.IsNaN(scale)
}
