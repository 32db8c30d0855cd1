package transform

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// EssentialMatrix returns E = [T]x R for a camera pair where a point X in the first camera frame
// is R*X + T in the second.
func EssentialMatrix(rot mat.Matrix, t r3.Vector) *mat.Dense {
	var e mat.Dense
	e.Mul(getCrossProductMatFromPoint(t), rot)
	return &e
}

// FundamentalFromEssential returns F = K2^-T E K1^-1, scaled so that F[2][2] = 1 when that entry
// is not zero.
func FundamentalFromEssential(e, k1, k2 mat.Matrix) (*mat.Dense, error) {
	var k1Inv, k2Inv mat.Dense
	if err := k1Inv.Inverse(k1); err != nil {
		return nil, NewDegenerateGeometryError("first camera matrix is singular")
	}
	if err := k2Inv.Inverse(k2); err != nil {
		return nil, NewDegenerateGeometryError("second camera matrix is singular")
	}
	var f mat.Dense
	f.Mul(k2Inv.T(), e)
	f.Mul(&f, &k1Inv)
	if s := f.At(2, 2); math.Abs(s) > 1e-15 {
		f.Scale(1/s, &f)
	}
	return &f, nil
}

// GetEssentialMatrixFromFundamental returns the essential matrix from the fundamental matrix and intrinsics parameters.
func GetEssentialMatrixFromFundamental(k1, k2, f *mat.Dense) (*mat.Dense, error) {
	var essMat mat.Dense
	essMat.Mul(transposeDense(k2), f)
	essMat.Mul(&essMat, k1)
	// enforce rank 2
	mats, err := performSVD(&essMat)
	if err != nil {
		return nil, err
	}
	S := eye(3)
	S.Set(2, 2, 0)

	essMat.Mul(mats.U, S)
	essMat.Mul(&essMat, mats.VT)
	return &essMat, nil
}

// DecomposeEssentialMatrix decomposes the Essential matrix into 2 possible 3D rotations and a
// unit 3D translation (up to sign).
func DecomposeEssentialMatrix(essMat *mat.Dense) (*mat.Dense, *mat.Dense, r3.Vector, error) {
	mats, err := performSVD(essMat)
	if err != nil {
		return nil, nil, r3.Vector{}, err
	}
	// check determinant sign of U and V
	if mat.Det(mats.U) < 0 {
		mats.U.Scale(-1, mats.U)
	}
	if mat.Det(mats.VT) < 0 {
		mats.VT.Scale(-1, mats.VT)
	}
	W := mat.NewDense(3, 3, nil)
	W.Set(0, 1, -1)
	W.Set(1, 0, 1)
	W.Set(2, 2, 1)
	var R1, R2 mat.Dense
	// UWV^T
	R1.Mul(mats.U, W)
	R1.Mul(&R1, mats.VT)
	// UW^TV^T
	R2.Mul(mats.U, W.T())
	R2.Mul(&R2, mats.VT)
	t := r3.Vector{X: mats.U.At(0, 2), Y: mats.U.At(1, 2), Z: mats.U.At(2, 2)}
	return &R1, &R2, t, nil
}

// EpipolarDistance returns the distance in pixels of p2 to the epipolar line F*p1.
func EpipolarDistance(f mat.Matrix, p1, p2 r2.Point) float64 {
	a := f.At(0, 0)*p1.X + f.At(0, 1)*p1.Y + f.At(0, 2)
	b := f.At(1, 0)*p1.X + f.At(1, 1)*p1.Y + f.At(1, 2)
	c := f.At(2, 0)*p1.X + f.At(2, 1)*p1.Y + f.At(2, 2)
	n := math.Hypot(a, b)
	if n == 0 {
		return math.Inf(1)
	}
	return math.Abs(a*p2.X+b*p2.Y+c) / n
}

// SymmetricEpipolarDistance averages the distance of p2 to F*p1 and of p1 to F^T*p2.
func SymmetricEpipolarDistance(f mat.Matrix, p1, p2 r2.Point) float64 {
	return (EpipolarDistance(f, p1, p2) + EpipolarDistance(f.T(), p2, p1)) / 2
}

// ComputeFundamentalMatrixAllPoints compute the fundamental matrix from all points with the
// normalized 8-point algorithm.
func ComputeFundamentalMatrixAllPoints(pts1, pts2 []r2.Point, normalize bool) (*mat.Dense, error) {
	if len(pts1) != len(pts2) {
		return nil, errors.New("sets of points pts1 and pts2 must have the same number of elements")
	}
	if len(pts1) < 8 {
		return nil, errors.New("sets of points must have at least 8 elements")
	}
	nPoints := len(pts1)

	var points1, points2 []r2.Point
	var T1, T2 *mat.Dense

	if normalize {
		points1, T1 = normalizePoints(pts1)
		points2, T2 = normalizePoints(pts2)
	} else {
		points1 = make([]r2.Point, nPoints)
		copy(points1, pts1)
		points2 = make([]r2.Point, nPoints)
		copy(points2, pts2)
		T1 = eye(3)
		T2 = eye(3)
	}

	m := mat.NewDense(nPoints, 9, nil)
	for i := range points1 {
		v1 := points1[i]
		v2 := points2[i]
		m.SetRow(i, []float64{
			v2.X * v1.X, v2.X * v1.Y, v2.X,
			v2.Y * v1.X, v2.Y * v1.Y, v2.Y,
			v1.X, v1.Y, 1,
		})
	}

	mats1, err := performSVD(m)
	if err != nil {
		return nil, err
	}
	lastColV := mats1.V.ColView(8)
	lastColVdata := make([]float64, 9)
	for i := range lastColVdata {
		lastColVdata[i] = lastColV.AtVec(i)
	}
	F := mat.NewDense(3, 3, lastColVdata)

	// enforce rank 2 of F
	mats2, err := performSVD(F)
	if err != nil {
		return nil, err
	}
	S := mats2.S
	S.Set(2, 2, 0)
	F.Mul(mats2.U, S)
	F.Mul(F, mats2.VT)

	// rescale F: T2^T @ F @ T1
	F.Mul(T2.T(), F)
	F.Mul(F, T1)
	if s := F.At(2, 2); math.Abs(s) > 1e-15 {
		F.Scale(1/s, F)
	}
	return F, nil
}

// normalizePoints normalizes points as described in Multiple View Geometry, Alg 11.1.
func normalizePoints(pts []r2.Point) ([]r2.Point, *mat.Dense) {
	nPoints := len(pts)
	mu := r2.Point{X: 0, Y: 0}
	for _, pt := range pts {
		mu = mu.Add(pt)
	}
	mu = mu.Mul(1. / float64(nPoints))
	// compute scale factor
	d := 0.0
	for _, pt := range pts {
		d += pt.Sub(mu).Norm() / float64(nPoints)
	}
	scale := math.Sqrt(2) / d
	T := mat.NewDense(3, 3, []float64{
		scale, 0, -scale * mu.X,
		0, scale, -scale * mu.Y,
		0, 0, 1,
	})
	pointsTransformed := make([]r2.Point, nPoints)
	for i := range pointsTransformed {
		pointsTransformed[i] = pts[i].Sub(mu).Mul(scale)
	}
	return pointsTransformed, T
}

// mat.Dense utils.
func transposeDense(m *mat.Dense) *mat.Dense {
	nRows, nCols := m.Dims()
	m2 := mat.NewDense(nCols, nRows, nil)
	m2.Copy(m.T())
	return m2
}

// eye create an identity matrix of size nxn.
func eye(n int) *mat.Dense {
	if n <= 0 {
		return nil
	}
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}

// matsSVD stores the matrices from SVD decomposition.
type matsSVD struct {
	U  *mat.Dense
	V  *mat.Dense
	VT *mat.Dense
	S  *mat.Dense
}

// performSVD performs SVD on inputMatrix and returns matrices U, Sigma and V from the decomposition.
func performSVD(inputMatrix *mat.Dense) (*matsSVD, error) {
	var svd mat.SVD
	if ok := svd.Factorize(inputMatrix, mat.SVDFull); !ok {
		return nil, NewDegenerateGeometryError("svd failed")
	}

	u, v, sigma, vt := &mat.Dense{}, &mat.Dense{}, &mat.Dense{}, &mat.Dense{}
	svd.UTo(u)
	svd.VTo(v)
	vt.CloneFrom(v.T())

	singularValues := svd.Values(nil)
	sigma.CloneFrom(mat.NewDiagDense(len(singularValues), singularValues))
	return &matsSVD{u, v, vt, sigma}, nil
}
