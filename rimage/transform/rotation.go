package transform

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ErrDegenerateGeometry is returned when a geometric estimate is numerically singular.
var ErrDegenerateGeometry = errors.New("degenerate geometry")

// NewDegenerateGeometryError wraps ErrDegenerateGeometry with the failing step.
func NewDegenerateGeometryError(msg string) error {
	return errors.Wrap(ErrDegenerateGeometry, msg)
}

// RotationVectorToMatrix converts an axis-angle rotation vector (angle = norm, in radians)
// to a 3x3 rotation matrix with the Rodrigues formula.
func RotationVectorToMatrix(rvec r3.Vector) *mat.Dense {
	theta := rvec.Norm()
	if theta < 1e-15 {
		return eye(3)
	}
	k := rvec.Mul(1 / theta)
	c, s := math.Cos(theta), math.Sin(theta)
	c1 := 1 - c
	return mat.NewDense(3, 3, []float64{
		c + c1*k.X*k.X, c1*k.X*k.Y - s*k.Z, c1*k.X*k.Z + s*k.Y,
		c1*k.Y*k.X + s*k.Z, c + c1*k.Y*k.Y, c1*k.Y*k.Z - s*k.X,
		c1*k.Z*k.X - s*k.Y, c1*k.Z*k.Y + s*k.X, c + c1*k.Z*k.Z,
	})
}

// RotationMatrixToVector converts a rotation matrix to its axis-angle vector. The input is
// projected onto the closest rotation first, so slightly non-orthogonal matrices are accepted.
func RotationMatrixToVector(rot mat.Matrix) (r3.Vector, error) {
	r, err := NearestRotation(rot)
	if err != nil {
		return r3.Vector{}, err
	}
	rx := r.At(2, 1) - r.At(1, 2)
	ry := r.At(0, 2) - r.At(2, 0)
	rz := r.At(1, 0) - r.At(0, 1)

	s := math.Sqrt((rx*rx + ry*ry + rz*rz) * 0.25)
	c := (r.At(0, 0) + r.At(1, 1) + r.At(2, 2) - 1) * 0.5
	c = math.Max(-1, math.Min(1, c))
	theta := math.Acos(c)

	if s >= 1e-5 {
		return r3.Vector{X: rx, Y: ry, Z: rz}.Mul(theta / (2 * s)), nil
	}
	if c > 0 {
		return r3.Vector{}, nil
	}

	// theta close to pi: recover the axis from the diagonal.
	ax := math.Sqrt(math.Max((r.At(0, 0)+1)*0.5, 0))
	ay := math.Sqrt(math.Max((r.At(1, 1)+1)*0.5, 0))
	if r.At(0, 1) < 0 {
		ay = -ay
	}
	az := math.Sqrt(math.Max((r.At(2, 2)+1)*0.5, 0))
	if r.At(0, 2) < 0 {
		az = -az
	}
	if math.Abs(ax) < math.Abs(ay) && math.Abs(ax) < math.Abs(az) && (r.At(1, 2) > 0) != (ay*az > 0) {
		az = -az
	}
	axis := r3.Vector{X: ax, Y: ay, Z: az}
	return axis.Mul(theta / axis.Norm()), nil
}

// NearestRotation returns the rotation matrix closest to m in the Frobenius sense.
func NearestRotation(m mat.Matrix) (*mat.Dense, error) {
	if r, c := m.Dims(); r != 3 || c != 3 {
		return nil, errors.Errorf("expected a 3x3 matrix, got %dx%d", r, c)
	}
	var svd mat.SVD
	if ok := svd.Factorize(m, mat.SVDFull); !ok {
		return nil, NewDegenerateGeometryError("rotation svd failed")
	}
	var u, v, rot mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	rot.Mul(&u, v.T())
	if mat.Det(&rot) < 0 {
		for i := 0; i < 3; i++ {
			u.Set(i, 2, -u.At(i, 2))
		}
		rot.Mul(&u, v.T())
	}
	return &rot, nil
}

// RotateVector returns rot * v.
func RotateVector(rot mat.Matrix, v r3.Vector) r3.Vector {
	return r3.Vector{
		X: rot.At(0, 0)*v.X + rot.At(0, 1)*v.Y + rot.At(0, 2)*v.Z,
		Y: rot.At(1, 0)*v.X + rot.At(1, 1)*v.Y + rot.At(1, 2)*v.Z,
		Z: rot.At(2, 0)*v.X + rot.At(2, 1)*v.Y + rot.At(2, 2)*v.Z,
	}
}

// IsRotation reports whether m is orthonormal with determinant +1 within tol.
func IsRotation(m mat.Matrix, tol float64) bool {
	if r, c := m.Dims(); r != 3 || c != 3 {
		return false
	}
	var mtm mat.Dense
	mtm.Mul(m.T(), m)
	if !mat.EqualApprox(&mtm, eye(3), tol) {
		return false
	}
	return math.Abs(mat.Det(m)-1) <= tol
}
