package transform

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// CamPose is the rigid transform taking points from a world (or board) frame into the camera
// frame: p_cam = Rotation * p + Translation.
type CamPose struct {
	Rotation    *mat.Dense
	Translation r3.Vector
}

// NewCamPose creates a pose from a rotation vector and a translation.
func NewCamPose(rvec, t r3.Vector) *CamPose {
	return &CamPose{Rotation: RotationVectorToMatrix(rvec), Translation: t}
}

// NewCamPoseFromMat creates a pose from a 3x4 [R|t] matrix.
func NewCamPoseFromMat(pose mat.Matrix) (*CamPose, error) {
	if r, c := pose.Dims(); r != 3 || c != 4 {
		return nil, errors.Errorf("pose matrix must be 3x4, got %dx%d", r, c)
	}
	rot := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			rot.Set(i, j, pose.At(i, j))
		}
	}
	t := r3.Vector{X: pose.At(0, 3), Y: pose.At(1, 3), Z: pose.At(2, 3)}
	return &CamPose{Rotation: rot, Translation: t}, nil
}

// RotationVector returns the axis-angle form of the rotation.
func (cp *CamPose) RotationVector() (r3.Vector, error) {
	return RotationMatrixToVector(cp.Rotation)
}

// Transform maps p into the camera frame.
func (cp *CamPose) Transform(p r3.Vector) r3.Vector {
	return RotateVector(cp.Rotation, p).Add(cp.Translation)
}

// Compose returns the pose "other after cp": p -> other(cp(p)).
func (cp *CamPose) Compose(other *CamPose) *CamPose {
	var rot mat.Dense
	rot.Mul(other.Rotation, cp.Rotation)
	return &CamPose{Rotation: &rot, Translation: other.Transform(cp.Translation)}
}

// Inverse returns the inverse rigid transform.
func (cp *CamPose) Inverse() *CamPose {
	rt := mat.DenseCopyOf(cp.Rotation.T())
	t := RotateVector(rt, cp.Translation).Mul(-1)
	return &CamPose{Rotation: rt, Translation: t}
}

// RelativePose returns the pose of camera b relative to camera a given both poses of the same
// frame: R = Rb * Ra^T, T = tb - R * ta.
func RelativePose(a, b *CamPose) *CamPose {
	var rot mat.Dense
	rot.Mul(b.Rotation, a.Rotation.T())
	return &CamPose{Rotation: &rot, Translation: b.Translation.Sub(RotateVector(&rot, a.Translation))}
}

// EstimatePlanarPose recovers the pose of a planar target (all object points at Z = 0) from its
// undistorted normalized image coordinates. The target is placed in front of the camera.
func EstimatePlanarPose(objectPoints []r3.Vector, normalized []r2.Point) (*CamPose, error) {
	if len(objectPoints) != len(normalized) {
		return nil, errors.Errorf("point sets differ in length: %d != %d", len(objectPoints), len(normalized))
	}
	planar := make([]r2.Point, len(objectPoints))
	for i, p := range objectPoints {
		if p.Z != 0 {
			return nil, errors.Errorf("object point %d is not on the Z=0 plane", i)
		}
		planar[i] = r2.Point{X: p.X, Y: p.Y}
	}
	h, err := EstimateHomography(planar, normalized)
	if err != nil {
		return nil, err
	}
	return PoseFromPlanarHomography(h)
}

// PoseFromPlanarHomography decomposes a homography from target plane coordinates to normalized
// image coordinates into a rotation and translation.
func PoseFromPlanarHomography(h *Homography) (*CamPose, error) {
	c1, c2, c3 := h.Column(0), h.Column(1), h.Column(2)
	h1 := r3.Vector{X: c1[0], Y: c1[1], Z: c1[2]}
	h2 := r3.Vector{X: c2[0], Y: c2[1], Z: c2[2]}
	h3 := r3.Vector{X: c3[0], Y: c3[1], Z: c3[2]}

	n := h1.Norm() + h2.Norm()
	if n < 1e-12 {
		return nil, NewDegenerateGeometryError("homography has null rotation columns")
	}
	lambda := 2 / n
	r1, r2v, t := h1.Mul(lambda), h2.Mul(lambda), h3.Mul(lambda)
	if t.Z < 0 {
		r1, r2v, t = r1.Mul(-1), r2v.Mul(-1), t.Mul(-1)
	}
	r3v := r1.Cross(r2v)
	approx := mat.NewDense(3, 3, []float64{
		r1.X, r2v.X, r3v.X,
		r1.Y, r2v.Y, r3v.Y,
		r1.Z, r2v.Z, r3v.Z,
	})
	rot, err := NearestRotation(approx)
	if err != nil {
		return nil, err
	}
	return &CamPose{Rotation: rot, Translation: t}, nil
}

// getCrossProductMatFromPoint returns the cross product with point p matrix.
func getCrossProductMatFromPoint(p r3.Vector) *mat.Dense {
	cross := mat.NewDense(3, 3, nil)
	cross.Set(0, 1, -p.Z)
	cross.Set(0, 2, p.Y)
	cross.Set(1, 0, p.Z)
	cross.Set(1, 2, -p.X)
	cross.Set(2, 0, -p.Y)
	cross.Set(2, 1, p.X)
	return cross
}
