package calibrate

import (
	"image"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/stereocal/rimage/transform"
	"go.viam.com/stereocal/utils"
)

// viewHomographies fits the board-plane to image homography of each view.
func viewHomographies(obs ObservationSet) ([]*transform.Homography, error) {
	hs := make([]*transform.Homography, len(obs))
	for i, c := range obs {
		for _, p := range c.ReferencePoints {
			if p.Z != 0 {
				return nil, NewDegenerateGeometryError("view %d: reference points must lie on the plane Z = 0", i)
			}
		}
		h, err := transform.EstimateHomography(c.ReferencePoints.planar(), c.ImagePoints)
		if err != nil {
			return nil, errors.Wrapf(err, "view %d", i)
		}
		hs[i] = h
	}
	return hs, nil
}

// zhangFocalLengths estimates fx and fy from the homographies, the principal point being known. Each view gives two
// linear constraints on (1/fx², 1/fy²): its first two columns are orthogonal, and so are their sum and difference
// (equal norms). A positive aspect (fx/fy) ties both focal lengths afterwards.
func zhangFocalLengths(hs []*transform.Homography, cx, cy, aspect float64) (float64, float64, error) {
	a := mat.NewDense(2*len(hs), 2, nil)
	b := mat.NewVecDense(2*len(hs), nil)
	for i, hom := range hs {
		var h, v [3]float64
		c0, c1 := hom.Column(0), hom.Column(1)
		// move the principal point to the origin
		h[0], h[1], h[2] = c0[0]-cx*c0[2], c0[1]-cy*c0[2], c0[2]
		v[0], v[1], v[2] = c1[0]-cx*c1[2], c1[1]-cy*c1[2], c1[2]
		var d1, d2 [3]float64
		for j := 0; j < 3; j++ {
			d1[j] = (h[j] + v[j]) / 2
			d2[j] = (h[j] - v[j]) / 2
		}
		normalize3(&h)
		normalize3(&v)
		normalize3(&d1)
		normalize3(&d2)
		a.Set(2*i, 0, h[0]*v[0])
		a.Set(2*i, 1, h[1]*v[1])
		b.SetVec(2*i, -h[2]*v[2])
		a.Set(2*i+1, 0, d1[0]*d2[0])
		a.Set(2*i+1, 1, d1[1]*d2[1])
		b.SetVec(2*i+1, -d1[2]*d2[2])
	}

	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDNone); !ok {
		return 0, 0, NewDegenerateGeometryError("focal length system cannot be factorized")
	}
	sv := svd.Values(nil)
	if sv[0] == 0 || sv[1] <= 1e-10*sv[0] {
		return 0, 0, NewDegenerateGeometryError("views do not constrain the focal lengths, tilt the board between views")
	}
	var f mat.VecDense
	if err := f.SolveVec(a, b); err != nil {
		return 0, 0, NewDegenerateGeometryError("focal length system: %v", err)
	}
	fx := math.Sqrt(math.Abs(1 / f.AtVec(0)))
	fy := math.Sqrt(math.Abs(1 / f.AtVec(1)))
	if !utils.IsFinite(fx, fy) || fx <= 0 || fy <= 0 {
		return 0, 0, NewDegenerateGeometryError("invalid focal lengths %v, %v", fx, fy)
	}
	if aspect > 0 {
		tf := (fx + fy) / (aspect + 1)
		fx, fy = aspect*tf, tf
	}
	return fx, fy, nil
}

func normalize3(v *[3]float64) {
	n := math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
	if n == 0 {
		return
	}
	for i := range v {
		v[i] /= n
	}
}

// initialIntrinsics computes a pinhole camera without distortion from the views. The principal point sits at the
// image center unless guess is given.
func initialIntrinsics(obs ObservationSet, size image.Point, guess *CameraIntrinsics, aspect float64) (CameraIntrinsics, error) {
	cx, cy := float64(size.X-1)/2, float64(size.Y-1)/2
	if guess != nil {
		cx, cy = guess.Matrix.At(0, 2), guess.Matrix.At(1, 2)
	}
	hs, err := viewHomographies(obs)
	if err != nil {
		return CameraIntrinsics{}, err
	}
	fx, fy, err := zhangFocalLengths(hs, cx, cy, aspect)
	if err != nil {
		return CameraIntrinsics{}, err
	}
	return NewCameraIntrinsics(fx, fy, cx, cy, nil), nil
}

// initialPoses estimates the board pose of each view for a known camera.
func initialPoses(obs ObservationSet, intr CameraIntrinsics, size image.Point) ([]*transform.CamPose, error) {
	cam, err := intr.Model(size)
	if err != nil {
		return nil, err
	}
	poses := make([]*transform.CamPose, len(obs))
	for i, c := range obs {
		normalized := cam.UndistortPoints(c.ImagePoints, nil, nil)
		pose, err := transform.EstimatePlanarPose(c.ReferencePoints, normalized)
		if err != nil {
			return nil, errors.Wrapf(err, "view %d", i)
		}
		poses[i] = pose
	}
	return poses, nil
}

// projectWith projects a board point seen from pose (rot, t) with the intrinsics vector fx, fy, cx, cy, k1, k2, p1,
// p2, k3.
func projectWith(intr []float64, rot *mat.Dense, t, p r3.Vector) r2.Point {
	c := transform.RotateVector(rot, p).Add(t)
	bc := transform.BrownConrady{
		RadialK1: intr[4], RadialK2: intr[5], TangentialP1: intr[6], TangentialP2: intr[7], RadialK3: intr[8],
	}
	x, y := bc.Transform(c.X/c.Z, c.Y/c.Z)
	return r2.Point{X: intr[0]*x + intr[2], Y: intr[1]*y + intr[3]}
}
