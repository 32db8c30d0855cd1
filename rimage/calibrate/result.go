package calibrate

import (
	"image"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/stereocal/rimage/transform"
)

// ResultKind tells the calibration result variants apart.
type ResultKind string

// The calibration result variants.
const (
	MonoKind      ResultKind = "mono"
	StereoKind    ResultKind = "stereo"
	RectifiedKind ResultKind = "rectified"
)

// CalibrationResult is implemented by *MonoCalibration, *StereoCalibration and *RectifiedStereoCalibration.
type CalibrationResult interface {
	Kind() ResultKind
	// Residual is the RMS reprojection error in pixels.
	Residual() float64
	// Size is the image size the result applies to, zero when unknown.
	Size() image.Point
}

// CameraIntrinsics is a 3x3 camera matrix with Brown-Conrady coefficients k1, k2, p1, p2, k3.
type CameraIntrinsics struct {
	Matrix     *mat.Dense
	Distortion []float64
}

// NewCameraIntrinsics builds intrinsics from focal lengths, principal point and up to five distortion coefficients.
func NewCameraIntrinsics(fx, fy, cx, cy float64, distortion []float64) CameraIntrinsics {
	d := make([]float64, numDistortion)
	copy(d, distortion)
	return CameraIntrinsics{
		Matrix:     mat.NewDense(3, 3, []float64{fx, 0, cx, 0, fy, cy, 0, 0, 1}),
		Distortion: d,
	}
}

// CameraIntrinsicsFromModel extracts the intrinsics of a camera model.
func CameraIntrinsicsFromModel(m *transform.PinholeCameraModel) CameraIntrinsics {
	return NewCameraIntrinsics(m.Fx, m.Fy, m.Ppx, m.Ppy, m.DistortionCoefficients())
}

// CheckValid checks the matrix is 3x3 with positive focal lengths and there are five coefficients.
func (c CameraIntrinsics) CheckValid() error {
	if c.Matrix == nil {
		return transform.NewNoIntrinsicsError("missing camera matrix")
	}
	if r, cols := c.Matrix.Dims(); r != 3 || cols != 3 {
		return errors.Errorf("camera matrix must be 3x3, got %dx%d", r, cols)
	}
	if len(c.Distortion) != numDistortion {
		return errors.Errorf("expected %d distortion coefficients, got %d", numDistortion, len(c.Distortion))
	}
	if !(c.Matrix.At(0, 0) > 0) || !(c.Matrix.At(1, 1) > 0) {
		return NewDegenerateGeometryError("focal lengths must be positive, got %v, %v", c.Matrix.At(0, 0), c.Matrix.At(1, 1))
	}
	return nil
}

// Model returns the camera model for images of the given size.
func (c CameraIntrinsics) Model(size image.Point) (*transform.PinholeCameraModel, error) {
	if err := c.CheckValid(); err != nil {
		return nil, err
	}
	return transform.NewPinholeCameraModel(c.Matrix, c.Distortion, size)
}

// vector lays the intrinsics out as fx, fy, cx, cy, k1, k2, p1, p2, k3.
func (c CameraIntrinsics) vector() []float64 {
	v := []float64{c.Matrix.At(0, 0), c.Matrix.At(1, 1), c.Matrix.At(0, 2), c.Matrix.At(1, 2)}
	return append(v, c.Distortion...)
}

func intrinsicsFromVector(v []float64) CameraIntrinsics {
	return NewCameraIntrinsics(v[0], v[1], v[2], v[3], v[4:numIntrinsics])
}

// StereoExtrinsics maps left camera coordinates into the right camera: p_r = R p_l + T. E and F are the essential and
// fundamental matrices of the rig, F being normalized so that F[2][2] = 1.
type StereoExtrinsics struct {
	R *mat.Dense
	T r3.Vector
	E *mat.Dense
	F *mat.Dense
}

// MonoCalibration is the result of a single camera calibration. Poses and PerViewErrors are only known right after
// a calibration, not when loaded from a file.
type MonoCalibration struct {
	ImageSize     image.Point
	Intrinsics    CameraIntrinsics
	Poses         []*transform.CamPose
	PerViewErrors []float64
	RMS           float64
}

// Kind returns MonoKind.
func (m *MonoCalibration) Kind() ResultKind { return MonoKind }

// Residual returns the RMS reprojection error.
func (m *MonoCalibration) Residual() float64 { return m.RMS }

// Size returns the image size.
func (m *MonoCalibration) Size() image.Point { return m.ImageSize }

// StereoCalibration is the result of a stereo rig calibration. PerViewErrors holds the left and right RMS error of
// each pair, EpipolarError the mean distance of the corners to their epipolar lines.
type StereoCalibration struct {
	ImageSize     image.Point
	Left          CameraIntrinsics
	Right         CameraIntrinsics
	Extrinsics    StereoExtrinsics
	PerViewErrors [][2]float64
	RMS           float64
	EpipolarError float64
}

// Kind returns StereoKind.
func (s *StereoCalibration) Kind() ResultKind { return StereoKind }

// Residual returns the RMS reprojection error over both cameras.
func (s *StereoCalibration) Residual() float64 { return s.RMS }

// Size returns the common image size.
func (s *StereoCalibration) Size() image.Point { return s.ImageSize }

// Models returns the left and right camera models.
func (s *StereoCalibration) Models() (*transform.PinholeCameraModel, *transform.PinholeCameraModel, error) {
	left, err := s.Left.Model(s.ImageSize)
	if err != nil {
		return nil, nil, errors.Wrap(err, "left camera")
	}
	right, err := s.Right.Model(s.ImageSize)
	if err != nil {
		return nil, nil, errors.Wrap(err, "right camera")
	}
	return left, right, nil
}

// RectifiedStereoCalibration is a stereo calibration with its rectification transforms and remap tables.
type RectifiedStereoCalibration struct {
	*StereoCalibration
	Maps *transform.RectificationMaps
}

// Kind returns RectifiedKind.
func (r *RectifiedStereoCalibration) Kind() ResultKind { return RectifiedKind }
