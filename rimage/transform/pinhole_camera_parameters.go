package transform

import (
	"image"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ErrNoIntrinsics is when a camera does not have intrinsics parameters or other parameters.
var ErrNoIntrinsics = errors.New("camera intrinsic parameters are not available")

// NewNoIntrinsicsError is used when the intriniscs are not defined.
func NewNoIntrinsicsError(msg string) error {
	return errors.Wrap(ErrNoIntrinsics, msg)
}

func newNoIntrinsicsErrorf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrNoIntrinsics, format, args...)
}

// PinholeCameraModel is the model of a pinhole camera.
type PinholeCameraModel struct {
	*PinholeCameraIntrinsics `json:"intrinsic_parameters"`
	Distortion               Distorter `json:"distortion"`
}

// NewPinholeCameraModel builds a model from a 3x3 camera matrix, Brown-Conrady coefficients
// (k1, k2, p1, p2, k3) and the image size.
func NewPinholeCameraModel(k mat.Matrix, distortion []float64, size image.Point) (*PinholeCameraModel, error) {
	intrinsics, err := NewPinholeCameraIntrinsicsFromMatrix(k, size)
	if err != nil {
		return nil, err
	}
	bc, err := NewBrownConrady(distortion)
	if err != nil {
		return nil, err
	}
	return &PinholeCameraModel{PinholeCameraIntrinsics: intrinsics, Distortion: bc}, nil
}

// DistortionMap is a function that transforms the undistorted input points (u,v) to the distorted points (x,y)
// according to the model in PinholeCameraModel.Distortion.
func (params *PinholeCameraModel) DistortionMap() func(u, v float64) (float64, float64) {
	return func(u, v float64) (float64, float64) {
		x := (u - params.Ppx) / params.Fx
		y := (v - params.Ppy) / params.Fy
		x, y = params.distort(x, y)
		x = x*params.Fx + params.Ppx
		y = y*params.Fy + params.Ppy
		return x, y
	}
}

func (params *PinholeCameraModel) distort(x, y float64) (float64, float64) {
	if params.Distortion == nil {
		return x, y
	}
	return params.Distortion.Transform(x, y)
}

// Project maps a point in the camera frame to distorted pixel coordinates.
func (params *PinholeCameraModel) Project(p r3.Vector) r2.Point {
	x, y := params.distort(p.X/p.Z, p.Y/p.Z)
	return r2.Point{X: params.Fx*x + params.Ppx, Y: params.Fy*y + params.Ppy}
}

// ProjectPoints moves object points into the camera frame with pose and projects them.
func (params *PinholeCameraModel) ProjectPoints(objectPoints []r3.Vector, pose *CamPose) []r2.Point {
	out := make([]r2.Point, len(objectPoints))
	for i, p := range objectPoints {
		out[i] = params.Project(pose.Transform(p))
	}
	return out
}

// UndistortPoint returns the undistorted normalized coordinates of a distorted pixel.
func (params *PinholeCameraModel) UndistortPoint(px r2.Point) r2.Point {
	x := (px.X - params.Ppx) / params.Fx
	y := (px.Y - params.Ppy) / params.Fy
	if u, ok := params.Distortion.(Undistorter); ok {
		x, y = u.Undistort(x, y)
	}
	return r2.Point{X: x, Y: y}
}

// UndistortPoints undistorts pixels, optionally rotates the normalized rays by rect and projects
// them with the left 3x3 block of proj. A nil rect is the identity, a nil proj returns
// normalized coordinates.
func (params *PinholeCameraModel) UndistortPoints(pts []r2.Point, rect, proj mat.Matrix) []r2.Point {
	out := make([]r2.Point, len(pts))
	for i, px := range pts {
		n := params.UndistortPoint(px)
		ray := r3.Vector{X: n.X, Y: n.Y, Z: 1}
		if rect != nil {
			ray = RotateVector(rect, ray)
		}
		if proj != nil {
			ray = RotateVector(proj, ray)
		}
		out[i] = r2.Point{X: ray.X / ray.Z, Y: ray.Y / ray.Z}
	}
	return out
}

// DistortionCoefficients returns k1, k2, p1, p2, k3 (zeros without a distortion model).
func (params *PinholeCameraModel) DistortionCoefficients() []float64 {
	if params.Distortion == nil {
		return make([]float64, 5)
	}
	return params.Distortion.Parameters()
}

// PinholeCameraIntrinsics holds the parameters necessary to do a perspective projection of a 3D scene to the 2D plane.
type PinholeCameraIntrinsics struct {
	Width  int     `json:"width_px"`
	Height int     `json:"height_px"`
	Fx     float64 `json:"fx"`
	Fy     float64 `json:"fy"`
	Ppx    float64 `json:"ppx"`
	Ppy    float64 `json:"ppy"`
}

// NewPinholeCameraIntrinsicsFromMatrix reads fx, fy, ppx and ppy from a 3x3 camera matrix.
func NewPinholeCameraIntrinsicsFromMatrix(k mat.Matrix, size image.Point) (*PinholeCameraIntrinsics, error) {
	if k == nil {
		return nil, NewNoIntrinsicsError("camera matrix is nil")
	}
	if r, c := k.Dims(); r != 3 || c != 3 {
		return nil, newNoIntrinsicsErrorf("camera matrix must be 3x3, got %dx%d", r, c)
	}
	intrinsics := &PinholeCameraIntrinsics{
		Width:  size.X,
		Height: size.Y,
		Fx:     k.At(0, 0),
		Fy:     k.At(1, 1),
		Ppx:    k.At(0, 2),
		Ppy:    k.At(1, 2),
	}
	if err := intrinsics.CheckValid(); err != nil {
		return nil, err
	}
	return intrinsics, nil
}

// CheckValid checks if the fields for PinholeCameraIntrinsics have valid inputs.
func (params *PinholeCameraIntrinsics) CheckValid() error {
	if params == nil {
		return NewNoIntrinsicsError("Intrinsics do not exist")
	}
	if params.Width <= 0 || params.Height <= 0 {
		return newNoIntrinsicsErrorf("Invalid size (%#v, %#v)", params.Width, params.Height)
	}
	if params.Fx <= 0 {
		return newNoIntrinsicsErrorf("Invalid focal length Fx = %#v", params.Fx)
	}
	if params.Fy <= 0 {
		return newNoIntrinsicsErrorf("Invalid focal length Fy = %#v", params.Fy)
	}
	if params.Ppx < 0 {
		return newNoIntrinsicsErrorf("Invalid principal X point Ppx = %#v", params.Ppx)
	}
	if params.Ppy < 0 {
		return newNoIntrinsicsErrorf("Invalid principal Y point Ppy = %#v", params.Ppy)
	}
	return nil
}

// Size returns the image size as a point (width, height).
func (params *PinholeCameraIntrinsics) Size() image.Point {
	return image.Point{X: params.Width, Y: params.Height}
}

// GetCameraMatrix creates a new camera matrix and returns it.
// Camera matrix:
// [[fx 0 ppx],
//
//	[0 fy ppy],
//	[0 0  1]]
func (params *PinholeCameraIntrinsics) GetCameraMatrix() *mat.Dense {
	if params == nil {
		return nil
	}
	cameraMatrix := mat.NewDense(3, 3, nil)
	cameraMatrix.Set(0, 0, params.Fx)
	cameraMatrix.Set(1, 1, params.Fy)
	cameraMatrix.Set(0, 2, params.Ppx)
	cameraMatrix.Set(1, 2, params.Ppy)
	cameraMatrix.Set(2, 2, 1)
	return cameraMatrix
}
