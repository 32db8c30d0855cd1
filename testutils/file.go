package testutils

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/stereocal/rimage"
	"go.viam.com/stereocal/rimage/transform"
)

// ImageSize is the resolution of the synthetic cameras.
var ImageSize = image.Point{X: 640, Y: 480}

// NewCamera builds a 640x480 camera model and fails the test if it is invalid.
func NewCamera(tb testing.TB, fx, fy, cx, cy float64, distortion []float64) *transform.PinholeCameraModel {
	tb.Helper()
	cam, err := transform.NewPinholeCameraModel(mat.NewDense(3, 3, []float64{fx, 0, cx, 0, fy, cy, 0, 0, 1}), distortion, ImageSize)
	test.That(tb, err, test.ShouldBeNil)
	return cam
}

// CalibrationPoses returns ten varied board poses keeping a rows x cols board of the given square size in front of the
// camera and inside a 640x480 field of view at 600px focal length.
func CalibrationPoses(rows, cols int, square float64) []*transform.CamPose {
	center := r3.Vector{X: float64(cols-1) * square / 2, Y: float64(rows-1) * square / 2}
	views := []struct {
		rvec   r3.Vector
		offset r3.Vector
	}{
		{r3.Vector{}, r3.Vector{Z: 550}},
		{r3.Vector{X: 0.3}, r3.Vector{X: 30, Y: -20, Z: 560}},
		{r3.Vector{X: -0.3, Y: 0.1}, r3.Vector{X: -30, Y: 20, Z: 540}},
		{r3.Vector{Y: 0.35, Z: 0.1}, r3.Vector{X: 20, Y: 25, Z: 580}},
		{r3.Vector{Y: -0.35, Z: -0.1}, r3.Vector{X: -25, Y: -15, Z: 570}},
		{r3.Vector{X: 0.25, Y: 0.25, Z: 0.05}, r3.Vector{X: -10, Y: 10, Z: 600}},
		{r3.Vector{X: -0.2, Y: -0.3, Z: 0.2}, r3.Vector{X: 15, Y: -25, Z: 520}},
		{r3.Vector{X: 0.1, Y: -0.2, Z: -0.3}, r3.Vector{X: 35, Y: 30, Z: 590}},
		{r3.Vector{X: 0.15, Y: 0.15, Z: -0.2}, r3.Vector{X: -20, Y: 15, Z: 610}},
		{r3.Vector{X: -0.15, Y: 0.3, Z: 0.15}, r3.Vector{X: 25, Y: -10, Z: 575}},
	}
	poses := make([]*transform.CamPose, 0, len(views))
	for _, v := range views {
		rot := transform.RotationVectorToMatrix(v.rvec)
		t := v.offset.Sub(transform.RotateVector(rot, center))
		poses = append(poses, &transform.CamPose{Rotation: rot, Translation: t})
	}
	return poses
}

// MkdirAll creates each directory and its parents.
func MkdirAll(tb testing.TB, dirs ...string) {
	tb.Helper()
	for _, d := range dirs {
		test.That(tb, os.MkdirAll(d, 0o750), test.ShouldBeNil)
	}
}

// WriteImage saves img as dir/name and returns its path.
func WriteImage(tb testing.TB, dir, name string, img image.Image) string {
	tb.Helper()
	path := filepath.Join(dir, name)
	test.That(tb, rimage.WriteImageToFile(path, img), test.ShouldBeNil)
	return path
}

// WriteScenes renders each scene to dir as <prefix><index>.png.
func WriteScenes(tb testing.TB, dir, prefix string, scenes []BoardScene) []string {
	tb.Helper()
	paths := make([]string, 0, len(scenes))
	for i, s := range scenes {
		paths = append(paths, WriteImage(tb, dir, fmt.Sprintf("%s%02d.png", prefix, i), RenderCheckerboard(s)))
	}
	return paths
}
