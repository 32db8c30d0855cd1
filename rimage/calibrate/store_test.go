package calibrate

import (
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/pkg/errors"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/stereocal/rimage/transform"
)

var denseComparer = cmp.Comparer(func(a, b *mat.Dense) bool {
	if a == nil || b == nil {
		return a == b
	}
	return mat.Equal(a, b)
})

// unsavedFields are only known right after a calibration.
var unsavedFields = cmp.Options{
	cmpopts.IgnoreFields(MonoCalibration{}, "Poses", "PerViewErrors"),
	cmpopts.IgnoreFields(StereoCalibration{}, "PerViewErrors", "EpipolarError"),
}

func sampleStereo() *StereoCalibration {
	rig := transform.NewCamPose(r3.Vector{X: 0.01, Y: -0.02, Z: 0.003}, r3.Vector{X: -5.2, Y: 0.1, Z: 0.07})
	calib := &StereoCalibration{
		ImageSize:     image.Point{X: 64, Y: 48},
		Left:          NewCameraIntrinsics(61.3, 60.9, 31.7, 24.2, []float64{-0.11, 0.021, 0.0013, -0.0007, 0.0001}),
		Right:         NewCameraIntrinsics(62.1, 61.8, 32.4, 23.6, []float64{-0.09, 0.013, -0.0002, 0.0004, 0}),
		PerViewErrors: [][2]float64{{0.1, 0.2}},
		RMS:           0.1234567890123,
		EpipolarError: 0.05,
	}
	calib.Extrinsics.R = rig.Rotation
	calib.Extrinsics.T = rig.Translation
	calib.Extrinsics.E = transform.EssentialMatrix(rig.Rotation, rig.Translation)
	var err error
	calib.Extrinsics.F, err = transform.FundamentalFromEssential(calib.Extrinsics.E, calib.Left.Matrix, calib.Right.Matrix)
	if err != nil {
		panic(err)
	}
	return calib
}

func sampleRectified(t *testing.T) *RectifiedStereoCalibration {
	t.Helper()
	calib := sampleStereo()
	camL, camR, err := calib.Models()
	test.That(t, err, test.ShouldBeNil)
	maps, err := transform.PlanRectification(camL, camR, calib.ImageSize, calib.Extrinsics.R, calib.Extrinsics.T,
		transform.DefaultRectifyOptions)
	test.That(t, err, test.ShouldBeNil)
	return &RectifiedStereoCalibration{StereoCalibration: calib, Maps: maps}
}

func TestStoreMonoRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mono.yml")
	want := &MonoCalibration{
		ImageSize:     image.Point{X: 640, Y: 480},
		Intrinsics:    NewCameraIntrinsics(601.123456789, 604.5, 321.25, 238.75, []float64{-0.12, 0.03, 5e-4, -3e-4, 1e-7}),
		PerViewErrors: []float64{0.1},
		RMS:           0.187,
	}
	test.That(t, SaveMono(path, want), test.ShouldBeNil)

	got, err := LoadMono(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cmp.Diff(want, got, denseComparer, unsavedFields), test.ShouldBeEmpty)

	res, err := Load(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Kind(), test.ShouldEqual, MonoKind)
	test.That(t, res.Size(), test.ShouldResemble, want.ImageSize)
	test.That(t, res.Residual(), test.ShouldEqual, want.RMS)

	// saving what was loaded gives the same file
	first, err := os.ReadFile(path)
	test.That(t, err, test.ShouldBeNil)
	again := filepath.Join(t.TempDir(), "again.yml")
	test.That(t, SaveMono(again, got), test.ShouldBeNil)
	second, err := os.ReadFile(again)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(second), test.ShouldEqual, string(first))
}

func TestStoreMonoWithoutSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mono.yml")
	doc := `K:
  rows: 3
  cols: 3
  dt: d
  data: [600, 0, 320, 0, 600, 240, 0, 0, 1]
D:
  rows: 1
  cols: 4
  dt: d
  data: [-0.1, 0.01, 0, 0]
RMS: 0.3
`
	test.That(t, os.WriteFile(path, []byte(doc), 0o600), test.ShouldBeNil)
	got, err := LoadMono(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got.ImageSize, test.ShouldResemble, image.Point{})
	test.That(t, got.Intrinsics.Distortion, test.ShouldResemble, []float64{-0.1, 0.01, 0, 0, 0})
	test.That(t, got.Intrinsics.Matrix.At(1, 2), test.ShouldEqual, 240.)
	test.That(t, got.RMS, test.ShouldEqual, 0.3)
}

func TestStoreStereoRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stereo.yml")
	want := sampleStereo()
	test.That(t, SaveStereo(path, want), test.ShouldBeNil)

	got, err := LoadStereo(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cmp.Diff(want, got, denseComparer, unsavedFields), test.ShouldBeEmpty)

	res, err := Load(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Kind(), test.ShouldEqual, StereoKind)

	// a stereo file holds no mono camera
	_, err = LoadMono(path)
	test.That(t, errors.Is(err, ErrMalformedParameterFile), test.ShouldBeTrue)
	_, err = LoadRectified(path)
	test.That(t, errors.Is(err, ErrMalformedParameterFile), test.ShouldBeTrue)
}

func TestStoreRectifiedRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rectified.yml")
	want := sampleRectified(t)
	test.That(t, SaveRectified(path, want), test.ShouldBeNil)

	got, err := LoadRectified(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cmp.Diff(want, got, denseComparer, unsavedFields), test.ShouldBeEmpty)
	test.That(t, got.Maps.Left.SourceSize, test.ShouldResemble, want.ImageSize)

	res, err := Load(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Kind(), test.ShouldEqual, RectifiedKind)
	test.That(t, res.Residual(), test.ShouldEqual, want.RMS)

	// the rectified file still reads as a stereo calibration
	stereo, err := LoadStereo(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cmp.Diff(want.StereoCalibration, stereo, denseComparer, unsavedFields), test.ShouldBeEmpty)

	first, err := os.ReadFile(path)
	test.That(t, err, test.ShouldBeNil)
	again := filepath.Join(dir, "again.yml")
	test.That(t, SaveRectified(again, got), test.ShouldBeNil)
	second, err := os.ReadFile(again)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(second), test.ShouldEqual, string(first))

	test.That(t, SaveRectified(again, &RectifiedStereoCalibration{StereoCalibration: want.StereoCalibration}),
		test.ShouldNotBeNil)
}

func TestStoreMalformed(t *testing.T) {
	dir := t.TempDir()
	write := func(name, doc string) string {
		path := filepath.Join(dir, name)
		test.That(t, os.WriteFile(path, []byte(doc), 0o600), test.ShouldBeNil)
		return path
	}

	_, err := Load(write("empty.yml", "{}\n"))
	test.That(t, errors.Is(err, ErrMalformedParameterFile), test.ShouldBeTrue)

	_, err = Load(write("garbage.yml", "K: [unclosed\n"))
	test.That(t, errors.Is(err, ErrMalformedParameterFile), test.ShouldBeTrue)

	_, err = LoadMono(write("shape.yml", "K: {rows: 2, cols: 2, dt: d, data: [1, 0, 0, 1]}\nD: {rows: 1, cols: 5, dt: d, data: [0, 0, 0, 0, 0]}\n"))
	test.That(t, errors.Is(err, ErrMalformedParameterFile), test.ShouldBeTrue)

	_, err = LoadMono(write("count.yml", "K: {rows: 3, cols: 3, dt: d, data: [1, 0, 0, 1]}\nD: {rows: 1, cols: 5, dt: d, data: [0, 0, 0, 0, 0]}\n"))
	test.That(t, errors.Is(err, ErrMalformedParameterFile), test.ShouldBeTrue)

	_, err = LoadMono(write("nodist.yml", "K: {rows: 3, cols: 3, dt: d, data: [1, 0, 0, 0, 1, 0, 0, 0, 1]}\n"))
	test.That(t, errors.Is(err, ErrMalformedParameterFile), test.ShouldBeTrue)

	_, err = LoadMono(filepath.Join(dir, "missing.yml"))
	test.That(t, err, test.ShouldNotBeNil)

	// a failed save leaves no file behind
	bad := &MonoCalibration{Intrinsics: CameraIntrinsics{}}
	path := filepath.Join(dir, "bad.yml")
	test.That(t, SaveMono(path, bad), test.ShouldNotBeNil)
	_, err = os.Stat(path)
	test.That(t, os.IsNotExist(err), test.ShouldBeTrue)
}
