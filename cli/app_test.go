package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.viam.com/stereocal/rimage/calibrate"
	"go.viam.com/stereocal/rimage/transform"
	"go.viam.com/stereocal/testutils"
)

const boardRows, boardCols, boardSquare = 6, 9, 25.0

func writeBoards(t *testing.T, dir, prefix string, right bool) {
	t.Helper()
	cam := testutils.NewCamera(t, 600, 605, 322, 238, []float64{-0.12, 0.03, 0.0005, -0.0003, 0})
	rig := transform.NewCamPose(r3.Vector{X: 0.005, Y: 0.012, Z: -0.004}, r3.Vector{X: -45, Y: 0.6, Z: 1.1})
	var scenes []testutils.BoardScene
	for i, pose := range testutils.CalibrationPoses(boardRows, boardCols, boardSquare) {
		if right {
			pose = pose.Compose(rig)
		}
		scenes = append(scenes, testutils.BoardScene{
			Rows: boardRows, Cols: boardCols, SquareSize: boardSquare, Margin: 1,
			Camera: cam, Pose: pose, Noise: 1, Seed: int64(i),
		})
	}
	testutils.WriteScenes(t, dir, prefix, scenes)
}

func writeCLIConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yml")
	test.That(t, os.WriteFile(path, []byte("detection:\n  subpixel:\n    half-window: 5\n"), 0o600), test.ShouldBeNil)
	return path
}

func run(args ...string) (string, string, error) {
	var out, errOut bytes.Buffer
	err := NewApp(&out, &errOut).Run(append([]string{"stereocal"}, args...))
	return out.String(), errOut.String(), err
}

func patternArgs() []string {
	return []string{"--width", "9", "--height", "6", "--square-size", "25"}
}

func TestMonoCommand(t *testing.T) {
	work := t.TempDir()
	images := filepath.Join(work, "CalibDataMono")
	testutils.MkdirAll(t, images)
	writeBoards(t, images, "", false)
	save := filepath.Join(work, "monoCalibParam.yml")

	args := append([]string{"--config", writeCLIConfig(t, work), "mono", "--image-dir", images, "--save-file", save},
		patternArgs()...)
	out, logs, err := run(args...)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "RMS")
	test.That(t, out, test.ShouldContainSubstring, "00.png")
	test.That(t, out, test.ShouldContainSubstring, "saved to "+save)
	test.That(t, logs, test.ShouldContainSubstring, "calibrating camera")
	test.That(t, logs, test.ShouldNotContainSubstring, "DEBUG")

	calib, err := calibrate.LoadMono(save)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, calib.Intrinsics.Matrix.At(0, 0), test.ShouldAlmostEqual, 600, 3)
	test.That(t, calib.ImageSize, test.ShouldResemble, testutils.ImageSize)

	out, _, err = run(append([]string{"--config", writeCLIConfig(t, work), "mono", "--image-dir", images, "--save-file", ""},
		patternArgs()...)...)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "RMS")
	test.That(t, out, test.ShouldNotContainSubstring, "saved to")

	_, _, err = run("mono", "--image-dir", images, "--image-format", "jpg", "--save-file", filepath.Join(work, "other.yml"))
	test.That(t, err, test.ShouldNotBeNil)
	_, err = os.Stat(filepath.Join(work, "other.yml"))
	test.That(t, os.IsNotExist(err), test.ShouldBeTrue)

	_, _, err = run("mono", "--image-dir", images, "--width", "1")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestStereoAndRectifyCommands(t *testing.T) {
	work := t.TempDir()
	dirL, dirR := filepath.Join(work, "left"), filepath.Join(work, "right")
	testutils.MkdirAll(t, dirL, dirR)
	writeBoards(t, dirL, "l", false)
	writeBoards(t, dirR, "r", true)
	cfg := writeCLIConfig(t, work)
	save := filepath.Join(work, "stereoCalibParam.yml")
	saveL, saveR := filepath.Join(work, "stereoCalibParamL.yml"), filepath.Join(work, "stereoCalibParamR.yml")

	args := append([]string{
		"--config", cfg, "--debug", "stereo",
		"--dir-l", dirL, "--dir-r", dirR, "--prefix-l", "l", "--prefix-r", "r",
		"--save-file", save, "--save-file-l", saveL, "--save-file-r", saveR,
	}, patternArgs()...)
	out, logs, err := run(args...)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "baseline")
	test.That(t, out, test.ShouldContainSubstring, "epipolar error")
	test.That(t, logs, test.ShouldContainSubstring, "DEBUG")
	for _, path := range []string{save, saveL, saveR} {
		_, err := os.Stat(path)
		test.That(t, err, test.ShouldBeNil)
	}

	// only one parameter file
	_, _, err = run(append([]string{
		"--config", cfg, "stereo", "--dir-l", dirL, "--dir-r", dirR, "--param-l", saveL,
		"--save-file", filepath.Join(work, "unused.yml"),
	}, patternArgs()...)...)
	test.That(t, err, test.ShouldNotBeNil)

	outDir := filepath.Join(work, "RectifyDataStereo")
	rectified := filepath.Join(work, "RectifyStereoCalibParam.yml")
	out, _, err = run("rectify", "--dir-l", dirL, "--dir-r", dirR, "--load-file", save, "--save-file", rectified,
		"--output-dir", outDir)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "ROI left")
	res, err := calibrate.Load(rectified)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Kind(), test.ShouldEqual, calibrate.RectifiedKind)
	written, err := os.ReadDir(filepath.Join(outDir, "left"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(written), test.ShouldEqual, len(testutils.CalibrationPoses(boardRows, boardCols, boardSquare)))

	_, _, err = run("rectify", "--dir-l", dirL, "--dir-r", dirR, "--load-file", saveL, "--output-dir", "")
	test.That(t, err, test.ShouldNotBeNil)

	_, _, err = run("rectify", "--pairing", "sometimes", "--load-file", save)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, strings.Contains(err.Error(), "sometimes"), test.ShouldBeTrue)
}

func TestSummarize(t *testing.T) {
	s, err := summarize([]float64{0.1, 0.4, 0.2, 0.3})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, s.Mean, test.ShouldAlmostEqual, 0.25)
	test.That(t, s.Median, test.ShouldAlmostEqual, 0.25)
	test.That(t, s.Max, test.ShouldEqual, 0.4)
	test.That(t, s.String(), test.ShouldEqual, "mean 0.2500, median 0.2500, max 0.4000")

	_, err = summarize(nil)
	test.That(t, err, test.ShouldNotBeNil)
}
