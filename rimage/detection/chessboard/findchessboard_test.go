package chessboard

import (
	"image"
	"image/color"
	"image/draw"
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/stereocal/rimage"
	"go.viam.com/stereocal/rimage/transform"
	"go.viam.com/stereocal/testutils"
)

const (
	boardRows   = 6
	boardCols   = 9
	boardSquare = 25.
)

func frontoScene(t *testing.T) testutils.BoardScene {
	t.Helper()
	return testutils.BoardScene{
		Rows: boardRows, Cols: boardCols, SquareSize: boardSquare, Margin: 1,
		Camera: testutils.NewCamera(t, 600, 600, 320, 240, nil),
		Pose:   testutils.CalibrationPoses(boardRows, boardCols, boardSquare)[0],
	}
}

func maxDistance(got, want []r2.Point) float64 {
	worst := 0.
	for i := range want {
		worst = math.Max(worst, got[i].Sub(want[i]).Norm())
	}
	return worst
}

func TestFindCornersFronto(t *testing.T) {
	scene := frontoScene(t)
	img := testutils.RenderCheckerboard(scene)
	corners, err := FindCorners(img, boardRows, boardCols, DefaultDetectionConfiguration)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(corners), test.ShouldEqual, boardRows*boardCols)

	truth := scene.Corners()
	test.That(t, maxDistance(corners, truth), test.ShouldBeLessThan, 0.1)
	// first corner top-left, second one to its right, next row below
	test.That(t, corners[1].X, test.ShouldBeGreaterThan, corners[0].X)
	test.That(t, corners[boardCols].Y, test.ShouldBeGreaterThan, corners[0].Y)
}

func TestFindCornersPosesWithDistortion(t *testing.T) {
	cam := testutils.NewCamera(t, 600, 605, 322, 238, []float64{-0.12, 0.03, 0.0005, -0.0003, 0})
	for i, pose := range testutils.CalibrationPoses(boardRows, boardCols, boardSquare) {
		scene := testutils.BoardScene{
			Rows: boardRows, Cols: boardCols, SquareSize: boardSquare, Margin: 1,
			Camera: cam, Pose: pose, Noise: 2, Seed: int64(i),
		}
		corners, err := FindCorners(testutils.RenderCheckerboard(scene), boardRows, boardCols, DefaultDetectionConfiguration)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, maxDistance(corners, scene.Corners()), test.ShouldBeLessThan, 0.3)
	}
}

func TestFindCornersUpsideDown(t *testing.T) {
	scene := frontoScene(t)
	center := r3.Vector{X: float64(boardCols-1) * boardSquare / 2, Y: float64(boardRows-1) * boardSquare / 2}
	rot := transform.RotationVectorToMatrix(r3.Vector{Z: math.Pi})
	scene.Pose = &transform.CamPose{Rotation: rot, Translation: r3.Vector{Z: 560}.Sub(transform.RotateVector(rot, center))}

	corners, err := FindCorners(testutils.RenderCheckerboard(scene), boardRows, boardCols, DefaultDetectionConfiguration)
	test.That(t, err, test.ShouldBeNil)
	truth := scene.Corners()
	// the board origin is now bottom-right, the output still starts top-left
	reversed := make([]r2.Point, len(truth))
	for i, p := range truth {
		reversed[len(truth)-1-i] = p
	}
	test.That(t, maxDistance(corners, reversed), test.ShouldBeLessThan, 0.1)
}

func TestFindCornersTransposedPattern(t *testing.T) {
	scene := frontoScene(t)
	truth := scene.Corners()
	corners, err := FindCorners(testutils.RenderCheckerboard(scene), boardCols, boardRows, DefaultDetectionConfiguration)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(corners), test.ShouldEqual, boardRows*boardCols)
	// six corner columns run downwards, rows are taken right to left
	test.That(t, corners[0].Sub(truth[boardCols-1]).Norm(), test.ShouldBeLessThan, 0.1)
	test.That(t, corners[1].Sub(truth[2*boardCols-1]).Norm(), test.ShouldBeLessThan, 0.1)
	test.That(t, corners[boardRows].Sub(truth[boardCols-2]).Norm(), test.ShouldBeLessThan, 0.1)
}

func TestFindCornersSquarePattern(t *testing.T) {
	center := r3.Vector{X: 2 * boardSquare, Y: 2 * boardSquare}
	rot := transform.RotationVectorToMatrix(r3.Vector{X: 0.1, Z: 0.3})
	scene := testutils.BoardScene{
		Rows: 5, Cols: 5, SquareSize: boardSquare, Margin: 1,
		Camera: testutils.NewCamera(t, 600, 600, 320, 240, nil),
		Pose:   &transform.CamPose{Rotation: rot, Translation: r3.Vector{Z: 500}.Sub(transform.RotateVector(rot, center))},
	}
	corners, err := FindCorners(testutils.RenderCheckerboard(scene), 5, 5, DefaultDetectionConfiguration)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, maxDistance(corners, scene.Corners()), test.ShouldBeLessThan, 0.1)
}

func TestFindCornersNotFound(t *testing.T) {
	blank := image.NewGray(image.Rect(0, 0, 320, 240))
	draw.Draw(blank, blank.Bounds(), &image.Uniform{color.Gray{128}}, image.Point{}, draw.Src)
	_, err := FindCorners(blank, boardRows, boardCols, DefaultDetectionConfiguration)
	test.That(t, errors.Is(err, ErrNotFound), test.ShouldBeTrue)

	scene := frontoScene(t)
	img := testutils.RenderCheckerboard(scene)

	// a smaller pattern than the board in view
	_, err = FindCorners(img, 5, 7, DefaultDetectionConfiguration)
	test.That(t, errors.Is(err, ErrNotFound), test.ShouldBeTrue)
	// a larger one
	_, err = FindCorners(img, 7, 10, DefaultDetectionConfiguration)
	test.That(t, errors.Is(err, ErrNotFound), test.ShouldBeTrue)

	// partially hidden board
	truth := scene.Corners()
	hidden := image.Rect(int(truth[boardCols-3].X), 0, 640, 480)
	draw.Draw(img, hidden, &image.Uniform{color.Gray{testutils.BackgroundLevel}}, image.Point{}, draw.Src)
	_, err = FindCorners(img, boardRows, boardCols, DefaultDetectionConfiguration)
	test.That(t, errors.Is(err, ErrNotFound), test.ShouldBeTrue)

	_, err = FindCorners(img, 1, boardCols, DefaultDetectionConfiguration)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, errors.Is(err, ErrNotFound), test.ShouldBeFalse)
}

func TestXCornerVerification(t *testing.T) {
	scene := frontoScene(t)
	blurred := rimage.GaussianBlurFloat64(rimage.GrayToFloat(testutils.RenderCheckerboard(scene)), DefaultSaddleConf.BlurSigma)
	cfg := DefaultCornerConf

	truth := scene.Corners()
	for _, p := range []r2.Point{truth[0], truth[20], truth[len(truth)-1]} {
		test.That(t, isXCorner(blurred, p.X, p.Y, &cfg), test.ShouldBeTrue)
	}
	// outer corner of the first dark square: only one dark quadrant
	outer := scene.Camera.ProjectPoints([]r3.Vector{{X: -boardSquare, Y: -boardSquare}}, scene.Pose)[0]
	test.That(t, isXCorner(blurred, outer.X, outer.Y, &cfg), test.ShouldBeFalse)
	// middle of a square and the image border
	mid := truth[0].Add(truth[boardCols+1]).Mul(0.5)
	test.That(t, isXCorner(blurred, mid.X, mid.Y, &cfg), test.ShouldBeFalse)
	test.That(t, isXCorner(blurred, 1, 1, &cfg), test.ShouldBeFalse)
}

func TestCornerSubPix(t *testing.T) {
	scene := frontoScene(t)
	img := testutils.RenderCheckerboard(scene)
	truth := scene.Corners()

	start := make([]r2.Point, len(truth))
	for i, p := range truth {
		start[i] = p.Add(r2.Point{X: 1.5, Y: -1.2})
	}
	refined := CornerSubPix(img, start, DefaultSubPixelConf)
	test.That(t, maxDistance(refined, truth), test.ShouldBeLessThan, 0.1)
	// input untouched
	test.That(t, start[0], test.ShouldResemble, truth[0].Add(r2.Point{X: 1.5, Y: -1.2}))

	// nothing to converge to in a flat area
	flat := image.NewGray(image.Rect(0, 0, 64, 64))
	pts := CornerSubPix(flat, []r2.Point{{X: 30.3, Y: 31.7}}, DefaultSubPixelConf)
	test.That(t, pts[0], test.ShouldResemble, r2.Point{X: 30.3, Y: 31.7})
}
