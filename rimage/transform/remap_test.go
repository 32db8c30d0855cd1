package transform

import (
	"image"
	"image/color"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"
)

func patternGray(size image.Point) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, size.X, size.Y))
	for y := 0; y < size.Y; y++ {
		for x := 0; x < size.X; x++ {
			img.SetGray(x, y, color.Gray{uint8((x*7 + y*13) % 251)})
		}
	}
	return img
}

func TestRemapIdentity(t *testing.T) {
	size := image.Point{X: 40, Y: 30}
	cam, err := NewPinholeCameraModel(mat.NewDense(3, 3, []float64{50, 0, 20, 0, 50, 15, 0, 0, 1}), nil, size)
	test.That(t, err, test.ShouldBeNil)
	table, err := InitUndistortRectifyMap(cam, nil, nil, size)
	test.That(t, err, test.ShouldBeNil)
	x, y := table.At(17, 9)
	test.That(t, x, test.ShouldAlmostEqual, 17, 1e-4)
	test.That(t, y, test.ShouldAlmostEqual, 9, 1e-4)

	src := patternGray(size)
	out, err := Remap(src, table)
	test.That(t, err, test.ShouldBeNil)
	gray, ok := out.(*image.Gray)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, gray.Pix, test.ShouldResemble, src.Pix)

	rgba := image.NewRGBA(image.Rect(0, 0, size.X, size.Y))
	for yy := 0; yy < size.Y; yy++ {
		for xx := 0; xx < size.X; xx++ {
			rgba.Set(xx, yy, color.RGBA{uint8(xx * 5), uint8(yy * 7), 99, 255})
		}
	}
	out, err = Remap(rgba, table)
	test.That(t, err, test.ShouldBeNil)
	nrgba, ok := out.(*image.NRGBA)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, nrgba.NRGBAAt(11, 4), test.ShouldResemble, color.NRGBA{55, 28, 99, 255})
}

func TestRemapBilinearAndBorder(t *testing.T) {
	size := image.Point{X: 4, Y: 1}
	src := image.NewGray(image.Rect(0, 0, 4, 1))
	copy(src.Pix, []uint8{0, 100, 200, 100})

	xs := []float32{0.5, 1.25, 3.5, -2}
	ys := []float32{0, 0, 0, 0}
	table, err := NewRemapTable(4, 1, xs, ys, size)
	test.That(t, err, test.ShouldBeNil)

	out, err := Remap(src, table)
	test.That(t, err, test.ShouldBeNil)
	// halfway into the constant zero border on the right, fully outside on the last pixel
	test.That(t, out.(*image.Gray).Pix, test.ShouldResemble, []uint8{50, 125, 50, 0})

	_, err = NewRemapTable(4, 1, xs[:3], ys, size)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestRemapDimensionMismatch(t *testing.T) {
	table, err := NewRemapTable(2, 2, make([]float32, 4), make([]float32, 4), image.Point{X: 2, Y: 2})
	test.That(t, err, test.ShouldBeNil)
	_, err = Remap(image.NewGray(image.Rect(0, 0, 3, 2)), table)
	test.That(t, errors.Is(err, ErrDimensionMismatch), test.ShouldBeTrue)
}

func TestPlanRectification(t *testing.T) {
	left, right, rot, tvec := testRig(t, r3.Vector{X: -60, Y: 0.8, Z: 1.2})
	maps, err := PlanRectification(left, right, rigSize, rot, tvec, DefaultRectifyOptions)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, maps.Left.Width, test.ShouldEqual, rigSize.X)
	test.That(t, maps.Right.Height, test.ShouldEqual, rigSize.Y)

	// each table entry is the raw pixel that rectifies back onto the entry position
	for _, uv := range []image.Point{{X: 320, Y: 240}, {X: 100, Y: 80}, {X: 500, Y: 400}} {
		sx, sy := maps.Left.At(uv.X, uv.Y)
		back := left.UndistortPoints([]r2.Point{{X: sx, Y: sy}}, maps.R1, maps.P1)[0]
		test.That(t, back.X, test.ShouldAlmostEqual, float64(uv.X), 1e-3)
		test.That(t, back.Y, test.ShouldAlmostEqual, float64(uv.Y), 1e-3)

		sx, sy = maps.Right.At(uv.X, uv.Y)
		back = right.UndistortPoints([]r2.Point{{X: sx, Y: sy}}, maps.R2, maps.P2)[0]
		test.That(t, back.X, test.ShouldAlmostEqual, float64(uv.X), 1e-3)
		test.That(t, back.Y, test.ShouldAlmostEqual, float64(uv.Y), 1e-3)
	}

	l, r, err := maps.RectifyPair(patternGray(rigSize), patternGray(rigSize))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, l.Bounds(), test.ShouldResemble, image.Rect(0, 0, rigSize.X, rigSize.Y))
	test.That(t, r.Bounds(), test.ShouldResemble, image.Rect(0, 0, rigSize.X, rigSize.Y))

	_, _, err = maps.RectifyPair(patternGray(rigSize), patternGray(image.Point{X: 320, Y: 240}))
	test.That(t, errors.Is(err, ErrDimensionMismatch), test.ShouldBeTrue)
}
