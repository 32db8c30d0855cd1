package rimage

import (
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"go.viam.com/test"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func TestConvolveSobel(t *testing.T) {
	// a horizontal ramp has a constant x gradient of 8 per unit slope and none in y
	m := mat.NewDense(5, 6, nil)
	for y := 0; y < 5; y++ {
		for x := 0; x < 6; x++ {
			m.Set(y, x, float64(3*x))
		}
	}
	sobelX := GetSobelX()
	gx, err := ConvolveGrayFloat64(m, &sobelX)
	test.That(t, err, test.ShouldBeNil)
	sobelY := GetSobelY()
	gy, err := ConvolveGrayFloat64(m, &sobelY)
	test.That(t, err, test.ShouldBeNil)
	for y := 0; y < 5; y++ {
		for x := 1; x < 5; x++ {
			test.That(t, gx.At(y, x), test.ShouldAlmostEqual, 24)
			test.That(t, gy.At(y, x), test.ShouldAlmostEqual, 0)
		}
	}
	// replicated border halves the central difference
	test.That(t, gx.At(2, 0), test.ShouldAlmostEqual, 12)

	even := Kernel{[][]float64{{1, 1}}, 1, 2}
	_, err = ConvolveGrayFloat64(m, &even)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestGaussianBlur(t *testing.T) {
	kernel := GaussianKernel1D(1.5)
	test.That(t, len(kernel), test.ShouldEqual, 11)
	test.That(t, floats.Sum(kernel), test.ShouldAlmostEqual, 1)
	test.That(t, kernel[5], test.ShouldEqual, floats.Max(kernel))

	m := mat.NewDense(9, 9, nil)
	m.Set(4, 4, 100)
	blurred := GaussianBlurFloat64(m, 1)
	test.That(t, mat.Sum(blurred), test.ShouldAlmostEqual, 100, 1e-9)
	test.That(t, blurred.At(4, 4), test.ShouldBeLessThan, 100)
	test.That(t, blurred.At(4, 3), test.ShouldAlmostEqual, blurred.At(3, 4), 1e-12)

	same := GaussianBlurFloat64(m, 0)
	test.That(t, mat.Equal(same, m), test.ShouldBeTrue)
}

func TestBilinearInterpolation(t *testing.T) {
	m := mat.NewDense(2, 2, []float64{0, 10, 20, 30})
	test.That(t, BilinearInterpolation(m, 0, 0), test.ShouldEqual, 0)
	test.That(t, BilinearInterpolation(m, 0.5, 0), test.ShouldAlmostEqual, 5)
	test.That(t, BilinearInterpolation(m, 0.5, 0.5), test.ShouldAlmostEqual, 15)
	test.That(t, BilinearInterpolation(m, 1, 1), test.ShouldEqual, 30)
	test.That(t, BilinearInterpolation(m, 5, -3), test.ShouldEqual, 10)
}

func TestGrayRoundTrip(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	img.Set(1, 1, color.RGBA{255, 255, 255, 255})
	img.Set(2, 2, color.RGBA{0, 0, 255, 255})
	gray := MakeGray(img)
	test.That(t, gray.GrayAt(1, 1).Y, test.ShouldEqual, 255)
	test.That(t, gray.GrayAt(0, 0).Y, test.ShouldEqual, 0)
	test.That(t, gray.GrayAt(2, 2).Y, test.ShouldBeLessThan, 40)
	test.That(t, MakeGray(gray), test.ShouldEqual, gray)

	m := GrayToFloat(gray)
	r, c := m.Dims()
	test.That(t, r, test.ShouldEqual, 3)
	test.That(t, c, test.ShouldEqual, 4)
	test.That(t, m.At(1, 1), test.ShouldEqual, 255)
	test.That(t, FloatToGray(m).Pix, test.ShouldResemble, gray.Pix)

	sub := gray.SubImage(image.Rect(1, 1, 3, 3)).(*image.Gray)
	test.That(t, GrayToFloat(sub).At(0, 0), test.ShouldEqual, 255)
	test.That(t, SameImgSize(sub, image.NewGray(image.Rect(0, 0, 2, 2))), test.ShouldBeTrue)
}

func TestImageFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	img := image.NewGray(image.Rect(0, 0, 8, 6))
	for i := range img.Pix {
		img.Pix[i] = uint8(i * 4)
	}
	for _, name := range []string{"a.png", "nested/b.bmp", "c.tiff"} {
		path := filepath.Join(dir, name)
		test.That(t, WriteImageToFile(path, img), test.ShouldBeNil)
		back, err := ReadGrayFromFile(path)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, back.Bounds(), test.ShouldResemble, img.Bounds())
		test.That(t, back.Pix, test.ShouldResemble, img.Pix)
	}

	_, err := ReadImageFromFile(filepath.Join(dir, "missing.png"))
	test.That(t, err, test.ShouldNotBeNil)
}
