package transform

import (
	"testing"

	"go.viam.com/test"
)

func TestBrownConradyInverse(t *testing.T) {
	bc, err := NewBrownConrady([]float64{-0.28, 0.09, 0.001, -0.0005, -0.01})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, bc.CheckValid(), test.ShouldBeNil)
	test.That(t, bc.Parameters(), test.ShouldResemble, []float64{-0.28, 0.09, 0.001, -0.0005, -0.01})

	inv := bc.Inverse()
	test.That(t, inv.ModelType(), test.ShouldEqual, InverseBrownConradyDistortionType)
	test.That(t, inv.Parameters(), test.ShouldResemble, bc.Parameters())

	for _, pt := range [][2]float64{{0, 0}, {0.1, -0.05}, {-0.3, 0.2}, {0.45, 0.35}} {
		xd, yd := bc.Transform(pt[0], pt[1])
		xu, yu := inv.Transform(xd, yd)
		test.That(t, xu, test.ShouldAlmostEqual, pt[0], 1e-9)
		test.That(t, yu, test.ShouldAlmostEqual, pt[1], 1e-9)

		xu, yu = bc.Undistort(xd, yd)
		test.That(t, xu, test.ShouldAlmostEqual, pt[0], 1e-9)
		test.That(t, yu, test.ShouldAlmostEqual, pt[1], 1e-9)
	}
}

func TestBrownConradyForward(t *testing.T) {
	// pure radial
	bc, err := NewBrownConrady([]float64{0.1})
	test.That(t, err, test.ShouldBeNil)
	x, y := bc.Transform(0.5, 0)
	test.That(t, x, test.ShouldAlmostEqual, 0.5*(1+0.1*0.25))
	test.That(t, y, test.ShouldAlmostEqual, 0.0)

	// pure tangential
	bc, err = NewBrownConrady([]float64{0, 0, 0.01, 0.02})
	test.That(t, err, test.ShouldBeNil)
	x, y = bc.Transform(0.2, 0.1)
	r2 := 0.2*0.2 + 0.1*0.1
	test.That(t, x, test.ShouldAlmostEqual, 0.2+2*0.01*0.2*0.1+0.02*(r2+2*0.2*0.2))
	test.That(t, y, test.ShouldAlmostEqual, 0.1+0.01*(r2+2*0.1*0.1)+2*0.02*0.2*0.1)

	var nilModel *BrownConrady
	x, y = nilModel.Transform(0.3, 0.4)
	test.That(t, x, test.ShouldEqual, 0.3)
	test.That(t, y, test.ShouldEqual, 0.4)
	test.That(t, nilModel.CheckValid(), test.ShouldNotBeNil)
}

func TestNewDistorter(t *testing.T) {
	d, err := NewDistorter(BrownConradyDistortionType, []float64{0.1, 0.2})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, d.ModelType(), test.ShouldEqual, BrownConradyDistortionType)
	test.That(t, d.Parameters(), test.ShouldResemble, []float64{0.1, 0.2, 0, 0, 0})

	d, err = NewDistorter(InverseBrownConradyDistortionType, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, d.ModelType(), test.ShouldEqual, InverseBrownConradyDistortionType)

	_, err = NewDistorter(BrownConradyDistortionType, make([]float64, 6))
	test.That(t, err, test.ShouldNotBeNil)
	_, err = NewDistorter("fisheye", nil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "fisheye")
}
