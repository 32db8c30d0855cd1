package utils

import (
	"math"
	"testing"

	"go.viam.com/test"
)

func TestMedian(t *testing.T) {
	test.That(t, math.IsNaN(Median()), test.ShouldBeTrue)
	test.That(t, Median(3, 1, 2), test.ShouldEqual, 2)
	test.That(t, Median(4, 1, 3, 2), test.ShouldEqual, 3)
}

func TestClampAndFinite(t *testing.T) {
	test.That(t, ClampF64(-1, 0, 255), test.ShouldEqual, 0)
	test.That(t, ClampF64(300, 0, 255), test.ShouldEqual, 255)
	test.That(t, ClampF64(12.5, 0, 255), test.ShouldEqual, 12.5)
	test.That(t, IsFinite(1, 2, 3), test.ShouldBeTrue)
	test.That(t, IsFinite(1, math.NaN()), test.ShouldBeFalse)
	test.That(t, IsFinite(math.Inf(-1)), test.ShouldBeFalse)
	test.That(t, RadToDeg(DegToRad(37)), test.ShouldAlmostEqual, 37)
	test.That(t, MaxInt(3, 7), test.ShouldEqual, 7)
	test.That(t, MinInt(3, 7), test.ShouldEqual, 3)
}
