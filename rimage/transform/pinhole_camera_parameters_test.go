package transform

import (
	"image"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"
)

func TestPinholeIntrinsicsErrors(t *testing.T) {
	_, err := NewPinholeCameraIntrinsicsFromMatrix(nil, rigSize)
	test.That(t, errors.Is(err, ErrNoIntrinsics), test.ShouldBeTrue)

	_, err = NewPinholeCameraIntrinsicsFromMatrix(mat.NewDense(2, 3, nil), rigSize)
	test.That(t, errors.Is(err, ErrNoIntrinsics), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "got 2x3")

	k := mat.NewDense(3, 3, []float64{-5, 0, 320, 0, 600, 240, 0, 0, 1})
	_, err = NewPinholeCameraIntrinsicsFromMatrix(k, rigSize)
	test.That(t, errors.Is(err, ErrNoIntrinsics), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "Fx = -5")

	_, err = NewPinholeCameraIntrinsicsFromMatrix(mat.NewDense(3, 3, []float64{600, 0, 320, 0, 600, 240, 0, 0, 1}),
		image.Point{})
	test.That(t, err.Error(), test.ShouldContainSubstring, "Invalid size (0, 0)")

	// messages are kept as given, verbs included
	err = NewNoIntrinsicsError("100% unknown camera")
	test.That(t, errors.Is(err, ErrNoIntrinsics), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "100% unknown camera")
	test.That(t, InvalidDistortionError("k1 is 5%").Error(), test.ShouldContainSubstring, "k1 is 5%")
}
