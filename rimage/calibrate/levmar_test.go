package calibrate

import (
	"math"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"
)

func TestLevenbergMarquardtCurveFit(t *testing.T) {
	// y = a * exp(b * x) + c
	a, b, c := 2.5, -0.7, 0.3
	xs := make([]float64, 40)
	ys := make([]float64, len(xs))
	for i := range xs {
		xs[i] = float64(i) * 0.1
		ys[i] = a*math.Exp(b*xs[i]) + c
	}
	f := func(dst, p []float64) {
		for i, x := range xs {
			dst[i] = p[0]*math.Exp(p[1]*x) + p[2] - ys[i]
		}
	}
	res, err := levenbergMarquardt(f, len(xs), []float64{1, -0.1, 0}, DefaultSolverCriteria)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.X[0], test.ShouldAlmostEqual, a, 1e-5)
	test.That(t, res.X[1], test.ShouldAlmostEqual, b, 1e-5)
	test.That(t, res.X[2], test.ShouldAlmostEqual, c, 1e-5)
	test.That(t, res.Cost, test.ShouldBeLessThan, 1e-12)
	test.That(t, res.Iterations, test.ShouldBeLessThanOrEqualTo, DefaultSolverCriteria.MaxIterations)
}

func TestLevenbergMarquardtIterationCap(t *testing.T) {
	f := func(dst, p []float64) {
		dst[0] = 10 * (p[1] - p[0]*p[0])
		dst[1] = 1 - p[0]
	}
	res, err := levenbergMarquardt(f, 2, []float64{-1.2, 1}, TermCriteria{MaxIterations: 1, Epsilon: 1e-12})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Iterations, test.ShouldBeLessThanOrEqualTo, 1)

	res, err = levenbergMarquardt(f, 2, []float64{-1.2, 1}, TermCriteria{MaxIterations: 500, Epsilon: 1e-15})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.X[0], test.ShouldAlmostEqual, 1, 1e-4)
	test.That(t, res.X[1], test.ShouldAlmostEqual, 1, 1e-4)
}

func TestLevenbergMarquardtErrors(t *testing.T) {
	f := func(dst, p []float64) { dst[0] = p[0] + p[1] }
	_, err := levenbergMarquardt(f, 1, []float64{1, 2}, DefaultSolverCriteria)
	test.That(t, errors.Is(err, ErrInsufficientObservations), test.ShouldBeTrue)

	nan := func(dst, p []float64) { dst[0] = math.NaN() }
	_, err = levenbergMarquardt(nan, 1, []float64{1}, DefaultSolverCriteria)
	test.That(t, errors.Is(err, ErrDegenerateGeometry), test.ShouldBeTrue)
}
