package calibrate

import (
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/stereocal/rimage/detection/chessboard"
	"go.viam.com/stereocal/utils"
)

// TermCriteria caps an iterative process by iteration count and by the size of an update.
type TermCriteria struct {
	MaxIterations int     `json:"max-iterations" yaml:"max-iterations" mapstructure:"max-iterations"`
	Epsilon       float64 `json:"epsilon" yaml:"epsilon" mapstructure:"epsilon"`
}

var (
	// DefaultCornerCriteria stops corner refinement after 30 iterations or a 0.001 pixel move.
	DefaultCornerCriteria = TermCriteria{MaxIterations: 30, Epsilon: 0.001}
	// DefaultSolverCriteria bounds the non-linear least squares of the calibrators.
	DefaultSolverCriteria = TermCriteria{MaxIterations: 100, Epsilon: 1e-12}
)

// SubPixel returns the corner refinement settings for the given half window.
func (c TermCriteria) SubPixel(halfWindow int) chessboard.SubPixelConfiguration {
	return chessboard.SubPixelConfiguration{HalfWindow: halfWindow, MaxIterations: c.MaxIterations, Epsilon: c.Epsilon}
}

const (
	lmInitialLambda = 1e-3
	lmMaxRetries    = 10
)

// residualFunc fills dst with the residuals at x. It is called concurrently and must not modify shared state.
type residualFunc func(dst, x []float64)

type lmResult struct {
	X          []float64
	Cost       float64 // sum of squared residuals
	Iterations int
}

// levenbergMarquardt minimizes the sum of squares of the m residuals of f from x0. The Jacobian is approximated by
// central differences, the damped normal equations are solved by Cholesky.
func levenbergMarquardt(f residualFunc, m int, x0 []float64, crit TermCriteria) (*lmResult, error) {
	n := len(x0)
	if m < n {
		return nil, NewInsufficientObservationsError("%d residuals for %d unknowns", m, n)
	}
	x := make([]float64, n)
	copy(x, x0)
	r := make([]float64, m)
	f(r, x)
	cost := floats.Dot(r, r)
	if !utils.IsFinite(cost) {
		return nil, NewDegenerateGeometryError("non-finite residuals at the initial estimate")
	}

	jac := mat.NewDense(m, n, nil)
	settings := &fd.JacobianSettings{Formula: fd.Central, Concurrent: true}
	var jtj mat.SymDense
	var grad mat.VecDense
	a := mat.NewSymDense(n, nil)
	xNew := make([]float64, n)
	rNew := make([]float64, m)
	lambda := lmInitialLambda

	res := &lmResult{}
	for res.Iterations = 0; res.Iterations < crit.MaxIterations && cost > 0; res.Iterations++ {
		fd.Jacobian(jac, func(y, xx []float64) { f(y, xx) }, x, settings)
		jtj.SymOuterK(1, jac.T())
		grad.MulVec(jac.T(), mat.NewVecDense(m, r))
		maxDiag := 0.
		for i := 0; i < n; i++ {
			maxDiag = math.Max(maxDiag, jtj.At(i, i))
		}

		improved, converged := false, false
		for try := 0; try < lmMaxRetries; try++ {
			a.CopySym(&jtj)
			for i := 0; i < n; i++ {
				a.SetSym(i, i, jtj.At(i, i)+lambda*math.Max(jtj.At(i, i), 1e-6*maxDiag))
			}
			var chol mat.Cholesky
			if ok := chol.Factorize(a); !ok {
				lambda *= 10
				continue
			}
			var delta mat.VecDense
			if err := chol.SolveVecTo(&delta, &grad); err != nil {
				lambda *= 10
				continue
			}
			step := delta.RawVector().Data
			for i := range x {
				xNew[i] = x[i] - step[i]
			}
			f(rNew, xNew)
			costNew := floats.Dot(rNew, rNew)
			if !(costNew < cost) {
				lambda *= 10
				continue
			}
			improved = true
			converged = floats.Norm(step, 2) <= crit.Epsilon*(floats.Norm(x, 2)+crit.Epsilon) ||
				cost-costNew <= crit.Epsilon*cost
			copy(x, xNew)
			copy(r, rNew)
			cost = costNew
			lambda = math.Max(lambda/10, 1e-15)
			break
		}
		if !improved || converged {
			break
		}
	}
	res.X = x
	res.Cost = cost
	return res, nil
}
