// Package testutils renders synthetic calibration captures for tests.
package testutils

import (
	"image"
	"math"
	"math/rand"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/stereocal/rimage/transform"
	"go.viam.com/stereocal/utils"
)

// Gray levels of the rendered scene.
const (
	DarkLevel       = 30
	LightLevel      = 220
	BackgroundLevel = 110
)

// Pixels are screened with coarseSampling² samples, those crossed by an edge are averaged over fineSampling²
// samples so that edges land within 1/(2*fineSampling) pixel of their true position.
const (
	coarseSampling = 4
	fineSampling   = 16
)

// BoardScene describes a chessboard seen by a camera. Rows and Cols count interior corners, the board carries one
// extra square on each side plus a light margin of Margin squares.
type BoardScene struct {
	Rows, Cols int
	SquareSize float64
	Margin     float64
	Camera     *transform.PinholeCameraModel
	Pose       *transform.CamPose
	Noise      float64
	Seed       int64
}

// ReferencePoints returns the interior corners on the board plane, row-major.
func (s BoardScene) ReferencePoints() []r3.Vector {
	pts := make([]r3.Vector, 0, s.Rows*s.Cols)
	for r := 0; r < s.Rows; r++ {
		for c := 0; c < s.Cols; c++ {
			pts = append(pts, r3.Vector{X: float64(c) * s.SquareSize, Y: float64(r) * s.SquareSize})
		}
	}
	return pts
}

// Corners returns the exact projections of the interior corners, row-major.
func (s BoardScene) Corners() []r2.Point {
	return s.Camera.ProjectPoints(s.ReferencePoints(), s.Pose)
}

func (s BoardScene) shade(bx, by float64) float64 {
	i := int(math.Floor(bx / s.SquareSize))
	j := int(math.Floor(by / s.SquareSize))
	if i >= -1 && i <= s.Cols-1 && j >= -1 && j <= s.Rows-1 {
		if ((i+j)%2+2)%2 == 0 {
			return DarkLevel
		}
		return LightLevel
	}
	m := (1 + s.Margin) * s.SquareSize
	if bx >= -m && bx <= float64(s.Cols-1)*s.SquareSize+m && by >= -m && by <= float64(s.Rows-1)*s.SquareSize+m {
		return LightLevel
	}
	return BackgroundLevel
}

// RenderCheckerboard renders the scene at the camera resolution, each pixel being the mean of a grid of samples
// denser along the edges. Pixel centers sit at integer coordinates.
func RenderCheckerboard(s BoardScene) *image.Gray {
	w, h := s.Camera.Width, s.Camera.Height
	// board plane coordinates of every pixel corner
	inv := s.Pose.Inverse()
	center := inv.Translation
	bx := mat.NewDense(h+1, w+1, nil)
	by := mat.NewDense(h+1, w+1, nil)
	valid := make([]bool, (h+1)*(w+1))
	utils.ParallelForEachRow(h+1, func(y int) {
		for x := 0; x <= w; x++ {
			n := s.Camera.UndistortPoint(r2.Point{X: float64(x) - 0.5, Y: float64(y) - 0.5})
			dir := transform.RotateVector(inv.Rotation, r3.Vector{X: n.X, Y: n.Y, Z: 1})
			if dir.Z == 0 {
				continue
			}
			t := -center.Z / dir.Z
			if t <= 0 {
				continue
			}
			bx.Set(y, x, center.X+t*dir.X)
			by.Set(y, x, center.Y+t*dir.Y)
			valid[y*(w+1)+x] = true
		}
	})

	img := image.NewGray(image.Rect(0, 0, w, h))
	utils.ParallelForEachRow(h, func(y int) {
		for x := 0; x < w; x++ {
			if !valid[y*(w+1)+x] || !valid[y*(w+1)+x+1] || !valid[(y+1)*(w+1)+x] || !valid[(y+1)*(w+1)+x+1] {
				img.Pix[y*img.Stride+x] = BackgroundLevel
				continue
			}
			v, flat := s.coverage(bx, by, x, y, coarseSampling)
			if !flat {
				v, _ = s.coverage(bx, by, x, y, fineSampling)
			}
			img.Pix[y*img.Stride+x] = uint8(math.Round(v))
		}
	})
	if s.Noise > 0 {
		rng := rand.New(rand.NewSource(s.Seed)) //nolint:gosec
		for i, v := range img.Pix {
			img.Pix[i] = uint8(utils.ClampF64(math.Round(float64(v)+rng.NormFloat64()*s.Noise), 0, 255))
		}
	}
	return img
}

// coverage averages n x n samples of pixel (x, y) and tells whether they all had the same shade.
func (s BoardScene) coverage(bx, by *mat.Dense, x, y, n int) (float64, bool) {
	sum := 0.
	first := -1.
	flat := true
	for sy := 0; sy < n; sy++ {
		fy := (float64(sy) + 0.5) / float64(n)
		for sx := 0; sx < n; sx++ {
			fx := (float64(sx) + 0.5) / float64(n)
			v := s.shade(bilerp(bx, x, y, fx, fy), bilerp(by, x, y, fx, fy))
			if first < 0 {
				first = v
			} else if v != first {
				flat = false
			}
			sum += v
		}
	}
	return sum / float64(n*n), flat
}

func bilerp(m *mat.Dense, x, y int, fx, fy float64) float64 {
	top := m.At(y, x)*(1-fx) + m.At(y, x+1)*fx
	bottom := m.At(y+1, x)*(1-fx) + m.At(y+1, x+1)*fx
	return top*(1-fy) + bottom*fy
}
