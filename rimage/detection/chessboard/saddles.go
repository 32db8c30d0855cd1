package chessboard

import (
	"sort"

	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/stereocal/rimage"
	"go.viam.com/stereocal/utils"
)

// SaddleConfiguration stores the parameters to process the Hessian determinant image into a relevant saddle points map
type SaddleConfiguration struct {
	BlurSigma         float64 `json:"blur-sigma" yaml:"blur-sigma" mapstructure:"blur-sigma"`                         // gaussian smoothing before derivatives
	RelativeThreshold float64 `json:"relative-threshold" yaml:"relative-threshold" mapstructure:"relative-threshold"` // fraction of the strongest response a saddle must reach
	NMSWindowSize     int     `json:"win-size" yaml:"win-size" mapstructure:"win-size"`                               // half size of the non-maximum suppression window
	MaxCandidates     int     `json:"max-candidates" yaml:"max-candidates" mapstructure:"max-candidates"`             // strongest saddles kept after suppression
}

// DefaultSaddleConf stores the default parameters for saddle detection
var DefaultSaddleConf = SaddleConfiguration{
	BlurSigma:         1.0,
	RelativeThreshold: 0.03,
	NMSWindowSize:     3,
	MaxCandidates:     1000,
}

// Saddle is a candidate X-corner with its response.
type Saddle struct {
	Point r2.Point
	Score float64
}

// computePixelWiseHessianDeterminant computes hessian components for each pixel and returns a *mat.Dense containing
// the value of the determinant of the Hessian for each pixel
// The sign and value of the determinant of the Hessian gives location of saddle points
func computePixelWiseHessianDeterminant(img *mat.Dense) (*mat.Dense, error) {
	nRows, nCols := img.Dims()
	sobelX := rimage.GetSobelX()
	sobelY := rimage.GetSobelY()
	gX, err := rimage.ConvolveGrayFloat64(img, &sobelX)
	if err != nil {
		return nil, err
	}
	gY, err := rimage.ConvolveGrayFloat64(img, &sobelY)
	if err != nil {
		return nil, err
	}
	gXX, err := rimage.ConvolveGrayFloat64(gX, &sobelX)
	if err != nil {
		return nil, err
	}
	gYY, err := rimage.ConvolveGrayFloat64(gY, &sobelY)
	if err != nil {
		return nil, err
	}
	gXY, err := rimage.ConvolveGrayFloat64(gX, &sobelY)
	if err != nil {
		return nil, err
	}
	m1 := mat.NewDense(nRows, nCols, nil)
	m2 := mat.NewDense(nRows, nCols, nil)
	out := mat.NewDense(nRows, nCols, nil)
	m1.MulElem(gXX, gYY)
	m2.MulElem(gXY, gXY)
	out.Sub(m1, m2)
	return out, nil
}

// PruneSaddle zeroes every response below ratio times the strongest one and returns the threshold used.
func PruneSaddle(s *mat.Dense, ratio float64) float64 {
	thresh := ratio * mat.Max(s)
	s.Apply(func(r, c int, v float64) float64 {
		if v < thresh {
			return 0.
		}
		return v
	}, s)
	return thresh
}

// NonMaxSuppression keeps the pixels that are the strict maximum of their (2*winSize+1)^2 neighborhood. Ties go to
// the first pixel in raster order.
func NonMaxSuppression(img *mat.Dense, winSize int) []Saddle {
	h, w := img.Dims()
	out := make([]Saddle, 0)
	for i := 0; i < h; i++ {
		for j := 0; j < w; j++ {
			v := img.At(i, j)
			if v <= 0 {
				continue
			}
			if isLocalMax(img, i, j, winSize) {
				out = append(out, Saddle{Point: refinePeak(img, i, j), Score: v})
			}
		}
	}
	return out
}

func isLocalMax(img *mat.Dense, i, j, winSize int) bool {
	h, w := img.Dims()
	v := img.At(i, j)
	for di := -winSize; di <= winSize; di++ {
		ii := i + di
		if ii < 0 || ii >= h {
			continue
		}
		for dj := -winSize; dj <= winSize; dj++ {
			jj := j + dj
			if jj < 0 || jj >= w || (di == 0 && dj == 0) {
				continue
			}
			n := img.At(ii, jj)
			if n > v || (n == v && (di < 0 || (di == 0 && dj < 0))) {
				return false
			}
		}
	}
	return true
}

// refinePeak fits a parabola through the response along each axis.
func refinePeak(img *mat.Dense, i, j int) r2.Point {
	h, w := img.Dims()
	pt := r2.Point{X: float64(j), Y: float64(i)}
	if j > 0 && j < w-1 {
		l, c, r := img.At(i, j-1), img.At(i, j), img.At(i, j+1)
		if den := l - 2*c + r; den < 0 {
			pt.X += utils.ClampF64(0.5*(l-r)/den, -0.5, 0.5)
		}
	}
	if i > 0 && i < h-1 {
		u, c, d := img.At(i-1, j), img.At(i, j), img.At(i+1, j)
		if den := u - 2*c + d; den < 0 {
			pt.Y += utils.ClampF64(0.5*(u-d)/den, -0.5, 0.5)
		}
	}
	return pt
}

// GetSaddleMapPoints gets a saddle point presence map and the strongest saddle points of a smoothed gray image.
func GetSaddleMapPoints(img *mat.Dense, conf *SaddleConfiguration) (*mat.Dense, []Saddle, error) {
	hessian, err := computePixelWiseHessianDeterminant(img)
	if err != nil {
		return nil, nil, err
	}
	// saddle points are points where determinant of hessian is <0
	// for better readability, using negative determinant of Hessian
	hessian.Scale(-1.0, hessian)
	hessian.Apply(func(r, c int, v float64) float64 {
		if v < 0 {
			return 0.
		}
		return v
	}, hessian)
	if mat.Max(hessian) <= 0 {
		return hessian, nil, nil
	}
	PruneSaddle(hessian, conf.RelativeThreshold)
	saddles := NonMaxSuppression(hessian, conf.NMSWindowSize)
	sort.SliceStable(saddles, func(a, b int) bool { return saddles[a].Score > saddles[b].Score })
	if conf.MaxCandidates > 0 && len(saddles) > conf.MaxCandidates {
		saddles = saddles[:conf.MaxCandidates]
	}
	return hessian, saddles, nil
}
