package rimage

import (
	"image"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/stereocal/utils"
)

// Kernel is a convolution kernel. Content is indexed [row][column].
type Kernel struct {
	Content [][]float64
	Height  int
	Width   int
}

// Size returns the kernel size as (width, height).
func (k *Kernel) Size() image.Point {
	return image.Point{k.Width, k.Height}
}

// At returns the kernel value at column x, row y.
func (k *Kernel) At(x, y int) float64 {
	return k.Content[y][x]
}

// GetSobelX returns the Kernel corresponding to the Sobel kernel in the x direction.
func GetSobelX() Kernel {
	return Kernel{[][]float64{
		{-1, 0, 1},
		{-2, 0, 2},
		{-1, 0, 1},
	},
		3,
		3,
	}
}

// GetSobelY returns the Kernel corresponding to the Sobel kernel in the y direction.
func GetSobelY() Kernel {
	return Kernel{[][]float64{
		{-1, -2, -1},
		{0, 0, 0},
		{1, 2, 1},
	},
		3,
		3,
	}
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

// ConvolveGrayFloat64 implements a gray float64 image convolution with the Kernel filter, anchored
// at the kernel center. Borders are replicated and there is no clamping of the output.
func ConvolveGrayFloat64(m *mat.Dense, filter *Kernel) (*mat.Dense, error) {
	kernelSize := filter.Size()
	if kernelSize.X%2 == 0 || kernelSize.Y%2 == 0 {
		return nil, errors.Errorf("kernel size must be odd, got (%d, %d)", kernelSize.X, kernelSize.Y)
	}
	h, w := m.Dims()
	result := mat.NewDense(h, w, nil)
	ax, ay := kernelSize.X/2, kernelSize.Y/2

	utils.ParallelForEachPixel(image.Point{w, h}, func(x, y int) {
		sum := float64(0)
		for ky := 0; ky < kernelSize.Y; ky++ {
			yy := clampIndex(y+ky-ay, h)
			for kx := 0; kx < kernelSize.X; kx++ {
				kE := filter.At(kx, ky)
				if kE == 0 {
					continue
				}
				sum += m.At(yy, clampIndex(x+kx-ax, w)) * kE
			}
		}
		result.Set(y, x, sum)
	})
	return result, nil
}

// GaussianBlurFloat64 blurs m with a separable gaussian of the given sigma, replicating borders.
// A non-positive sigma returns a copy of m.
func GaussianBlurFloat64(m *mat.Dense, sigma float64) *mat.Dense {
	if sigma <= 0 {
		return mat.DenseCopyOf(m)
	}
	kernel := GaussianKernel1D(sigma)
	offsets := makeRangeArray(len(kernel))
	h, w := m.Dims()
	tmp := mat.NewDense(h, w, nil)
	utils.ParallelForEachRow(h, func(y int) {
		for x := 0; x < w; x++ {
			sum := 0.
			for i, dx := range offsets {
				sum += kernel[i] * m.At(y, clampIndex(x+dx, w))
			}
			tmp.Set(y, x, sum)
		}
	})
	out := mat.NewDense(h, w, nil)
	utils.ParallelForEachRow(h, func(y int) {
		for x := 0; x < w; x++ {
			sum := 0.
			for i, dy := range offsets {
				sum += kernel[i] * tmp.At(clampIndex(y+dy, h), x)
			}
			out.Set(y, x, sum)
		}
	})
	return out
}
