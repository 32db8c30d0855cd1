package rimage

import (
	"image"

	"gonum.org/v1/gonum/mat"
)

// SameImgSize compares images to see if they're the same size.
func SameImgSize(g1, g2 image.Image) bool {
	return g1.Bounds().Size() == g2.Bounds().Size()
}

// GrayToFloat converts a gray image into a rows x cols matrix of intensities in [0, 255].
func GrayToFloat(img *image.Gray) *mat.Dense {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	data := make([]float64, w*h)
	for y := 0; y < h; y++ {
		start := img.PixOffset(bounds.Min.X, bounds.Min.Y+y)
		row := img.Pix[start : start+w]
		for x, v := range row {
			data[y*w+x] = float64(v)
		}
	}
	return mat.NewDense(h, w, data)
}

// FloatToGray converts an intensity matrix back to an 8 bit gray image, clamping to [0, 255].
func FloatToGray(m *mat.Dense) *image.Gray {
	h, w := m.Dims()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := m.At(y, x)
			switch {
			case v <= 0:
				v = 0
			case v >= 255:
				v = 255
			}
			img.Pix[y*img.Stride+x] = uint8(v + 0.5)
		}
	}
	return img
}
