// Package rimage contains the raster helpers shared by corner detection and rectification:
// decoding, grayscale conversion, convolution and interpolation.
package rimage

import (
	"image"
	"image/draw"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	_ "github.com/lmittmann/ppm" // register ppm
	"github.com/pkg/errors"
	_ "github.com/xfmoulet/qoi"   // register qoi
	_ "golang.org/x/image/webp" // register webp
)

// ReadImageFromFile decodes the image stored at path. PNG, JPEG, GIF, BMP, TIFF, WEBP, PPM and QOI
// files are understood.
func ReadImageFromFile(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.Wrapf(err, "cannot decode image %q", path)
	}
	return img, nil
}

// ReadGrayFromFile decodes the image stored at path and converts it to 8 bit luminance.
func ReadGrayFromFile(path string) (*image.Gray, error) {
	img, err := ReadImageFromFile(path)
	if err != nil {
		return nil, err
	}
	return MakeGray(img), nil
}

// MakeGray converts any image to an *image.Gray whose bounds start at the origin.
func MakeGray(img image.Image) *image.Gray {
	bounds := img.Bounds()
	if g, ok := img.(*image.Gray); ok && bounds.Min == (image.Point{}) {
		return g
	}
	result := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(result, result.Bounds(), img, bounds.Min, draw.Src)
	return result
}

// WriteImageToFile encodes img at path, choosing the format from the file extension. Missing
// parent directories are created.
func WriteImageToFile(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return errors.Wrapf(err, "cannot create directory for %q", path)
	}
	if err := imaging.Save(img, path); err != nil {
		return errors.Wrapf(err, "cannot encode image %q", path)
	}
	return nil
}
