// Package chessboard finds the interior corners of a planar chessboard target in a gray image.
package chessboard

import (
	"image"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"

	"go.viam.com/stereocal/rimage"
)

// ErrNotFound is returned when an image does not show the complete requested pattern.
var ErrNotFound = errors.New("chessboard not found")

// DetectionConfiguration stores the parameters necessary for chessboard detection in an image
type DetectionConfiguration struct {
	Saddle   SaddleConfiguration   `json:"saddle" yaml:"saddle" mapstructure:"saddle"`
	Corner   CornerConfiguration   `json:"corner" yaml:"corner" mapstructure:"corner"`
	Grid     GridConfiguration     `json:"grid" yaml:"grid" mapstructure:"grid"`
	SubPixel SubPixelConfiguration `json:"subpixel" yaml:"subpixel" mapstructure:"subpixel"`
}

// DefaultDetectionConfiguration gathers the default parameters of every detection stage.
var DefaultDetectionConfiguration = DetectionConfiguration{
	Saddle:   DefaultSaddleConf,
	Corner:   DefaultCornerConf,
	Grid:     DefaultGridConf,
	SubPixel: DefaultSubPixelConf,
}

// FindCorners returns the rows*cols interior corners of the chessboard visible in gray, refined to sub-pixel
// accuracy and laid out row-major from the top-left corner. cols is the number of corners along a board row.
// Anything short of the complete pattern is an error wrapping ErrNotFound.
func FindCorners(gray *image.Gray, rows, cols int, cfg DetectionConfiguration) ([]r2.Point, error) {
	if rows < 2 || cols < 2 {
		return nil, errors.Errorf("invalid chessboard pattern %dx%d, need at least 2x2 corners", rows, cols)
	}
	if gray == nil || gray.Bounds().Empty() {
		return nil, errors.New("cannot detect a chessboard in an empty image")
	}
	im := rimage.GrayToFloat(gray)
	blurred := rimage.GaussianBlurFloat64(im, cfg.Saddle.BlurSigma)
	_, saddles, err := GetSaddleMapPoints(blurred, &cfg.Saddle)
	if err != nil {
		return nil, err
	}
	candidates := filterXCorners(blurred, saddles, &cfg.Corner)
	if len(candidates) < rows*cols {
		return nil, errors.Wrapf(ErrNotFound, "%d corner candidates for a %dx%d pattern", len(candidates), rows, cols)
	}
	corners, err := GreedyIterations(candidates, rows, cols, &cfg.Grid)
	if err != nil {
		return nil, err
	}
	return RefineCorners(im, corners, cfg.SubPixel), nil
}
