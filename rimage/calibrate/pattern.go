// Package calibrate estimates pinhole camera models and stereo rigs from views of a planar chessboard.
package calibrate

import (
	"image"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// PatternGeometry describes the interior corner lattice of a chessboard target. Cols counts corners along a board
// row, Rows along a board column.
type PatternGeometry struct {
	Rows       int     `json:"rows" yaml:"rows" mapstructure:"rows"`
	Cols       int     `json:"cols" yaml:"cols" mapstructure:"cols"`
	SquareSize float64 `json:"square-size" yaml:"square-size" mapstructure:"square-size"`
}

// CheckValid checks the pattern can be detected and measured.
func (p PatternGeometry) CheckValid() error {
	if p.Rows < 2 || p.Cols < 2 {
		return errors.Errorf("pattern needs at least 2x2 interior corners, got %dx%d", p.Rows, p.Cols)
	}
	if !(p.SquareSize > 0) {
		return errors.Errorf("square size must be positive, got %v", p.SquareSize)
	}
	return nil
}

// Size returns (Cols, Rows).
func (p PatternGeometry) Size() image.Point {
	return image.Point{X: p.Cols, Y: p.Rows}
}

// ReferencePointSet holds the board-frame positions of the interior corners, row-major. Sets are shared between
// correspondences and must not be modified.
type ReferencePointSet []r3.Vector

// ReferencePoints returns the corner positions (c*SquareSize, r*SquareSize, 0), index r*Cols+c.
func (p PatternGeometry) ReferencePoints() ReferencePointSet {
	pts := make(ReferencePointSet, 0, p.Rows*p.Cols)
	for r := 0; r < p.Rows; r++ {
		for c := 0; c < p.Cols; c++ {
			pts = append(pts, r3.Vector{X: float64(c) * p.SquareSize, Y: float64(r) * p.SquareSize})
		}
	}
	return pts
}

// planar returns the X, Y components of the set.
func (s ReferencePointSet) planar() []r2.Point {
	out := make([]r2.Point, len(s))
	for i, p := range s {
		out[i] = r2.Point{X: p.X, Y: p.Y}
	}
	return out
}

// Correspondence pairs the reference points of one view with their detected image positions.
type Correspondence struct {
	ReferencePoints ReferencePointSet
	ImagePoints     []r2.Point
}

// CheckValid checks both sides have the same non-zero length.
func (c Correspondence) CheckValid() error {
	if len(c.ReferencePoints) == 0 {
		return NewObservationMismatchError("empty correspondence")
	}
	if len(c.ReferencePoints) != len(c.ImagePoints) {
		return NewObservationMismatchError("%d reference points for %d image points", len(c.ReferencePoints), len(c.ImagePoints))
	}
	return nil
}

// ObservationSet holds the accepted views of a calibration run, in input order.
type ObservationSet []Correspondence

// CheckValid checks the set is non-empty and every view is well formed.
func (o ObservationSet) CheckValid() error {
	if len(o) == 0 {
		return NewInsufficientObservationsError("no views")
	}
	for i, c := range o {
		if err := c.CheckValid(); err != nil {
			return errors.Wrapf(err, "view %d", i)
		}
	}
	return nil
}

// NumPoints returns the total number of image points.
func (o ObservationSet) NumPoints() int {
	n := 0
	for _, c := range o {
		n += len(c.ImagePoints)
	}
	return n
}
