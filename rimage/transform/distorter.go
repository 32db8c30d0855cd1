package transform

import "github.com/pkg/errors"

// DistortionType is the name of the distortion model.
type DistortionType string

const (
	// BrownConradyDistortionType is for simple lenses of narrow field easily modeled as a pinhole camera.
	BrownConradyDistortionType = DistortionType("brown_conrady")
	// InverseBrownConradyDistortionType maps distorted normalized coordinates back to undistorted ones.
	InverseBrownConradyDistortionType = DistortionType("inverse_brown_conrady")
)

// Distorter defines a Transform that takes an undistorted image and distorts it according to the model.
// Coordinates are normalized image coordinates (x/z, y/z).
type Distorter interface {
	ModelType() DistortionType
	CheckValid() error
	Parameters() []float64
	Transform(x, y float64) (float64, float64)
}

// Undistorter is implemented by distortion models that can be inverted.
type Undistorter interface {
	Undistort(x, y float64) (float64, float64)
}

// InvalidDistortionError is used when the distortion_parameters are invalid.
func InvalidDistortionError(msg string) error {
	return errors.Wrap(errors.New("invalid distortion_parameters"), msg)
}

// NewDistorter returns a Distorter given a valid DistortionType and its parameters.
func NewDistorter(distortionType DistortionType, parameters []float64) (Distorter, error) {
	switch distortionType {
	case BrownConradyDistortionType:
		return NewBrownConrady(parameters)
	case InverseBrownConradyDistortionType:
		return NewInverseBrownConrady(parameters)
	default:
		return nil, errors.Errorf("do not know how to parse %q distortion model", distortionType)
	}
}

// fillParameters pads inp with zeros up to n values.
func fillParameters(inp []float64, n int) ([]float64, error) {
	if len(inp) > n {
		return nil, errors.Errorf("list of parameters too long, expected max %d, got %d", n, len(inp))
	}
	out := make([]float64, n)
	copy(out, inp)
	return out, nil
}
