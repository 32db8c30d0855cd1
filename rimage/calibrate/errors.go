package calibrate

import (
	"github.com/pkg/errors"

	"go.viam.com/stereocal/rimage/detection/chessboard"
	"go.viam.com/stereocal/rimage/transform"
)

var (
	// ErrInsufficientObservations is returned when there are no usable views, or fewer residuals than unknowns.
	ErrInsufficientObservations = errors.New("insufficient observations")
	// ErrDegenerateGeometry is returned when the views do not constrain the camera model.
	ErrDegenerateGeometry = transform.ErrDegenerateGeometry
	// ErrImageSizeMismatch is returned when images that must share a resolution do not.
	ErrImageSizeMismatch = errors.New("image size mismatch")
	// ErrPairCountMismatch is returned when left and right image lists cannot be paired.
	ErrPairCountMismatch = errors.New("left and right image counts differ")
	// ErrObservationMismatch is returned when correspondences or observation sets are not aligned.
	ErrObservationMismatch = errors.New("observations are not aligned")
	// ErrDetectionFailure is returned when an image does not show the complete pattern.
	ErrDetectionFailure = chessboard.ErrNotFound
)

// NewInsufficientObservationsError wraps ErrInsufficientObservations with context.
func NewInsufficientObservationsError(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInsufficientObservations, format, args...)
}

// NewImageSizeMismatchError is used when an image does not have the expected size.
func NewImageSizeMismatchError(path string, got, want interface{}) error {
	return errors.Wrapf(ErrImageSizeMismatch, "%s is %v, expected %v", path, got, want)
}

// NewPairCountMismatchError is used when the left and right directories hold different numbers of images.
func NewPairCountMismatchError(left, right int) error {
	return errors.Wrapf(ErrPairCountMismatch, "%d left images, %d right images", left, right)
}

// NewObservationMismatchError wraps ErrObservationMismatch with context.
func NewObservationMismatchError(format string, args ...interface{}) error {
	return errors.Wrapf(ErrObservationMismatch, format, args...)
}

// NewDegenerateGeometryError wraps ErrDegenerateGeometry with context.
func NewDegenerateGeometryError(format string, args ...interface{}) error {
	return errors.Wrapf(ErrDegenerateGeometry, format, args...)
}
