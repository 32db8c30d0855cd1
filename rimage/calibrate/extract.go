package calibrate

import (
	"context"
	"image"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"go.viam.com/stereocal/logging"
	"go.viam.com/stereocal/rimage"
	"go.viam.com/stereocal/rimage/detection/chessboard"
	"go.viam.com/stereocal/utils"
)

// MonoCapture holds the views of one camera in which the pattern was found.
type MonoCapture struct {
	Observations ObservationSet
	// Paths[i] is the image Observations[i] comes from.
	Paths     []string
	Rejected  []string
	ImageSize image.Point
}

// StereoCapture holds the pairs in which both cameras found the pattern. Left[i] and Right[i] come from Pairs[i] and
// share their reference point set.
type StereoCapture struct {
	Left      ObservationSet
	Right     ObservationSet
	Pairs     []ImagePair
	Rejected  []ImagePair
	SizeLeft  image.Point
	SizeRight image.Point
}

type detection struct {
	size    image.Point
	corners []r2.Point
	err     error
}

// detectImage reads path and looks for the pattern. Only unreadable images are errors, a missing pattern is
// reported in the detection.
func detectImage(path string, pattern PatternGeometry, cfg chessboard.DetectionConfiguration) (detection, error) {
	gray, err := rimage.ReadGrayFromFile(path)
	if err != nil {
		return detection{}, err
	}
	det := detection{size: gray.Bounds().Size()}
	det.corners, det.err = chessboard.FindCorners(gray, pattern.Rows, pattern.Cols, cfg)
	if det.err != nil && !errors.Is(det.err, chessboard.ErrNotFound) {
		return detection{}, errors.Wrapf(det.err, "detecting chessboard in %s", path)
	}
	return det, nil
}

// detectAll runs f over n inputs with bounded parallelism, results landing at their input index.
func detectAll(ctx context.Context, n int, f func(i int) (detection, error)) ([]detection, error) {
	results := make([]detection, n)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(utils.ParallelFactor)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			det, err := f(i)
			if err != nil {
				return err
			}
			results[i] = det
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// ExtractObservations detects the pattern in every image, skipping the ones where it is not found. All images must
// have the size of the first one.
func ExtractObservations(
	ctx context.Context,
	paths []string,
	pattern PatternGeometry,
	cfg chessboard.DetectionConfiguration,
	logger logging.Logger,
) (*MonoCapture, error) {
	if err := pattern.CheckValid(); err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, NewInsufficientObservationsError("no images to extract corners from")
	}
	results, err := detectAll(ctx, len(paths), func(i int) (detection, error) {
		return detectImage(paths[i], pattern, cfg)
	})
	if err != nil {
		return nil, err
	}

	ref := pattern.ReferencePoints()
	capture := &MonoCapture{ImageSize: results[0].size}
	for i, det := range results {
		if det.size != capture.ImageSize {
			return nil, NewImageSizeMismatchError(paths[i], det.size, capture.ImageSize)
		}
		if det.err != nil {
			logger.Warnw("chessboard not found, skipping image", "image", paths[i], "error", det.err)
			capture.Rejected = append(capture.Rejected, paths[i])
			continue
		}
		logger.Debugw("chessboard found", "image", paths[i])
		capture.Observations = append(capture.Observations, Correspondence{ReferencePoints: ref, ImagePoints: det.corners})
		capture.Paths = append(capture.Paths, paths[i])
	}
	if len(capture.Observations) == 0 {
		return nil, NewInsufficientObservationsError("chessboard not found in any of %d images", len(paths))
	}
	logger.Infow("corners extracted", "accepted", len(capture.Observations), "rejected", len(capture.Rejected))
	return capture, nil
}

// ExtractStereoObservations consumes pairs and keeps those where both images show the pattern. Each side must keep
// the size of its first image.
func ExtractStereoObservations(
	ctx context.Context,
	pairs *ImagePairs,
	pattern PatternGeometry,
	cfg chessboard.DetectionConfiguration,
	logger logging.Logger,
) (*StereoCapture, error) {
	if err := pattern.CheckValid(); err != nil {
		return nil, err
	}
	all := make([]ImagePair, 0, pairs.Len())
	for pair, ok := pairs.Next(); ok; pair, ok = pairs.Next() {
		all = append(all, pair)
	}
	if len(all) == 0 {
		return nil, NewInsufficientObservationsError("no image pairs to extract corners from")
	}
	// even slots hold left images, odd slots right ones
	results, err := detectAll(ctx, 2*len(all), func(i int) (detection, error) {
		pair := all[i/2]
		if i%2 == 0 {
			return detectImage(pair.Left, pattern, cfg)
		}
		return detectImage(pair.Right, pattern, cfg)
	})
	if err != nil {
		return nil, err
	}

	ref := pattern.ReferencePoints()
	capture := &StereoCapture{SizeLeft: results[0].size, SizeRight: results[1].size}
	for i, pair := range all {
		left, right := results[2*i], results[2*i+1]
		if left.size != capture.SizeLeft {
			return nil, NewImageSizeMismatchError(pair.Left, left.size, capture.SizeLeft)
		}
		if right.size != capture.SizeRight {
			return nil, NewImageSizeMismatchError(pair.Right, right.size, capture.SizeRight)
		}
		if left.err != nil || right.err != nil {
			logger.Warnw("chessboard not found in both images, skipping pair",
				"left", pair.Left, "right", pair.Right, "left_found", left.err == nil, "right_found", right.err == nil)
			capture.Rejected = append(capture.Rejected, pair)
			continue
		}
		capture.Left = append(capture.Left, Correspondence{ReferencePoints: ref, ImagePoints: left.corners})
		capture.Right = append(capture.Right, Correspondence{ReferencePoints: ref, ImagePoints: right.corners})
		capture.Pairs = append(capture.Pairs, pair)
	}
	if len(capture.Pairs) == 0 {
		return nil, NewInsufficientObservationsError("chessboard not found in both images of any of %d pairs", len(all))
	}
	logger.Infow("stereo corners extracted", "accepted", len(capture.Pairs), "rejected", len(capture.Rejected))
	return capture, nil
}
