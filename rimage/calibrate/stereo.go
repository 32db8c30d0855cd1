package calibrate

import (
	"image"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/stereocal/logging"
	"go.viam.com/stereocal/rimage/transform"
	"go.viam.com/stereocal/utils"
)

// StereoOptions controls the joint calibration of a camera pair.
type StereoOptions struct {
	// FixIntrinsic keeps both cameras at their initial intrinsics and only estimates the rig.
	FixIntrinsic bool `json:"fix-intrinsic" yaml:"fix-intrinsic" mapstructure:"fix-intrinsic"`
	// SameFocalLength forces the right camera to share the focal lengths of the left one.
	SameFocalLength bool `json:"same-focal-length" yaml:"same-focal-length" mapstructure:"same-focal-length"`
	// Left and Right hold the per-camera flags, used for the mono calibrations and the joint refinement.
	Left     MonoOptions  `json:"left" yaml:"left" mapstructure:"left"`
	Right    MonoOptions  `json:"right" yaml:"right" mapstructure:"right"`
	Criteria TermCriteria `json:"criteria" yaml:"criteria" mapstructure:"criteria"`
}

// DefaultStereoOptions refines the rig and both cameras with DefaultMonoOptions.
var DefaultStereoOptions = StereoOptions{
	Left:     DefaultMonoOptions,
	Right:    DefaultMonoOptions,
	Criteria: DefaultSolverCriteria,
}

const (
	stereoRightOffset = numIntrinsics
	stereoRigOffset   = 2 * numIntrinsics
	stereoPoseOffset  = stereoRigOffset + numPose
)

func checkStereoObservations(left, right ObservationSet) error {
	if err := left.CheckValid(); err != nil {
		return errors.Wrap(err, "left")
	}
	if err := right.CheckValid(); err != nil {
		return errors.Wrap(err, "right")
	}
	if len(left) != len(right) {
		return NewObservationMismatchError("%d left views, %d right views", len(left), len(right))
	}
	for i := range left {
		if len(left[i].ImagePoints) != len(right[i].ImagePoints) {
			return NewObservationMismatchError("pair %d: %d left points, %d right points",
				i, len(left[i].ImagePoints), len(right[i].ImagePoints))
		}
		for j, p := range left[i].ReferencePoints {
			if p != right[i].ReferencePoints[j] {
				return NewObservationMismatchError("pair %d: reference point %d differs between cameras", i, j)
			}
		}
	}
	return nil
}

// medianRelativePose takes the per-component median of the right-from-left poses of every view.
func medianRelativePose(posesL, posesR []*transform.CamPose) (r3.Vector, r3.Vector, error) {
	comps := make([][]float64, numPose)
	for i := range posesL {
		rel := transform.RelativePose(posesL[i], posesR[i])
		rvec, err := rel.RotationVector()
		if err != nil {
			return r3.Vector{}, r3.Vector{}, err
		}
		for k, v := range []float64{rvec.X, rvec.Y, rvec.Z, rel.Translation.X, rel.Translation.Y, rel.Translation.Z} {
			comps[k] = append(comps[k], v)
		}
	}
	med := make([]float64, numPose)
	for k, c := range comps {
		m, err := stats.Median(c)
		if err != nil {
			return r3.Vector{}, r3.Vector{}, err
		}
		med[k] = m
	}
	return r3.Vector{X: med[0], Y: med[1], Z: med[2]}, r3.Vector{X: med[3], Y: med[4], Z: med[5]}, nil
}

// CalibrateStereo jointly estimates the rotation R and translation T taking left camera coordinates into the right
// camera, the left board poses and, unless opts.FixIntrinsic, both cameras' intrinsics starting from initL and
// initR. left[i] and right[i] must be the same board seen by both cameras.
func CalibrateStereo(
	left, right ObservationSet,
	sizeL, sizeR image.Point,
	initL, initR CameraIntrinsics,
	opts StereoOptions,
	logger logging.Logger,
) (*StereoCalibration, error) {
	if err := checkStereoObservations(left, right); err != nil {
		return nil, err
	}
	if sizeL != sizeR {
		return nil, errors.Wrapf(ErrImageSizeMismatch, "left images are %v, right images are %v", sizeL, sizeR)
	}
	size := sizeL
	if err := initL.CheckValid(); err != nil {
		return nil, errors.Wrap(err, "left intrinsics")
	}
	if err := initR.CheckValid(); err != nil {
		return nil, errors.Wrap(err, "right intrinsics")
	}

	posesL, err := initialPoses(left, initL, size)
	if err != nil {
		return nil, errors.Wrap(err, "left")
	}
	posesR, err := initialPoses(right, initR, size)
	if err != nil {
		return nil, errors.Wrap(err, "right")
	}
	rvec, tvec, err := medianRelativePose(posesL, posesR)
	if err != nil {
		return nil, err
	}
	logger.Debugw("initial rig", "rvec", rvec, "t", tvec)

	template := append(initL.vector(), initR.vector()...)
	template = append(template, rvec.X, rvec.Y, rvec.Z, tvec.X, tvec.Y, tvec.Z)
	for _, pose := range posesL {
		if template, err = appendPose(template, pose); err != nil {
			return nil, err
		}
	}
	layout := newParamLayout(template)
	if !opts.FixIntrinsic {
		layout.addIntrinsics(0, opts.Left)
		rightOpts := opts.Right
		if opts.SameFocalLength {
			// right focal lengths follow the left ones
			layout.template[stereoRightOffset], layout.template[stereoRightOffset+1] = template[0], template[1]
			free := lo.Filter(rightOpts.freeIntrinsics(), func(i, _ int) bool { return i > 1 })
			if rightOpts.ZeroTangentDist {
				layout.template[stereoRightOffset+6], layout.template[stereoRightOffset+7] = 0, 0
			}
			layout.setFree(stereoRightOffset, free...)
			layout.tie(func(full []float64) {
				full[stereoRightOffset], full[stereoRightOffset+1] = full[0], full[1]
			})
		} else {
			layout.addIntrinsics(stereoRightOffset, rightOpts)
		}
	}
	layout.setFree(stereoRigOffset, 0, 1, 2, 3, 4, 5)
	for v := range left {
		layout.setFree(stereoPoseOffset+v*numPose, 0, 1, 2, 3, 4, 5)
	}

	n := left.NumPoints()
	residuals := func(dst, x []float64) {
		full := layout.expand(x)
		rig := poseAt(full, stereoRigOffset)
		k := 0
		for v := range left {
			poseL := poseAt(full, stereoPoseOffset+v*numPose)
			poseR := poseL.Compose(rig)
			for j, p := range left[v].ReferencePoints {
				pl := projectWith(full[:numIntrinsics], poseL.Rotation, poseL.Translation, p)
				pr := projectWith(full[stereoRightOffset:stereoRigOffset], poseR.Rotation, poseR.Translation, p)
				dst[k] = pl.X - left[v].ImagePoints[j].X
				dst[k+1] = pl.Y - left[v].ImagePoints[j].Y
				dst[k+2] = pr.X - right[v].ImagePoints[j].X
				dst[k+3] = pr.Y - right[v].ImagePoints[j].Y
				k += 4
			}
		}
	}
	res, err := levenbergMarquardt(residuals, 4*n, layout.initial(), opts.Criteria)
	if err != nil {
		return nil, err
	}

	full := layout.expand(res.X)
	if !utils.IsFinite(full...) || full[0] <= 0 || full[1] <= 0 ||
		full[stereoRightOffset] <= 0 || full[stereoRightOffset+1] <= 0 {
		return nil, NewDegenerateGeometryError("stereo calibration diverged")
	}
	rig := poseAt(full, stereoRigOffset)
	out := &StereoCalibration{
		ImageSize:     size,
		Left:          intrinsicsFromVector(full[:numIntrinsics]),
		Right:         intrinsicsFromVector(full[stereoRightOffset:stereoRigOffset]),
		PerViewErrors: make([][2]float64, len(left)),
		RMS:           math.Sqrt(res.Cost / float64(2*n)),
	}
	out.Extrinsics.R = rig.Rotation
	out.Extrinsics.T = rig.Translation
	out.Extrinsics.E = transform.EssentialMatrix(rig.Rotation, rig.Translation)
	out.Extrinsics.F, err = transform.FundamentalFromEssential(out.Extrinsics.E, out.Left.Matrix, out.Right.Matrix)
	if err != nil {
		return nil, err
	}

	r := make([]float64, 4*n)
	residuals(r, res.X)
	k := 0
	for v := range left {
		var sumL, sumR float64
		for range left[v].ImagePoints {
			sumL += r[k]*r[k] + r[k+1]*r[k+1]
			sumR += r[k+2]*r[k+2] + r[k+3]*r[k+3]
			k += 4
		}
		cnt := float64(len(left[v].ImagePoints))
		out.PerViewErrors[v] = [2]float64{math.Sqrt(sumL / cnt), math.Sqrt(sumR / cnt)}
	}
	if out.EpipolarError, err = epipolarError(out, left, right); err != nil {
		return nil, err
	}
	logger.Infow("stereo calibration done", "pairs", len(left), "rms", out.RMS,
		"epipolar_error", out.EpipolarError, "iterations", res.Iterations)
	return out, nil
}

// epipolarError is the mean symmetric distance of the undistorted corners to their epipolar lines, in pixels.
func epipolarError(calib *StereoCalibration, left, right ObservationSet) (float64, error) {
	camL, camR, err := calib.Models()
	if err != nil {
		return 0, err
	}
	var dists []float64
	for v := range left {
		pl := camL.UndistortPoints(left[v].ImagePoints, nil, calib.Left.Matrix)
		pr := camR.UndistortPoints(right[v].ImagePoints, nil, calib.Right.Matrix)
		dists = append(dists, pairDistances(calib.Extrinsics.F, pl, pr)...)
	}
	return stats.Mean(dists)
}

func pairDistances(f *mat.Dense, pl, pr []r2.Point) []float64 {
	out := make([]float64, len(pl))
	for i := range pl {
		out[i] = transform.SymmetricEpipolarDistance(f, pl[i], pr[i])
	}
	return out
}
