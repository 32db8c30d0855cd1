package calibrate

import (
	"image"
	"math"

	"github.com/pkg/errors"

	"go.viam.com/stereocal/logging"
	"go.viam.com/stereocal/rimage/transform"
	"go.viam.com/stereocal/utils"
)

// MonoOptions controls which parameters a single camera calibration estimates.
type MonoOptions struct {
	// FixPrincipalPoint keeps the principal point at the image center, or at the guess when there is one.
	FixPrincipalPoint bool `json:"fix-principal-point" yaml:"fix-principal-point" mapstructure:"fix-principal-point"`
	// FixAspectRatio keeps fx/fy at the guess ratio, 1 without a guess.
	FixAspectRatio  bool `json:"fix-aspect-ratio" yaml:"fix-aspect-ratio" mapstructure:"fix-aspect-ratio"`
	ZeroTangentDist bool `json:"zero-tangent-dist" yaml:"zero-tangent-dist" mapstructure:"zero-tangent-dist"`
	FixK3           bool `json:"fix-k3" yaml:"fix-k3" mapstructure:"fix-k3"`
	// UseIntrinsicGuess starts the refinement from Guess instead of estimating the camera from the homographies.
	UseIntrinsicGuess bool              `json:"use-intrinsic-guess" yaml:"use-intrinsic-guess" mapstructure:"use-intrinsic-guess"`
	Guess             *CameraIntrinsics `json:"-" yaml:"-" mapstructure:"-"`
	Criteria          TermCriteria      `json:"criteria" yaml:"criteria" mapstructure:"criteria"`
}

// DefaultMonoOptions estimates every parameter but k3, which a planar target cannot pin down at common view counts.
var DefaultMonoOptions = MonoOptions{FixK3: true, Criteria: DefaultSolverCriteria}

// CalibrateMono estimates the intrinsics, distortion and per-view board poses of a camera from planar views taken
// at the given image size.
func CalibrateMono(obs ObservationSet, size image.Point, opts MonoOptions, logger logging.Logger) (*MonoCalibration, error) {
	if err := obs.CheckValid(); err != nil {
		return nil, err
	}
	if size.X <= 0 || size.Y <= 0 {
		return nil, errors.Errorf("invalid image size %v", size)
	}
	if opts.Guess != nil {
		if err := opts.Guess.CheckValid(); err != nil {
			return nil, errors.Wrap(err, "intrinsic guess")
		}
	}

	var intr CameraIntrinsics
	switch {
	case opts.UseIntrinsicGuess:
		if opts.Guess == nil {
			return nil, transform.NewNoIntrinsicsError("intrinsic guess requested without one")
		}
		intr = NewCameraIntrinsics(opts.Guess.Matrix.At(0, 0), opts.Guess.Matrix.At(1, 1),
			opts.Guess.Matrix.At(0, 2), opts.Guess.Matrix.At(1, 2), opts.Guess.Distortion)
	default:
		aspect := 0.
		if opts.FixAspectRatio {
			aspect = 1
			if opts.Guess != nil {
				aspect = opts.Guess.Matrix.At(0, 0) / opts.Guess.Matrix.At(1, 1)
			}
		}
		var err error
		intr, err = initialIntrinsics(obs, size, opts.Guess, aspect)
		if err != nil {
			return nil, err
		}
	}
	logger.Debugw("initial intrinsics", "fx", intr.Matrix.At(0, 0), "fy", intr.Matrix.At(1, 1),
		"cx", intr.Matrix.At(0, 2), "cy", intr.Matrix.At(1, 2))

	poses, err := initialPoses(obs, intr, size)
	if err != nil {
		return nil, err
	}

	template := intr.vector()
	for _, pose := range poses {
		if template, err = appendPose(template, pose); err != nil {
			return nil, err
		}
	}
	layout := newParamLayout(template)
	layout.addIntrinsics(0, opts)
	for v := range obs {
		layout.setFree(numIntrinsics+v*numPose, 0, 1, 2, 3, 4, 5)
	}

	n := obs.NumPoints()
	residuals := func(dst, x []float64) {
		full := layout.expand(x)
		k := 0
		for v, c := range obs {
			pose := poseAt(full, numIntrinsics+v*numPose)
			for j, p := range c.ReferencePoints {
				proj := projectWith(full[:numIntrinsics], pose.Rotation, pose.Translation, p)
				dst[k] = proj.X - c.ImagePoints[j].X
				dst[k+1] = proj.Y - c.ImagePoints[j].Y
				k += 2
			}
		}
	}
	res, err := levenbergMarquardt(residuals, 2*n, layout.initial(), opts.Criteria)
	if err != nil {
		return nil, err
	}

	full := layout.expand(res.X)
	if !utils.IsFinite(full...) || full[0] <= 0 || full[1] <= 0 {
		return nil, NewDegenerateGeometryError("calibration diverged to fx=%v fy=%v", full[0], full[1])
	}
	out := &MonoCalibration{
		ImageSize:     size,
		Intrinsics:    intrinsicsFromVector(full),
		Poses:         make([]*transform.CamPose, len(obs)),
		PerViewErrors: make([]float64, len(obs)),
		RMS:           math.Sqrt(res.Cost / float64(n)),
	}
	r := make([]float64, 2*n)
	residuals(r, res.X)
	k := 0
	for v, c := range obs {
		out.Poses[v] = poseAt(full, numIntrinsics+v*numPose)
		sum := 0.
		for range c.ImagePoints {
			sum += r[k]*r[k] + r[k+1]*r[k+1]
			k += 2
		}
		out.PerViewErrors[v] = math.Sqrt(sum / float64(len(c.ImagePoints)))
	}
	logger.Infow("mono calibration done", "views", len(obs), "rms", out.RMS, "iterations", res.Iterations)
	return out, nil
}
