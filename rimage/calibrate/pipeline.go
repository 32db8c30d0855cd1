package calibrate

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"go.viam.com/stereocal/logging"
	"go.viam.com/stereocal/rimage"
	"go.viam.com/stereocal/rimage/transform"
)

// MonoRequest describes a single camera calibration run.
type MonoRequest struct {
	ImageDir    string
	Prefix      string
	ImageFormat string
	// SaveFile receives the parameters; nothing is written when empty.
	SaveFile string
	Config   Config
}

// MonoOutcome is the calibration together with the views it was computed from.
type MonoOutcome struct {
	Calibration *MonoCalibration
	Capture     *MonoCapture
}

// MonoCalibrate lists the images, extracts the corners, calibrates and saves the parameters.
func MonoCalibrate(ctx context.Context, req MonoRequest, logger logging.Logger) (*MonoOutcome, error) {
	if err := req.Config.CheckValid(); err != nil {
		return nil, err
	}
	paths, err := ListImages(req.ImageDir, req.Prefix, req.ImageFormat)
	if err != nil {
		return nil, err
	}
	logger.Infow("calibrating camera", "dir", req.ImageDir, "images", len(paths))
	capture, err := ExtractObservations(ctx, paths, req.Config.Pattern, req.Config.Detection, logger)
	if err != nil {
		return nil, err
	}
	calib, err := CalibrateMono(capture.Observations, capture.ImageSize, req.Config.Mono, logger)
	if err != nil {
		return nil, err
	}
	if req.SaveFile != "" {
		if err := SaveMono(req.SaveFile, calib); err != nil {
			return nil, err
		}
		logger.Infow("saved mono parameters", "file", req.SaveFile)
	}
	return &MonoOutcome{Calibration: calib, Capture: capture}, nil
}

// StereoRequest describes a stereo calibration run. When ParamLeft and ParamRight are set the cameras start from
// those mono parameter files, which must match the image size when they record one. Otherwise each camera is first
// calibrated alone from every image of its directory and, once the stereo calibration succeeded, the results are
// written to SaveFileLeft and SaveFileRight.
type StereoRequest struct {
	DirLeft, DirRight       string
	PrefixLeft, PrefixRight string
	ImageFormat             string
	ParamLeft, ParamRight   string
	SaveFile                string
	SaveFileLeft            string
	SaveFileRight           string
	Config                  Config
}

// StereoOutcome is the stereo calibration with the per-camera calibrations it started from, when they were run.
type StereoOutcome struct {
	Calibration *StereoCalibration
	Capture     *StereoCapture
	Left, Right *MonoCalibration
}

// StereoCalibrate pairs the images, extracts the corners, gets each camera's intrinsics, calibrates the rig and saves
// the parameters.
func StereoCalibrate(ctx context.Context, req StereoRequest, logger logging.Logger) (*StereoOutcome, error) {
	cfg := req.Config
	if err := cfg.CheckValid(); err != nil {
		return nil, err
	}
	if (req.ParamLeft == "") != (req.ParamRight == "") {
		return nil, errors.New("left and right parameter files must be given together")
	}
	pairs, err := LoadStereoImages(req.DirLeft, req.DirRight, req.PrefixLeft, req.PrefixRight, req.ImageFormat, cfg.Pairing)
	if err != nil {
		return nil, err
	}
	logger.Infow("calibrating stereo rig", "left", req.DirLeft, "right", req.DirRight, "pairs", pairs.Len(),
		"pairing", cfg.Pairing)
	capture, err := ExtractStereoObservations(ctx, pairs, cfg.Pattern, cfg.Detection, logger)
	if err != nil {
		return nil, err
	}

	out := &StereoOutcome{Capture: capture}
	calibrated := req.ParamLeft == ""
	if !calibrated {
		if out.Left, err = loadCameraFor(req.ParamLeft, capture.SizeLeft); err != nil {
			return nil, err
		}
		if out.Right, err = loadCameraFor(req.ParamRight, capture.SizeRight); err != nil {
			return nil, err
		}
		logger.Infow("loaded camera parameters", "left", req.ParamLeft, "right", req.ParamRight)
	} else {
		side := func(name, dir, prefix string, opts MonoOptions) (*MonoCalibration, error) {
			sideCfg := cfg
			sideCfg.Mono = opts
			res, err := MonoCalibrate(ctx, MonoRequest{
				ImageDir:    dir,
				Prefix:      prefix,
				ImageFormat: req.ImageFormat,
				Config:      sideCfg,
			}, logger.Sublogger(name))
			if err != nil {
				return nil, errors.Wrapf(err, "%s camera", name)
			}
			return res.Calibration, nil
		}
		if out.Left, err = side("left", req.DirLeft, req.PrefixLeft, cfg.Stereo.Left); err != nil {
			return nil, err
		}
		if out.Right, err = side("right", req.DirRight, req.PrefixRight, cfg.Stereo.Right); err != nil {
			return nil, err
		}
	}

	out.Calibration, err = CalibrateStereo(capture.Left, capture.Right, capture.SizeLeft, capture.SizeRight,
		out.Left.Intrinsics, out.Right.Intrinsics, cfg.Stereo, logger)
	if err != nil {
		return nil, err
	}

	// nothing is written before the whole run succeeded
	if req.SaveFile != "" {
		if err := SaveStereo(req.SaveFile, out.Calibration); err != nil {
			return nil, err
		}
		logger.Infow("saved stereo parameters", "file", req.SaveFile)
	}
	if calibrated {
		for _, side := range []struct {
			path  string
			calib *MonoCalibration
		}{{req.SaveFileLeft, out.Left}, {req.SaveFileRight, out.Right}} {
			if side.path == "" {
				continue
			}
			if err := SaveMono(side.path, side.calib); err != nil {
				return nil, err
			}
			logger.Infow("saved mono parameters", "file", side.path)
		}
	}
	return out, nil
}

// loadCameraFor loads a mono parameter file and checks it was calibrated at the resolution of the images.
// Files without a size are accepted.
func loadCameraFor(path string, size image.Point) (*MonoCalibration, error) {
	calib, err := LoadMono(path)
	if err != nil {
		return nil, err
	}
	if calib.ImageSize != (image.Point{}) && calib.ImageSize != size {
		return nil, NewImageSizeMismatchError(path, calib.ImageSize, size)
	}
	return calib, nil
}

// RectifyRequest describes a rectification run: LoadFile holds a stereo calibration, SaveFile receives it with the
// rectification, and every pair of DirLeft/DirRight is rectified into OutputDir/left and OutputDir/right.
type RectifyRequest struct {
	DirLeft, DirRight       string
	PrefixLeft, PrefixRight string
	ImageFormat             string
	LoadFile                string
	SaveFile                string
	OutputDir               string
	Config                  Config
}

// RectifyOutcome lists the rectified images written for each pair.
type RectifyOutcome struct {
	Calibration *RectifiedStereoCalibration
	Written     []ImagePair
}

// Rectify plans the rectification of a stereo calibration, rectifies the image pairs and saves the rectification
// last, so a failed run leaves no parameter file.
func Rectify(ctx context.Context, req RectifyRequest, logger logging.Logger) (*RectifyOutcome, error) {
	if err := req.Config.Pairing.CheckValid(); err != nil {
		return nil, err
	}
	calib, err := LoadStereo(req.LoadFile)
	if err != nil {
		return nil, err
	}
	camL, camR, err := calib.Models()
	if err != nil {
		return nil, err
	}
	maps, err := transform.PlanRectification(camL, camR, calib.ImageSize, calib.Extrinsics.R, calib.Extrinsics.T,
		req.Config.Rectify)
	if err != nil {
		return nil, err
	}
	out := &RectifyOutcome{Calibration: &RectifiedStereoCalibration{StereoCalibration: calib, Maps: maps}}

	if req.OutputDir != "" {
		pairs, err := LoadStereoImages(req.DirLeft, req.DirRight, req.PrefixLeft, req.PrefixRight, req.ImageFormat,
			req.Config.Pairing)
		if err != nil {
			return nil, err
		}
		leftDir, rightDir := filepath.Join(req.OutputDir, "left"), filepath.Join(req.OutputDir, "right")
		for _, dir := range []string{leftDir, rightDir} {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, err
			}
		}
		for pair, ok := pairs.Next(); ok; pair, ok = pairs.Next() {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			written, err := rectifyPair(out.Calibration, pair, leftDir, rightDir)
			if err != nil {
				return nil, err
			}
			logger.Debugw("rectified pair", "left", pair.Left, "right", pair.Right)
			out.Written = append(out.Written, written)
		}
		logger.Infow("rectified images", "pairs", len(out.Written), "dir", req.OutputDir)
	}

	if req.SaveFile != "" {
		if err := SaveRectified(req.SaveFile, out.Calibration); err != nil {
			return nil, err
		}
		logger.Infow("saved rectified parameters", "file", req.SaveFile)
	}
	return out, nil
}

func rectifyPair(calib *RectifiedStereoCalibration, pair ImagePair, leftDir, rightDir string) (ImagePair, error) {
	left, err := rimage.ReadImageFromFile(pair.Left)
	if err != nil {
		return ImagePair{}, err
	}
	right, err := rimage.ReadImageFromFile(pair.Right)
	if err != nil {
		return ImagePair{}, err
	}
	rectL, rectR, err := calib.Maps.RectifyPair(left, right)
	if err != nil {
		return ImagePair{}, errors.Wrapf(err, "pair %s, %s", pair.Left, pair.Right)
	}
	name := fmt.Sprintf("%d.png", pair.Index)
	written := ImagePair{Index: pair.Index, Left: filepath.Join(leftDir, name), Right: filepath.Join(rightDir, name)}
	if err := rimage.WriteImageToFile(written.Left, rectL); err != nil {
		return ImagePair{}, err
	}
	if err := rimage.WriteImageToFile(written.Right, rectR); err != nil {
		return ImagePair{}, err
	}
	return written, nil
}
