// Package cli implements the stereocal command line.
package cli

import (
	"io"

	"github.com/urfave/cli/v2"
)

const (
	// Flags.
	configFlag      = "config"
	debugFlag       = "debug"
	imageDirFlag    = "image-dir"
	imageFormatFlag = "image-format"
	prefixFlag      = "prefix"
	squareSizeFlag  = "square-size"
	widthFlag       = "width"
	heightFlag      = "height"
	saveFileFlag    = "save-file"
	paramLeftFlag   = "param-l"
	paramRightFlag  = "param-r"
	dirLeftFlag     = "dir-l"
	dirRightFlag    = "dir-r"
	prefixLeftFlag  = "prefix-l"
	prefixRightFlag = "prefix-r"
	saveLeftFlag    = "save-file-l"
	saveRightFlag   = "save-file-r"
	pairingFlag     = "pairing"
	fixIntrinsic    = "fix-intrinsic"
	loadFileFlag    = "load-file"
	outputDirFlag   = "output-dir"
	alphaFlag       = "alpha"
)

func patternFlags(width, height int, square float64) []cli.Flag {
	return []cli.Flag{
		&cli.Float64Flag{
			Name:  squareSizeFlag,
			Usage: "chessboard square size, in the unit of the calibration",
			Value: square,
		},
		&cli.IntFlag{
			Name:  widthFlag,
			Usage: "number of interior corners along the chessboard width",
			Value: width,
		},
		&cli.IntFlag{
			Name:  heightFlag,
			Usage: "number of interior corners along the chessboard height",
			Value: height,
		},
	}
}

func stereoDirFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  dirLeftFlag,
			Usage: "left images directory",
			Value: "CalibDataStereo/left",
		},
		&cli.StringFlag{
			Name:  dirRightFlag,
			Usage: "right images directory",
			Value: "CalibDataStereo/right",
		},
		&cli.StringFlag{
			Name:  prefixLeftFlag,
			Usage: "left image name prefix",
		},
		&cli.StringFlag{
			Name:  prefixRightFlag,
			Usage: "right image name prefix",
		},
		&cli.StringFlag{
			Name:  imageFormatFlag,
			Usage: "image file extension, png/jpg/...",
			Value: "png",
		},
		&cli.StringFlag{
			Name:  pairingFlag,
			Usage: "what to do when the directories hold different numbers of images: strict or truncate",
		},
	}
}

var app = &cli.App{
	Name:            "stereocal",
	Usage:           "calibrate cameras and stereo rigs from chessboard images",
	HideHelpCommand: true,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:      configFlag,
			Aliases:   []string{"c"},
			Usage:     "load calibration settings from `FILE`",
			TakesFile: true,
		},
		&cli.BoolFlag{
			Name:    debugFlag,
			Aliases: []string{"vvv"},
			Usage:   "enable debug logging",
		},
	},
	Commands: []*cli.Command{
		{
			Name:      "mono",
			Usage:     "calibrate a single camera",
			UsageText: "stereocal mono --image-dir CalibDataMono --width 8 --height 5 --square-size 27",
			Flags: append([]cli.Flag{
				&cli.StringFlag{
					Name:  imageDirFlag,
					Usage: "images directory",
					Value: "CalibDataMono",
				},
				&cli.StringFlag{
					Name:  imageFormatFlag,
					Usage: "image file extension, png/jpg/...",
					Value: "png",
				},
				&cli.StringFlag{
					Name:  prefixFlag,
					Usage: "image name prefix",
				},
				&cli.StringFlag{
					Name:      saveFileFlag,
					Usage:     "YAML file receiving the camera matrix and distortion",
					Value:     "monoCalibParam.yml",
					TakesFile: true,
				},
			}, patternFlags(8, 5, 27)...),
			Action: MonoAction,
		},
		{
			Name:  "stereo",
			Usage: "calibrate a stereo rig",
			Description: `Without --param-l and --param-r each camera is first calibrated alone from every image of its
directory, and its parameters are written to --save-file-l and --save-file-r.`,
			Flags: append(append(stereoDirFlags(),
				&cli.StringFlag{
					Name:      paramLeftFlag,
					Usage:     "left camera parameter file",
					TakesFile: true,
				},
				&cli.StringFlag{
					Name:      paramRightFlag,
					Usage:     "right camera parameter file",
					TakesFile: true,
				},
				&cli.StringFlag{
					Name:      saveFileFlag,
					Usage:     "YAML file receiving the stereo calibration",
					Value:     "stereoCalibParam.yml",
					TakesFile: true,
				},
				&cli.StringFlag{
					Name:  saveLeftFlag,
					Usage: "YAML file receiving the left camera calibration",
					Value: "stereoCalibParamL.yml",
				},
				&cli.StringFlag{
					Name:  saveRightFlag,
					Usage: "YAML file receiving the right camera calibration",
					Value: "stereoCalibParamR.yml",
				},
				&cli.BoolFlag{
					Name:  fixIntrinsic,
					Usage: "keep both cameras' intrinsics and only estimate the rig",
				},
			), patternFlags(11, 8, 20)...),
			Action: StereoAction,
		},
		{
			Name:  "rectify",
			Usage: "compute the rectification of a stereo calibration and rectify image pairs",
			Flags: append(stereoDirFlags(),
				&cli.StringFlag{
					Name:      loadFileFlag,
					Usage:     "stereo calibration file",
					Value:     "./stereoCalibParam.yml",
					TakesFile: true,
				},
				&cli.StringFlag{
					Name:      saveFileFlag,
					Usage:     "YAML file receiving the calibration with its rectification",
					Value:     "./RectifyStereoCalibParam.yml",
					TakesFile: true,
				},
				&cli.StringFlag{
					Name:  outputDirFlag,
					Usage: "directory receiving left/ and right/ rectified images",
					Value: "RectifyDataStereo",
				},
				&cli.Float64Flag{
					Name:  alphaFlag,
					Usage: "0 keeps only valid pixels, 1 keeps every source pixel, negative skips scaling",
				},
			),
			Action: RectifyAction,
		},
	},
}

// NewApp returns a new app with the CLI API, Writer set to out, and ErrWriter
// set to errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	app.Writer = out
	app.ErrWriter = errOut
	return app
}
