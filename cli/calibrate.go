package cli

import (
	"github.com/urfave/cli/v2"

	"go.viam.com/stereocal/rimage/calibrate"
)

// MonoAction calibrates a single camera from the chessboard images of a directory.
func MonoAction(c *cli.Context) error {
	cfg, err := loadConfig(c, calibrate.DefaultMonoConfig())
	if err != nil {
		return err
	}
	logger := newLogger(c, "mono")
	out, err := calibrate.MonoCalibrate(c.Context, calibrate.MonoRequest{
		ImageDir:    c.String(imageDirFlag),
		Prefix:      c.String(prefixFlag),
		ImageFormat: c.String(imageFormatFlag),
		SaveFile:    c.String(saveFileFlag),
		Config:      cfg,
	}, logger)
	if err != nil {
		return err
	}
	report, err := monoReport(out)
	if err != nil {
		return err
	}
	printf(c.App.Writer, "%s", report)
	printSaved(c)
	return nil
}

// StereoAction calibrates a stereo rig from the chessboard image pairs of two directories.
func StereoAction(c *cli.Context) error {
	cfg, err := loadConfig(c, calibrate.DefaultStereoConfig())
	if err != nil {
		return err
	}
	logger := newLogger(c, "stereo")
	out, err := calibrate.StereoCalibrate(c.Context, calibrate.StereoRequest{
		DirLeft:       c.String(dirLeftFlag),
		DirRight:      c.String(dirRightFlag),
		PrefixLeft:    c.String(prefixLeftFlag),
		PrefixRight:   c.String(prefixRightFlag),
		ImageFormat:   c.String(imageFormatFlag),
		ParamLeft:     c.String(paramLeftFlag),
		ParamRight:    c.String(paramRightFlag),
		SaveFile:      c.String(saveFileFlag),
		SaveFileLeft:  c.String(saveLeftFlag),
		SaveFileRight: c.String(saveRightFlag),
		Config:        cfg,
	}, logger)
	if err != nil {
		return err
	}
	report, err := stereoReport(out)
	if err != nil {
		return err
	}
	printf(c.App.Writer, "%s", report)
	printSaved(c)
	return nil
}

// RectifyAction computes the rectification of a stereo calibration file and rectifies the image pairs.
func RectifyAction(c *cli.Context) error {
	cfg, err := loadConfig(c, calibrate.DefaultStereoConfig())
	if err != nil {
		return err
	}
	logger := newLogger(c, "rectify")
	out, err := calibrate.Rectify(c.Context, calibrate.RectifyRequest{
		DirLeft:     c.String(dirLeftFlag),
		DirRight:    c.String(dirRightFlag),
		PrefixLeft:  c.String(prefixLeftFlag),
		PrefixRight: c.String(prefixRightFlag),
		ImageFormat: c.String(imageFormatFlag),
		LoadFile:    c.String(loadFileFlag),
		SaveFile:    c.String(saveFileFlag),
		OutputDir:   c.String(outputDirFlag),
		Config:      cfg,
	}, logger)
	if err != nil {
		return err
	}
	printf(c.App.Writer, "%s", rectifyReport(out))
	printSaved(c)
	return nil
}

// printSaved reports where the parameters went, when a save file was asked for.
func printSaved(c *cli.Context) {
	if path := c.String(saveFileFlag); path != "" {
		printf(c.App.Writer, "saved to %s", path)
	}
}
