package cli

import (
	"fmt"
	"io"

	"github.com/urfave/cli/v2"

	"go.viam.com/stereocal/logging"
	"go.viam.com/stereocal/rimage/calibrate"
)

// printf prints a message with no prefix.
func printf(w io.Writer, format string, a ...interface{}) {
	//nolint:errcheck
	fmt.Fprintf(w, format+"\n", a...)
}

// newLogger logs to the app's error writer, at debug level when --debug is set.
func newLogger(c *cli.Context, name string) logging.Logger {
	logger := logging.NewBlankLogger(name)
	logger.AddAppender(logging.NewWriterAppender(c.App.ErrWriter))
	if !c.Bool(debugFlag) {
		logger.SetLevel(logging.INFO)
	}
	return logger
}

// loadConfig starts from defaults, applies --config, then every flag the user set.
func loadConfig(c *cli.Context, defaults calibrate.Config) (calibrate.Config, error) {
	cfg := defaults
	if path := c.String(configFlag); path != "" {
		var err error
		if cfg, err = calibrate.LoadConfig(path, defaults); err != nil {
			return calibrate.Config{}, err
		}
	}
	if c.IsSet(widthFlag) {
		cfg.Pattern.Cols = c.Int(widthFlag)
	}
	if c.IsSet(heightFlag) {
		cfg.Pattern.Rows = c.Int(heightFlag)
	}
	if c.IsSet(squareSizeFlag) {
		cfg.Pattern.SquareSize = c.Float64(squareSizeFlag)
	}
	if c.IsSet(pairingFlag) {
		cfg.Pairing = calibrate.PairingPolicy(c.String(pairingFlag))
	}
	if c.IsSet(fixIntrinsic) {
		cfg.Stereo.FixIntrinsic = c.Bool(fixIntrinsic)
	}
	if c.IsSet(alphaFlag) {
		cfg.Rectify.Alpha = c.Float64(alphaFlag)
	}
	return cfg, cfg.CheckValid()
}
