package calibrate

import (
	"os"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"go.viam.com/stereocal/rimage/detection/chessboard"
	"go.viam.com/stereocal/rimage/transform"
)

// Config gathers every tunable of the calibration pipelines.
type Config struct {
	Pattern   PatternGeometry                   `json:"pattern" yaml:"pattern" mapstructure:"pattern"`
	Detection chessboard.DetectionConfiguration `json:"detection" yaml:"detection" mapstructure:"detection"`
	Mono      MonoOptions                       `json:"mono" yaml:"mono" mapstructure:"mono"`
	Stereo    StereoOptions                     `json:"stereo" yaml:"stereo" mapstructure:"stereo"`
	Rectify   transform.RectifyOptions          `json:"rectify" yaml:"rectify" mapstructure:"rectify"`
	Pairing   PairingPolicy                     `json:"pairing" yaml:"pairing" mapstructure:"pairing"`
}

// DefaultMonoConfig returns the settings of a single camera calibration: an 8x5 corner board with 27mm squares and
// a refinement window of half size 11.
func DefaultMonoConfig() Config {
	cfg := defaultConfig()
	cfg.Pattern = PatternGeometry{Rows: 5, Cols: 8, SquareSize: 27}
	cfg.Detection.SubPixel = DefaultCornerCriteria.SubPixel(11)
	return cfg
}

// DefaultStereoConfig returns the settings of a stereo calibration: an 11x8 corner board with 20mm squares and a refinement
// window of half size 5.
func DefaultStereoConfig() Config {
	cfg := defaultConfig()
	cfg.Pattern = PatternGeometry{Rows: 8, Cols: 11, SquareSize: 20}
	cfg.Detection.SubPixel = DefaultCornerCriteria.SubPixel(5)
	return cfg
}

func defaultConfig() Config {
	return Config{
		Detection: chessboard.DefaultDetectionConfiguration,
		Mono:      DefaultMonoOptions,
		Stereo:    DefaultStereoOptions,
		Rectify:   transform.DefaultRectifyOptions,
		Pairing:   PairStrict,
	}
}

// CheckValid validates the pattern and the pairing policy.
func (c Config) CheckValid() error {
	if err := c.Pattern.CheckValid(); err != nil {
		return err
	}
	if c.Detection.SubPixel.HalfWindow < 1 {
		return errors.Errorf("corner refinement half window must be at least 1, got %d", c.Detection.SubPixel.HalfWindow)
	}
	return c.Pairing.CheckValid()
}

// LoadConfig reads a YAML or JSON file and applies the keys it sets over defaults. Unknown keys are an error.
func LoadConfig(path string, defaults Config) (Config, error) {
	//nolint:gosec
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	raw := map[string]interface{}{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Config{}, errors.Wrapf(err, "cannot parse config %q", path)
	}
	cfg := defaults
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "mapstructure",
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           &cfg,
	})
	if err != nil {
		return Config{}, err
	}
	if err := decoder.Decode(raw); err != nil {
		return Config{}, errors.Wrapf(err, "invalid config %q", path)
	}
	if err := cfg.CheckValid(); err != nil {
		return Config{}, errors.Wrapf(err, "invalid config %q", path)
	}
	return cfg, nil
}
