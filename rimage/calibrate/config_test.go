package calibrate

import (
	"os"
	"path/filepath"
	"testing"

	"go.viam.com/test"

	"go.viam.com/stereocal/rimage/detection/chessboard"
	"go.viam.com/stereocal/rimage/transform"
)

func writeConfig(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	test.That(t, os.WriteFile(path, []byte(doc), 0o600), test.ShouldBeNil)
	return path
}

func TestDefaultConfigs(t *testing.T) {
	mono := DefaultMonoConfig()
	test.That(t, mono.CheckValid(), test.ShouldBeNil)
	test.That(t, mono.Pattern, test.ShouldResemble, PatternGeometry{Rows: 5, Cols: 8, SquareSize: 27})
	test.That(t, mono.Detection.SubPixel.HalfWindow, test.ShouldEqual, 11)
	test.That(t, mono.Detection.SubPixel.MaxIterations, test.ShouldEqual, 30)

	stereo := DefaultStereoConfig()
	test.That(t, stereo.CheckValid(), test.ShouldBeNil)
	test.That(t, stereo.Pattern, test.ShouldResemble, PatternGeometry{Rows: 8, Cols: 11, SquareSize: 20})
	test.That(t, stereo.Detection.SubPixel.HalfWindow, test.ShouldEqual, 5)
	test.That(t, stereo.Pairing, test.ShouldEqual, PairStrict)
	test.That(t, stereo.Rectify, test.ShouldResemble, transform.DefaultRectifyOptions)
	test.That(t, stereo.Stereo.FixIntrinsic, test.ShouldBeFalse)
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
pattern:
  rows: 6
  cols: 9
  square-size: 24.5
detection:
  saddle:
    blur-sigma: 1.5
  subpixel:
    half-window: 7
mono:
  fix-k3: true
  criteria:
    max-iterations: 50
stereo:
  fix-intrinsic: true
  right:
    zero-tangent-dist: true
rectify:
  alpha: -1
pairing: truncate
`)
	cfg, err := LoadConfig(path, DefaultStereoConfig())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Pattern, test.ShouldResemble, PatternGeometry{Rows: 6, Cols: 9, SquareSize: 24.5})
	test.That(t, cfg.Detection.Saddle.BlurSigma, test.ShouldEqual, 1.5)
	// keys left out keep their defaults
	test.That(t, cfg.Detection.Saddle.RelativeThreshold, test.ShouldEqual, chessboard.DefaultSaddleConf.RelativeThreshold)
	test.That(t, cfg.Detection.Corner, test.ShouldResemble, chessboard.DefaultCornerConf)
	test.That(t, cfg.Detection.SubPixel.HalfWindow, test.ShouldEqual, 7)
	test.That(t, cfg.Detection.SubPixel.Epsilon, test.ShouldEqual, DefaultCornerCriteria.Epsilon)
	test.That(t, cfg.Mono.FixK3, test.ShouldBeTrue)
	test.That(t, cfg.Mono.Criteria.MaxIterations, test.ShouldEqual, 50)
	test.That(t, cfg.Mono.Criteria.Epsilon, test.ShouldEqual, DefaultSolverCriteria.Epsilon)
	test.That(t, cfg.Stereo.FixIntrinsic, test.ShouldBeTrue)
	test.That(t, cfg.Stereo.Right.ZeroTangentDist, test.ShouldBeTrue)
	test.That(t, cfg.Stereo.Left.ZeroTangentDist, test.ShouldBeFalse)
	test.That(t, cfg.Rectify.Alpha, test.ShouldEqual, transform.AlphaUnbounded)
	test.That(t, cfg.Rectify.ZeroDisparity, test.ShouldBeTrue)
	test.That(t, cfg.Pairing, test.ShouldEqual, PairTruncate)
}

func TestLoadConfigJSON(t *testing.T) {
	path := writeConfig(t, `{"pattern": {"rows": 4, "cols": 7, "square-size": 30}, "rectify": {"zero-disparity": false}}`)
	cfg, err := LoadConfig(path, DefaultMonoConfig())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Pattern.Cols, test.ShouldEqual, 7)
	test.That(t, cfg.Rectify.ZeroDisparity, test.ShouldBeFalse)
	test.That(t, cfg.Detection.SubPixel.HalfWindow, test.ShouldEqual, 11)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "pattern:\n  rowz: 3\n"), DefaultMonoConfig())
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "rowz")

	_, err = LoadConfig(writeConfig(t, "pattern:\n  rows: 1\n"), DefaultMonoConfig())
	test.That(t, err, test.ShouldNotBeNil)

	_, err = LoadConfig(writeConfig(t, "pairing: sometimes\n"), DefaultMonoConfig())
	test.That(t, err, test.ShouldNotBeNil)

	_, err = LoadConfig(writeConfig(t, "pattern: [\n"), DefaultMonoConfig())
	test.That(t, err, test.ShouldNotBeNil)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yml"), DefaultMonoConfig())
	test.That(t, err, test.ShouldNotBeNil)
}
