package calibrate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"
)

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		test.That(t, os.WriteFile(filepath.Join(dir, n), nil, 0o600), test.ShouldBeNil)
	}
}

func TestPatternGeometry(t *testing.T) {
	p := PatternGeometry{Rows: 3, Cols: 4, SquareSize: 20}
	test.That(t, p.CheckValid(), test.ShouldBeNil)
	test.That(t, p.Size().X, test.ShouldEqual, 4)
	test.That(t, p.Size().Y, test.ShouldEqual, 3)

	pts := p.ReferencePoints()
	test.That(t, len(pts), test.ShouldEqual, 12)
	test.That(t, pts[0], test.ShouldResemble, r3.Vector{})
	test.That(t, pts[1], test.ShouldResemble, r3.Vector{X: 20})
	test.That(t, pts[4], test.ShouldResemble, r3.Vector{Y: 20})
	test.That(t, pts[2*4+3], test.ShouldResemble, r3.Vector{X: 60, Y: 40})

	test.That(t, PatternGeometry{Rows: 1, Cols: 4, SquareSize: 1}.CheckValid(), test.ShouldNotBeNil)
	test.That(t, PatternGeometry{Rows: 3, Cols: 4}.CheckValid(), test.ShouldNotBeNil)
}

func TestObservationSetCheckValid(t *testing.T) {
	ref := PatternGeometry{Rows: 2, Cols: 2, SquareSize: 1}.ReferencePoints()
	err := ObservationSet{}.CheckValid()
	test.That(t, errors.Is(err, ErrInsufficientObservations), test.ShouldBeTrue)

	bad := ObservationSet{{ReferencePoints: ref, ImagePoints: nil}}
	test.That(t, errors.Is(bad.CheckValid(), ErrObservationMismatch), test.ShouldBeTrue)
}

func TestListImages(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "left03.png", "left01.png", "left02.png", "right01.png", "left04.jpg", "notes.txt")
	test.That(t, os.Mkdir(filepath.Join(dir, "left05.png"), 0o750), test.ShouldBeNil)

	files, err := ListImages(dir+"/", "left", "png")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, files, test.ShouldResemble, []string{
		filepath.Join(dir, "left01.png"), filepath.Join(dir, "left02.png"), filepath.Join(dir, "left03.png"),
	})

	files, err = ListImages(dir, "", ".png")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(files), test.ShouldEqual, 4)

	files, err = ListImages(dir, "", "bmp")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, files, test.ShouldBeEmpty)

	_, err = ListImages(filepath.Join(dir, "missing"), "", "png")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestLoadStereoImages(t *testing.T) {
	left, right := t.TempDir(), t.TempDir()
	touch(t, left, "b.png", "a.png", "c.png")
	touch(t, right, "2.png", "1.png")

	_, err := LoadStereoImages(left, right, "", "", "png", PairStrict)
	test.That(t, errors.Is(err, ErrPairCountMismatch), test.ShouldBeTrue)
	_, err = LoadStereoImages(left, right, "", "", "png", "")
	test.That(t, errors.Is(err, ErrPairCountMismatch), test.ShouldBeTrue)

	pairs, err := LoadStereoImages(left, right, "", "", "png", PairTruncate)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pairs.Len(), test.ShouldEqual, 2)
	first, ok := pairs.Next()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, first, test.ShouldResemble, ImagePair{Index: 0, Left: filepath.Join(left, "a.png"), Right: filepath.Join(right, "1.png")})
	second, ok := pairs.Next()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, second.Index, test.ShouldEqual, 1)
	test.That(t, second.Left, test.ShouldEqual, filepath.Join(left, "b.png"))
	_, ok = pairs.Next()
	test.That(t, ok, test.ShouldBeFalse)

	touch(t, right, "3.png")
	pairs, err = LoadStereoImages(left, right, "", "", "png", PairStrict)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pairs.Len(), test.ShouldEqual, 3)

	_, err = LoadStereoImages(left, t.TempDir(), "", "", "png", PairStrict)
	test.That(t, errors.Is(err, ErrInsufficientObservations), test.ShouldBeTrue)

	_, err = LoadStereoImages(left, right, "", "", "png", "zip")
	test.That(t, err, test.ShouldNotBeNil)
}
