package calibrate

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// PairingPolicy decides what happens when the left and right directories hold different numbers of images.
type PairingPolicy string

const (
	// PairStrict refuses to pair lists of different lengths.
	PairStrict PairingPolicy = "strict"
	// PairTruncate pairs images up to the shorter list.
	PairTruncate PairingPolicy = "truncate"
)

// CheckValid accepts the known policies, empty meaning PairStrict.
func (p PairingPolicy) CheckValid() error {
	switch p {
	case PairStrict, PairTruncate, "":
		return nil
	default:
		return errors.Errorf("unknown pairing policy %q", string(p))
	}
}

// ListImages returns the files of dir named prefix*.ext, sorted by name. ext may carry a leading dot.
func ListImages(dir, prefix, ext string) ([]string, error) {
	dir = strings.TrimSuffix(dir, "/")
	if dir == "" {
		dir = "."
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot list images in %q", dir)
	}
	suffix := "." + strings.TrimPrefix(ext, ".")
	files := lo.FilterMap(entries, func(e os.DirEntry, _ int) (string, bool) {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, suffix) {
			return "", false
		}
		return filepath.Join(dir, name), true
	})
	sort.Strings(files)
	return files, nil
}

// ImagePair is the n-th left/right capture of a stereo set.
type ImagePair struct {
	Index int
	Left  string
	Right string
}

// ImagePairs is a finite, single-pass sequence of stereo captures.
type ImagePairs struct {
	pairs []ImagePair
	next  int
}

// Next returns the following pair, or false once the sequence is exhausted.
func (p *ImagePairs) Next() (ImagePair, bool) {
	if p.next >= len(p.pairs) {
		return ImagePair{}, false
	}
	pair := p.pairs[p.next]
	p.next++
	return pair, true
}

// Len returns the total number of pairs.
func (p *ImagePairs) Len() int {
	return len(p.pairs)
}

// LoadStereoImages lists both directories independently and pairs the sorted lists by position.
func LoadStereoImages(dirL, dirR, prefixL, prefixR, ext string, policy PairingPolicy) (*ImagePairs, error) {
	if err := policy.CheckValid(); err != nil {
		return nil, err
	}
	left, err := ListImages(dirL, prefixL, ext)
	if err != nil {
		return nil, err
	}
	right, err := ListImages(dirR, prefixR, ext)
	if err != nil {
		return nil, err
	}
	if len(left) == 0 || len(right) == 0 {
		return nil, NewInsufficientObservationsError("no *.%s images in %q (%d) or %q (%d)",
			strings.TrimPrefix(ext, "."), dirL, len(left), dirR, len(right))
	}
	if len(left) != len(right) {
		switch policy {
		case PairTruncate:
			n := len(left)
			if len(right) < n {
				n = len(right)
			}
			left, right = left[:n], right[:n]
		default:
			return nil, NewPairCountMismatchError(len(left), len(right))
		}
	}
	pairs := lo.Map(lo.Zip2(left, right), func(t lo.Tuple2[string, string], i int) ImagePair {
		return ImagePair{Index: i, Left: t.A, Right: t.B}
	})
	return &ImagePairs{pairs: pairs}, nil
}
