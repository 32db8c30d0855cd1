package calibrate

import (
	"github.com/golang/geo/r3"

	"go.viam.com/stereocal/rimage/transform"
)

const (
	numDistortion = 5
	numIntrinsics = 4 + numDistortion
	numPose       = 6
)

// paramLayout maps the free unknowns of a solver onto the full parameter vector of a model. Fixed entries keep their
// template value and ties derive entries from others after every expansion.
type paramLayout struct {
	template []float64
	free     []int
	ties     []func(full []float64)
}

func newParamLayout(template []float64) *paramLayout {
	return &paramLayout{template: template}
}

func (l *paramLayout) setFree(offset int, idx ...int) {
	for _, i := range idx {
		l.free = append(l.free, offset+i)
	}
}

func (l *paramLayout) tie(f func(full []float64)) {
	l.ties = append(l.ties, f)
}

// initial returns the free unknowns at the template.
func (l *paramLayout) initial() []float64 {
	x := make([]float64, len(l.free))
	for i, k := range l.free {
		x[i] = l.template[k]
	}
	return x
}

// expand returns a fresh full vector for the unknowns x.
func (l *paramLayout) expand(x []float64) []float64 {
	full := make([]float64, len(l.template))
	copy(full, l.template)
	for i, k := range l.free {
		full[k] = x[i]
	}
	for _, t := range l.ties {
		t(full)
	}
	return full
}

// freeIntrinsics lists the offsets in fx, fy, cx, cy, k1, k2, p1, p2, k3 the solver may change.
func (o MonoOptions) freeIntrinsics() []int {
	idx := []int{0}
	if !o.FixAspectRatio {
		idx = append(idx, 1)
	}
	if !o.FixPrincipalPoint {
		idx = append(idx, 2, 3)
	}
	idx = append(idx, 4, 5)
	if !o.ZeroTangentDist {
		idx = append(idx, 6, 7)
	}
	if !o.FixK3 {
		idx = append(idx, 8)
	}
	return idx
}

// addIntrinsics frees the intrinsics stored at offset according to opts and adds the ties they imply.
func (l *paramLayout) addIntrinsics(offset int, opts MonoOptions) {
	if opts.ZeroTangentDist {
		l.template[offset+6], l.template[offset+7] = 0, 0
	}
	l.setFree(offset, opts.freeIntrinsics()...)
	if opts.FixAspectRatio {
		aspect := l.template[offset] / l.template[offset+1]
		l.tie(func(full []float64) { full[offset+1] = full[offset] / aspect })
	}
}

// appendPose writes the rotation vector and translation of pose.
func appendPose(dst []float64, pose *transform.CamPose) ([]float64, error) {
	rvec, err := pose.RotationVector()
	if err != nil {
		return nil, err
	}
	t := pose.Translation
	return append(dst, rvec.X, rvec.Y, rvec.Z, t.X, t.Y, t.Z), nil
}

// poseAt reads the pose stored at offset.
func poseAt(full []float64, offset int) *transform.CamPose {
	p := full[offset : offset+numPose]
	return transform.NewCamPose(r3.Vector{X: p[0], Y: p[1], Z: p[2]}, r3.Vector{X: p[3], Y: p[4], Z: p[5]})
}
