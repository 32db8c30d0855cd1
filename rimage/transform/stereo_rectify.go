package transform

import (
	"image"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/stereocal/utils"
)

// AlphaUnbounded disables the free scaling step of StereoRectify.
const AlphaUnbounded = -1.0

// RectifyOptions controls StereoRectify.
type RectifyOptions struct {
	// ZeroDisparity gives both rectified views the same principal point, so points at infinity
	// have zero disparity.
	ZeroDisparity bool `json:"zero-disparity" yaml:"zero-disparity" mapstructure:"zero-disparity"`
	// Alpha in [0, 1] scales between keeping only valid pixels (0) and keeping every source
	// pixel (1). Negative values skip the scaling.
	Alpha float64 `json:"alpha" yaml:"alpha" mapstructure:"alpha"`
	// NewSize is the rectified image size; zero means the input size.
	NewSize image.Point `json:"new-size" yaml:"new-size" mapstructure:"new-size"`
}

// DefaultRectifyOptions keeps only valid pixels and aligns principal points.
var DefaultRectifyOptions = RectifyOptions{ZeroDisparity: true, Alpha: 0}

// StereoRectification holds the rectifying rotations and projections of a stereo rig.
type StereoRectification struct {
	R1, R2   *mat.Dense // 3x3 rectifying rotations
	P1, P2   *mat.Dense // 3x4 projections in the rectified frames
	Q        *mat.Dense // 4x4 disparity-to-depth mapping
	ROILeft  image.Rectangle
	ROIRight image.Rectangle
	Size     image.Point // rectified image size
}

// StereoRectify computes rectifying transforms for two calibrated cameras with the Bouguet
// method. rot and t take points from the left camera frame into the right one. Both cameras
// must share the image size.
func StereoRectify(
	left, right *PinholeCameraModel,
	size image.Point,
	rot mat.Matrix,
	t r3.Vector,
	opts RectifyOptions,
) (*StereoRectification, error) {
	if left == nil || right == nil {
		return nil, NewNoIntrinsicsError("stereo rectification needs both camera models")
	}
	if size.X <= 0 || size.Y <= 0 {
		return nil, errors.Errorf("invalid image size %v", size)
	}
	newSize := opts.NewSize
	if newSize.X <= 0 || newSize.Y <= 0 {
		newSize = size
	}

	om, err := RotationMatrixToVector(rot)
	if err != nil {
		return nil, err
	}
	// rotate both cameras half way towards each other
	rHalf := RotationVectorToMatrix(om.Mul(-0.5))
	tr := RotateVector(rHalf, t)

	idx := 0
	if math.Abs(tr.X) <= math.Abs(tr.Y) {
		idx = 1
	}
	c := component(tr, idx)
	nt := tr.Norm()
	if nt == 0 {
		return nil, NewDegenerateGeometryError("stereo baseline is zero")
	}
	var uu r3.Vector
	sign := 1.0
	if c <= 0 {
		sign = -1
	}
	if idx == 0 {
		uu.X = sign
	} else {
		uu.Y = sign
	}

	// global rotation that aligns the baseline with the chosen image axis
	ww := tr.Cross(uu)
	if nw := ww.Norm(); nw > 0 {
		ww = ww.Mul(math.Acos(math.Abs(c)/nt) / nw)
	}
	wR := RotationVectorToMatrix(ww)

	var rect1, rect2 mat.Dense
	rect1.Mul(wR, rHalf.T())
	rect2.Mul(wR, rHalf)
	tNew := RotateVector(&rect2, t)

	nx, ny := float64(size.X), float64(size.Y)
	fcNew := math.MaxFloat64
	cams := [2]*PinholeCameraModel{left, right}
	for _, cam := range cams {
		fc := cam.Fy
		if idx == 1 {
			fc = cam.Fx
		}
		if k1 := cam.DistortionCoefficients()[0]; k1 < 0 {
			fc *= 1 + k1*(nx*nx+ny*ny)/(4*fc*fc)
		}
		fcNew = math.Min(fcNew, fc)
	}

	corners := []r2.Point{{X: 0, Y: 0}, {X: nx - 1, Y: 0}, {X: 0, Y: ny - 1}, {X: nx - 1, Y: ny - 1}}
	rects := [2]*mat.Dense{&rect1, &rect2}
	var ccNew [2]r2.Point
	for k, cam := range cams {
		projected := cam.UndistortPoints(invertibleOutline(cam, corners), rects[k], mat.NewDense(3, 3, []float64{fcNew, 0, 0, 0, fcNew, 0, 0, 0, 1}))
		var avg r2.Point
		for _, p := range projected {
			avg = avg.Add(p)
		}
		avg = avg.Mul(1 / float64(len(projected)))
		ccNew[k] = r2.Point{X: (nx-1)/2 - avg.X, Y: (ny-1)/2 - avg.Y}
	}

	switch {
	case opts.ZeroDisparity:
		mid := ccNew[0].Add(ccNew[1]).Mul(0.5)
		ccNew[0], ccNew[1] = mid, mid
	case idx == 0:
		y := (ccNew[0].Y + ccNew[1].Y) / 2
		ccNew[0].Y, ccNew[1].Y = y, y
	default:
		x := (ccNew[0].X + ccNew[1].X) / 2
		ccNew[0].X, ccNew[1].X = x, x
	}

	p1 := projectionMatrix(fcNew, ccNew[0])
	p2 := projectionMatrix(fcNew, ccNew[1])
	p2.Set(idx, 3, component(tNew, idx)*fcNew)

	inner1, outer1 := rectifiedRectangles(left, &rect1, p1, size)
	inner2, outer2 := rectifiedRectangles(right, &rect2, p2, size)

	// principal points in the (possibly resized) output image
	sw, sh := float64(newSize.X)/nx, float64(newSize.Y)/ny
	scaled := [2]r2.Point{
		{X: sw * ccNew[0].X, Y: sh * ccNew[0].Y},
		{X: sw * ccNew[1].X, Y: sh * ccNew[1].Y},
	}
	s := 1.0
	if opts.Alpha >= 0 {
		alpha := math.Min(opts.Alpha, 1)
		inners := [2]rectF{inner1, inner2}
		outers := [2]rectF{outer1, outer2}
		s0, s1 := 0.0, math.MaxFloat64
		for k := 0; k < 2; k++ {
			s0 = math.Max(s0, fitScale(inners[k], ccNew[k], scaled[k], newSize, math.Max))
			s1 = math.Min(s1, fitScale(outers[k], ccNew[k], scaled[k], newSize, math.Min))
		}
		s = s0*(1-alpha) + s1*alpha
	}
	if math.IsNaN(s) || math.IsInf(s, 0) || s <= 0 {
		return nil, NewDegenerateGeometryError("rectified view does not overlap the image")
	}

	fcNew *= s
	for k, p := range []*mat.Dense{p1, p2} {
		p.Set(0, 0, fcNew)
		p.Set(1, 1, fcNew)
		p.Set(0, 2, scaled[k].X)
		p.Set(1, 2, scaled[k].Y)
	}
	p2.Set(idx, 3, s*p2.At(idx, 3))

	bounds := image.Rect(0, 0, newSize.X, newSize.Y)
	roi := func(inner rectF, cc0, cc r2.Point) image.Rectangle {
		x := int(math.Ceil((inner.x-cc0.X)*s + cc.X))
		y := int(math.Ceil((inner.y-cc0.Y)*s + cc.Y))
		w := int(math.Floor(inner.w * s))
		h := int(math.Floor(inner.h * s))
		return image.Rect(x, y, x+w, y+h).Intersect(bounds)
	}

	tIdx := component(tNew, idx)
	disparityOffset := scaled[0].X - scaled[1].X
	if idx == 1 {
		disparityOffset = scaled[0].Y - scaled[1].Y
	}
	q := mat.NewDense(4, 4, []float64{
		1, 0, 0, -scaled[0].X,
		0, 1, 0, -scaled[0].Y,
		0, 0, 0, fcNew,
		0, 0, -1 / tIdx, disparityOffset / tIdx,
	})

	return &StereoRectification{
		R1:       &rect1,
		R2:       &rect2,
		P1:       p1,
		P2:       p2,
		Q:        q,
		ROILeft:  roi(inner1, ccNew[0], scaled[0]),
		ROIRight: roi(inner2, ccNew[1], scaled[1]),
		Size:     newSize,
	}, nil
}

func component(v r3.Vector, idx int) float64 {
	switch idx {
	case 0:
		return v.X
	case 1:
		return v.Y
	default:
		return v.Z
	}
}

func projectionMatrix(f float64, cc r2.Point) *mat.Dense {
	return mat.NewDense(3, 4, []float64{
		f, 0, cc.X, 0,
		0, f, cc.Y, 0,
		0, 0, 1, 0,
	})
}

type rectF struct {
	x, y, w, h float64
}

// rectifiedRectangles returns the largest rectangle inside, and the smallest rectangle around,
// the invertible part of the image outline once undistorted, rotated by rect and projected with proj.
func rectifiedRectangles(cam *PinholeCameraModel, rect, proj mat.Matrix, size image.Point) (rectF, rectF) {
	const n = 9
	pts := make([]r2.Point, 0, n*n)
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			pts = append(pts, r2.Point{
				X: float64(x) * float64(size.X) / (n - 1),
				Y: float64(y) * float64(size.Y) / (n - 1),
			})
		}
	}
	pts = cam.UndistortPoints(invertibleOutline(cam, pts), rect, proj)

	iX0, iX1, iY0, iY1 := -math.MaxFloat64, math.MaxFloat64, -math.MaxFloat64, math.MaxFloat64
	oX0, oX1, oY0, oY1 := math.MaxFloat64, -math.MaxFloat64, math.MaxFloat64, -math.MaxFloat64
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			p := pts[y*n+x]
			oX0, oX1 = math.Min(oX0, p.X), math.Max(oX1, p.X)
			oY0, oY1 = math.Min(oY0, p.Y), math.Max(oY1, p.Y)
			if x == 0 {
				iX0 = math.Max(iX0, p.X)
			}
			if x == n-1 {
				iX1 = math.Min(iX1, p.X)
			}
			if y == 0 {
				iY0 = math.Max(iY0, p.Y)
			}
			if y == n-1 {
				iY1 = math.Min(iY1, p.Y)
			}
		}
	}
	return rectF{iX0, iY0, iX1 - iX0, iY1 - iY0}, rectF{oX0, oY0, oX1 - oX0, oY1 - oY0}
}

// invertibleOutline pulls each pixel towards the principal point until the distortion model maps its undistorted
// ray back onto it. An overfitted model folds over near the image border, and the undistortion of folded pixels
// lands anywhere.
func invertibleOutline(cam *PinholeCameraModel, pts []r2.Point) []r2.Point {
	const steps = 20
	center := r2.Point{X: cam.Ppx, Y: cam.Ppy}
	out := make([]r2.Point, len(pts))
	for i, px := range pts {
		if roundTrips(cam, px) {
			out[i] = px
			continue
		}
		lo, hi := 0., 1.
		for j := 0; j < steps; j++ {
			mid := (lo + hi) / 2
			if roundTrips(cam, center.Add(px.Sub(center).Mul(mid))) {
				lo = mid
			} else {
				hi = mid
			}
		}
		out[i] = center.Add(px.Sub(center).Mul(lo))
	}
	return out
}

// roundTrips is true when px undistorts to a ray projecting back within half a pixel of it, on the side of the fold
// where the radial distortion still grows with the radius.
func roundTrips(cam *PinholeCameraModel, px r2.Point) bool {
	n := cam.UndistortPoint(px)
	if !utils.IsFinite(n.X, n.Y) {
		return false
	}
	k := cam.DistortionCoefficients()
	rr := n.X*n.X + n.Y*n.Y
	if len(k) == 5 && 1+3*k[0]*rr+5*k[1]*rr*rr+7*k[4]*rr*rr*rr <= 0 {
		return false
	}
	back := cam.Project(r3.Vector{X: n.X, Y: n.Y, Z: 1})
	return utils.IsFinite(back.X, back.Y) && back.Sub(px).Norm() < 0.5
}

// fitScale returns the scale mapping r onto the new image around the principal point; agg picks
// the binding side (max for the inner rectangle, min for the outer one).
func fitScale(r rectF, cc0, cc r2.Point, newSize image.Point, agg func(a, b float64) float64) float64 {
	w, h := float64(newSize.X), float64(newSize.Y)
	s := agg(cc.X/(cc0.X-r.x), cc.Y/(cc0.Y-r.y))
	s = agg(s, (w-cc.X)/(r.x+r.w-cc0.X))
	return agg(s, (h-cc.Y)/(r.y+r.h-cc0.Y))
}
