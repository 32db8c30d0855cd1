package transform

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/stereocal/utils"
)

// ErrDimensionMismatch is returned when an image does not have the size a remap table expects.
var ErrDimensionMismatch = errors.New("image dimensions do not match the remap table")

// NewDimensionMismatchError reports the offending sizes.
func NewDimensionMismatchError(got, want image.Point) error {
	return errors.Wrapf(ErrDimensionMismatch, "Image(%d,%d) != Table(%d,%d)", got.X, got.Y, want.X, want.Y)
}

// RemapTable stores, for each output pixel, the source position to sample.
type RemapTable struct {
	Width, Height int
	X, Y          []float32
	// SourceSize is the size of the images the table samples from.
	SourceSize image.Point
}

// NewRemapTable wraps two row-major float32 tables of size width x height.
func NewRemapTable(width, height int, x, y []float32, source image.Point) (*RemapTable, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("invalid table size (%d, %d)", width, height)
	}
	if len(x) != width*height || len(y) != width*height {
		return nil, errors.Errorf("table data has %d/%d entries, expected %d", len(x), len(y), width*height)
	}
	return &RemapTable{Width: width, Height: height, X: x, Y: y, SourceSize: source}, nil
}

// At returns the source position of output pixel (u, v).
func (rt *RemapTable) At(u, v int) (float64, float64) {
	i := v*rt.Width + u
	return float64(rt.X[i]), float64(rt.Y[i])
}

// InitUndistortRectifyMap builds the table sending every pixel of the rectified image (projection
// proj, rotation rect relative to the camera) to its position in the raw, distorted image.
func InitUndistortRectifyMap(cam *PinholeCameraModel, rect, proj mat.Matrix, size image.Point) (*RemapTable, error) {
	if cam == nil {
		return nil, NewNoIntrinsicsError("remap table needs a camera model")
	}
	if size.X <= 0 || size.Y <= 0 {
		return nil, errors.Errorf("invalid image size %v", size)
	}
	if rect == nil {
		rect = eye(3)
	}
	if proj == nil {
		proj = cam.GetCameraMatrix()
	}
	var kr, ir mat.Dense
	kr.Mul(leftBlock3(proj), rect)
	if err := ir.Inverse(&kr); err != nil {
		return nil, NewDegenerateGeometryError("rectified projection is singular")
	}

	n := size.X * size.Y
	xs := make([]float32, n)
	ys := make([]float32, n)
	distortionMap := cam.DistortionMap()
	utils.ParallelForEachRow(size.Y, func(v int) {
		for u := 0; u < size.X; u++ {
			ray := RotateVector(&ir, r3.Vector{X: float64(u), Y: float64(v), Z: 1})
			// normalized coordinates of the ray, re-expressed as an undistorted pixel
			px := cam.Fx*ray.X/ray.Z + cam.Ppx
			py := cam.Fy*ray.Y/ray.Z + cam.Ppy
			sx, sy := distortionMap(px, py)
			xs[v*size.X+u] = float32(sx)
			ys[v*size.X+u] = float32(sy)
		}
	})
	return &RemapTable{Width: size.X, Height: size.Y, X: xs, Y: ys, SourceSize: cam.Size()}, nil
}

// Remap samples src at the table positions with bilinear interpolation. Positions outside the
// source read as 0. Gray sources produce *image.Gray, all others *image.NRGBA.
func Remap(src image.Image, table *RemapTable) (image.Image, error) {
	if table == nil {
		return nil, errors.New("remap table is nil")
	}
	if got := src.Bounds().Size(); got != table.SourceSize {
		return nil, NewDimensionMismatchError(got, table.SourceSize)
	}
	if gray, ok := src.(*image.Gray); ok {
		base := gray.PixOffset(gray.Rect.Min.X, gray.Rect.Min.Y)
		dst := image.NewGray(image.Rect(0, 0, table.Width, table.Height))
		remapChannels(gray.Pix[base:], gray.Stride, 1, table, dst.Pix, dst.Stride)
		return dst, nil
	}
	nrgba := imaging.Clone(src)
	dst := image.NewNRGBA(image.Rect(0, 0, table.Width, table.Height))
	remapChannels(nrgba.Pix, nrgba.Stride, 4, table, dst.Pix, dst.Stride)
	return dst, nil
}

// leftBlock3 copies the left 3x3 block of a 3xN matrix.
func leftBlock3(m mat.Matrix) *mat.Dense {
	out := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out.Set(i, j, m.At(i, j))
		}
	}
	return out
}

// remapChannels interpolates interleaved 8-bit channels.
func remapChannels(src []uint8, srcStride, channels int, table *RemapTable, dst []uint8, dstStride int) {
	w, h := table.SourceSize.X, table.SourceSize.Y
	sample := func(x, y, c int) float64 {
		if x < 0 || y < 0 || x >= w || y >= h {
			return 0
		}
		return float64(src[y*srcStride+x*channels+c])
	}
	utils.ParallelForEachRow(table.Height, func(v int) {
		for u := 0; u < table.Width; u++ {
			sx, sy := table.At(u, v)
			x0f, y0f := math.Floor(sx), math.Floor(sy)
			fx, fy := sx-x0f, sy-y0f
			x0, y0 := int(x0f), int(y0f)
			for c := 0; c < channels; c++ {
				val := (1-fx)*(1-fy)*sample(x0, y0, c) +
					fx*(1-fy)*sample(x0+1, y0, c) +
					(1-fx)*fy*sample(x0, y0+1, c) +
					fx*fy*sample(x0+1, y0+1, c)
				dst[v*dstStride+u*channels+c] = uint8(utils.ClampF64(math.Round(val), 0, 255))
			}
		}
	})
}

// RectificationMaps is a stereo rectification together with the remap tables of both views.
type RectificationMaps struct {
	StereoRectification
	Left, Right *RemapTable
}

// PlanRectification runs StereoRectify and builds the remap tables of both cameras.
func PlanRectification(
	left, right *PinholeCameraModel,
	size image.Point,
	rot mat.Matrix,
	t r3.Vector,
	opts RectifyOptions,
) (*RectificationMaps, error) {
	rect, err := StereoRectify(left, right, size, rot, t, opts)
	if err != nil {
		return nil, err
	}
	leftTable, err := InitUndistortRectifyMap(left, rect.R1, rect.P1, rect.Size)
	if err != nil {
		return nil, err
	}
	rightTable, err := InitUndistortRectifyMap(right, rect.R2, rect.P2, rect.Size)
	if err != nil {
		return nil, err
	}
	leftTable.SourceSize = size
	rightTable.SourceSize = size
	return &RectificationMaps{StereoRectification: *rect, Left: leftTable, Right: rightTable}, nil
}

// RectifyPair remaps a raw stereo pair into the rectified frames.
func (maps *RectificationMaps) RectifyPair(left, right image.Image) (image.Image, image.Image, error) {
	l, err := Remap(left, maps.Left)
	if err != nil {
		return nil, nil, errors.Wrap(err, "left image")
	}
	r, err := Remap(right, maps.Right)
	if err != nil {
		return nil, nil, errors.Wrap(err, "right image")
	}
	return l, r, nil
}
