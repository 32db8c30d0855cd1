package calibrate

import (
	"image"
	"os"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/stereocal/rimage/transform"
	"go.viam.com/stereocal/utils"
)

// ErrMalformedParameterFile is returned when a parameter file lacks a key or holds a matrix of the wrong shape.
var ErrMalformedParameterFile = errors.New("malformed parameter file")

func newMalformedParameterFileError(format string, args ...interface{}) error {
	return errors.Wrapf(ErrMalformedParameterFile, format, args...)
}

// matrix element types.
const (
	dtDouble = "d"
	dtFloat  = "f"
	dtInt    = "i"
)

// matrixNode is a row-major matrix as stored in a parameter file.
type matrixNode struct {
	Rows int       `yaml:"rows"`
	Cols int       `yaml:"cols"`
	Dt   string    `yaml:"dt"`
	Data []float64 `yaml:"data,flow"`
}

// parameterDocument lists every key a parameter file may hold, in the order they are written.
type parameterDocument struct {
	Size  *matrixNode `yaml:"Size,omitempty"`
	K     *matrixNode `yaml:"K,omitempty"`
	D     *matrixNode `yaml:"D,omitempty"`
	K1    *matrixNode `yaml:"K1,omitempty"`
	D1    *matrixNode `yaml:"D1,omitempty"`
	K2    *matrixNode `yaml:"K2,omitempty"`
	D2    *matrixNode `yaml:"D2,omitempty"`
	R     *matrixNode `yaml:"R,omitempty"`
	T     *matrixNode `yaml:"T,omitempty"`
	E     *matrixNode `yaml:"E,omitempty"`
	F     *matrixNode `yaml:"F,omitempty"`
	RMS   *float64    `yaml:"RMS,omitempty"`
	R1    *matrixNode `yaml:"R1,omitempty"`
	R2    *matrixNode `yaml:"R2,omitempty"`
	P1    *matrixNode `yaml:"P1,omitempty"`
	P2    *matrixNode `yaml:"P2,omitempty"`
	Q     *matrixNode `yaml:"Q,omitempty"`
	ROIL  *matrixNode `yaml:"ROIL,omitempty"`
	ROIR  *matrixNode `yaml:"ROIR,omitempty"`
	MAPLX *matrixNode `yaml:"MAPLX,omitempty"`
	MAPLY *matrixNode `yaml:"MAPLY,omitempty"`
	MAPRX *matrixNode `yaml:"MAPRX,omitempty"`
	MAPRY *matrixNode `yaml:"MAPRY,omitempty"`
}

// noNegativeZero keeps -0 from being written, it would read back as 0.
func noNegativeZero(v float64) float64 {
	if v == 0 {
		return 0
	}
	return v
}

func denseNode(m mat.Matrix) *matrixNode {
	r, c := m.Dims()
	n := &matrixNode{Rows: r, Cols: c, Dt: dtDouble, Data: make([]float64, 0, r*c)}
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			n.Data = append(n.Data, noNegativeZero(m.At(i, j)))
		}
	}
	return n
}

func rowNode(v []float64) *matrixNode {
	n := &matrixNode{Rows: 1, Cols: len(v), Dt: dtDouble, Data: make([]float64, len(v))}
	for i, f := range v {
		n.Data[i] = noNegativeZero(f)
	}
	return n
}

func vectorNode(v r3.Vector) *matrixNode {
	return &matrixNode{Rows: 3, Cols: 1, Dt: dtDouble, Data: []float64{noNegativeZero(v.X), noNegativeZero(v.Y), noNegativeZero(v.Z)}}
}

// sizeNode stores an image size as [height, width].
func sizeNode(size image.Point) *matrixNode {
	return &matrixNode{Rows: 2, Cols: 1, Dt: dtInt, Data: []float64{float64(size.Y), float64(size.X)}}
}

// roiNode stores a rectangle as [x, y, width, height].
func roiNode(r image.Rectangle) *matrixNode {
	return &matrixNode{Rows: 1, Cols: 4, Dt: dtInt, Data: []float64{
		float64(r.Min.X), float64(r.Min.Y), float64(r.Dx()), float64(r.Dy()),
	}}
}

func tableNodes(t *transform.RemapTable) (*matrixNode, *matrixNode) {
	widen := func(v []float32) []float64 {
		out := make([]float64, len(v))
		for i, f := range v {
			out[i] = noNegativeZero(float64(f))
		}
		return out
	}
	return &matrixNode{Rows: t.Height, Cols: t.Width, Dt: dtFloat, Data: widen(t.X)},
		&matrixNode{Rows: t.Height, Cols: t.Width, Dt: dtFloat, Data: widen(t.Y)}
}

// check verifies a required node exists with the given shape; a negative dimension matches any size.
func (n *matrixNode) check(key string, rows, cols int) error {
	if n == nil {
		return newMalformedParameterFileError("missing key %s", key)
	}
	if n.Rows <= 0 || n.Cols <= 0 || len(n.Data) != n.Rows*n.Cols {
		return newMalformedParameterFileError("%s: %dx%d matrix with %d values", key, n.Rows, n.Cols, len(n.Data))
	}
	if (rows >= 0 && n.Rows != rows) || (cols >= 0 && n.Cols != cols) {
		return newMalformedParameterFileError("%s: expected a %dx%d matrix, got %dx%d", key, rows, cols, n.Rows, n.Cols)
	}
	return nil
}

func (n *matrixNode) dense(key string, rows, cols int) (*mat.Dense, error) {
	if err := n.check(key, rows, cols); err != nil {
		return nil, err
	}
	return mat.NewDense(n.Rows, n.Cols, append([]float64(nil), n.Data...)), nil
}

// distortion accepts the coefficients as a row or a column, padded to five.
func (n *matrixNode) distortion(key string) ([]float64, error) {
	if err := n.check(key, -1, -1); err != nil {
		return nil, err
	}
	if (n.Rows != 1 && n.Cols != 1) || len(n.Data) > numDistortion {
		return nil, newMalformedParameterFileError("%s: expected at most %d coefficients, got %dx%d",
			key, numDistortion, n.Rows, n.Cols)
	}
	d := make([]float64, numDistortion)
	copy(d, n.Data)
	return d, nil
}

func (n *matrixNode) vector(key string) (r3.Vector, error) {
	if err := n.check(key, -1, -1); err != nil {
		return r3.Vector{}, err
	}
	if len(n.Data) != 3 {
		return r3.Vector{}, newMalformedParameterFileError("%s: expected 3 values, got %d", key, len(n.Data))
	}
	return r3.Vector{X: n.Data[0], Y: n.Data[1], Z: n.Data[2]}, nil
}

func (n *matrixNode) size(key string) (image.Point, error) {
	if err := n.check(key, -1, -1); err != nil {
		return image.Point{}, err
	}
	if len(n.Data) != 2 {
		return image.Point{}, newMalformedParameterFileError("%s: expected 2 values, got %d", key, len(n.Data))
	}
	return image.Point{X: int(n.Data[1]), Y: int(n.Data[0])}, nil
}

func (n *matrixNode) roi(key string) (image.Rectangle, error) {
	if err := n.check(key, -1, -1); err != nil {
		return image.Rectangle{}, err
	}
	if len(n.Data) != 4 {
		return image.Rectangle{}, newMalformedParameterFileError("%s: expected 4 values, got %d", key, len(n.Data))
	}
	x, y := int(n.Data[0]), int(n.Data[1])
	return image.Rect(x, y, x+int(n.Data[2]), y+int(n.Data[3])), nil
}

// table returns the size and values of a remap table.
func (n *matrixNode) table(key string) (image.Point, []float32, error) {
	if err := n.check(key, -1, -1); err != nil {
		return image.Point{}, nil, err
	}
	v := make([]float32, len(n.Data))
	for i, f := range n.Data {
		v[i] = float32(f)
	}
	return image.Point{X: n.Cols, Y: n.Rows}, v, nil
}

func (doc *parameterDocument) intrinsics(kKey string, k *matrixNode, dKey string, d *matrixNode) (CameraIntrinsics, error) {
	km, err := k.dense(kKey, 3, 3)
	if err != nil {
		return CameraIntrinsics{}, err
	}
	dist, err := d.distortion(dKey)
	if err != nil {
		return CameraIntrinsics{}, err
	}
	intr := CameraIntrinsics{Matrix: km, Distortion: dist}
	if err := intr.CheckValid(); err != nil {
		return CameraIntrinsics{}, errors.Wrap(err, kKey)
	}
	return intr, nil
}

func (doc *parameterDocument) setStereo(s *StereoCalibration) {
	doc.Size = sizeNode(s.ImageSize)
	doc.K1 = denseNode(s.Left.Matrix)
	doc.D1 = rowNode(s.Left.Distortion)
	doc.K2 = denseNode(s.Right.Matrix)
	doc.D2 = rowNode(s.Right.Distortion)
	doc.R = denseNode(s.Extrinsics.R)
	doc.T = vectorNode(s.Extrinsics.T)
	doc.E = denseNode(s.Extrinsics.E)
	doc.F = denseNode(s.Extrinsics.F)
	rms := s.RMS
	doc.RMS = &rms
}

func (doc *parameterDocument) stereo() (*StereoCalibration, error) {
	out := &StereoCalibration{}
	var err error
	if out.ImageSize, err = doc.Size.size("Size"); err != nil {
		return nil, err
	}
	if out.Left, err = doc.intrinsics("K1", doc.K1, "D1", doc.D1); err != nil {
		return nil, err
	}
	if out.Right, err = doc.intrinsics("K2", doc.K2, "D2", doc.D2); err != nil {
		return nil, err
	}
	if out.Extrinsics.R, err = doc.R.dense("R", 3, 3); err != nil {
		return nil, err
	}
	if out.Extrinsics.T, err = doc.T.vector("T"); err != nil {
		return nil, err
	}
	if out.Extrinsics.E, err = doc.E.dense("E", 3, 3); err != nil {
		return nil, err
	}
	if out.Extrinsics.F, err = doc.F.dense("F", 3, 3); err != nil {
		return nil, err
	}
	if doc.RMS != nil {
		out.RMS = *doc.RMS
	}
	return out, nil
}

func (doc *parameterDocument) rectified() (*RectifiedStereoCalibration, error) {
	calib, err := doc.stereo()
	if err != nil {
		return nil, err
	}
	maps := &transform.RectificationMaps{}
	for _, m := range []struct {
		key        string
		node       *matrixNode
		dst        **mat.Dense
		rows, cols int
	}{
		{"R1", doc.R1, &maps.R1, 3, 3},
		{"R2", doc.R2, &maps.R2, 3, 3},
		{"P1", doc.P1, &maps.P1, 3, 4},
		{"P2", doc.P2, &maps.P2, 3, 4},
		{"Q", doc.Q, &maps.Q, 4, 4},
	} {
		if *m.dst, err = m.node.dense(m.key, m.rows, m.cols); err != nil {
			return nil, err
		}
	}
	if maps.ROILeft, err = doc.ROIL.roi("ROIL"); err != nil {
		return nil, err
	}
	if maps.ROIRight, err = doc.ROIR.roi("ROIR"); err != nil {
		return nil, err
	}

	var vals [4][]float32
	var dims [4]image.Point
	for i, m := range []struct {
		key  string
		node *matrixNode
	}{{"MAPLX", doc.MAPLX}, {"MAPLY", doc.MAPLY}, {"MAPRX", doc.MAPRX}, {"MAPRY", doc.MAPRY}} {
		if dims[i], vals[i], err = m.node.table(m.key); err != nil {
			return nil, err
		}
		if dims[i] != dims[0] {
			return nil, newMalformedParameterFileError("%s is %v, MAPLX is %v", m.key, dims[i], dims[0])
		}
	}
	w, h := dims[0].X, dims[0].Y
	if maps.Left, err = transform.NewRemapTable(w, h, vals[0], vals[1], calib.ImageSize); err != nil {
		return nil, err
	}
	if maps.Right, err = transform.NewRemapTable(w, h, vals[2], vals[3], calib.ImageSize); err != nil {
		return nil, err
	}
	maps.Size = dims[0]
	return &RectifiedStereoCalibration{StereoCalibration: calib, Maps: maps}, nil
}

func writeDocument(path string, doc *parameterDocument) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "cannot encode parameters")
	}
	return utils.WriteFileAtomic(path, data, 0o644)
}

func readDocument(path string) (*parameterDocument, error) {
	//nolint:gosec
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc parameterDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrapf(ErrMalformedParameterFile, "%s: %v", path, err)
	}
	return &doc, nil
}

// SaveMono writes the Size, K, D and RMS of a mono calibration to path. The file is replaced atomically.
func SaveMono(path string, calib *MonoCalibration) error {
	if err := calib.Intrinsics.CheckValid(); err != nil {
		return err
	}
	rms := calib.RMS
	doc := &parameterDocument{
		K:   denseNode(calib.Intrinsics.Matrix),
		D:   rowNode(calib.Intrinsics.Distortion),
		RMS: &rms,
	}
	if calib.ImageSize != (image.Point{}) {
		doc.Size = sizeNode(calib.ImageSize)
	}
	return writeDocument(path, doc)
}

// SaveStereo writes both cameras, the rig and the RMS of a stereo calibration to path.
func SaveStereo(path string, calib *StereoCalibration) error {
	doc := &parameterDocument{}
	doc.setStereo(calib)
	return writeDocument(path, doc)
}

// SaveRectified writes a stereo calibration with its rectification transforms and remap tables to path.
func SaveRectified(path string, calib *RectifiedStereoCalibration) error {
	if calib.Maps == nil || calib.Maps.Left == nil || calib.Maps.Right == nil {
		return errors.New("rectified calibration has no remap tables")
	}
	doc := &parameterDocument{}
	doc.setStereo(calib.StereoCalibration)
	maps := calib.Maps
	doc.R1 = denseNode(maps.R1)
	doc.R2 = denseNode(maps.R2)
	doc.P1 = denseNode(maps.P1)
	doc.P2 = denseNode(maps.P2)
	doc.Q = denseNode(maps.Q)
	doc.ROIL = roiNode(maps.ROILeft)
	doc.ROIR = roiNode(maps.ROIRight)
	doc.MAPLX, doc.MAPLY = tableNodes(maps.Left)
	doc.MAPRX, doc.MAPRY = tableNodes(maps.Right)
	return writeDocument(path, doc)
}

// LoadMono reads a mono parameter file. Size is optional.
func LoadMono(path string) (*MonoCalibration, error) {
	doc, err := readDocument(path)
	if err != nil {
		return nil, err
	}
	return doc.mono(path)
}

func (doc *parameterDocument) mono(path string) (*MonoCalibration, error) {
	intr, err := doc.intrinsics("K", doc.K, "D", doc.D)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	out := &MonoCalibration{Intrinsics: intr}
	if doc.Size != nil {
		if out.ImageSize, err = doc.Size.size("Size"); err != nil {
			return nil, errors.Wrap(err, path)
		}
	}
	if doc.RMS != nil {
		out.RMS = *doc.RMS
	}
	return out, nil
}

// LoadStereo reads a stereo parameter file. Rectification keys, if any, are ignored.
func LoadStereo(path string) (*StereoCalibration, error) {
	doc, err := readDocument(path)
	if err != nil {
		return nil, err
	}
	calib, err := doc.stereo()
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return calib, nil
}

// LoadRectified reads a rectified stereo parameter file.
func LoadRectified(path string) (*RectifiedStereoCalibration, error) {
	doc, err := readDocument(path)
	if err != nil {
		return nil, err
	}
	calib, err := doc.rectified()
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return calib, nil
}

// Load reads whichever result variant the file at path holds.
func Load(path string) (CalibrationResult, error) {
	doc, err := readDocument(path)
	if err != nil {
		return nil, err
	}
	var res CalibrationResult
	switch {
	case doc.MAPLX != nil:
		res, err = doc.rectified()
	case doc.K1 != nil:
		res, err = doc.stereo()
	case doc.K != nil:
		return doc.mono(path)
	default:
		return nil, newMalformedParameterFileError("%s: no calibration found", path)
	}
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return res, nil
}
