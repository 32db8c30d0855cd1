package transform

// BrownConrady is the radial/tangential lens distortion model. Parameters are listed in
// the usual calibration order k1, k2, p1, p2, k3.
type BrownConrady struct {
	RadialK1     float64 `json:"rk1"`
	RadialK2     float64 `json:"rk2"`
	TangentialP1 float64 `json:"tp1"`
	TangentialP2 float64 `json:"tp2"`
	RadialK3     float64 `json:"rk3"`
}

// NewBrownConrady takes in a slice of floats (k1, k2, p1, p2, k3) that will be passed into the struct in order.
// Missing trailing values are zero.
func NewBrownConrady(inp []float64) (*BrownConrady, error) {
	p, err := fillParameters(inp, 5)
	if err != nil {
		return nil, err
	}
	return &BrownConrady{p[0], p[1], p[2], p[3], p[4]}, nil
}

// CheckValid checks if the fields for BrownConrady have valid inputs.
func (bc *BrownConrady) CheckValid() error {
	if bc == nil {
		return InvalidDistortionError("BrownConrady shaped distortion_parameters not provided")
	}
	return nil
}

// ModelType returns the type of distortion model.
func (bc *BrownConrady) ModelType() DistortionType {
	return BrownConradyDistortionType
}

// Parameters returns the distortion parameters as k1, k2, p1, p2, k3.
func (bc *BrownConrady) Parameters() []float64 {
	if bc == nil {
		return []float64{}
	}
	return []float64{bc.RadialK1, bc.RadialK2, bc.TangentialP1, bc.TangentialP2, bc.RadialK3}
}

// Transform distorts normalized coordinates.
//
//	x_d = x (1 + k1 r² + k2 r⁴ + k3 r⁶) + 2 p1 x y + p2 (r² + 2x²)
//	y_d = y (1 + k1 r² + k2 r⁴ + k3 r⁶) + p1 (r² + 2y²) + 2 p2 x y
func (bc *BrownConrady) Transform(x, y float64) (float64, float64) {
	if bc == nil {
		return x, y
	}
	r2 := x*x + y*y
	radial := 1 + r2*(bc.RadialK1+r2*(bc.RadialK2+r2*bc.RadialK3))
	xd := x*radial + 2*bc.TangentialP1*x*y + bc.TangentialP2*(r2+2*x*x)
	yd := y*radial + bc.TangentialP1*(r2+2*y*y) + 2*bc.TangentialP2*x*y
	return xd, yd
}

// Inverse returns the model that undoes this distortion.
func (bc *BrownConrady) Inverse() *InverseBrownConrady {
	if bc == nil {
		return nil
	}
	return &InverseBrownConrady{
		RadialK1:     bc.RadialK1,
		RadialK2:     bc.RadialK2,
		TangentialP1: bc.TangentialP1,
		TangentialP2: bc.TangentialP2,
		RadialK3:     bc.RadialK3,
	}
}

// Undistort maps distorted normalized coordinates back to undistorted ones.
func (bc *BrownConrady) Undistort(x, y float64) (float64, float64) {
	return bc.Inverse().Transform(x, y)
}
