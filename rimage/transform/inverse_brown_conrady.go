package transform

// InverseBrownConrady applies the inverse of the Brown-Conrady distortion model.
// Given distorted points, it computes the corresponding undistorted points using
// an iterative Newton-Raphson method.
type InverseBrownConrady struct {
	RadialK1     float64 `json:"rk1"`
	RadialK2     float64 `json:"rk2"`
	TangentialP1 float64 `json:"tp1"`
	TangentialP2 float64 `json:"tp2"`
	RadialK3     float64 `json:"rk3"`
}

// CheckValid checks if the fields for InverseBrownConrady have valid inputs.
func (ibc *InverseBrownConrady) CheckValid() error {
	if ibc == nil {
		return InvalidDistortionError("InverseBrownConrady shaped distortion_parameters not provided")
	}
	return nil
}

// NewInverseBrownConrady takes the parameters of the forward model (k1, k2, p1, p2, k3).
func NewInverseBrownConrady(inp []float64) (*InverseBrownConrady, error) {
	p, err := fillParameters(inp, 5)
	if err != nil {
		return nil, err
	}
	return &InverseBrownConrady{p[0], p[1], p[2], p[3], p[4]}, nil
}

// ModelType returns the type of distortion model.
func (ibc *InverseBrownConrady) ModelType() DistortionType {
	return InverseBrownConradyDistortionType
}

// Parameters returns the parameters of the forward model as k1, k2, p1, p2, k3.
func (ibc *InverseBrownConrady) Parameters() []float64 {
	if ibc == nil {
		return []float64{}
	}
	return []float64{ibc.RadialK1, ibc.RadialK2, ibc.TangentialP1, ibc.TangentialP2, ibc.RadialK3}
}

// Transform converts distorted points to undistorted points. It searches for the
// undistorted coordinates whose forward distortion gives (xd, yd), see BrownConrady.Transform.
func (ibc *InverseBrownConrady) Transform(xd, yd float64) (float64, float64) {
	if ibc == nil {
		return xd, yd
	}

	// Start with the distorted point as initial guess
	xu, yu := xd, yd

	const maxIterations = 20
	const tolerance = 1e-10

	for i := 0; i < maxIterations; i++ {
		r2 := xu*xu + yu*yu
		r4 := r2 * r2
		r6 := r4 * r2

		radDist := 1.0 + ibc.RadialK1*r2 + ibc.RadialK2*r4 + ibc.RadialK3*r6
		tanDistX := 2.0*ibc.TangentialP1*xu*yu + ibc.TangentialP2*(r2+2.0*xu*xu)
		tanDistY := 2.0*ibc.TangentialP2*xu*yu + ibc.TangentialP1*(r2+2.0*yu*yu)

		errX := xu*radDist + tanDistX - xd
		errY := yu*radDist + tanDistY - yd
		if errX*errX+errY*errY < tolerance*tolerance {
			break
		}

		// J = [[dxd/dxu, dxd/dyu], [dyd/dxu, dyd/dyu]]
		dRadDistDxu := 2.0 * xu * (ibc.RadialK1 + 2.0*ibc.RadialK2*r2 + 3.0*ibc.RadialK3*r4)
		dRadDistDyu := 2.0 * yu * (ibc.RadialK1 + 2.0*ibc.RadialK2*r2 + 3.0*ibc.RadialK3*r4)

		dxdDxu := radDist + xu*dRadDistDxu + 2.0*ibc.TangentialP1*yu + 6.0*ibc.TangentialP2*xu
		dxdDyu := xu*dRadDistDyu + 2.0*ibc.TangentialP1*xu + 2.0*ibc.TangentialP2*yu
		dydDxu := yu*dRadDistDxu + 2.0*ibc.TangentialP2*yu + 2.0*ibc.TangentialP1*xu
		dydDyu := radDist + yu*dRadDistDyu + 2.0*ibc.TangentialP2*xu + 6.0*ibc.TangentialP1*yu

		det := dxdDxu*dydDyu - dxdDyu*dydDxu
		if det == 0 {
			break
		}

		// [xu, yu] -= J^-1 * [errX, errY]
		xu -= (dydDyu*errX - dxdDyu*errY) / det
		yu -= (-dydDxu*errX + dxdDxu*errY) / det
	}

	return xu, yu
}
