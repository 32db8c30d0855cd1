package cli

import (
	"fmt"
	"path/filepath"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/stereocal/rimage/calibrate"
)

type errorSummary struct {
	Mean, Median, Max float64
}

func summarize(errs []float64) (errorSummary, error) {
	var s errorSummary
	var err error
	if s.Mean, err = stats.Mean(errs); err != nil {
		return errorSummary{}, err
	}
	if s.Median, err = stats.Median(errs); err != nil {
		return errorSummary{}, err
	}
	if s.Max, err = stats.Max(errs); err != nil {
		return errorSummary{}, err
	}
	return s, nil
}

func (s errorSummary) String() string {
	return fmt.Sprintf("mean %.4f, median %.4f, max %.4f", s.Mean, s.Median, s.Max)
}

func matrixString(m *mat.Dense) string {
	return fmt.Sprintf("%.6g", mat.Formatted(m, mat.Squeeze()))
}

func intrinsicsRows(name string, c calibrate.CameraIntrinsics) []table.Row {
	return []table.Row{
		{name + " fx, fy", fmt.Sprintf("%.4f, %.4f", c.Matrix.At(0, 0), c.Matrix.At(1, 1))},
		{name + " cx, cy", fmt.Sprintf("%.4f, %.4f", c.Matrix.At(0, 2), c.Matrix.At(1, 2))},
		{name + " distortion", fmt.Sprintf("%.6g", c.Distortion)},
	}
}

// monoReport renders the calibration and the error of each view.
func monoReport(out *calibrate.MonoOutcome) (string, error) {
	calib := out.Calibration
	t := table.NewWriter()
	t.SetTitle("camera")
	t.AppendRows(intrinsicsRows("", calib.Intrinsics))
	t.AppendRow(table.Row{"RMS", fmt.Sprintf("%.6f", calib.RMS)})

	views := table.NewWriter()
	views.AppendHeader(table.Row{"#", "Image", "RMS"})
	for i, e := range calib.PerViewErrors {
		views.AppendRow(table.Row{i, filepath.Base(out.Capture.Paths[i]), fmt.Sprintf("%.4f", e)})
	}
	summary, err := summarize(calib.PerViewErrors)
	if err != nil {
		return "", err
	}
	views.AppendFooter(table.Row{"", "", summary.String()})
	report := t.Render() + "\n" + views.Render()
	if n := len(out.Capture.Rejected); n > 0 {
		report += fmt.Sprintf("\n%d image(s) without a chessboard were skipped", n)
	}
	return report, nil
}

// stereoReport renders the rig and the left and right error of each pair.
func stereoReport(out *calibrate.StereoOutcome) (string, error) {
	calib := out.Calibration
	t := table.NewWriter()
	t.SetTitle("stereo rig")
	t.AppendRows(intrinsicsRows("left", calib.Left))
	t.AppendRows(intrinsicsRows("right", calib.Right))
	t.AppendRow(table.Row{"R", matrixString(calib.Extrinsics.R)})
	t.AppendRow(table.Row{"T", fmt.Sprintf("%.4f, %.4f, %.4f",
		calib.Extrinsics.T.X, calib.Extrinsics.T.Y, calib.Extrinsics.T.Z)})
	t.AppendRow(table.Row{"baseline", fmt.Sprintf("%.4f", calib.Extrinsics.T.Norm())})
	t.AppendRow(table.Row{"RMS", fmt.Sprintf("%.6f", calib.RMS)})
	t.AppendRow(table.Row{"epipolar error", fmt.Sprintf("%.6f", calib.EpipolarError)})

	views := table.NewWriter()
	views.AppendHeader(table.Row{"#", "Left", "Right", "RMS left", "RMS right"})
	left := make([]float64, 0, len(calib.PerViewErrors))
	right := make([]float64, 0, len(calib.PerViewErrors))
	for i, e := range calib.PerViewErrors {
		pair := out.Capture.Pairs[i]
		views.AppendRow(table.Row{
			pair.Index, filepath.Base(pair.Left), filepath.Base(pair.Right),
			fmt.Sprintf("%.4f", e[0]), fmt.Sprintf("%.4f", e[1]),
		})
		left = append(left, e[0])
		right = append(right, e[1])
	}
	sumL, err := summarize(left)
	if err != nil {
		return "", err
	}
	sumR, err := summarize(right)
	if err != nil {
		return "", err
	}
	views.AppendFooter(table.Row{"", "", "", sumL.String(), sumR.String()})
	report := t.Render() + "\n" + views.Render()
	if n := len(out.Capture.Rejected); n > 0 {
		report += fmt.Sprintf("\n%d pair(s) without a chessboard in both images were skipped", n)
	}
	return report, nil
}

// rectifyReport renders the rectified projections and the valid regions.
func rectifyReport(out *calibrate.RectifyOutcome) string {
	rect := out.Calibration.Maps.StereoRectification
	t := table.NewWriter()
	t.SetTitle("rectification")
	t.AppendRow(table.Row{"P1", matrixString(rect.P1)})
	t.AppendRow(table.Row{"P2", matrixString(rect.P2)})
	t.AppendRow(table.Row{"ROI left", rect.ROILeft.String()})
	t.AppendRow(table.Row{"ROI right", rect.ROIRight.String()})
	t.AppendRow(table.Row{"pairs written", len(out.Written)})
	return t.Render()
}
