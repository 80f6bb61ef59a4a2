// Package report renders pipeline diagnostics as images.
package report

import (
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	scigoErrors "github.com/ezoic/churn/pkg/errors"
	"github.com/ezoic/churn/preprocessing"
)

// VarianceCurve returns the cumulative explained variance ratio after each
// principal component, one point per component of the fitted reducer.
func VarianceCurve(pca *preprocessing.PCA) (plotter.XYs, error) {
	if !pca.IsFitted() {
		return nil, scigoErrors.NewNotFittedError("PCA", "VarianceCurve")
	}
	pts := make(plotter.XYs, len(pca.ExplainedVarianceRatio))
	cum := 0.0
	for i, r := range pca.ExplainedVarianceRatio {
		cum += r
		pts[i].X = float64(i + 1)
		pts[i].Y = cum
	}
	return pts, nil
}

// SaveVarianceCurve plots the cumulative explained variance per component
// with the retention threshold as a dashed horizontal line and the number
// of retained components as a dotted vertical line. The image format
// follows the extension of path (png, svg, pdf, ...).
func SaveVarianceCurve(pca *preprocessing.PCA, path string) error {
	pts, err := VarianceCurve(pca)
	if err != nil {
		return err
	}

	p := plot.New()
	p.Title.Text = "PCA cumulative explained variance"
	p.X.Label.Text = "Components"
	p.Y.Label.Text = "Cumulative explained variance ratio"
	p.Y.Min = 0
	p.Y.Max = 1.05
	p.Add(plotter.NewGrid())

	line, points, err := plotter.NewLinePoints(pts)
	if err != nil {
		return scigoErrors.Wrap(err, "variance curve")
	}
	line.Width = vg.Points(2)
	p.Add(line, points)
	p.Legend.Add("Cumulative variance", line, points)

	if pca.NComponents < 1 {
		threshold, err := plotter.NewLine(plotter.XYs{{X: 1, Y: pca.NComponents}, {X: float64(len(pts)), Y: pca.NComponents}})
		if err != nil {
			return scigoErrors.Wrap(err, "threshold line")
		}
		threshold.Color = color.RGBA{R: 200, A: 255}
		threshold.Dashes = []vg.Length{vg.Points(6), vg.Points(4)}
		p.Add(threshold)
		p.Legend.Add("Threshold", threshold)
	}

	k := float64(pca.NComponentsFitted)
	retained, err := plotter.NewLine(plotter.XYs{{X: k, Y: 0}, {X: k, Y: 1}})
	if err != nil {
		return scigoErrors.Wrap(err, "retained marker")
	}
	retained.Color = color.Gray{Y: 100}
	retained.Dashes = []vg.Length{vg.Points(2), vg.Points(2)}
	p.Add(retained)
	p.Legend.Add("Retained components", retained)
	p.Legend.Left = false
	p.Legend.Top = false

	if err := p.Save(8*vg.Inch, 6*vg.Inch, path); err != nil {
		return scigoErrors.Wrapf(err, "save plot %s", path)
	}
	return nil
}
