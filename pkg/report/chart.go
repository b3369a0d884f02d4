package report

import (
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

const (
	KindTotal   = "total"
	KindPercent = "percent"

	FormatPNG = "png"
	FormatSVG = "svg"

	chartWidth  = 10 * vg.Inch
	chartHeight = 5 * vg.Inch
	barWidth    = 24
)

var barColor = color.RGBA{R: 0x82, G: 0x0a, B: 0xd1, A: 0xff}

// RenderChart draws totals as a bar chart of amounts (KindTotal) or shares
// (KindPercent) and writes it to w in the given image format.
func RenderChart(w io.Writer, totals []*CategoryTotal, kind, format string) error {
	if len(totals) == 0 {
		return ErrEmptySelection
	}
	if format == "" {
		format = FormatPNG
	}
	if format != FormatPNG && format != FormatSVG {
		return fmt.Errorf("unsupported chart format %q", format)
	}

	var (
		title string
		value func(*CategoryTotal) float64
		label func(float64) string
	)
	switch kind {
	case KindTotal, "":
		title = "Total por categoria"
		value = func(t *CategoryTotal) float64 { return t.Amount }
		label = FormatBRL
	case KindPercent:
		title = "Percentual por categoria"
		value = func(t *CategoryTotal) float64 { return t.Percent }
		label = func(v float64) string { return fmt.Sprintf("%.1f%%", v) }
	default:
		return fmt.Errorf("unsupported chart kind %q, expected %s or %s", kind, KindTotal, KindPercent)
	}

	vals := make(plotter.Values, len(totals))
	names := make([]string, len(totals))
	xys := make(plotter.XYs, len(totals))
	labels := make([]string, len(totals))
	for i, t := range totals {
		v := value(t)
		vals[i] = v
		names[i] = t.Category
		xys[i] = plotter.XY{X: float64(i), Y: v}
		labels[i] = label(v)
	}

	p := plot.New()
	p.Title.Text = title
	p.Y.Label.Text = kind
	if kind == "" {
		p.Y.Label.Text = KindTotal
	}

	bars, err := plotter.NewBarChart(vals, vg.Points(barWidth))
	if err != nil {
		return fmt.Errorf("creating bar chart: %w", err)
	}
	bars.Color = barColor
	bars.LineStyle.Width = 0
	p.Add(bars)
	p.NominalX(names...)

	lbls, err := plotter.NewLabels(plotter.XYLabels{XYs: xys, Labels: labels})
	if err != nil {
		return fmt.Errorf("creating bar labels: %w", err)
	}
	p.Add(lbls)

	wt, err := p.WriterTo(chartWidth, chartHeight, format)
	if err != nil {
		return fmt.Errorf("rendering chart: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("writing chart: %w", err)
	}
	return nil
}
