// Package chart renders ranked tuning results as an interactive HTML bar
// chart (go-echarts) or a static PNG (gonum/plot).
package chart

import (
	"bytes"
	"errors"
	"fmt"
	"image/color"
	"io"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/chkao831/Autotuning/internal/fsutil"
	"github.com/chkao831/Autotuning/internal/results"
)

// ErrNoData is returned when a table has no passed rows to draw.
var ErrNoData = errors.New("no passed experiments to chart")

// bar is one drawable experiment.
type bar struct {
	label   string
	primary float64
	tooltip string
}

// bars returns the passed, evaluated rows in table order.
func bars(t *results.Table) []bar {
	var out []bar
	for _, r := range t.Rows {
		if !r.Passed || r.Pending {
			continue
		}
		out = append(out, bar{
			label:   strconv.Itoa(r.ID),
			primary: r.Primary,
			tooltip: r.Assignment.String(),
		})
	}
	return out
}

// WriteHTML renders the passed rows of t as a bar chart page.
func WriteHTML(w io.Writer, t *results.Table, title string) error {
	bs := bars(t)
	if len(bs) == 0 {
		return ErrNoData
	}

	x := make([]string, 0, len(bs))
	y := make([]opts.BarData, 0, len(bs))
	for _, b := range bs {
		x = append(x, b.label)
		y = append(y, opts.BarData{Name: b.tooltip, Value: b.primary})
	}

	summary := t.Summarize()
	chart := charts.NewBar()
	chart.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "100%", Height: "720px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    title,
			Subtitle: fmt.Sprintf("passed=%d failed=%d mean=%.4f stddev=%.4f", summary.Passed, summary.Failed, summary.Mean, summary.Stddev),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: results.ColumnID, NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: results.ColumnPrimary + " (s)", NameLocation: "middle", NameGap: 40}),
	)
	chart.SetXAxis(x).
		AddSeries(results.ColumnPrimary, y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)

	var buf bytes.Buffer
	if err := chart.Render(&buf); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// SaveHTML writes the HTML chart to path on fsys.
func SaveHTML(fsys fsutil.FileSystem, path string, t *results.Table, title string) error {
	var buf bytes.Buffer
	if err := WriteHTML(&buf, t, title); err != nil {
		return err
	}
	if err := fsys.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("write chart %s: %w", path, err)
	}
	return nil
}

// WritePNG renders the passed rows of t as a PNG bar chart at path.
func WritePNG(fsys fsutil.FileSystem, path string, t *results.Table, title string) error {
	bs := bars(t)
	if len(bs) == 0 {
		return ErrNoData
	}

	values := make(plotter.Values, 0, len(bs))
	labels := make([]string, 0, len(bs))
	for _, b := range bs {
		values = append(values, b.primary)
		labels = append(labels, b.label)
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = results.ColumnID
	p.Y.Label.Text = results.ColumnPrimary + " (s)"

	chart, err := plotter.NewBarChart(values, vg.Points(20))
	if err != nil {
		return fmt.Errorf("build bar chart: %w", err)
	}
	chart.LineStyle.Width = vg.Length(0)
	chart.Color = color.RGBA{R: 49, G: 104, B: 142, A: 255}
	p.Add(chart)
	p.NominalX(labels...)

	width := vg.Length(len(bs))*vg.Points(28) + 2*vg.Inch
	if width < 6*vg.Inch {
		width = 6 * vg.Inch
	}
	wt, err := p.WriterTo(width, 4*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("encode chart: %w", err)
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return fmt.Errorf("encode chart: %w", err)
	}
	if err := fsys.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("write chart %s: %w", path, err)
	}
	return nil
}
