package history

import (
	"bytes"
	"fmt"
	"image/color"
	"slices"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// chartPoints returns completed items oldest first.
func chartPoints(items []Item) []Item {
	var pts []Item
	for _, it := range items {
		if it.Completed {
			pts = append(pts, it)
		}
	}
	slices.SortStableFunc(pts, func(a, b Item) int { return a.Date.Compare(b.Date) })
	return pts
}

// RenderScoreChart renders an HTML line chart of completed scores over time.
func RenderScoreChart(items []Item, period Period) ([]byte, error) {
	pts := chartPoints(items)
	xs := make([]string, 0, len(pts))
	ys := make([]opts.LineData, 0, len(pts))
	layout := "15:04"
	if period != Day {
		layout = "Jan 2 15:04"
	}
	for _, it := range pts {
		xs = append(xs, it.Date.Format(layout))
		ys = append(ys, opts.LineData{Value: it.Score})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Jab Scores", Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: "Jab Scores", Subtitle: fmt.Sprintf("period=%s sessions=%d average=%d", period, len(pts), AverageScore(pts))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 100, Name: "Score"}),
	)
	line.SetXAxis(xs).AddSeries("score", ys,
		charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}),
		charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
	)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		return nil, fmt.Errorf("render score chart: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderScorePNG plots completed scores against time as a PNG.
func RenderScorePNG(items []Item, period Period) ([]byte, error) {
	pts := chartPoints(items)

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Jab scores (%s)", period)
	p.X.Label.Text = "Date"
	p.Y.Label.Text = "Score"
	p.Y.Min, p.Y.Max = 0, 100
	p.X.Tick.Marker = plot.TimeTicks{Format: "Jan 2"}

	if len(pts) > 0 {
		xys := make(plotter.XYs, 0, len(pts))
		for _, it := range pts {
			xys = append(xys, plotter.XY{X: float64(it.Date.Unix()), Y: it.Score})
		}
		line, scatter, err := plotter.NewLinePoints(xys)
		if err != nil {
			return nil, err
		}
		line.Color = color.RGBA{R: 220, G: 40, B: 40, A: 255}
		line.Width = vg.Points(1.5)
		scatter.Color = line.Color
		p.Add(line, scatter)
	}

	wt, err := p.WriterTo(8*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("render score png: %w", err)
	}
	return buf.Bytes(), nil
}
