package export

import (
	"errors"
	"fmt"
	"io"
	"math"

	chart "github.com/wcharczuk/go-chart/v2"

	"github.com/verte-zerg/kneefit/internal/model"
	"github.com/verte-zerg/kneefit/internal/stats"
)

// PlotOptions configures a rendered overlay.
type PlotOptions struct {
	Scope  stats.Scope
	Knees  model.Knees
	Title  string
	Width  int
	Height int
}

const (
	defaultPlotWidth  = 1200
	defaultPlotHeight = 600
)

// WriteOverlayPNG renders the trace with every fitted section overlaid as a
// dotted curve and the knees as vertical grid lines.
func WriteOverlayPNG(w io.Writer, tr *model.Trace, sections []*model.Section, opts PlotOptions) error {
	if tr == nil || tr.Len() < 2 {
		return errors.New("at least two samples are needed to plot a trace")
	}
	if opts.Width <= 0 {
		opts.Width = defaultPlotWidth
	}
	if opts.Height <= 0 {
		opts.Height = defaultPlotHeight
	}

	gridLines := make([]chart.GridLine, 0, len(opts.Knees))
	for _, k := range opts.Knees {
		gridLines = append(gridLines, chart.GridLine{Value: k})
	}

	graph := chart.Chart{
		Title:      opts.Title,
		Width:      opts.Width,
		Height:     opts.Height,
		Background: chart.Style{Padding: chart.Box{Top: 24, Left: 16, Right: 16, Bottom: 16}},
		XAxis: chart.XAxis{
			Name:      tr.XLabel,
			GridLines: gridLines,
			GridMajorStyle: chart.Style{
				StrokeColor:     chart.ColorAlternateGray,
				StrokeWidth:     1,
				StrokeDashArray: []float64{4, 4},
			},
		},
		YAxis:  chart.YAxis{Name: tr.YLabel},
		Series: overlaySeries(tr, sections, opts.Scope),
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}
	if err := graph.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("failed to render overlay: %w", err)
	}
	return nil
}

// SaveOverlayPNG renders the overlay into the file at path.
func SaveOverlayPNG(path string, tr *model.Trace, sections []*model.Section, opts PlotOptions) error {
	return writeFile(path, func(w io.Writer) error {
		return WriteOverlayPNG(w, tr, sections, opts)
	})
}

func overlaySeries(tr *model.Trace, sections []*model.Section, scope stats.Scope) []chart.Series {
	name := tr.YLabel
	if name == "" {
		name = "Trace"
	}
	series := []chart.Series{chart.ContinuousSeries{
		Name:    name,
		XValues: tr.X,
		YValues: tr.Y,
		Style:   chart.Style{StrokeColor: chart.ColorBlue, StrokeWidth: 1.5},
	}}

	overlay := stats.BuildOverlay(tr, sections, scope)
	for i, s := range overlay[1:] {
		var xs, ys []float64
		for j, v := range s.Values {
			if math.IsNaN(v) {
				continue
			}
			xs = append(xs, tr.X[j])
			ys = append(ys, v)
		}
		if len(xs) == 0 {
			continue
		}
		series = append(series, chart.ContinuousSeries{
			Name:    s.Name,
			XValues: xs,
			YValues: ys,
			Style: chart.Style{
				StrokeColor:     chart.GetDefaultColor(i + 1),
				StrokeWidth:     2,
				StrokeDashArray: []float64{2, 3},
			},
		})
	}
	return series
}
