package stats

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/mattn/go-runewidth"
)

func TestPlotSeries(t *testing.T) {
	var buf bytes.Buffer
	err := PlotSeries(&buf, "Test Plot", []Series{
		{Name: "A", Values: []float64{1, 2, 3, 2, 1}},
		{Name: "B", Values: []float64{1, 1, 2, 3, 4}},
	}, 10, 4)
	if err != nil {
		t.Fatalf("PlotSeries failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1+4+1 {
		t.Fatalf("expected 6 lines of output, got %d", len(lines))
	}
	if lines[0] != "Test Plot" {
		t.Fatalf("expected title first, got %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], runewidth.FillLeft("4", axisLabelWidth)+axisSeparator) {
		t.Fatalf("expected shared maximum on the top axis label: %q", lines[1])
	}
	if !strings.HasPrefix(lines[4], runewidth.FillLeft("1", axisLabelWidth)+axisSeparator) {
		t.Fatalf("expected shared minimum on the bottom axis label: %q", lines[4])
	}
	if !strings.Contains(lines[5], "A (solid)") || !strings.Contains(lines[5], "B (dotted)") {
		t.Fatalf("unexpected legend: %q", lines[5])
	}
}

func TestPlotSeriesSkipsGaps(t *testing.T) {
	nan := math.NaN()
	var buf bytes.Buffer
	err := PlotSeries(&buf, "", []Series{
		{Name: "trace", Values: []float64{5, 4, 3, 2, 1, 1}},
		{Name: "fit", Values: []float64{nan, nan, 3, 2, 1}},
		{Name: "empty", Values: []float64{nan, nan}},
	}, 12, 3)
	if err != nil {
		t.Fatalf("PlotSeries failed: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "fit (dotted)") {
		t.Fatalf("expected the gapped series in the legend: %q", out)
	}
	if strings.Contains(out, "empty") {
		t.Fatalf("expected the all-gap series to be dropped: %q", out)
	}
}

func TestPlotSeriesNothingToDraw(t *testing.T) {
	var buf bytes.Buffer
	if err := PlotSeries(&buf, "title", nil, 10, 3); err != nil {
		t.Fatalf("PlotSeries failed: %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("expected no output, got %q", buf.String())
	}
}

func TestResampleSeriesKeepsGaps(t *testing.T) {
	nan := math.NaN()
	down := resampleSeries([]float64{nan, nan, 2, 4, 6, nan}, 3)
	if !math.IsNaN(down[0]) || down[1] != 3 || down[2] != 6 {
		t.Fatalf("unexpected downsample: %v", down)
	}
	up := resampleSeries([]float64{nan, 2, 4}, 5)
	if !math.IsNaN(up[0]) || !math.IsNaN(up[1]) || up[2] != 2 || up[3] != 3 || up[4] != 4 {
		t.Fatalf("unexpected upsample: %v", up)
	}
}

func TestPlotWidthFor(t *testing.T) {
	axisWidth := axisLabelWidth + runewidth.StringWidth(axisSeparator)
	if got := PlotWidthFor(80); got != 80-axisWidth {
		t.Fatalf("expected width %d, got %d", 80-axisWidth, got)
	}
	if got := PlotWidthFor(0); got != minPlotWidth {
		t.Fatalf("expected min width %d, got %d", minPlotWidth, got)
	}
	if got := PlotWidthFor(15); got != minPlotWidth {
		t.Fatalf("expected min width %d, got %d", minPlotWidth, got)
	}
}
