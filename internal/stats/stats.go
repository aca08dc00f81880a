package stats

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/verte-zerg/kneefit/internal/fit"
	"github.com/verte-zerg/kneefit/internal/model"
	"github.com/verte-zerg/kneefit/internal/section"
)

// Scope selects how far a fitted curve is drawn.
type Scope string

const (
	// ScopeWhole draws a fit from its section start to the end of the trace.
	ScopeWhole Scope = "whole"
	// ScopeSection draws a fit over its own section only.
	ScopeSection Scope = "section"
)

// ParseScope resolves an overlay scope name.
func ParseScope(name string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(name))) {
	case ScopeWhole, "":
		return ScopeWhole, nil
	case ScopeSection:
		return ScopeSection, nil
	default:
		return "", fmt.Errorf("unknown overlay scope %q (use whole or section)", name)
	}
}

// Contains reports whether x falls inside the drawn range of sec.
func (s Scope) Contains(sec *model.Section, x float64) bool {
	if x < sec.From {
		return false
	}
	return s != ScopeSection || x <= sec.To
}

// Overlaid reports whether sec has a curve to draw.
func Overlaid(sec *model.Section) bool {
	return sec != nil && sec.Type.Valid() && sec.Comment != section.CommentFitError
}

// FitName labels the curve of sec in legends.
func FitName(sec *model.Section) string {
	return fmt.Sprintf("#%d %s", sec.Index, sec.Type)
}

// BuildOverlay returns the trace response followed by one series per fitted
// section, evaluated on the trace grid. Samples outside the scope are NaN.
func BuildOverlay(tr *model.Trace, sections []*model.Section, scope Scope) []Series {
	if tr == nil || tr.Len() == 0 {
		return nil
	}
	name := tr.YLabel
	if name == "" {
		name = "Trace"
	}
	series := []Series{{Name: name, Values: append([]float64(nil), tr.Y...)}}
	for _, sec := range sections {
		if !Overlaid(sec) {
			continue
		}
		curve := fit.Evaluate(sec.Type, sec.Params(), sec.From, tr.X)
		for i, x := range tr.X {
			if !scope.Contains(sec, x) {
				curve[i] = math.NaN()
			}
		}
		series = append(series, Series{Name: FitName(sec), Values: curve})
	}
	return series
}

// RenderOverlay plots the trace with the fitted curves sized to a given total width.
func RenderOverlay(w io.Writer, tr *model.Trace, sections []*model.Section, scope Scope, totalWidth, height int, useColor bool) error {
	series := BuildOverlay(tr, sections, scope)
	if len(series) == 0 {
		return nil
	}
	width := 0
	if totalWidth > 0 {
		width = PlotWidthFor(totalWidth)
	}
	title := "Overlay"
	if tr.XLabel != "" {
		title = fmt.Sprintf("Overlay over %s", tr.XLabel)
	}
	return PlotSeriesWithColor(w, title, series, width, height, useColor)
}

// Summary counts section outcomes.
type Summary struct {
	Sections   int
	Fitted     int
	Failed     int
	Unresolved int
	Pending    int
}

// Summarize classifies every section by its latest fit outcome.
func Summarize(sections []*model.Section) Summary {
	sum := Summary{Sections: len(sections)}
	for _, sec := range sections {
		switch {
		case sec.Comment == section.CommentFitError || sec.Comment == section.CommentInsufficientData:
			sum.Failed++
		case sec.Type.Valid():
			sum.Fitted++
		default:
			sum.Pending++
		}
		if sec.Tau90.State == model.T90Unresolved {
			sum.Unresolved++
		}
	}
	return sum
}

func (s Summary) String() string {
	return fmt.Sprintf("%d sections: %d fitted, %d failed, %d pending, %d t90 unresolved",
		s.Sections, s.Fitted, s.Failed, s.Pending, s.Unresolved)
}

// RenderSummary prints the summary line.
func RenderSummary(w io.Writer, sum Summary) error {
	_, err := fmt.Fprintln(w, sum.String())
	return err
}
