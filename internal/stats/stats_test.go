package stats

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/verte-zerg/kneefit/internal/model"
	"github.com/verte-zerg/kneefit/internal/section"
)

func overlayTrace() *model.Trace {
	tr := &model.Trace{YLabel: "R [Ohm]", XLabel: "Time [s]"}
	for i := 0; i <= 10; i++ {
		tr.X = append(tr.X, float64(i))
		tr.Y = append(tr.Y, float64(i*i))
		tr.C = append(tr.C, 0)
	}
	return tr
}

func auxSection(index int, from, to float64) *model.Section {
	sec := model.NewSection(index, from, to)
	sec.Type = model.FitAux
	sec.Y0 = model.Float(1)
	sec.A1 = model.Float(2)
	return sec
}

func TestBuildOverlayScopes(t *testing.T) {
	tr := overlayTrace()
	failed := auxSection(2, 5, 8)
	failed.Comment = section.CommentFitError
	sections := []*model.Section{auxSection(1, 2, 5), failed, model.NewSection(3, 8, 10)}

	whole := BuildOverlay(tr, sections, ScopeWhole)
	if len(whole) != 2 {
		t.Fatalf("expected trace plus one fit, got %d series", len(whole))
	}
	if whole[0].Name != "R [Ohm]" || whole[1].Name != "#1 Aux" {
		t.Fatalf("unexpected names: %q %q", whole[0].Name, whole[1].Name)
	}
	for i, x := range tr.X {
		got := whole[1].Values[i]
		if x < 2 {
			if !math.IsNaN(got) {
				t.Fatalf("x=%g: expected a gap before the section, got %g", x, got)
			}
			continue
		}
		if want := 1 + 2*(x-2); got != want {
			t.Fatalf("x=%g: expected %g, got %g", x, want, got)
		}
	}

	own := BuildOverlay(tr, sections, ScopeSection)
	if !math.IsNaN(own[1].Values[6]) || own[1].Values[5] != 7 {
		t.Fatalf("section scope should stop at To: %v", own[1].Values)
	}
	if BuildOverlay(&model.Trace{}, sections, ScopeWhole) != nil {
		t.Fatalf("expected no series for an empty trace")
	}
}

func TestParseScope(t *testing.T) {
	for name, want := range map[string]Scope{"": ScopeWhole, "whole": ScopeWhole, "Section": ScopeSection} {
		got, err := ParseScope(name)
		if err != nil || got != want {
			t.Fatalf("ParseScope(%q) = %q, %v", name, got, err)
		}
	}
	if _, err := ParseScope("partial"); err == nil {
		t.Fatalf("expected an error for an unknown scope")
	}
}

func TestSummarize(t *testing.T) {
	fitted := auxSection(1, 0, 1)
	unresolved := model.NewSection(2, 1, 2)
	unresolved.Type = model.FitDoubleExp
	unresolved.Tau90 = model.T90{State: model.T90Unresolved}
	failed := model.NewSection(3, 2, 3)
	failed.Comment = section.CommentFitError
	short := model.NewSection(4, 3, 4)
	short.Comment = section.CommentInsufficientData
	pending := model.NewSection(5, 4, 5)

	sum := Summarize([]*model.Section{fitted, unresolved, failed, short, pending})
	want := Summary{Sections: 5, Fitted: 2, Failed: 2, Unresolved: 1, Pending: 1}
	if sum != want {
		t.Fatalf("expected %+v, got %+v", want, sum)
	}
	if sum.String() != "5 sections: 2 fitted, 2 failed, 1 pending, 1 t90 unresolved" {
		t.Fatalf("unexpected summary line: %q", sum.String())
	}
}

func TestRenderOverlay(t *testing.T) {
	var buf bytes.Buffer
	err := RenderOverlay(&buf, overlayTrace(), []*model.Section{auxSection(1, 2, 5)}, ScopeSection, 40, 5, false)
	if err != nil {
		t.Fatalf("RenderOverlay failed: %v", err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "Overlay over Time [s]\n") {
		t.Fatalf("unexpected title: %q", out)
	}
	if !strings.Contains(out, "#1 Aux (dotted)") {
		t.Fatalf("expected the fit in the legend: %q", out)
	}
}
