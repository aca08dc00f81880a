package stats

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/verte-zerg/kneefit/internal/model"
	"github.com/verte-zerg/kneefit/internal/store"
)

func TestFormatTableAlignsColumns(t *testing.T) {
	headers := []string{"#", "Type", "tau90"}
	rows := [][]string{
		{"1", "Single Exp. Decay", "69.078"},
		{"12", "Aux", ""},
	}
	rightAlign := map[int]bool{0: true, 2: true}

	lines := formatTable(headers, rows, rightAlign)
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	if lines[0] != " # Type               tau90" {
		t.Fatalf("unexpected header line: %q", lines[0])
	}
	if lines[1] != " 1 Single Exp. Decay 69.078" {
		t.Fatalf("unexpected row line: %q", lines[1])
	}
	if lines[2] != "12 Aux" {
		t.Fatalf("unexpected row line: %q", lines[2])
	}
}

func TestRenderSectionTable(t *testing.T) {
	sec := model.NewSection(1, 0, 12.5)
	sec.Type = model.FitSingleExp
	sec.Y0 = model.Float(100)
	sec.A1 = model.Float(-20)
	sec.Tau1 = model.Float(30)
	sec.PrevY0 = model.Float(80)
	sec.Tau90 = model.T90{State: model.T90Value, Value: 69.0776}
	sec.Comment = "10 ppm"

	var buf bytes.Buffer
	if err := RenderSectionTable(&buf, []*model.Section{sec, model.NewSection(2, 12.5, 20)}); err != nil {
		t.Fatalf("RenderSectionTable failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d: %q", len(lines), buf.String())
	}
	if strings.Contains(lines[0], "prev_y0") {
		t.Fatalf("baseline column must stay hidden: %q", lines[0])
	}
	for _, want := range []string{"1.000E+02", "-2.000E+01", "3.000E+01", "69.078", "10 ppm", "12.5"} {
		if !strings.Contains(lines[1], want) {
			t.Fatalf("expected %q in %q", want, lines[1])
		}
	}

	buf.Reset()
	if err := RenderSectionTable(&buf, nil); err != nil {
		t.Fatalf("RenderSectionTable failed: %v", err)
	}
	if buf.String() != "No sections defined.\n" {
		t.Fatalf("unexpected empty output: %q", buf.String())
	}
}

func TestRenderProjectList(t *testing.T) {
	var empty bytes.Buffer
	if err := RenderProjectList(&empty, nil); err != nil {
		t.Fatalf("render: %v", err)
	}
	if empty.String() != "No saved projects.\n" {
		t.Fatalf("unexpected empty output %q", empty.String())
	}

	var buf bytes.Buffer
	projects := []store.ProjectInfo{
		{Name: "run-1", Samples: 1801, Sections: 3, Codec: "zstd", UpdatedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.Local)},
		{Name: "b", Samples: 20, Sections: 0, Codec: "none", UpdatedAt: time.Date(2026, 2, 1, 9, 30, 0, 0, time.Local)},
	}
	if err := RenderProjectList(&buf, projects); err != nil {
		t.Fatalf("render: %v", err)
	}
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	if lines[0] != "Name  Samples Sections Codec Updated" {
		t.Fatalf("unexpected header %q", lines[0])
	}
	if lines[1] != "run-1    1801        3 zstd  2026-03-01 10:00:00" {
		t.Fatalf("unexpected row %q", lines[1])
	}
	if lines[2] != "b          20        0 none  2026-02-01 09:30:00" {
		t.Fatalf("unexpected row %q", lines[2])
	}
}
