package sectionui

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/verte-zerg/kneefit/internal/model"
	"github.com/verte-zerg/kneefit/internal/section"
	"github.com/verte-zerg/kneefit/internal/stats"
	"github.com/verte-zerg/kneefit/internal/synth"
)

type fakeSaver struct {
	names []string
	err   error
}

func (f *fakeSaver) SaveProject(_ context.Context, name string, _ *section.Session) error {
	if f.err != nil {
		return f.err
	}
	f.names = append(f.names, name)
	return nil
}

func newTestModel(t *testing.T, opts Options) *Model {
	t.Helper()
	tr, knees, err := synth.NewSeeded(1).Generate(synth.Spec{
		Initial: 200,
		Step:    0.5,
		Segments: []synth.Segment{
			{Kind: synth.KindSingle, Duration: 150, Level: 120, Tau1: 10, Concentration: 100},
			{Kind: synth.KindSingle, Duration: 150, Level: 180, Tau1: 15, Concentration: 0},
			{Kind: synth.KindSingle, Duration: 150, Level: 140, Tau1: 8, Concentration: 250},
		},
	})
	if err != nil {
		t.Fatalf("generate trace: %v", err)
	}
	sess, err := section.NewSession(tr, model.FitSingleExp, section.NewCoordinator(nil))
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	sess.SetKnees(knees)
	if err := sess.BuildSections(); err != nil {
		t.Fatalf("build sections: %v", err)
	}
	m := NewModel(sess, opts)
	m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return m
}

func press(m *Model, key string) tea.Cmd {
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)})
	return cmd
}

func enter(m *Model) {
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
}

func stubClipboard(t *testing.T) *string {
	t.Helper()
	var got string
	prev := writeClipboard
	writeClipboard = func(text string) error {
		got = text
		return nil
	}
	t.Cleanup(func() { writeClipboard = prev })
	return &got
}

func TestFitKeys(t *testing.T) {
	m := newTestModel(t, Options{})
	sess := m.Session()

	press(m, "f")
	if sess.Sections[0].Type != model.FitSingleExp {
		t.Fatalf("expected first section fitted, got %q (%s)", sess.Sections[0].Type, sess.Sections[0].Comment)
	}
	if sess.Sections[1].Type != "" {
		t.Fatalf("expected second section untouched, got %q", sess.Sections[1].Type)
	}
	if !strings.Contains(m.status, "Fitted section 1") {
		t.Fatalf("unexpected status %q", m.status)
	}

	press(m, "F")
	if sum := stats.Summarize(sess.Sections); sum.Fitted != 3 {
		t.Fatalf("expected 3 fitted sections, got %s", sum)
	}
	if !strings.Contains(m.renderFooter(), "3 fitted") {
		t.Fatalf("footer missing summary: %s", m.renderFooter())
	}
}

func TestModelAndScopeKeys(t *testing.T) {
	m := newTestModel(t, Options{})
	press(m, "m")
	if m.Session().Selected != model.FitDoubleExp {
		t.Fatalf("expected double exponential, got %q", m.Session().Selected)
	}
	if m.opts.Scope != stats.ScopeWhole {
		t.Fatalf("expected default whole scope, got %q", m.opts.Scope)
	}
	press(m, "o")
	if m.opts.Scope != stats.ScopeSection {
		t.Fatalf("expected section scope, got %q", m.opts.Scope)
	}
	press(m, "o")
	if m.opts.Scope != stats.ScopeWhole {
		t.Fatalf("expected whole scope, got %q", m.opts.Scope)
	}
}

func TestRemoveRenumbers(t *testing.T) {
	m := newTestModel(t, Options{})
	press(m, "d")
	sections := m.Session().Sections
	if len(sections) != 2 {
		t.Fatalf("expected 2 sections, got %d", len(sections))
	}
	for i, sec := range sections {
		if sec.Index != i+1 {
			t.Fatalf("section %d has index %d", i, sec.Index)
		}
	}
	if len(m.table.Rows()) != 2 {
		t.Fatalf("expected table rows to follow, got %d", len(m.table.Rows()))
	}

	press(m, "d")
	press(m, "d")
	press(m, "d")
	if m.errMsg == "" {
		t.Fatalf("expected an error when nothing is selected")
	}
	if !strings.Contains(m.renderBody(), "No sections defined") {
		t.Fatalf("unexpected body: %s", m.renderBody())
	}
}

func TestCopyKeys(t *testing.T) {
	got := stubClipboard(t)
	m := newTestModel(t, Options{})

	press(m, "c")
	if !strings.HasPrefix(*got, "1\t") || strings.Count(*got, "\t") != len(model.TableColumns)-1 {
		t.Fatalf("unexpected row copy %q", *got)
	}

	press(m, "y")
	lines := strings.Split(*got, "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header and 3 rows, got %d lines", len(lines))
	}
	if lines[0] != strings.Join(model.TableColumns, "\t") {
		t.Fatalf("unexpected header %q", lines[0])
	}

	writeClipboard = func(string) error { return errors.New("no clipboard") }
	press(m, "y")
	if !strings.Contains(m.errMsg, "no clipboard") {
		t.Fatalf("expected clipboard error, got %q", m.errMsg)
	}
}

func TestSavePromptsForName(t *testing.T) {
	saver := &fakeSaver{}
	m := newTestModel(t, Options{Store: saver})

	press(m, "s")
	if m.prompt != promptSave {
		t.Fatalf("expected save prompt, got %d", m.prompt)
	}
	enter(m)
	if m.promptError == "" || m.prompt != promptSave {
		t.Fatalf("expected empty name to be rejected")
	}
	m.input.SetValue("run-7")
	enter(m)
	if m.prompt != promptNone {
		t.Fatalf("expected prompt closed")
	}
	if len(saver.names) != 1 || saver.names[0] != "run-7" {
		t.Fatalf("unexpected saves %v", saver.names)
	}

	press(m, "s")
	if m.prompt != promptNone || len(saver.names) != 2 {
		t.Fatalf("expected direct save under the known name, got %v", saver.names)
	}
	if !strings.Contains(m.renderHeader(), "run-7") {
		t.Fatalf("header missing project name: %s", m.renderHeader())
	}

	saver.err = errors.New("disk full")
	press(m, "s")
	if !strings.Contains(m.errMsg, "disk full") {
		t.Fatalf("expected save error, got %q", m.errMsg)
	}
}

func TestAddAndRangePrompts(t *testing.T) {
	m := newTestModel(t, Options{})
	sess := m.Session()
	for len(sess.Sections) > 0 {
		press(m, "d")
	}

	press(m, "a")
	m.input.SetValue("oops")
	enter(m)
	if m.promptError == "" {
		t.Fatalf("expected bounds error")
	}
	m.input.SetValue("-100 5000")
	enter(m)
	if !strings.Contains(m.promptError, section.ErrOutOfDomain.Error()) || len(sess.Sections) != 0 {
		t.Fatalf("expected domain error with no section added, got %q", m.promptError)
	}
	m.input.SetValue("10 20")
	enter(m)
	if m.prompt != promptNone {
		t.Fatalf("expected prompt closed, error %q", m.promptError)
	}
	if len(sess.Sections) != 1 || sess.Sections[0].From != 10 || sess.Sections[0].To != 20 {
		t.Fatalf("unexpected sections after add")
	}

	press(m, "r")
	if m.input.Value() != "10 20" {
		t.Fatalf("expected current bounds prefilled, got %q", m.input.Value())
	}
	m.input.SetValue("5, 25")
	enter(m)
	if sess.Sections[0].From != 5 || sess.Sections[0].To != 25 {
		t.Fatalf("unexpected bounds %g..%g", sess.Sections[0].From, sess.Sections[0].To)
	}
	if len(sess.Knees) != 2 || sess.Knees[0] != 5 || sess.Knees[1] != 25 {
		t.Fatalf("unexpected knees %v", sess.Knees)
	}

	press(m, "r")
	m.input.SetValue("5 9999")
	enter(m)
	if !strings.Contains(m.promptError, section.ErrOutOfDomain.Error()) {
		t.Fatalf("expected domain error, got %q", m.promptError)
	}
	m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if m.prompt != promptNone || sess.Sections[0].To != 25 {
		t.Fatalf("expected prompt cancelled with bounds intact")
	}
}

func TestExportPrompt(t *testing.T) {
	dir := t.TempDir()
	m := newTestModel(t, Options{ExportPath: filepath.Join(dir, "default.csv")})
	press(m, "F")

	press(m, "e")
	if m.input.Value() != filepath.Join(dir, "default.csv") {
		t.Fatalf("expected default export path, got %q", m.input.Value())
	}
	path := filepath.Join(dir, "fits.yaml")
	m.input.SetValue(path)
	enter(m)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if !strings.Contains(string(data), "Single Exp. Decay") {
		t.Fatalf("export missing fits: %s", data)
	}
	if m.opts.ExportPath != path {
		t.Fatalf("expected export path remembered, got %q", m.opts.ExportPath)
	}
}

func TestViewAndTabs(t *testing.T) {
	m := newTestModel(t, Options{})
	view := m.View()
	if !strings.Contains(view, "Sections") || !strings.Contains(view, "Plot") {
		t.Fatalf("view missing tabs")
	}
	if got := len(strings.Split(view, "\n")); got != 40 {
		t.Fatalf("expected 40 lines, got %d", got)
	}

	m.Update(tea.KeyMsg{Type: tea.KeyRight})
	if m.activeTab != tabPlot {
		t.Fatalf("expected plot tab, got %d", m.activeTab)
	}
	if !strings.Contains(m.View(), "Overlay over Time [s]") {
		t.Fatalf("plot tab missing overlay title")
	}

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatalf("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("expected quit message")
	}
}
