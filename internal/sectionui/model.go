// Package sectionui provides the Bubble Tea section browser.
package sectionui

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/sirupsen/logrus"

	"github.com/verte-zerg/kneefit/internal/export"
	"github.com/verte-zerg/kneefit/internal/model"
	"github.com/verte-zerg/kneefit/internal/section"
	"github.com/verte-zerg/kneefit/internal/stats"
)

const (
	tabSections = iota
	tabPlot
)

const plotHeight = 16

var (
	activeNavStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F0F0F0")).
			Bold(true).
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#C89A3A"))
	inactiveNavStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#B0B0B0")).
				Padding(0, 1).
				Border(lipgloss.RoundedBorder(), true).
				BorderForeground(lipgloss.Color("#4A4A4A"))
	headerStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#8FBF6A"))
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	titleStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Bold(true)
	tableMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#B8B8B8"))
	modalStyle      = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#C89A3A")).
			Padding(1, 2)
)

// ProjectSaver persists a session under a name.
type ProjectSaver interface {
	SaveProject(ctx context.Context, name string, sess *section.Session) error
}

// Options configures the browser.
type Options struct {
	// Name is the project name used by save; empty asks for one.
	Name       string
	ExportPath string
	Scope      stats.Scope
	Store      ProjectSaver
	Log        logrus.FieldLogger
}

type promptKind int

const (
	promptNone promptKind = iota
	promptSave
	promptExport
	promptAdd
	promptRange
)

var promptTitles = map[promptKind]string{
	promptSave:   "Save project",
	promptExport: "Export fits",
	promptAdd:    "Add section",
	promptRange:  "Edit section range",
}

var promptHints = map[promptKind]string{
	promptSave:   "Project name.",
	promptExport: "Path ending in .csv, .xlsx or .yaml.",
	promptAdd:    "Bounds as: from to",
	promptRange:  "Bounds as: from to",
}

// writeClipboard is replaced in tests.
var writeClipboard = clipboard.WriteAll

// Model implements the Bubble Tea section browser.
type Model struct {
	sess *section.Session
	opts Options
	log  logrus.FieldLogger

	tabs      []string
	activeTab int
	table     table.Model
	plot      viewport.Model

	width  int
	height int

	status string
	errMsg string

	prompt      promptKind
	input       textinput.Model
	promptError string
}

// NewModel constructs a browser over sess.
func NewModel(sess *section.Session, opts Options) *Model {
	if opts.Scope == "" {
		opts.Scope = stats.ScopeWhole
	}
	log := opts.Log
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	m := &Model{
		sess: sess,
		opts: opts,
		log:  log,
		tabs: []string{"Sections", "Plot"},
		plot: viewport.New(0, 0),
	}
	m.input = textinput.New()
	m.input.CharLimit = 0
	m.input.Cursor.SetMode(cursor.CursorBlink)
	m.table = table.New(
		table.WithColumns(tableColumns(nil)),
		table.WithFocused(true),
		table.WithHeight(1),
	)
	m.table.SetStyles(tableStyles())
	m.refresh()
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateLayout()
		m.renderPlot()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		if m.prompt != promptNone {
			return m.updatePrompt(msg)
		}
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "left", "h", "shift+tab":
		m.moveTab(-1)
		return m, tea.ClearScreen
	case "right", "l", "tab":
		m.moveTab(1)
		return m, tea.ClearScreen
	case "f":
		m.fitSelected()
	case "F":
		m.fitAll()
	case "m":
		m.sess.Selected = m.sess.Selected.Next()
		m.setStatus("Model: %s", m.sess.Selected)
	case "o":
		m.toggleScope()
	case "d":
		m.removeSelected()
	case "c":
		m.copySelected()
	case "y":
		m.copyTable()
	case "a":
		return m, m.startPrompt(promptAdd, "")
	case "r":
		if sec := m.selected(); sec != nil {
			return m, m.startPrompt(promptRange, model.FormatCoord(sec.From)+" "+model.FormatCoord(sec.To))
		}
		m.setError("no section selected")
	case "s":
		if m.opts.Name == "" {
			return m, m.startPrompt(promptSave, "")
		}
		m.save(m.opts.Name)
	case "e":
		return m, m.startPrompt(promptExport, m.opts.ExportPath)
	default:
		var cmd tea.Cmd
		if m.activeTab == tabSections {
			m.table, cmd = m.table.Update(msg)
		} else {
			m.plot, cmd = m.plot.Update(msg)
		}
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}
	if m.prompt != promptNone {
		return fitLines(m.renderPrompt(), m.width, m.height)
	}
	headerHeight, bodyHeight, footerHeight := m.layoutHeights()
	header := fitLines(m.renderHeader(), m.width, headerHeight)
	body := fitLines(m.renderBody(), m.width, bodyHeight)
	footer := fitLines(m.renderFooter(), m.width, footerHeight)
	return strings.Join([]string{header, body, footer}, "\n")
}

// Session returns the edited session.
func (m *Model) Session() *section.Session {
	return m.sess
}

func (m *Model) selectedIndex() int {
	idx := m.table.Cursor()
	if idx < 0 || idx >= len(m.sess.Sections) {
		return -1
	}
	return idx
}

func (m *Model) selected() *model.Section {
	idx := m.selectedIndex()
	if idx < 0 {
		return nil
	}
	return m.sess.Sections[idx]
}

func (m *Model) fitSelected() {
	idx := m.selectedIndex()
	if idx < 0 {
		m.setError("no section selected")
		return
	}
	if err := m.sess.FitOne(idx); err != nil {
		m.setError("%v", err)
		return
	}
	sec := m.sess.Sections[idx]
	if sec.Comment != "" {
		m.setStatus("Fitted section %d: %s", sec.Index, sec.Comment)
	} else {
		m.setStatus("Fitted section %d", sec.Index)
	}
	m.refresh()
}

func (m *Model) fitAll() {
	if err := m.sess.FitAll(); err != nil {
		m.setError("%v", err)
		return
	}
	m.setStatus("Fitted all: %s", stats.Summarize(m.sess.Sections))
	m.refresh()
}

func (m *Model) toggleScope() {
	if m.opts.Scope == stats.ScopeWhole {
		m.opts.Scope = stats.ScopeSection
	} else {
		m.opts.Scope = stats.ScopeWhole
	}
	m.setStatus("Overlay scope: %s", m.opts.Scope)
	m.renderPlot()
}

func (m *Model) removeSelected() {
	idx := m.selectedIndex()
	if idx < 0 {
		m.setError("no section selected")
		return
	}
	removed := m.sess.Sections[idx].Index
	if err := m.sess.RemoveSection(idx); err != nil {
		m.setError("%v", err)
		return
	}
	m.setStatus("Removed section %d", removed)
	m.refresh()
}

func (m *Model) copySelected() {
	sec := m.selected()
	if sec == nil {
		m.setError("no section selected")
		return
	}
	if err := writeClipboard(strings.Join(sec.Row(model.TableColumns), "\t")); err != nil {
		m.setError("failed to copy row: %v", err)
		return
	}
	m.setStatus("Copied section %d", sec.Index)
}

func (m *Model) copyTable() {
	if err := writeClipboard(tableText(m.sess.Sections)); err != nil {
		m.setError("failed to copy table: %v", err)
		return
	}
	m.setStatus("Copied %d sections", len(m.sess.Sections))
}

// tableText renders the results table as tab-separated lines.
func tableText(sections []*model.Section) string {
	lines := make([]string, 0, len(sections)+1)
	lines = append(lines, strings.Join(model.TableColumns, "\t"))
	for _, row := range stats.SectionRows(sections) {
		lines = append(lines, strings.Join(row, "\t"))
	}
	return strings.Join(lines, "\n")
}

func (m *Model) save(name string) {
	if m.opts.Store == nil {
		m.setError("no project store configured")
		return
	}
	if err := m.opts.Store.SaveProject(context.Background(), name, m.sess); err != nil {
		m.setError("failed to save project: %v", err)
		return
	}
	m.opts.Name = name
	m.setStatus("Saved project %s", name)
}

func (m *Model) exportTo(path string) error {
	if err := export.ExportFits(path, m.sess.Sections); err != nil {
		return err
	}
	m.opts.ExportPath = path
	m.setStatus("Exported fits to %s", path)
	return nil
}

func (m *Model) startPrompt(kind promptKind, value string) tea.Cmd {
	m.prompt = kind
	m.promptError = ""
	m.input.Prompt = promptTitles[kind] + ": "
	m.input.SetValue(value)
	m.input.CursorEnd()
	return m.input.Focus()
}

func (m *Model) updatePrompt(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.closePrompt()
		return m, nil
	case tea.KeyEnter:
		if err := m.applyPrompt(strings.TrimSpace(m.input.Value())); err != nil {
			m.promptError = err.Error()
			return m, nil
		}
		m.closePrompt()
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) closePrompt() {
	m.prompt = promptNone
	m.promptError = ""
	m.input.Blur()
}

func (m *Model) applyPrompt(value string) error {
	switch m.prompt {
	case promptSave:
		if value == "" {
			return fmt.Errorf("project name must not be empty")
		}
		m.save(value)
	case promptExport:
		if value == "" {
			return fmt.Errorf("export path must not be empty")
		}
		return m.exportTo(value)
	case promptAdd:
		from, to, err := parseBounds(value)
		if err != nil {
			return err
		}
		if err := m.sess.CreateSection(from, to); err != nil {
			return err
		}
		m.refresh()
		m.table.GotoBottom()
		m.setStatus("Added section %d", len(m.sess.Sections))
	case promptRange:
		from, to, err := parseBounds(value)
		if err != nil {
			return err
		}
		idx := m.selectedIndex()
		if err := m.sess.UpdateSection(idx, from, to); err != nil {
			return err
		}
		m.setStatus("Section %d now spans %s..%s", idx+1, model.FormatCoord(from), model.FormatCoord(to))
		m.refresh()
	}
	return nil
}

func parseBounds(value string) (float64, float64, error) {
	fields := strings.FieldsFunc(value, func(r rune) bool {
		return r == ' ' || r == ',' || r == ';' || r == '\t'
	})
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("expected two bounds, got %q", value)
	}
	from, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid bound %q", fields[0])
	}
	to, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid bound %q", fields[1])
	}
	return from, to, nil
}

func (m *Model) setStatus(format string, args ...any) {
	m.errMsg = ""
	m.status = fmt.Sprintf(format, args...)
	m.log.Debug(m.status)
}

func (m *Model) setError(format string, args ...any) {
	m.errMsg = fmt.Sprintf(format, args...)
	m.log.Warn(m.errMsg)
}

// refresh rebuilds the table rows and the plot after the sections changed.
func (m *Model) refresh() {
	rows := stats.SectionRows(m.sess.Sections)
	tableRows := make([]table.Row, 0, len(rows))
	for _, row := range rows {
		tableRows = append(tableRows, table.Row(row))
	}
	m.table.SetColumns(tableColumns(rows))
	m.table.SetRows(tableRows)
	if c := m.table.Cursor(); c < 0 || c >= len(tableRows) {
		m.table.SetCursor(minInt(maxInt(c, 0), len(tableRows)-1))
	}
	m.renderPlot()
}

func tableColumns(rows [][]string) []table.Column {
	cols := make([]table.Column, 0, len(model.TableColumns))
	for i, title := range model.TableColumns {
		width := runewidth.StringWidth(title)
		for _, row := range rows {
			width = maxInt(width, runewidth.StringWidth(row[i]))
		}
		cols = append(cols, table.Column{Title: title, Width: width})
	}
	return cols
}

func tableStyles() table.Styles {
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(lipgloss.Color("#4A4A4A")).
		Foreground(lipgloss.Color("#C0C0C0")).
		Bold(true).
		Padding(0, 1).
		PaddingLeft(0)
	styles.Cell = styles.Cell.
		Padding(0, 1).
		PaddingLeft(0)
	styles.Selected = styles.Cell.
		Foreground(lipgloss.Color("#F0F0F0")).
		Bold(true)
	return styles
}

func (m *Model) renderPlot() {
	width := m.width
	if width <= 0 {
		width = 80
	}
	var buf bytes.Buffer
	if err := stats.RenderOverlay(&buf, m.sess.Trace, m.sess.Sections, m.opts.Scope, width, plotHeight, true); err != nil {
		m.plot.SetContent(fmt.Sprintf("Failed to render overlay: %v", err))
		return
	}
	m.plot.SetContent(strings.TrimRight(buf.String(), "\n"))
}

func (m *Model) layoutHeights() (headerHeight, bodyHeight, footerHeight int) {
	headerHeight = maxInt(1, lipgloss.Height(activeNavStyle.Render("X"))) + 1
	footerHeight = 2
	if m.errMsg != "" {
		footerHeight++
	}
	bodyHeight = maxInt(1, m.height-headerHeight-footerHeight)
	return headerHeight, bodyHeight, footerHeight
}

func (m *Model) updateLayout() {
	if m.width <= 0 || m.height <= 0 {
		return
	}
	_, bodyHeight, _ := m.layoutHeights()
	m.plot.Width = m.width
	m.plot.Height = bodyHeight
	m.table.SetWidth(m.width)
	// The header and its border take two lines.
	m.table.SetHeight(maxInt(1, bodyHeight-2))
	m.input.Width = maxInt(10, modalInnerWidth(m.width)-lipgloss.Width(m.input.Prompt))
}

func (m *Model) moveTab(delta int) {
	count := len(m.tabs)
	m.activeTab = (m.activeTab + delta + count) % count
	if m.activeTab == tabSections {
		m.table.Focus()
	} else {
		m.table.Blur()
	}
}

func (m *Model) renderTabs() string {
	parts := make([]string, 0, len(m.tabs))
	for i, tab := range m.tabs {
		if i == m.activeTab {
			parts = append(parts, activeNavStyle.Render(tab))
		} else {
			parts = append(parts, inactiveNavStyle.Render(tab))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (m *Model) renderHeader() string {
	name := m.opts.Name
	if name == "" {
		name = "unsaved"
	}
	settings := fmt.Sprintf("Project: %s  model=%s  scope=%s  knees=%d", name, m.sess.Selected, m.opts.Scope, len(m.sess.Knees))
	return padLines(m.renderTabs(), m.width) + "\n" + headerStyle.Render(truncateLine(settings, m.width))
}

func (m *Model) renderBody() string {
	if m.activeTab == tabPlot {
		return m.plot.View()
	}
	if len(m.sess.Sections) == 0 {
		return "No sections defined. Press a to add one."
	}
	return tableMutedStyle.Render(m.table.View())
}

func (m *Model) renderFooter() string {
	help := "Nav: left/right  Fit: f/F  Model: m  Scope: o  Add: a  Range: r  Remove: d  Copy: c/y  Save: s  Export: e  Quit: q"
	lines := []string{
		headerStyle.Render(truncateLine(help, m.width)),
		statusStyle.Render(truncateLine(m.statusLine(), m.width)),
	}
	if m.errMsg != "" {
		lines = append(lines, errorStyle.Render(truncateLine(m.errMsg, m.width)))
	}
	return strings.Join(lines, "\n")
}

func (m *Model) statusLine() string {
	summary := stats.Summarize(m.sess.Sections).String()
	if m.status == "" {
		return summary
	}
	return m.status + " | " + summary
}

func (m *Model) renderPrompt() string {
	body := []string{
		titleStyle.Render(promptTitles[m.prompt]),
		m.input.View(),
		headerStyle.Render(promptHints[m.prompt]),
		headerStyle.Render("Enter to apply / Esc to cancel"),
	}
	if m.promptError != "" {
		body = append(body, errorStyle.Render(m.promptError))
	}
	box := modalStyle.Width(modalWidth(m.width)).Render(strings.Join(body, "\n"))
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func modalWidth(width int) int {
	return maxInt(40, minInt(width-4, 80))
}

func modalInnerWidth(width int) int {
	w := modalWidth(width)
	w -= 6 // 2 border + 4 padding
	if w < 10 {
		return 10
	}
	return w
}

func padLines(s string, width int) string {
	if width <= 0 || s == "" {
		return s
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = padLine(line, width)
	}
	return strings.Join(lines, "\n")
}

func padLine(line string, width int) string {
	lineWidth := lipgloss.Width(line)
	if lineWidth < width {
		return line + strings.Repeat(" ", width-lineWidth)
	}
	return line
}

func fitLines(s string, width, height int) string {
	if width <= 0 || height <= 0 {
		return s
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = padLine(line, width)
	}
	if len(lines) > height {
		lines = lines[:height]
	}
	for len(lines) < height {
		lines = append(lines, strings.Repeat(" ", width))
	}
	return strings.Join(lines, "\n")
}

func truncateLine(s string, width int) string {
	if width <= 0 {
		return s
	}
	return runewidth.Truncate(s, width, "...")
}
