package stats

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/verte-zerg/kneefit/internal/model"
	"github.com/verte-zerg/kneefit/internal/store"
)

// numericColumns are right aligned in the results table.
var numericColumns = map[string]bool{
	model.ColIndex: true,
	model.ColFrom:  true,
	model.ColTo:    true,
	model.ColY0:    true,
	model.ColA1:    true,
	model.ColTau1:  true,
	model.ColA2:    true,
	model.ColTau2:  true,
	model.ColTau90: true,
}

// SectionRows returns the display rows of the results table.
func SectionRows(sections []*model.Section) [][]string {
	rows := make([][]string, 0, len(sections))
	for _, sec := range sections {
		rows = append(rows, sec.Row(model.TableColumns))
	}
	return rows
}

// RenderSectionTable prints the results table for sections.
func RenderSectionTable(w io.Writer, sections []*model.Section) error {
	if len(sections) == 0 {
		_, err := fmt.Fprintln(w, "No sections defined.")
		return err
	}
	rightAlign := make(map[int]bool, len(model.TableColumns))
	for i, col := range model.TableColumns {
		rightAlign[i] = numericColumns[col]
	}
	for _, line := range formatTable(model.TableColumns, SectionRows(sections), rightAlign) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "")
	return err
}

// RenderProjectList prints saved projects, one per line.
func RenderProjectList(w io.Writer, projects []store.ProjectInfo) error {
	if len(projects) == 0 {
		_, err := fmt.Fprintln(w, "No saved projects.")
		return err
	}
	headers := []string{"Name", "Samples", "Sections", "Codec", "Updated"}
	rows := make([][]string, 0, len(projects))
	for _, p := range projects {
		rows = append(rows, []string{
			p.Name,
			strconv.Itoa(p.Samples),
			strconv.Itoa(p.Sections),
			p.Codec,
			p.UpdatedAt.Local().Format(time.DateTime),
		})
	}
	for _, line := range formatTable(headers, rows, map[int]bool{1: true, 2: true}) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func formatTable(headers []string, rows [][]string, rightAlignCols map[int]bool) []string {
	colCount := len(headers)
	for _, row := range rows {
		if len(row) > colCount {
			colCount = len(row)
		}
	}
	if colCount == 0 {
		return nil
	}

	widths := make([]int, colCount)
	for i, header := range headers {
		widths[i] = runewidth.StringWidth(header)
	}
	for _, row := range rows {
		for i, cell := range row {
			if w := runewidth.StringWidth(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}

	lines := make([]string, 0, len(rows)+1)
	if len(headers) > 0 {
		lines = append(lines, formatRow(headers, widths, rightAlignCols))
	}
	for _, row := range rows {
		lines = append(lines, formatRow(row, widths, rightAlignCols))
	}
	return lines
}

func formatRow(row []string, widths []int, rightAlignCols map[int]bool) string {
	var b strings.Builder
	for i := 0; i < len(widths); i++ {
		cell := ""
		if i < len(row) {
			cell = row[i]
		}
		if i > 0 {
			b.WriteByte(' ')
		}
		if rightAlignCols[i] {
			b.WriteString(runewidth.FillLeft(cell, widths[i]))
		} else {
			b.WriteString(runewidth.FillRight(cell, widths[i]))
		}
	}
	return strings.TrimRight(b.String(), " ")
}
