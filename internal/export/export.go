// Package export writes fit results to CSV, spreadsheet and YAML files.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"

	"github.com/verte-zerg/kneefit/internal/model"
)

// FitsSheet is the sheet name of spreadsheet exports.
const FitsSheet = "Fits"

// WriteFitsCSV writes the section records as semicolon-separated values.
func WriteFitsCSV(w io.Writer, sections []*model.Section) error {
	return writeCSV(w, ';', sections, func(sec *model.Section) []string {
		return sec.Row(model.RecordColumns)
	})
}

// WriteProjectCSV writes the section records comma-separated, with the
// section bounds in scientific notation.
func WriteProjectCSV(w io.Writer, sections []*model.Section) error {
	return writeCSV(w, ',', sections, func(sec *model.Section) []string {
		row := sec.Row(model.RecordColumns)
		row[1] = model.FormatParam(model.Float(sec.From))
		row[2] = model.FormatParam(model.Float(sec.To))
		return row
	})
}

func writeCSV(w io.Writer, comma rune, sections []*model.Section, row func(*model.Section) []string) error {
	cw := csv.NewWriter(w)
	cw.Comma = comma
	if err := cw.Write(model.RecordColumns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, sec := range sections {
		if err := cw.Write(row(sec)); err != nil {
			return fmt.Errorf("failed to write section %d: %w", sec.Index, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFitsXLSX saves the section records as a spreadsheet with a single sheet.
func WriteFitsXLSX(path string, sections []*model.Section) (err error) {
	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	if err := f.SetSheetName(f.GetSheetName(0), FitsSheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}
	rows := make([][]string, 0, len(sections)+1)
	rows = append(rows, model.RecordColumns)
	for _, sec := range sections {
		rows = append(rows, sec.Row(model.RecordColumns))
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(FitsSheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save spreadsheet: %w", err)
	}
	return nil
}

// WriteRecordsYAML writes the section records as a YAML list, keeping the column order.
func WriteRecordsYAML(w io.Writer, sections []*model.Section) error {
	root := &yaml.Node{Kind: yaml.SequenceNode}
	for _, sec := range sections {
		rec := sec.Record()
		item := &yaml.Node{Kind: yaml.MappingNode}
		for _, col := range model.RecordColumns {
			item.Content = append(item.Content, str(col), str(rec[col]))
		}
		root.Content = append(root.Content, item)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return fmt.Errorf("failed to encode records: %w", err)
	}
	return enc.Close()
}

func str(v string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v}
}

// ExportFits writes the section records to path in the format named by its extension:
// .xlsx or .xls for a spreadsheet, .yaml or .yml for YAML, anything else for CSV.
func ExportFits(path string, sections []*model.Section) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xls":
		return WriteFitsXLSX(path, sections)
	case ".yaml", ".yml":
		return writeFile(path, func(w io.Writer) error { return WriteRecordsYAML(w, sections) })
	default:
		return writeFile(path, func(w io.Writer) error { return WriteFitsCSV(w, sections) })
	}
}

// SaveProjectCSV writes the comma-separated project table to path.
func SaveProjectCSV(path string, sections []*model.Section) error {
	return writeFile(path, func(w io.Writer) error { return WriteProjectCSV(w, sections) })
}

func writeFile(path string, write func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return write(f)
}
