package model

import (
	"strconv"
	"strings"
)

// Record column names, in table order.
const (
	ColIndex   = "#"
	ColFrom    = "From"
	ColTo      = "To"
	ColType    = "Type"
	ColY0      = "y0"
	ColA1      = "A1"
	ColTau1    = "tau1"
	ColA2      = "A2"
	ColTau2    = "tau2"
	ColTau90   = "tau90"
	ColComment = "Comment"
	ColPrevY0  = "prev_y0"
)

// RecordColumns is the column order of a section record.
var RecordColumns = []string{
	ColIndex, ColFrom, ColTo, ColType,
	ColY0, ColA1, ColTau1, ColA2, ColTau2,
	ColTau90, ColComment, ColPrevY0,
}

// TableColumns is RecordColumns without the hidden baseline column.
var TableColumns = RecordColumns[:len(RecordColumns)-1]

// UnresolvedT90 is the display value of a t90 whose root could not be bracketed.
const UnresolvedT90 = "err."

// FormatParam renders a fitted parameter with three significant figures.
func FormatParam(v *float64) string {
	if v == nil {
		return ""
	}
	return formatExp(*v)
}

// formatExp renders %.3E; upper-casing also turns NaN and Inf into NAN and INF.
func formatExp(v float64) string {
	return strings.ToUpper(strconv.FormatFloat(v, 'E', 3, 64))
}

// FormatCoord renders a section boundary for display.
func FormatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// FormatT90 renders tau90 with the precision of the model it was derived from.
func FormatT90(t T90, ft FitType) string {
	switch t.State {
	case T90Unresolved:
		return UnresolvedT90
	case T90Value:
		if ft == FitDoubleExp {
			return strconv.FormatFloat(t.Value, 'f', 1, 64)
		}
		return strings.ToUpper(strconv.FormatFloat(t.Value, 'G', 5, 64))
	default:
		return ""
	}
}

// Record returns the section as a plain field-to-value mapping.
func (s *Section) Record() map[string]string {
	return map[string]string{
		ColIndex:   strconv.Itoa(s.Index),
		ColFrom:    FormatCoord(s.From),
		ColTo:      FormatCoord(s.To),
		ColType:    string(s.Type),
		ColY0:      FormatParam(s.Y0),
		ColA1:      FormatParam(s.A1),
		ColTau1:    FormatParam(s.Tau1),
		ColA2:      FormatParam(s.A2),
		ColTau2:    FormatParam(s.Tau2),
		ColTau90:   FormatT90(s.Tau90, s.Type),
		ColComment: s.Comment,
		ColPrevY0:  FormatParam(s.PrevY0),
	}
}

// Row returns the record values in the order of columns.
func (s *Section) Row(columns []string) []string {
	rec := s.Record()
	row := make([]string, len(columns))
	for i, col := range columns {
		row[i] = rec[col]
	}
	return row
}
