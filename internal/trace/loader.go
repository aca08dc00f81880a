// Package trace loads sensor traces and applies edits to them.
package trace

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/verte-zerg/kneefit/internal/model"
)

// NullConcentrationLabel labels the zero-filled channel of a trace without concentration.
const NullConcentrationLabel = "Concentration [null]"

const sniffBytes = 1024

var delimiters = []rune{',', ';', '\t', '|'}

var bracketed = regexp.MustCompile(`\s*[\(\[\{][^\)\]\}]*[\)\]\}]\s*`)

// column roles and the base names that select them
var columnAliases = []struct {
	role    string
	aliases []string
}{
	{"time", []string{"time"}},
	{"r", []string{"r", "resistance"}},
	{"concentration", []string{"concentration", "conc", "c"}},
}

// Load reads a delimited trace file.
func Load(path string) (*model.Trace, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			// Best-effort close.
			_ = cerr
		}
	}()
	tr, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return tr, nil
}

// Read parses a delimited trace with Time, R and optional Concentration columns.
func Read(r io.Reader) (*model.Trace, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read trace: %w", err)
	}
	text, err := decode(raw)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(strings.NewReader(text))
	reader.Comma = SniffDelimiter(text)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse trace: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("trace has no header")
	}
	return fromRecords(records)
}

// decode returns the text as UTF-8, falling back to Windows-1250 and then ISO-8859-1.
func decode(raw []byte) (string, error) {
	raw = bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))
	if utf8.Valid(raw) {
		return string(raw), nil
	}
	for _, cm := range []*charmap.Charmap{charmap.Windows1250, charmap.ISO8859_1} {
		out, err := cm.NewDecoder().Bytes(raw)
		if err != nil || bytes.ContainsRune(out, utf8.RuneError) {
			continue
		}
		return string(out), nil
	}
	return "", fmt.Errorf("trace encoding not recognised")
}

// SniffDelimiter picks the delimiter whose per-line count is positive and
// equal across the leading lines, preferring the most frequent. Without a
// consistent candidate it falls back to tab, then comma, based on the header.
func SniffDelimiter(text string) rune {
	sample := text
	if len(sample) > sniffBytes {
		sample = sample[:sniffBytes]
		// drop the partial last line
		if i := strings.LastIndexByte(sample, '\n'); i > 0 {
			sample = sample[:i]
		}
	}
	var lines []string
	for _, line := range strings.Split(sample, "\n") {
		if line = strings.TrimRight(line, "\r"); strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return ','
	}

	best, bestCount := rune(0), 0
	for _, d := range delimiters {
		count := strings.Count(lines[0], string(d))
		if count == 0 {
			continue
		}
		consistent := true
		for _, line := range lines[1:] {
			if strings.Count(line, string(d)) != count {
				consistent = false
				break
			}
		}
		if consistent && count > bestCount {
			best, bestCount = d, count
		}
	}
	if best != 0 {
		return best
	}
	if strings.ContainsRune(lines[0], '\t') {
		return '\t'
	}
	return ','
}

// BaseName strips bracketed units from a column header.
func BaseName(column string) string {
	return strings.TrimSpace(bracketed.ReplaceAllString(column, ""))
}

func fromRecords(records [][]string) (*model.Trace, error) {
	header := records[0]
	mapping := map[string]int{}
	for i, col := range header {
		base := strings.ToLower(BaseName(col))
		for _, ca := range columnAliases {
			if slices.Contains(ca.aliases, base) {
				mapping[ca.role] = i
				break
			}
		}
	}
	var missing []string
	for _, role := range []string{"time", "r"} {
		if _, ok := mapping[role]; !ok {
			missing = append(missing, role)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("required columns %v not found in the data", missing)
	}

	tr := &model.Trace{
		XLabel: strings.TrimSpace(header[mapping["time"]]),
		YLabel: strings.TrimSpace(header[mapping["r"]]),
		ZLabel: NullConcentrationLabel,
	}
	ci, hasC := mapping["concentration"]
	if hasC {
		tr.ZLabel = strings.TrimSpace(header[ci])
	}

	for n, rec := range records[1:] {
		line := n + 2
		x, err := cell(rec, mapping["time"], line)
		if err != nil {
			return nil, err
		}
		y, err := cell(rec, mapping["r"], line)
		if err != nil {
			return nil, err
		}
		c := 0.0
		if hasC {
			if c, err = cell(rec, ci, line); err != nil {
				return nil, err
			}
		}
		tr.X = append(tr.X, x)
		tr.Y = append(tr.Y, y)
		tr.C = append(tr.C, c)
	}
	if err := tr.Validate(); err != nil {
		return nil, err
	}
	return tr, nil
}

// cell parses a numeric field; empty or missing fields read as NaN.
func cell(rec []string, idx, line int) (float64, error) {
	if idx >= len(rec) {
		return math.NaN(), nil
	}
	s := strings.TrimSpace(rec[idx])
	if s == "" {
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("line %d column %d: %q is not a number", line, idx+1, s)
	}
	return v, nil
}
