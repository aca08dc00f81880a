package trace

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/verte-zerg/kneefit/internal/model"
)

// Write emits tr as comma-delimited text that Read accepts. The
// concentration column is left out when the trace has none.
func Write(w io.Writer, tr *model.Trace) error {
	withC := tr.ZLabel != "" && tr.ZLabel != NullConcentrationLabel
	header := []string{labelOr(tr.XLabel, "Time"), labelOr(tr.YLabel, "R")}
	if withC {
		header = append(header, tr.ZLabel)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write trace: %w", err)
	}
	for i := range tr.X {
		rec := []string{formatSample(tr.X[i]), formatSample(tr.Y[i])}
		if withC {
			rec = append(rec, formatSample(tr.C[i]))
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("failed to write trace: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Save writes tr to path, creating parent directories.
func Save(path string, tr *model.Trace) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create trace directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create trace: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()
	return Write(f, tr)
}

func labelOr(label, fallback string) string {
	if label == "" {
		return fallback
	}
	return label
}

func formatSample(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
