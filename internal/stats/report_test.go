package stats

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/verte-zerg/kneefit/internal/model"
	"github.com/verte-zerg/kneefit/internal/section"
	"github.com/verte-zerg/kneefit/internal/store"
)

func TestBuildReport(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "kneefit.db"), store.CodecZstd)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})

	ctx := context.Background()
	tr := overlayTrace()
	sess := &section.Session{
		Trace:    tr,
		Knees:    model.Knees{0, 2, 5, 10},
		Sections: []*model.Section{auxSection(1, 2, 5), model.NewSection(2, 5, 10)},
		Selected: model.FitAux,
	}
	if err := st.SaveProject(ctx, "demo", sess); err != nil {
		t.Fatalf("save project: %v", err)
	}

	report, err := BuildReport(ctx, st, "demo", ScopeWhole)
	if err != nil {
		t.Fatalf("BuildReport failed: %v", err)
	}
	if report.Summary.Fitted != 1 || report.Summary.Pending != 1 {
		t.Fatalf("unexpected summary: %+v", report.Summary)
	}

	var buf bytes.Buffer
	if err := RenderReport(&buf, report, 60, 4, false); err != nil {
		t.Fatalf("RenderReport failed: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Project: demo (Aux)", "1.000E+00", "2 sections:", "Legend:"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in report:\n%s", want, out)
		}
	}

	if _, err := BuildReport(ctx, st, "missing", ScopeWhole); err == nil {
		t.Fatalf("expected an error for a missing project")
	}
}
