package stats

import (
	"context"
	"fmt"
	"io"

	"github.com/verte-zerg/kneefit/internal/section"
	"github.com/verte-zerg/kneefit/internal/store"
)

// Report contains precomputed data for rendering a project.
type Report struct {
	Name    string
	Session *section.Session
	Summary Summary
	Scope   Scope
}

// NewReport prepares a report over an in-memory session.
func NewReport(name string, sess *section.Session, scope Scope) Report {
	return Report{
		Name:    name,
		Session: sess,
		Summary: Summarize(sess.Sections),
		Scope:   scope,
	}
}

// BuildReport loads a saved project and prepares it for rendering.
func BuildReport(ctx context.Context, st *store.Store, name string, scope Scope) (Report, error) {
	sess, err := st.LoadProject(ctx, name)
	if err != nil {
		return Report{}, err
	}
	return NewReport(name, sess, scope), nil
}

// RenderReport prints the results table, the summary line and, when
// height is positive, the overlay plot.
func RenderReport(w io.Writer, r Report, totalWidth, height int, useColor bool) error {
	if r.Name != "" {
		if _, err := fmt.Fprintf(w, "Project: %s (%s)\n\n", r.Name, r.Session.Selected); err != nil {
			return err
		}
	}
	if err := RenderSectionTable(w, r.Session.Sections); err != nil {
		return err
	}
	if err := RenderSummary(w, r.Summary); err != nil {
		return err
	}
	if height <= 0 {
		return nil
	}
	if _, err := fmt.Fprintln(w, ""); err != nil {
		return err
	}
	return RenderOverlay(w, r.Session.Trace, r.Session.Sections, r.Scope, totalWidth, height, useColor)
}
