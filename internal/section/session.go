package section

import (
	"fmt"

	"github.com/verte-zerg/kneefit/internal/model"
	"github.com/verte-zerg/kneefit/internal/trace"
)

// Session is the working state of one analysis: a trace, its knees and
// sections, and the model new fits use. Callers own it and must not
// mutate the trace while a fit runs.
type Session struct {
	Trace    *model.Trace
	Knees    model.Knees
	Sections []*model.Section
	Selected model.FitType

	fitter *Coordinator
}

// NewSession starts a session with one knee at each end of the trace.
func NewSession(tr *model.Trace, selected model.FitType, fitter *Coordinator) (*Session, error) {
	if err := tr.Validate(); err != nil {
		return nil, err
	}
	lo, hi := tr.Domain()
	return &Session{
		Trace:    tr,
		Knees:    model.Knees{}.Add(lo, hi),
		Selected: selected,
		fitter:   fitter,
	}, nil
}

// SetFitter replaces the coordinator used by FitOne and FitAll.
func (s *Session) SetFitter(c *Coordinator) {
	s.fitter = c
}

func (s *Session) coordinator() *Coordinator {
	if s.fitter == nil {
		s.fitter = NewCoordinator(nil)
	}
	return s.fitter
}

// SetKnees replaces the knee set.
func (s *Session) SetKnees(knees []float64) {
	s.Knees = model.Knees{}.Add(knees...)
}

// BuildSections replaces the sections with one per consecutive knee pair.
func (s *Session) BuildSections() error {
	if len(s.Knees) < 2 {
		return fmt.Errorf("at least two knees are required, have %d", len(s.Knees))
	}
	s.Sections = FromKnees(s.Knees)
	return nil
}

// CreateSection adds a section between a and b.
func (s *Session) CreateSection(a, b float64) error {
	sections, knees, err := Create(s.Sections, s.Knees, s.Trace, a, b)
	if err != nil {
		return err
	}
	s.Sections, s.Knees = sections, knees
	return nil
}

// RemoveSection deletes the section at idx.
func (s *Session) RemoveSection(idx int) error {
	sections, err := Remove(s.Sections, idx)
	if err != nil {
		return err
	}
	s.Sections = sections
	return nil
}

// UpdateSection moves the bounds of the section at idx and rebuilds the knees.
func (s *Session) UpdateSection(idx int, from, to float64) error {
	knees, err := UpdateRange(s.Sections, idx, from, to, s.Trace)
	if err != nil {
		return err
	}
	s.Knees = knees
	return nil
}

// RemoveKnees drops knees strictly between a and b and reports how many went.
func (s *Session) RemoveKnees(a, b float64) int {
	var n int
	s.Knees, n = s.Knees.RemoveBetween(a, b)
	return n
}

// FitOne fits the section at idx.
func (s *Session) FitOne(idx int) error {
	if idx < 0 || idx >= len(s.Sections) {
		return fmt.Errorf("%w: %d", ErrNoSection, idx+1)
	}
	s.coordinator().FitSection(s.Sections, idx, s.Trace, s.Selected)
	return nil
}

// FitAll fits every section in order.
func (s *Session) FitAll() error {
	if len(s.Sections) == 0 {
		return fmt.Errorf("no sections to fit")
	}
	s.coordinator().FitAll(s.Sections, s.Trace, s.Selected)
	return nil
}

// Crop keeps [a, b], shifts x to start at zero and resets knees and sections.
func (s *Session) Crop(a, b float64) error {
	cropped, err := trace.Crop(s.Trace, a, b)
	if err != nil {
		return err
	}
	s.Trace = cropped
	lo, hi := cropped.Domain()
	s.Knees = model.Knees{}.Add(lo, hi)
	s.Sections = nil
	return nil
}

// Interpolate replaces y over [a, b] with a straight line.
func (s *Session) Interpolate(a, b float64) error {
	return trace.Interpolate(s.Trace, a, b)
}

// Filter smooths y with kind over the whole trace, or over [a, b] when window is set.
func (s *Session) Filter(kind trace.FilterKind, width int, window *[2]float64) error {
	if window == nil {
		return trace.Filter(s.Trace, kind, width)
	}
	return trace.FilterRange(s.Trace, kind, width, window[0], window[1])
}
