package section

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/verte-zerg/kneefit/internal/model"
	"github.com/verte-zerg/kneefit/internal/trace"
)

// CommentMedianUnavailable marks a section whose window holds no samples.
const CommentMedianUnavailable = "err."

var (
	// ErrEmptyRange is returned for a zero-width section.
	ErrEmptyRange = errors.New("section bounds are equal")
	// ErrOutOfDomain is returned for bounds outside the trace.
	ErrOutOfDomain = errors.New("section bounds outside the trace")
	// ErrNoSection is returned for an invalid section index.
	ErrNoSection = errors.New("no such section")
)

// FromKnees builds one empty section per consecutive knee pair.
func FromKnees(knees model.Knees) []*model.Section {
	pairs := knees.Pairs()
	sections := make([]*model.Section, 0, len(pairs))
	for i, p := range pairs {
		sections = append(sections, model.NewSection(i+1, p[0], p[1]))
	}
	return sections
}

// Create appends a section over [a, b] in either order and adds both bounds as knees.
// Both bounds must lie within the trace domain. The new section's comment
// carries the median concentration of its window.
func Create(sections []*model.Section, knees model.Knees, tr *model.Trace, a, b float64) ([]*model.Section, model.Knees, error) {
	if a == b {
		return sections, knees, ErrEmptyRange
	}
	from, to := math.Min(a, b), math.Max(a, b)
	if tr != nil {
		lo, hi := tr.Domain()
		if from < lo || to > hi {
			return sections, knees, fmt.Errorf("%w: [%g, %g] not within (%g, %g)", ErrOutOfDomain, from, to, lo, hi)
		}
	}
	sec := model.NewSection(len(sections)+1, from, to)
	MedianComment(sec, tr)
	return append(sections, sec), knees.Add(from, to), nil
}

// Remove deletes sections[idx] and renumbers the rest.
func Remove(sections []*model.Section, idx int) ([]*model.Section, error) {
	if idx < 0 || idx >= len(sections) {
		return sections, fmt.Errorf("%w: %d", ErrNoSection, idx+1)
	}
	sections = slices.Delete(sections, idx, idx+1)
	Renumber(sections)
	return sections, nil
}

// Renumber makes the 1-based indexes contiguous.
func Renumber(sections []*model.Section) {
	for i, sec := range sections {
		sec.Index = i + 1
	}
}

// UpdateRange moves the bounds of sections[idx] and returns the knees
// rebuilt from every section bound.
func UpdateRange(sections []*model.Section, idx int, from, to float64, tr *model.Trace) (model.Knees, error) {
	if idx < 0 || idx >= len(sections) {
		return nil, fmt.Errorf("%w: %d", ErrNoSection, idx+1)
	}
	if from >= to {
		return nil, fmt.Errorf("from (%g) must be less than to (%g)", from, to)
	}
	lo, hi := tr.Domain()
	if from < lo || to > hi {
		return nil, fmt.Errorf("%w: [%g, %g] not within (%g, %g)", ErrOutOfDomain, from, to, lo, hi)
	}
	sec := sections[idx]
	sec.From, sec.To = from, to
	MedianComment(sec, tr)
	return KneesFromSections(sections), nil
}

// KneesFromSections collects every section bound.
func KneesFromSections(sections []*model.Section) model.Knees {
	var knees model.Knees
	for _, sec := range sections {
		knees = knees.Add(sec.From, sec.To)
	}
	return knees
}

// MedianComment sets the comment to the median concentration over the section window.
func MedianComment(sec *model.Section, tr *model.Trace) {
	if tr == nil || len(tr.C) == 0 {
		sec.Comment = " "
		return
	}
	_, _, c := tr.Window(sec.From, sec.To)
	if len(c) == 0 {
		sec.Comment = CommentMedianUnavailable
		return
	}
	sec.Comment = fmt.Sprintf("%.0f ppm", trace.Median(c))
}
