// Package model defines shared data structures.
package model

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Trace holds a loaded sensor trace: response Y and auxiliary channel C over X.
type Trace struct {
	X      []float64
	Y      []float64
	C      []float64
	XLabel string
	YLabel string
	ZLabel string
}

// Len returns the number of samples.
func (t *Trace) Len() int {
	return len(t.X)
}

// Validate checks that the three channels line up and X is finite.
func (t *Trace) Validate() error {
	if t == nil {
		return errors.New("trace is nil")
	}
	if len(t.X) == 0 {
		return errors.New("trace is empty")
	}
	if len(t.Y) != len(t.X) || len(t.C) != len(t.X) {
		return fmt.Errorf("trace channel lengths differ: x=%d y=%d c=%d", len(t.X), len(t.Y), len(t.C))
	}
	for i, x := range t.X {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return fmt.Errorf("trace x[%d] is not finite", i)
		}
	}
	return nil
}

// Domain returns the smallest and largest X.
func (t *Trace) Domain() (lo, hi float64) {
	if len(t.X) == 0 {
		return 0, 0
	}
	lo, hi = t.X[0], t.X[0]
	for _, x := range t.X[1:] {
		if x < lo {
			lo = x
		}
		if x > hi {
			hi = x
		}
	}
	return lo, hi
}

// Contains reports whether x lies inside the trace domain.
func (t *Trace) Contains(x float64) bool {
	lo, hi := t.Domain()
	return x >= lo && x <= hi
}

// Window returns copies of the samples with from <= x <= to.
// Ranges are resolved by coordinate on every call, so edits to the trace
// are picked up by the next fit.
func (t *Trace) Window(from, to float64) (x, y, c []float64) {
	for i, xi := range t.X {
		if xi >= from && xi <= to {
			x = append(x, xi)
			y = append(y, t.Y[i])
			if i < len(t.C) {
				c = append(c, t.C[i])
			}
		}
	}
	return x, y, c
}

// Clone returns a deep copy of the trace.
func (t *Trace) Clone() *Trace {
	return &Trace{
		X:      append([]float64(nil), t.X...),
		Y:      append([]float64(nil), t.Y...),
		C:      append([]float64(nil), t.C...),
		XLabel: t.XLabel,
		YLabel: t.YLabel,
		ZLabel: t.ZLabel,
	}
}

// FitType names one of the curve models a section can be fit with.
type FitType string

// Known fit types. The empty value marks an unfit section.
const (
	FitNone      FitType = ""
	FitSingleExp FitType = "Single Exp. Decay"
	FitDoubleExp FitType = "Double Exp. Decay"
	FitAux       FitType = "Aux"
)

// FitTypes lists the selectable models in display order.
var FitTypes = []FitType{FitSingleExp, FitDoubleExp, FitAux}

var fitTypeAliases = map[string]FitType{
	"single":            FitSingleExp,
	"single-exp":        FitSingleExp,
	"single exp. decay": FitSingleExp,
	"double":            FitDoubleExp,
	"double-exp":        FitDoubleExp,
	"double exp. decay": FitDoubleExp,
	"aux":               FitAux,
	"auxiliary":         FitAux,
	"linear":            FitAux,
}

// ParseFitType resolves a display name or CLI alias.
func ParseFitType(name string) (FitType, error) {
	if ft, ok := fitTypeAliases[strings.ToLower(strings.TrimSpace(name))]; ok {
		return ft, nil
	}
	return FitNone, fmt.Errorf("unknown fit type %q (use single, double or aux)", name)
}

// Valid reports whether ft is one of the known models.
func (ft FitType) Valid() bool {
	switch ft {
	case FitSingleExp, FitDoubleExp, FitAux:
		return true
	default:
		return false
	}
}

// Next cycles through FitTypes.
func (ft FitType) Next() FitType {
	for i, candidate := range FitTypes {
		if candidate == ft {
			return FitTypes[(i+1)%len(FitTypes)]
		}
	}
	return FitTypes[0]
}

// T90State distinguishes an unset t90 from a value and from an unresolved root.
type T90State int

const (
	T90Unset T90State = iota
	T90Value
	T90Unresolved
)

// T90 is the derived 90%-response time of a section, as an offset from From.
type T90 struct {
	State T90State
	Value float64
}

// Section is one contiguous x-range of the trace with its fit results.
type Section struct {
	// Index is the 1-based position shown as "#".
	Index int
	From  float64
	To    float64
	Type  FitType

	Y0   *float64
	A1   *float64
	Tau1 *float64
	A2   *float64
	Tau2 *float64

	Tau90   T90
	Comment string

	// PrevY0 is the baseline inherited from the previous section. Only t90 reads it.
	PrevY0 *float64
}

// NewSection returns an empty section over [from, to].
func NewSection(index int, from, to float64) *Section {
	return &Section{Index: index, From: from, To: to}
}

// Params returns the set numeric parameters keyed by their column names.
func (s *Section) Params() map[string]float64 {
	out := map[string]float64{}
	for name, v := range map[string]*float64{"y0": s.Y0, "A1": s.A1, "tau1": s.Tau1, "A2": s.A2, "tau2": s.Tau2} {
		if v != nil {
			out[name] = *v
		}
	}
	return out
}

// ClearFit resets the fitted parameters and the derived t90.
func (s *Section) ClearFit() {
	s.Type = FitNone
	s.Y0, s.A1, s.Tau1, s.A2, s.Tau2 = nil, nil, nil, nil, nil
	s.Tau90 = T90{}
}

// Float returns a pointer to v, for filling optional fields.
func Float(v float64) *float64 {
	return &v
}
