package trace

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/verte-zerg/kneefit/internal/model"
)

var (
	// ErrEmptySelection is returned when [a, b] holds no samples.
	ErrEmptySelection = errors.New("no data in the selected range")
	// ErrSameBounds is returned when a and b coincide.
	ErrSameBounds = errors.New("range bounds are the same")
)

func ordered(a, b float64) (float64, float64, error) {
	if a == b {
		return 0, 0, ErrSameBounds
	}
	return math.Min(a, b), math.Max(a, b), nil
}

// Crop returns a new trace holding the samples in [a, b], shifted so x starts at zero.
func Crop(tr *model.Trace, a, b float64) (*model.Trace, error) {
	lo, hi, err := ordered(a, b)
	if err != nil {
		return nil, err
	}
	if len(tr.Y) != len(tr.X) || len(tr.C) != len(tr.X) {
		return nil, fmt.Errorf("trace channels differ in length before cropping")
	}
	x, y, c := tr.Window(lo, hi)
	if len(x) == 0 {
		return nil, ErrEmptySelection
	}
	for i := range x {
		x[i] -= lo
	}
	return &model.Trace{X: x, Y: y, C: c, XLabel: tr.XLabel, YLabel: tr.YLabel, ZLabel: tr.ZLabel}, nil
}

// Interpolate replaces y over [a, b] with the line between the trace values at a and b.
func Interpolate(tr *model.Trace, a, b float64) error {
	lo, hi, err := ordered(a, b)
	if err != nil {
		return err
	}
	ya, yb := InterpAt(tr.X, tr.Y, lo), InterpAt(tr.X, tr.Y, hi)
	touched := 0
	for i, x := range tr.X {
		if x >= lo && x <= hi {
			tr.Y[i] = ya + (yb-ya)*(x-lo)/(hi-lo)
			touched++
		}
	}
	if touched == 0 {
		return ErrEmptySelection
	}
	return nil
}

// InterpAt linearly interpolates y at x over increasing xs, clamping outside the range.
func InterpAt(xs, ys []float64, x float64) float64 {
	n := len(xs)
	if n == 0 {
		return math.NaN()
	}
	if x <= xs[0] {
		return ys[0]
	}
	if x >= xs[n-1] {
		return ys[n-1]
	}
	i, found := slices.BinarySearch(xs, x)
	if found {
		return ys[i]
	}
	x0, x1 := xs[i-1], xs[i]
	return ys[i-1] + (ys[i]-ys[i-1])*(x-x0)/(x1-x0)
}

// Median returns the middle value of v, averaging the two middle values for even lengths.
func Median(v []float64) float64 {
	if len(v) == 0 {
		return math.NaN()
	}
	s := slices.Clone(v)
	slices.Sort(s)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid]
	}
	return (s[mid-1] + s[mid]) / 2
}
