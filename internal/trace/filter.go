package trace

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/verte-zerg/kneefit/internal/model"
)

// FilterKind selects a smoothing filter.
type FilterKind string

// Available filters.
const (
	FilterSmooth FilterKind = "smooth"
	FilterMedian FilterKind = "median"
)

const savgolOrder = 2

// ParseFilterKind resolves a filter name.
func ParseFilterKind(name string) (FilterKind, error) {
	switch FilterKind(name) {
	case FilterSmooth, "savgol":
		return FilterSmooth, nil
	case FilterMedian:
		return FilterMedian, nil
	default:
		return "", fmt.Errorf("unknown filter %q (use smooth or median)", name)
	}
}

// Filter applies kind to the whole of tr.Y.
func Filter(tr *model.Trace, kind FilterKind, width int) error {
	out, err := apply(tr.Y, kind, width)
	if err != nil {
		return err
	}
	copy(tr.Y, out)
	return nil
}

// FilterRange applies kind to the samples of tr.Y inside [a, b] only.
func FilterRange(tr *model.Trace, kind FilterKind, width int, a, b float64) error {
	lo, hi, err := ordered(a, b)
	if err != nil {
		return err
	}
	var idx []int
	var ys []float64
	for i, x := range tr.X {
		if x >= lo && x <= hi {
			idx = append(idx, i)
			ys = append(ys, tr.Y[i])
		}
	}
	if len(idx) == 0 {
		return ErrEmptySelection
	}
	out, err := apply(ys, kind, width)
	if err != nil {
		return err
	}
	for j, i := range idx {
		tr.Y[i] = out[j]
	}
	return nil
}

func apply(y []float64, kind FilterKind, width int) ([]float64, error) {
	if width <= 0 {
		return nil, fmt.Errorf("width must be a positive integer, got %d", width)
	}
	switch kind {
	case FilterSmooth:
		return SavitzkyGolay(y, width)
	case FilterMedian:
		return MedianFilter(y, width), nil
	default:
		return nil, fmt.Errorf("unknown filter %q", kind)
	}
}

func oddWidth(width int) int {
	if width%2 == 0 {
		return width + 1
	}
	return width
}

// SavitzkyGolay smooths y with a quadratic fitted over a sliding window.
// Even widths are bumped to the next odd value. The first and last half
// windows are taken from the polynomial fitted to the outermost window.
func SavitzkyGolay(y []float64, width int) ([]float64, error) {
	w := oddWidth(width)
	if w <= savgolOrder {
		return nil, fmt.Errorf("smoothing width %d must exceed the polynomial order %d", w, savgolOrder)
	}
	if w > len(y) {
		return nil, fmt.Errorf("smoothing width %d exceeds the %d samples", w, len(y))
	}
	half := w / 2

	// Least-squares projection onto 1, t, t^2 for t = -half..half.
	v := mat.NewDense(w, savgolOrder+1, nil)
	for j := 0; j < w; j++ {
		t := float64(j - half)
		v.Set(j, 0, 1)
		v.Set(j, 1, t)
		v.Set(j, 2, t*t)
	}
	eye := mat.NewDiagDense(w, nil)
	for j := 0; j < w; j++ {
		eye.SetDiag(j, 1)
	}
	var pinv mat.Dense
	if err := pinv.Solve(v, eye); err != nil {
		return nil, fmt.Errorf("failed to build smoothing kernel: %w", err)
	}

	out := make([]float64, len(y))
	for i := half; i < len(y)-half; i++ {
		var sum float64
		for j := 0; j < w; j++ {
			sum += pinv.At(0, j) * y[i-half+j]
		}
		out[i] = sum
	}

	edge := func(start int, positions []int) {
		var coef mat.VecDense
		coef.MulVec(&pinv, mat.NewVecDense(w, append([]float64(nil), y[start:start+w]...)))
		for _, i := range positions {
			t := float64(i - start - half)
			out[i] = coef.AtVec(0) + coef.AtVec(1)*t + coef.AtVec(2)*t*t
		}
	}
	head := make([]int, 0, half)
	tail := make([]int, 0, half)
	for k := 0; k < half; k++ {
		head = append(head, k)
		tail = append(tail, len(y)-half+k)
	}
	edge(0, head)
	edge(len(y)-w, tail)
	return out, nil
}

// MedianFilter replaces each sample with the median of its window.
// Even widths are bumped to the next odd value; the signal is zero-padded at both ends.
func MedianFilter(y []float64, width int) []float64 {
	w := oddWidth(width)
	half := w / 2
	out := make([]float64, len(y))
	buf := make([]float64, w)
	for i := range y {
		for j := 0; j < w; j++ {
			k := i - half + j
			if k < 0 || k >= len(y) {
				buf[j] = 0
			} else {
				buf[j] = y[k]
			}
		}
		out[i] = Median(buf)
	}
	return out
}
