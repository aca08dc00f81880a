package model

import "slices"

// Knees is a sorted, duplicate-free set of breakpoint coordinates.
type Knees []float64

// Add inserts xs and restores ordering and uniqueness.
func (k Knees) Add(xs ...float64) Knees {
	out := append(append(Knees(nil), k...), xs...)
	slices.Sort(out)
	return slices.Compact(out)
}

// RemoveBetween drops knees strictly inside (a, b) and returns the new set and the count removed.
func (k Knees) RemoveBetween(a, b float64) (Knees, int) {
	if a > b {
		a, b = b, a
	}
	out := make(Knees, 0, len(k))
	for _, x := range k {
		if x > a && x < b {
			continue
		}
		out = append(out, x)
	}
	return out, len(k) - len(out)
}

// Pairs returns consecutive knee pairs.
func (k Knees) Pairs() [][2]float64 {
	if len(k) < 2 {
		return nil
	}
	pairs := make([][2]float64, 0, len(k)-1)
	for i := 0; i+1 < len(k); i++ {
		pairs = append(pairs, [2]float64{k[i], k[i+1]})
	}
	return pairs
}
