package t90

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrNoSignChange is returned when f(a) and f(b) share a sign.
	ErrNoSignChange = errors.New("root is not bracketed")
	// ErrRootNotConverged is returned when Brent's method runs out of iterations.
	ErrRootNotConverged = errors.New("root finder did not converge")
)

// BrentConfig bounds a Brent solve.
type BrentConfig struct {
	Xtol    float64
	Rtol    float64
	MaxIter int
}

// DefaultBrentConfig returns the tolerances used for t90 roots.
func DefaultBrentConfig() BrentConfig {
	return BrentConfig{
		Xtol:    2e-12,
		Rtol:    4 * epsilon,
		MaxIter: 100,
	}
}

const epsilon = 2.220446049250313e-16

// Brent finds a root of f in [a, b] by inverse quadratic interpolation with
// bisection fallback. f(a) and f(b) must differ in sign.
func Brent(f func(float64) float64, a, b float64, cfg BrentConfig) (float64, error) {
	fa, fb := f(a), f(b)
	if math.IsNaN(fa) || math.IsNaN(fb) {
		return 0, fmt.Errorf("%w: f is NaN at the bracket ends", ErrNoSignChange)
	}
	if fa == 0 {
		return a, nil
	}
	if fb == 0 {
		return b, nil
	}
	if fa*fb > 0 {
		return 0, fmt.Errorf("%w: f(%g)=%g, f(%g)=%g", ErrNoSignChange, a, fa, b, fb)
	}

	// pre is the previous iterate, blk the contrapoint keeping the bracket.
	pre, fpre := a, fa
	cur, fcur := b, fb
	blk, fblk := 0.0, 0.0
	spre, scur := 0.0, 0.0

	for i := 0; i < cfg.MaxIter; i++ {
		if fpre != 0 && fcur != 0 && math.Signbit(fpre) != math.Signbit(fcur) {
			blk, fblk = pre, fpre
			spre = cur - pre
			scur = spre
		}
		if math.Abs(fblk) < math.Abs(fcur) {
			pre, cur, blk = cur, blk, cur
			fpre, fcur, fblk = fcur, fblk, fcur
		}

		delta := (cfg.Xtol + cfg.Rtol*math.Abs(cur)) / 2
		sbis := (blk - cur) / 2
		if fcur == 0 || math.Abs(sbis) < delta {
			return cur, nil
		}

		if math.Abs(spre) > delta && math.Abs(fcur) < math.Abs(fpre) {
			var stry float64
			if pre == blk {
				// secant
				stry = -fcur * (cur - pre) / (fcur - fpre)
			} else {
				// inverse quadratic interpolation
				dpre := (fpre - fcur) / (pre - cur)
				dblk := (fblk - fcur) / (blk - cur)
				stry = -fcur * (fblk*dblk - fpre*dpre) / (dblk * dpre * (fblk - fpre))
			}
			if 2*math.Abs(stry) < math.Min(math.Abs(spre), 3*math.Abs(sbis)-delta) {
				spre, scur = scur, stry
			} else {
				spre, scur = sbis, sbis
			}
		} else {
			spre, scur = sbis, sbis
		}

		pre, fpre = cur, fcur
		if math.Abs(scur) > delta {
			cur += scur
		} else if sbis > 0 {
			cur += delta
		} else {
			cur -= delta
		}
		fcur = f(cur)
	}
	return cur, fmt.Errorf("%w after %d iterations", ErrRootNotConverged, cfg.MaxIter)
}
