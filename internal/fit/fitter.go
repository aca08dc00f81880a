// Package fit provides the curve models and their least-squares fitters.
package fit

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/verte-zerg/kneefit/internal/model"
)

// SingleExpParams are the fitted parameters of y0 + A1*exp(-(x-x0)/tau1).
type SingleExpParams struct {
	Y0, A1, Tau1 float64
	Quality      Quality
}

// DoubleExpParams are the fitted parameters of y0 + A1*exp(-(x-x0)/tau1) + A2*exp(-(x-x0)/tau2).
type DoubleExpParams struct {
	Y0, A1, Tau1, A2, Tau2 float64
	Quality                Quality
}

// AuxParams are the fitted parameters of y0 + (x-x0)*A1.
type AuxParams struct {
	Y0, A1  float64
	Quality Quality
}

// Result is a model-agnostic fit outcome.
type Result struct {
	Type    model.FitType
	Params  Params
	Quality Quality
}

// FitSingleExpDecay fits a single exponential decay anchored at x0.
//
// The initial guess follows the endpoint trend: a falling window starts from
// y0=min(y), A1=-(max-min); a rising or flat one from y0=max(y), A1=max-min.
// tau1 starts at a hundredth of the x span.
func FitSingleExpDecay(x, y []float64, x0 float64, opts ...Option) (SingleExpParams, error) {
	if err := checkWindow(x, y); err != nil {
		return SingleExpParams{}, err
	}
	ymin, ymax := floats.Min(y), floats.Max(y)
	guess := []float64{ymax, ymax - ymin, (floats.Max(x) - floats.Min(x)) / 100}
	if y[0] > y[len(y)-1] {
		guess[0], guess[1] = ymin, -(ymax - ymin)
	}
	p, q, err := solve(model.FitSingleExp, x, y, x0, guess, opts)
	if err != nil {
		return SingleExpParams{}, err
	}
	return SingleExpParams{Y0: p[0], A1: p[1], Tau1: p[2], Quality: q}, nil
}

// twinSplit separates the seeded time constants of the double model. With an
// exactly symmetric seed the damped normal equations keep A1=A2 and
// tau1=tau2 on every step, so the second component could never detach.
const twinSplit = 1e-2

// FitDoubleExpDecay fits a double exponential decay anchored at x0.
// It seeds both components from a single exponential pre-fit and fails with
// the pre-fit's error when that does not converge. The seed is
// [y0, A1, tau1, A1, tau1*(1+twinSplit)] rather than an exact copy of the
// single component: tau2 starts one percent above tau1.
func FitDoubleExpDecay(x, y []float64, x0 float64, opts ...Option) (DoubleExpParams, error) {
	single, err := FitSingleExpDecay(x, y, x0, opts...)
	if err != nil {
		return DoubleExpParams{}, err
	}
	guess := []float64{single.Y0, single.A1, single.Tau1, single.A1, single.Tau1 * (1 + twinSplit)}
	p, q, err := solve(model.FitDoubleExp, x, y, x0, guess, opts)
	if err != nil {
		return DoubleExpParams{}, err
	}
	return DoubleExpParams{Y0: p[0], A1: p[1], Tau1: p[2], A2: p[3], Tau2: p[4], Quality: q}, nil
}

// FitAuxiliary fits a line reparameterised around x0.
func FitAuxiliary(x, y []float64, x0 float64, opts ...Option) (AuxParams, error) {
	if err := checkWindow(x, y); err != nil {
		return AuxParams{}, err
	}
	p, q, err := solve(model.FitAux, x, y, x0, []float64{floats.Min(y), 0}, opts)
	if err != nil {
		return AuxParams{}, err
	}
	return AuxParams{Y0: p[0], A1: p[1], Quality: q}, nil
}

// Fit dispatches to the fitter registered for ft.
func Fit(ft model.FitType, x, y []float64, x0 float64, opts ...Option) (Result, error) {
	switch ft {
	case model.FitSingleExp:
		p, err := FitSingleExpDecay(x, y, x0, opts...)
		if err != nil {
			return Result{}, err
		}
		return Result{Type: ft, Quality: p.Quality, Params: Params{
			ParamY0: p.Y0, ParamA1: p.A1, ParamTau1: p.Tau1,
		}}, nil
	case model.FitDoubleExp:
		p, err := FitDoubleExpDecay(x, y, x0, opts...)
		if err != nil {
			return Result{}, err
		}
		return Result{Type: ft, Quality: p.Quality, Params: Params{
			ParamY0: p.Y0, ParamA1: p.A1, ParamTau1: p.Tau1, ParamA2: p.A2, ParamTau2: p.Tau2,
		}}, nil
	case model.FitAux:
		p, err := FitAuxiliary(x, y, x0, opts...)
		if err != nil {
			return Result{}, err
		}
		return Result{Type: ft, Quality: p.Quality, Params: Params{
			ParamY0: p.Y0, ParamA1: p.A1,
		}}, nil
	default:
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownModel, ft)
	}
}

func checkWindow(x, y []float64) error {
	if len(x) != len(y) {
		return fmt.Errorf("%w: x has %d samples, y has %d", ErrInsufficientData, len(x), len(y))
	}
	if len(x) < 2 {
		return fmt.Errorf("%w: %d samples", ErrInsufficientData, len(x))
	}
	return nil
}

func solve(ft model.FitType, x, y []float64, x0 float64, guess []float64, opts []Option) ([]float64, Quality, error) {
	cfg, err := buildConfig(opts)
	if err != nil {
		return nil, Quality{}, err
	}
	c := registry[ft]
	dx := make([]float64, len(x))
	for i, xi := range x {
		dx[i] = xi - x0
	}
	g := make([]float64, len(c.names))
	prob := Problem{
		M: len(x),
		N: len(c.names),
		Residuals: func(p, r []float64) {
			for i, d := range dx {
				r[i] = c.value(p, d) - y[i]
			}
		},
		Jacobian: func(p []float64, jac *mat.Dense) {
			for i, d := range dx {
				c.grad(p, d, g)
				jac.SetRow(i, g)
			}
		},
		Feasible: c.feasible,
	}
	sol, err := LevenbergMarquardt(prob, guess, cfg)
	if err != nil {
		return nil, Quality{}, err
	}
	return sol.Params, newQuality(Evaluate(ft, c.params(sol.Params), x0, x), y, sol.Evaluations), nil
}
