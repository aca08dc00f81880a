package fit

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Problem is a nonlinear least-squares problem with an analytic Jacobian.
type Problem struct {
	// M is the number of residuals, N the number of parameters.
	M, N int
	// Residuals fills r (length M) with model(p) - data.
	Residuals func(p, r []float64)
	// Jacobian fills jac (M x N) with d r_i / d p_j.
	Jacobian func(p []float64, jac *mat.Dense)
	// Feasible reports whether p lies in the model's domain. Trial points
	// outside it are rejected like points with non-finite residuals.
	// Nil accepts every point.
	Feasible func(p []float64) bool
}

// Solution is the outcome of a converged solve.
type Solution struct {
	Params      []float64
	Cost        float64
	Evaluations int
}

const (
	dampingMax  = 1e16
	minStepTol  = 2.220446049250313e-16
	dwarf       = 2.2250738585072014e-308
	lmparRounds = 10
)

// LevenbergMarquardt minimises 0.5*||r(p)||^2 starting from p0.
//
// It is a trust-region method in the manner of MINPACK's lmder. D holds the
// running maximum of the Jacobian column norms. Each iteration solves
// (J^T J + par*D^2) dp = -J^T r for the smallest par that keeps ||D dp||
// within the trust radius, which starts at StepBound*||D p0||. The radius
// shrinks when the actual cost reduction falls short of the linear
// prediction and grows when it matches. Trial points with non-finite
// residuals or outside Problem.Feasible count as failed steps.
//
// The solve succeeds when both the actual and predicted relative reductions
// are at most Ftol, or when the radius is at most Xtol*||D p||. Reaching
// MaxEvaluations residual evaluations first, or tolerances too tight for
// machine precision, yields ErrDidNotConverge.
func LevenbergMarquardt(prob Problem, p0 []float64, cfg Config) (Solution, error) {
	if prob.N != len(p0) || prob.N == 0 {
		return Solution{}, fmt.Errorf("parameter count mismatch: problem has %d, guess has %d", prob.N, len(p0))
	}
	if prob.M < prob.N {
		return Solution{}, fmt.Errorf("%w: %d residuals for %d parameters", ErrInsufficientData, prob.M, prob.N)
	}
	if cfg.MaxEvaluations <= 0 {
		cfg.MaxEvaluations = DefaultMaxEvaluations
	}
	if cfg.StepBound <= 0 {
		cfg.StepBound = DefaultStepBound
	}

	n := prob.N
	p := append([]float64(nil), p0...)
	r := make([]float64, prob.M)
	prob.Residuals(p, r)
	evals := 1
	fnorm := floats.Norm(r, 2)
	if !isFinite(fnorm) {
		return Solution{}, fmt.Errorf("%w: initial guess gives non-finite residuals", ErrDidNotConverge)
	}
	done := func() (Solution, error) {
		return Solution{Params: p, Cost: fnorm * fnorm / 2, Evaluations: evals}, nil
	}

	jac := mat.NewDense(prob.M, n, nil)
	diag := make([]float64, n)
	trial := make([]float64, n)
	trialR := make([]float64, prob.M)
	var jp mat.VecDense
	var delta, par float64

	for iter := 0; ; iter++ {
		if fnorm == 0 {
			return done()
		}

		prob.Jacobian(p, jac)
		for j := 0; j < n; j++ {
			c := mat.Norm(jac.ColView(j), 2)
			if iter == 0 {
				if c == 0 {
					c = 1
				}
				diag[j] = c
				continue
			}
			diag[j] = math.Max(diag[j], c)
		}
		xnorm := scaledNorm(diag, p)
		if iter == 0 {
			delta = cfg.StepBound * xnorm
			if delta == 0 {
				delta = cfg.StepBound
			}
		}

		var jtj mat.SymDense
		jtj.SymOuterK(1, jac.T())
		var grad mat.VecDense
		grad.MulVec(jac.T(), mat.NewVecDense(prob.M, r))
		if mat.Norm(&grad, math.Inf(1)) == 0 {
			return done()
		}

		for accepted := false; !accepted; {
			var step *mat.VecDense
			var err error
			par, step, err = trustStep(&jtj, &grad, diag, delta, par)
			if err != nil {
				return Solution{}, err
			}
			pnorm := scaledNorm(diag, step.RawVector().Data)
			if iter == 0 {
				delta = math.Min(delta, pnorm)
			}
			for i := range trial {
				trial[i] = p[i] + step.AtVec(i)
			}

			if evals >= cfg.MaxEvaluations {
				return Solution{}, fmt.Errorf("%w after %d evaluations", ErrDidNotConverge, evals)
			}
			prob.Residuals(trial, trialR)
			evals++
			fnorm1 := floats.Norm(trialR, 2)
			if !isFinite(fnorm1) || (prob.Feasible != nil && !prob.Feasible(trial)) {
				fnorm1 = math.Inf(1)
			}

			actred := -1.0
			if 0.1*fnorm1 < fnorm {
				actred = 1 - (fnorm1/fnorm)*(fnorm1/fnorm)
			}
			jp.MulVec(jac, step)
			t1 := mat.Norm(&jp, 2) / fnorm
			t2 := math.Sqrt(par) * pnorm / fnorm
			prered := t1*t1 + t2*t2/0.5
			dirder := -(t1*t1 + t2*t2)
			ratio := 0.0
			if prered != 0 {
				ratio = actred / prered
			}

			switch {
			case ratio <= 0.25:
				shrink := 0.5
				if actred < 0 {
					shrink = 0.5 * dirder / (dirder + 0.5*actred)
				}
				if 0.1*fnorm1 >= fnorm || shrink < 0.1 {
					shrink = 0.1
				}
				delta = shrink * math.Min(delta, pnorm/0.1)
				par /= shrink
			case par == 0 || ratio >= 0.75:
				delta = pnorm / 0.5
				par /= 2
			}

			if ratio >= 1e-4 {
				copy(p, trial)
				copy(r, trialR)
				fnorm = fnorm1
				xnorm = scaledNorm(diag, p)
				accepted = true
			}

			if (math.Abs(actred) <= cfg.Ftol && prered <= cfg.Ftol && 0.5*ratio <= 1) || delta <= cfg.Xtol*xnorm {
				return done()
			}
			if (math.Abs(actred) <= minStepTol && prered <= minStepTol && 0.5*ratio <= 1) || delta <= minStepTol*xnorm {
				return Solution{}, fmt.Errorf("%w: no further reduction possible at machine precision", ErrDidNotConverge)
			}
		}
	}
}

// trustStep returns the damping par and the step solving
// (J^T J + par*D^2) step = -g with ||D step|| within a tenth of delta.
// A Gauss-Newton step already inside 1.1*delta is returned with par zero.
// par seeds the search.
func trustStep(jtj *mat.SymDense, grad *mat.VecDense, diag []float64, delta, par float64) (float64, *mat.VecDense, error) {
	var parl, dxnorm float64
	step, chol, ok := dampedStep(jtj, grad, diag, 0)
	if ok {
		dxnorm = scaledNorm(diag, step.RawVector().Data)
		fp := dxnorm - delta
		if fp <= 0.1*delta {
			return 0, step, nil
		}
		parl = fp / delta / sensitivity(chol, diag, step, dxnorm)
	}

	var gnorm float64
	for j, d := range diag {
		g := grad.AtVec(j) / d
		gnorm += g * g
	}
	gnorm = math.Sqrt(gnorm)
	paru := gnorm / delta
	if paru == 0 {
		paru = dwarf / math.Min(delta, 0.1)
	}

	par = math.Min(math.Max(par, parl), paru)
	if par == 0 {
		par = gnorm
		if dxnorm > 0 {
			par /= dxnorm
		}
	}

	var prev float64
	for i := 0; ; i++ {
		if par == 0 {
			par = math.Max(dwarf, 0.001*paru)
		}
		step, chol, ok = dampedStep(jtj, grad, diag, par)
		for !ok {
			par = math.Max(10*par, 1e-12)
			if par > dampingMax {
				return 0, nil, fmt.Errorf("%w: damped system is singular", ErrDidNotConverge)
			}
			parl = math.Max(parl, par)
			step, chol, ok = dampedStep(jtj, grad, diag, par)
		}
		dxnorm = scaledNorm(diag, step.RawVector().Data)
		fp := dxnorm - delta
		if math.Abs(fp) <= 0.1*delta || (parl == 0 && i > 0 && fp <= prev && prev < 0) || i == lmparRounds-1 {
			return par, step, nil
		}
		parc := fp / delta / sensitivity(chol, diag, step, dxnorm)
		if fp > 0 {
			parl = math.Max(parl, par)
		} else if fp < 0 {
			paru = math.Min(paru, par)
		}
		par = math.Max(parl, par+parc)
		prev = fp
	}
}

// dampedStep solves (J^T J + par*D^2) step = -g. ok is false when the
// system is not numerically positive definite.
func dampedStep(jtj *mat.SymDense, grad *mat.VecDense, diag []float64, par float64) (*mat.VecDense, *mat.Cholesky, bool) {
	n := len(diag)
	damped := mat.NewSymDense(n, nil)
	damped.CopySym(jtj)
	for i, d := range diag {
		damped.SetSym(i, i, jtj.At(i, i)+par*d*d)
	}
	var chol mat.Cholesky
	if !chol.Factorize(damped) {
		return nil, nil, false
	}
	step := mat.NewVecDense(n, nil)
	if err := chol.SolveVecTo(step, grad); err != nil {
		return nil, nil, false
	}
	step.ScaleVec(-1, step)
	return step, &chol, true
}

// sensitivity is v^T A^-1 v with v = D^2 step / ||D step||, the magnitude of
// d||D step||/d par for the factorised damped system A.
func sensitivity(chol *mat.Cholesky, diag []float64, step *mat.VecDense, dxnorm float64) float64 {
	n := len(diag)
	v := mat.NewVecDense(n, nil)
	for j, d := range diag {
		v.SetVec(j, d*d*step.AtVec(j)/dxnorm)
	}
	var w mat.VecDense
	_ = chol.SolveVecTo(&w, v)
	return mat.Dot(v, &w)
}

func scaledNorm(diag, v []float64) float64 {
	var sum float64
	for i, d := range diag {
		sum += (d * v[i]) * (d * v[i])
	}
	return math.Sqrt(sum)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
