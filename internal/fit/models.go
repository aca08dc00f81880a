package fit

import (
	"math"

	"github.com/verte-zerg/kneefit/internal/model"
)

// Parameter names shared with section records.
const (
	ParamY0   = "y0"
	ParamA1   = "A1"
	ParamTau1 = "tau1"
	ParamA2   = "A2"
	ParamTau2 = "tau2"
)

// Params maps parameter names to values. Missing names evaluate as zero.
type Params map[string]float64

// curve is one registered model: its parameter order, value and gradient at dx = x - x0.
// positive lists the time constants, which must stay above zero.
type curve struct {
	names    []string
	positive []int
	value    func(p []float64, dx float64) float64
	grad     func(p []float64, dx float64, g []float64)
}

var registry = map[model.FitType]curve{
	model.FitSingleExp: {
		names:    []string{ParamY0, ParamA1, ParamTau1},
		positive: []int{2},
		value: func(p []float64, dx float64) float64 {
			return p[0] + p[1]*math.Exp(-dx/p[2])
		},
		grad: func(p []float64, dx float64, g []float64) {
			e := math.Exp(-dx / p[2])
			g[0] = 1
			g[1] = e
			g[2] = p[1] * e * dx / (p[2] * p[2])
		},
	},
	model.FitDoubleExp: {
		names:    []string{ParamY0, ParamA1, ParamTau1, ParamA2, ParamTau2},
		positive: []int{2, 4},
		value: func(p []float64, dx float64) float64 {
			return p[0] + p[1]*math.Exp(-dx/p[2]) + p[3]*math.Exp(-dx/p[4])
		},
		grad: func(p []float64, dx float64, g []float64) {
			e1 := math.Exp(-dx / p[2])
			e2 := math.Exp(-dx / p[4])
			g[0] = 1
			g[1] = e1
			g[2] = p[1] * e1 * dx / (p[2] * p[2])
			g[3] = e2
			g[4] = p[3] * e2 * dx / (p[4] * p[4])
		},
	},
	model.FitAux: {
		names: []string{ParamY0, ParamA1},
		value: func(p []float64, dx float64) float64 {
			return p[0] + dx*p[1]
		},
		grad: func(p []float64, dx float64, g []float64) {
			g[0] = 1
			g[1] = dx
		},
	},
}

func (c curve) feasible(p []float64) bool {
	for _, i := range c.positive {
		if !(p[i] > 0) {
			return false
		}
	}
	return true
}

func (c curve) vector(params Params) []float64 {
	p := make([]float64, len(c.names))
	for i, name := range c.names {
		p[i] = params[name]
	}
	return p
}

func (c curve) params(p []float64) Params {
	out := make(Params, len(c.names))
	for i, name := range c.names {
		out[name] = p[i]
	}
	return out
}

// ParamNames returns the parameter names of a model, or nil for an unknown type.
func ParamNames(ft model.FitType) []string {
	c, ok := registry[ft]
	if !ok {
		return nil
	}
	return append([]string(nil), c.names...)
}

// Evaluate renders the model curve over x. An unrecognised type yields zeros.
func Evaluate(ft model.FitType, params Params, x0 float64, x []float64) []float64 {
	out := make([]float64, len(x))
	c, ok := registry[ft]
	if !ok {
		return out
	}
	p := c.vector(params)
	for i, xi := range x {
		out[i] = c.value(p, xi-x0)
	}
	return out
}
