package fit

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/kneefit/internal/model"
)

func grid(from, to, step float64) []float64 {
	var x []float64
	for v := from; v <= to+1e-9; v += step {
		x = append(x, v)
	}
	return x
}

func singleExp(x []float64, x0, y0, a1, tau1 float64) []float64 {
	y := make([]float64, len(x))
	for i, xi := range x {
		y[i] = y0 + a1*math.Exp(-(xi-x0)/tau1)
	}
	return y
}

func requireRel(t *testing.T, want, got, tol float64, name string) {
	t.Helper()
	require.InDeltaf(t, want, got, math.Abs(want)*tol, "%s: want %g got %g", name, want, got)
}

func TestFitSingleExpDecayRecoversFalling(t *testing.T) {
	x0 := 10.0
	x := grid(x0, 210, 0.5)
	y := singleExp(x, x0, 100, 50, 20)

	p, err := FitSingleExpDecay(x, y, x0)
	require.NoError(t, err)
	requireRel(t, 100, p.Y0, 1e-3, "y0")
	requireRel(t, 50, p.A1, 1e-3, "A1")
	requireRel(t, 20, p.Tau1, 1e-3, "tau1")
	assert.Greater(t, p.Quality.RSquared, 0.9999)
	assert.Less(t, p.Quality.RMSE, 1e-3)
	assert.Positive(t, p.Quality.Evaluations)
}

func TestFitSingleExpDecayRecoversRising(t *testing.T) {
	x0 := 300.0
	x := grid(x0, 400, 0.25)
	y := singleExp(x, x0, 50, -30, 15)

	p, err := FitSingleExpDecay(x, y, x0)
	require.NoError(t, err)
	requireRel(t, 50, p.Y0, 1e-3, "y0")
	requireRel(t, -30, p.A1, 1e-3, "A1")
	requireRel(t, 15, p.Tau1, 1e-3, "tau1")
}

func TestFitSingleExpDecayFallingFineSampling(t *testing.T) {
	tests := []struct {
		name         string
		x0, to, step float64
		y0, a1, tau1 float64
		tightBound   bool
	}{
		{name: "offset start", x0: 10, to: 210, step: 0.5, y0: 100, a1: 50, tau1: 20},
		{name: "zero start", x0: 0, to: 200, step: 0.5, y0: 80, a1: 40, tau1: 25},
		{name: "coarse", x0: 0, to: 200, step: 1, y0: 80, a1: 40, tau1: 25},
		{name: "fast decay", x0: 0, to: 100, step: 0.1, y0: 10, a1: 90, tau1: 3},
		{name: "slow decay", x0: 0, to: 100, step: 0.5, y0: 10, a1: 90, tau1: 300},
		{name: "tight step bound", x0: 10, to: 210, step: 0.5, y0: 100, a1: 50, tau1: 20, tightBound: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			x := grid(tc.x0, tc.to, tc.step)
			y := singleExp(x, tc.x0, tc.y0, tc.a1, tc.tau1)
			var opts []Option
			if tc.tightBound {
				opts = append(opts, WithStepBound(1))
			}

			p, err := FitSingleExpDecay(x, y, tc.x0, opts...)
			require.NoError(t, err)
			requireRel(t, tc.y0, p.Y0, 1e-3, "y0")
			requireRel(t, tc.a1, p.A1, 1e-3, "A1")
			requireRel(t, tc.tau1, p.Tau1, 1e-3, "tau1")
		})
	}
}

func TestFitDoubleExpDecayReducesToSingle(t *testing.T) {
	x0 := 0.0
	x := grid(x0, 200, 0.5)
	y := singleExp(x, x0, 80, 40, 25)

	single, err := FitSingleExpDecay(x, y, x0)
	require.NoError(t, err)
	double, err := FitDoubleExpDecay(x, y, x0)
	require.NoError(t, err)

	requireRel(t, single.Y0, double.Y0, 1e-3, "y0")
	curve := Evaluate(model.FitDoubleExp, Params{
		ParamY0: double.Y0, ParamA1: double.A1, ParamTau1: double.Tau1,
		ParamA2: double.A2, ParamTau2: double.Tau2,
	}, x0, x)
	for i := range y {
		require.InDelta(t, y[i], curve[i], 1e-2)
	}
}

func TestFitDoubleExpDecayImprovesOnSingle(t *testing.T) {
	x0 := 0.0
	x := grid(x0, 300, 0.5)
	y := make([]float64, len(x))
	for i, xi := range x {
		y[i] = 10 + 30*math.Exp(-xi/5) + 20*math.Exp(-xi/60)
	}

	single, err := FitSingleExpDecay(x, y, x0)
	require.NoError(t, err)
	double, err := FitDoubleExpDecay(x, y, x0)
	require.NoError(t, err)
	assert.Less(t, double.Quality.RMSE, single.Quality.RMSE)
}

func TestFitAuxiliary(t *testing.T) {
	x0 := 5.0
	x := grid(x0, 25, 1)
	y := make([]float64, len(x))
	for i, xi := range x {
		y[i] = 3 + (xi-x0)*0.75
	}

	p, err := FitAuxiliary(x, y, x0)
	require.NoError(t, err)
	assert.InDelta(t, 3, p.Y0, 1e-9)
	assert.InDelta(t, 0.75, p.A1, 1e-9)
}

func TestFitInsufficientData(t *testing.T) {
	_, err := FitSingleExpDecay([]float64{1}, []float64{2}, 1)
	require.ErrorIs(t, err, ErrInsufficientData)

	_, err = FitAuxiliary([]float64{1, 2}, []float64{2}, 1)
	require.ErrorIs(t, err, ErrInsufficientData)

	// Two samples cannot pin three parameters.
	_, err = FitSingleExpDecay([]float64{1, 2}, []float64{5, 4}, 1)
	require.ErrorIs(t, err, ErrInsufficientData)
}

func TestFitDoubleFailsWithPreFit(t *testing.T) {
	_, err := FitDoubleExpDecay([]float64{1, 2}, []float64{5, 4}, 1)
	require.ErrorIs(t, err, ErrInsufficientData)
}

func TestFitEvaluationCap(t *testing.T) {
	x := grid(0, 100, 1)
	y := singleExp(x, 0, 1, 5, 10)

	_, err := FitSingleExpDecay(x, y, 0, WithMaxEvaluations(2))
	require.ErrorIs(t, err, ErrDidNotConverge)

	_, err = FitSingleExpDecay(x, y, 0, WithMaxEvaluations(0))
	require.Error(t, err)
}

func TestWithStepBoundNonPositiveKeepsDefault(t *testing.T) {
	x := grid(0, 100, 1)
	y := singleExp(x, 0, 1, 5, 10)

	cfg, err := buildConfig([]Option{WithStepBound(0)})
	require.NoError(t, err)
	assert.Zero(t, cfg.StepBound)

	p, err := FitSingleExpDecay(x, y, 0, WithStepBound(-1))
	require.NoError(t, err)
	requireRel(t, 10, p.Tau1, 1e-3, "tau1")
}

func TestFitDispatch(t *testing.T) {
	x := grid(0, 10, 1)
	y := make([]float64, len(x))
	for i := range y {
		y[i] = 2 * x[i]
	}
	res, err := Fit(model.FitAux, x, y, 0)
	require.NoError(t, err)
	assert.Equal(t, model.FitAux, res.Type)
	assert.InDelta(t, 2, res.Params[ParamA1], 1e-9)
	assert.NotContains(t, res.Params, ParamTau1)

	_, err = Fit("NotAModel", x, y, 0)
	require.ErrorIs(t, err, ErrUnknownModel)
}

func TestEvaluateUnknownModelIsZero(t *testing.T) {
	x := []float64{1, 2, 3, 4}
	out := Evaluate("NotAModel", Params{}, 0, x)
	assert.Equal(t, []float64{0, 0, 0, 0}, out)
}

func TestEvaluateMissingParamsAreZero(t *testing.T) {
	out := Evaluate(model.FitAux, Params{ParamY0: 4}, 0, []float64{0, 10})
	assert.Equal(t, []float64{4, 4}, out)
}

func TestParamNames(t *testing.T) {
	assert.Equal(t, []string{"y0", "A1", "tau1"}, ParamNames(model.FitSingleExp))
	assert.Len(t, ParamNames(model.FitDoubleExp), 5)
	assert.Nil(t, ParamNames("nope"))
}
