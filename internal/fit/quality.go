package fit

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Quality summarises how well a fitted curve matches its window.
type Quality struct {
	// RSquared is the coefficient of determination; NaN for a flat window.
	RSquared float64
	// RMSE is the root mean squared error in y units.
	RMSE float64
	// Evaluations is the number of residual evaluations the solver used.
	Evaluations int
}

func newQuality(fitted, observed []float64, evaluations int) Quality {
	var sse float64
	for i := range observed {
		d := observed[i] - fitted[i]
		sse += d * d
	}
	return Quality{
		RSquared:    stat.RSquaredFrom(fitted, observed, nil),
		RMSE:        math.Sqrt(sse / float64(len(observed))),
		Evaluations: evaluations,
	}
}
