// Package t90 derives the 90%-response time of fitted sections.
package t90

import (
	"errors"
	"fmt"
	"math"

	"github.com/verte-zerg/kneefit/internal/model"
)

// Comments written by Resolve.
const (
	CommentNoChange    = "No change detected"
	CommentUnknownType = "Unknown fit type"
	commentErrorPrefix = "Error calculating t90: "
)

// ComputationError reports a t90 derivation that failed on its inputs.
type ComputationError struct {
	Detail string
}

func (e *ComputationError) Error() string {
	return e.Detail
}

// Comment returns the section comment for the error.
func (e *ComputationError) Comment() string {
	return commentErrorPrefix + e.Detail
}

// Resolve computes sec.Tau90 from the fitted parameters and the inherited
// baseline, updating sec.Comment where the outcome calls for it.
// It reads nothing but sec, so repeated calls give the same result.
func Resolve(sec *model.Section) {
	tau, err := derive(sec)
	var cerr *ComputationError
	switch {
	case err == nil:
		sec.Tau90 = tau
	case errors.Is(err, ErrNoSignChange), errors.Is(err, ErrRootNotConverged):
		sec.Tau90 = model.T90{State: model.T90Unresolved}
	case errors.As(err, &cerr):
		sec.Tau90 = model.T90{}
		sec.Comment = cerr.Comment()
	default:
		sec.Tau90 = model.T90{}
		sec.Comment = commentErrorPrefix + err.Error()
	}
}

// derive returns the t90 outcome, writing informational comments itself.
func derive(sec *model.Section) (model.T90, error) {
	if sec == nil {
		return model.T90{}, &ComputationError{Detail: "section is nil"}
	}
	y0, err := need(sec.Y0, "y0")
	if err != nil {
		return model.T90{}, err
	}
	prev, err := need(sec.PrevY0, "prev_y0")
	if err != nil {
		return model.T90{}, err
	}
	x0 := sec.From
	if !finite(x0) {
		return model.T90{}, &ComputationError{Detail: "From is not finite"}
	}

	total := prev - y0
	if total == 0 {
		sec.Comment = CommentNoChange
		return model.T90{}, nil
	}

	switch sec.Type {
	case model.FitSingleExp:
		tau1, err := needTau(sec.Tau1, "tau1")
		if err != nil {
			return model.T90{}, err
		}
		return model.T90{State: model.T90Value, Value: -tau1 * math.Log(0.1)}, nil

	case model.FitDoubleExp:
		a1, err := need(sec.A1, "A1")
		if err != nil {
			return model.T90{}, err
		}
		tau1, err := needTau(sec.Tau1, "tau1")
		if err != nil {
			return model.T90{}, err
		}
		a2, err := need(sec.A2, "A2")
		if err != nil {
			return model.T90{}, err
		}
		tau2, err := needTau(sec.Tau2, "tau2")
		if err != nil {
			return model.T90{}, err
		}
		target := y0 + 0.1*total
		residual := func(t float64) float64 {
			return y0 + a1*math.Exp(-(t-x0)/tau1) + a2*math.Exp(-(t-x0)/tau2) - target
		}
		root, err := Brent(residual, x0, x0+10*math.Max(tau1, tau2), DefaultBrentConfig())
		if err != nil {
			return model.T90{}, err
		}
		return model.T90{State: model.T90Value, Value: root - x0}, nil

	default:
		sec.Comment = CommentUnknownType
		return model.T90{}, nil
	}
}

func need(v *float64, name string) (float64, error) {
	if v == nil {
		return 0, &ComputationError{Detail: name + " is not set"}
	}
	if !finite(*v) {
		return 0, &ComputationError{Detail: fmt.Sprintf("%s is not finite (%g)", name, *v)}
	}
	return *v, nil
}

func needTau(v *float64, name string) (float64, error) {
	tau, err := need(v, name)
	if err != nil {
		return 0, err
	}
	if tau == 0 {
		return 0, &ComputationError{Detail: name + " is zero"}
	}
	return tau, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
