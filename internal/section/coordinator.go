// Package section sequences fits over the ordered sections of a trace.
package section

import (
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/verte-zerg/kneefit/internal/fit"
	"github.com/verte-zerg/kneefit/internal/model"
	"github.com/verte-zerg/kneefit/internal/t90"
)

// Section comments written by the coordinator.
const (
	CommentInsufficientData = "Insufficient data"
	CommentFitError         = "error"
)

// Coordinator fits sections and links their baselines. It holds no section state.
type Coordinator struct {
	Log        logrus.FieldLogger
	FitOptions []fit.Option
}

// NewCoordinator returns a coordinator logging to log (or nowhere when nil).
func NewCoordinator(log logrus.FieldLogger, opts ...fit.Option) *Coordinator {
	return &Coordinator{Log: log, FitOptions: opts}
}

func (c *Coordinator) logger() logrus.FieldLogger {
	if c == nil || c.Log == nil {
		return discardLogger
	}
	return c.Log
}

var discardLogger = func() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}()

// FitSection fits sections[idx] with the selected model.
//
// Failures are written into the section: a window with fewer than two
// samples gets "Insufficient data" and is left otherwise untouched; a
// solver failure gets "error" and keeps the previous parameters. After a
// successful fit the baseline is propagated. t90 is resolved in every case
// that reached the solver.
func (c *Coordinator) FitSection(sections []*model.Section, idx int, tr *model.Trace, selected model.FitType) {
	if idx < 0 || idx >= len(sections) || sections[idx] == nil || tr == nil {
		return
	}
	sec := sections[idx]
	log := c.logger().WithFields(logrus.Fields{
		"section": sec.Index,
		"model":   string(selected),
	})

	x, y, _ := tr.Window(sec.From, sec.To)
	if len(x) < 2 {
		sec.Comment = CommentInsufficientData
		log.WithField("points", len(x)).Warn("section has insufficient data")
		return
	}

	res, err := fit.Fit(selected, x, y, sec.From, c.FitOptions...)
	if err != nil {
		sec.Comment = CommentFitError
		log.WithError(err).WithField("points", len(x)).Warn("section fit failed")
	} else {
		apply(sec, res)
		PropagateBaseline(sections, idx, y[0])
		log.WithFields(logrus.Fields{
			"points":      len(x),
			"r2":          res.Quality.RSquared,
			"rmse":        res.Quality.RMSE,
			"evaluations": res.Quality.Evaluations,
		}).Info("section fitted")
	}

	t90.Resolve(sec)
	if sec.Tau90.State == model.T90Unresolved {
		log.Warn("t90 root not bracketed")
	}
}

// FitAll fits every section in ascending order. Each fit may set the
// baseline its successor reads, so the order is part of the result.
func (c *Coordinator) FitAll(sections []*model.Section, tr *model.Trace, selected model.FitType) {
	for idx := range sections {
		c.FitSection(sections, idx, tr, selected)
	}
}

// PropagateBaseline hands the fitted y0 of sections[completed] to its
// successor. The first section has no predecessor, so it takes firstSample,
// the first y value of its own window. Out-of-range indexes do nothing.
func PropagateBaseline(sections []*model.Section, completed int, firstSample float64) {
	if completed < 0 || completed >= len(sections) || sections[completed] == nil {
		return
	}
	done := sections[completed]
	if next := completed + 1; next < len(sections) && done.Y0 != nil && sections[next] != nil {
		sections[next].PrevY0 = model.Float(*done.Y0)
	}
	if completed == 0 {
		done.PrevY0 = model.Float(firstSample)
	}
}

func apply(sec *model.Section, res fit.Result) {
	get := func(name string) *float64 {
		v, ok := res.Params[name]
		if !ok {
			return nil
		}
		return model.Float(v)
	}
	sec.Type = res.Type
	sec.Y0 = get(fit.ParamY0)
	sec.A1 = get(fit.ParamA1)
	sec.Tau1 = get(fit.ParamTau1)
	sec.A2 = get(fit.ParamA2)
	sec.Tau2 = get(fit.ParamTau2)
	sec.Tau90 = model.T90{}
	if isFailureComment(sec.Comment) {
		sec.Comment = ""
	}
}

func isFailureComment(comment string) bool {
	switch comment {
	case CommentFitError, CommentInsufficientData, t90.CommentNoChange, t90.CommentUnknownType:
		return true
	}
	return strings.HasPrefix(comment, "Error calculating t90: ")
}
