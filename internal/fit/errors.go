package fit

import "errors"

var (
	// ErrInsufficientData is returned when a window has too few samples for the model.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrDidNotConverge is returned when the solver exhausts its evaluation budget.
	ErrDidNotConverge = errors.New("fit did not converge")
	// ErrUnknownModel is returned for a fit type with no registered model.
	ErrUnknownModel = errors.New("unknown fit model")
)
