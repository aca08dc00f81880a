package fit

import (
	"fmt"

	"github.com/verte-zerg/kneefit/internal/options"
)

// Solver defaults. The tolerances and step bound match MINPACK's lmder defaults.
const (
	DefaultMaxEvaluations = 10000
	DefaultFtol           = 1.49012e-8
	DefaultXtol           = 1.49012e-8
	DefaultStepBound      = 100
)

// Config holds solver settings.
type Config struct {
	MaxEvaluations int
	Ftol           float64
	Xtol           float64
	// StepBound scales the initial trust radius, StepBound*||D p0||.
	StepBound float64
}

// Option configures a fit.
type Option = options.Option[*Config]

// DefaultConfig returns the default solver settings.
func DefaultConfig() Config {
	return Config{
		MaxEvaluations: DefaultMaxEvaluations,
		Ftol:           DefaultFtol,
		Xtol:           DefaultXtol,
		StepBound:      DefaultStepBound,
	}
}

// WithMaxEvaluations caps the number of residual evaluations.
func WithMaxEvaluations(n int) Option {
	return options.New(func(c *Config) error {
		if n <= 0 {
			return fmt.Errorf("max evaluations must be positive, got %d", n)
		}
		c.MaxEvaluations = n
		return nil
	})
}

// WithTolerances sets the relative cost and step tolerances.
func WithTolerances(ftol, xtol float64) Option {
	return options.New(func(c *Config) error {
		if ftol < 0 || xtol < 0 {
			return fmt.Errorf("tolerances must be non-negative, got ftol=%g xtol=%g", ftol, xtol)
		}
		c.Ftol = ftol
		c.Xtol = xtol
		return nil
	})
}

// WithStepBound sets the initial trust radius factor. A non-positive factor
// restores the default.
func WithStepBound(factor float64) Option {
	return options.NoError(func(c *Config) {
		c.StepBound = factor
	})
}

func buildConfig(opts []Option) (Config, error) {
	cfg := DefaultConfig()
	if err := options.Apply(&cfg, opts...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
