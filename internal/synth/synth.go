// Package synth builds synthetic sensor traces.
package synth

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/verte-zerg/kneefit/internal/model"
)

// Kind selects the response shape of a segment.
type Kind string

// Segment shapes.
const (
	KindSingle Kind = "single"
	KindDouble Kind = "double"
	KindRamp   Kind = "ramp"
)

// Segment describes one stretch of the response, starting from wherever
// the previous segment ended.
type Segment struct {
	Kind     Kind
	Duration float64
	// Level is the asymptote the response decays toward.
	Level float64
	Tau1  float64
	Tau2  float64
	// Fraction is the share of the step carried by the tau1 term of a double segment.
	Fraction float64
	// Slope is the rate of a ramp segment.
	Slope         float64
	Concentration float64
}

// Spec configures a synthetic trace.
type Spec struct {
	Start    float64
	Initial  float64
	Step     float64
	Noise    float64
	Segments []Segment
}

// Generator produces traces with optional Gaussian noise.
type Generator struct {
	rnd *rand.Rand
}

// New returns a Generator seeded with the current time.
func New() *Generator {
	return NewSeeded(time.Now().UnixNano())
}

// NewSeeded returns a deterministic Generator.
func NewSeeded(seed int64) *Generator {
	return &Generator{rnd: rand.New(rand.NewSource(seed))}
}

// Generate samples the segments every spec.Step and returns the trace and
// the knees at the segment boundaries.
func (g *Generator) Generate(spec Spec) (*model.Trace, model.Knees, error) {
	if spec.Step <= 0 {
		return nil, nil, fmt.Errorf("step must be positive, got %g", spec.Step)
	}
	if len(spec.Segments) == 0 {
		return nil, nil, fmt.Errorf("no segments")
	}
	tr := &model.Trace{
		XLabel: "Time [s]",
		YLabel: "R [Ohm]",
		ZLabel: "Concentration [ppm]",
	}
	knees := model.Knees{spec.Start}
	t0 := spec.Start
	level := spec.Initial
	for i, seg := range spec.Segments {
		if seg.Duration <= 0 {
			return nil, nil, fmt.Errorf("segment %d: duration must be positive", i+1)
		}
		end := t0 + seg.Duration
		// samples from t0 up to but excluding end, except for the last segment
		last := i == len(spec.Segments)-1
		n := int(math.Round(seg.Duration / spec.Step))
		if last {
			n++
		}
		for k := 0; k < n; k++ {
			dt := float64(k) * spec.Step
			tr.X = append(tr.X, t0+dt)
			tr.Y = append(tr.Y, value(seg, level, dt)+g.noise(spec.Noise))
			tr.C = append(tr.C, seg.Concentration)
		}
		level = value(seg, level, seg.Duration)
		t0 = end
		knees = knees.Add(end)
	}
	return tr, knees, nil
}

func (g *Generator) noise(sigma float64) float64 {
	if sigma <= 0 {
		return 0
	}
	return g.rnd.NormFloat64() * sigma
}

// value evaluates a segment dt after its start, beginning at from.
func value(seg Segment, from, dt float64) float64 {
	switch seg.Kind {
	case KindSingle:
		return seg.Level + (from-seg.Level)*math.Exp(-dt/seg.Tau1)
	case KindDouble:
		f := seg.Fraction
		return seg.Level + (from-seg.Level)*(f*math.Exp(-dt/seg.Tau1)+(1-f)*math.Exp(-dt/seg.Tau2))
	case KindRamp:
		return from + seg.Slope*dt
	default:
		return from
	}
}

// Default returns a gas-exposure style profile: a response step, a
// recovery and a slow drift.
func Default() Spec {
	return Spec{
		Start:   0,
		Initial: 1000,
		Step:    0.5,
		Noise:   0.5,
		Segments: []Segment{
			{Kind: KindSingle, Duration: 300, Level: 600, Tau1: 25, Concentration: 500},
			{Kind: KindDouble, Duration: 400, Level: 980, Tau1: 15, Tau2: 90, Fraction: 0.6},
			{Kind: KindRamp, Duration: 200, Slope: 0.05},
		},
	}
}
