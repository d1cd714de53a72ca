package powell

import (
	"math"

	"go.uber.org/zap"

	"github.com/copyleftdev/powell/internal/optimization"
	"github.com/copyleftdev/powell/internal/optimization/linesearch"
)

// RefineBudget is the Brent budget used for one line minimization.
// ToleranceFactor multiplies Settings.Tolerance to give the relative
// abscissa tolerance; Epsilon is the absolute one.
type RefineBudget struct {
	MaxIterations   int
	ToleranceFactor float64
	Epsilon         float64
}

// Tuning holds the numeric knobs of the direction-set iteration.
type Tuning struct {
	// BracketPoints is the number of samples per bracketing search.
	BracketPoints int
	// BracketMultipliers widen the search interval [-m*Scale, m*Scale]
	// until a true bracket is found.
	BracketMultipliers []float64

	// Light is used while the iteration is making progress.
	Light RefineBudget
	// Thorough is used after a pass with too little improvement.
	Thorough RefineBudget

	// StallLimit consecutive low-improvement passes end the run.
	StallLimit int
	// SmallValue is the magnitude below which the convergence tolerance
	// is absolute rather than relative.
	SmallValue float64
	// MinDirectionNorm is the net sweep displacement below which no
	// direction replacement is attempted.
	MinDirectionNorm float64
}

// DefaultTuning returns the standard knobs.
func DefaultTuning() Tuning {
	return Tuning{
		BracketPoints:      7,
		BracketMultipliers: []float64{1, 10, 100},
		Light:              RefineBudget{MaxIterations: 10, ToleranceFactor: 10, Epsilon: 1e-5},
		Thorough:           RefineBudget{MaxIterations: 20, ToleranceFactor: 1, Epsilon: 1e-7},
		StallLimit:         2,
		SmallValue:         1,
		MinDirectionNorm:   1e-30,
	}
}

// Pass describes the state at the end of one completed outer iteration.
type Pass struct {
	Iteration   int
	X           []float64
	F           float64
	Replaced    int
	Stalls      int
	Evaluations int
}

// Settings configures Minimize.
type Settings struct {
	// Scale is the half-width of the first bracketing interval.
	Scale float64
	// MaxIterations caps the outer passes, 0 for no limit.
	MaxIterations int
	// CritLimit ends the run as soon as a value below it is found.
	CritLimit float64
	// Tolerance is the convergence threshold, relative for values above
	// Tuning.SmallValue in magnitude and absolute otherwise.
	Tolerance float64

	// Tuning zero value means DefaultTuning. In a partially set Tuning,
	// zero BracketPoints and StallLimit, nil BracketMultipliers and zero-valued
	// refine budgets take their defaults; zero SmallValue and
	// MinDirectionNorm are kept as given.
	Tuning Tuning

	// Bracketer and Refiner default to the linesearch implementations.
	Bracketer linesearch.Bracketer
	Refiner   linesearch.Refiner

	// Logger receives per-pass debug output, defaults to a no-op logger.
	Logger *zap.Logger

	// Observer, if set, is called after every completed pass. The Pass
	// X slice is only valid during the call.
	Observer func(Pass)
}

// DefaultSettings returns settings that run to convergence without a
// target value.
func DefaultSettings() *Settings {
	return &Settings{
		Scale:         1,
		MaxIterations: 0,
		CritLimit:     math.Inf(-1),
		Tolerance:     1e-6,
		Tuning:        DefaultTuning(),
	}
}

// resolve returns a copy of s with collaborators and tuning filled in.
func resolve(s *Settings) Settings {
	if s == nil {
		s = DefaultSettings()
	}
	out := *s
	out.Tuning = out.Tuning.withDefaults()
	if out.Bracketer == nil {
		out.Bracketer = linesearch.NewGridBracketer()
	}
	if out.Refiner == nil {
		out.Refiner = linesearch.NewBrentRefiner()
	}
	if out.Logger == nil {
		out.Logger = zap.NewNop()
	}
	return out
}

// withDefaults fills the zero fields of t from DefaultTuning.
func (t Tuning) withDefaults() Tuning {
	def := DefaultTuning()
	if t.isZero() {
		return def
	}
	if t.BracketPoints == 0 {
		t.BracketPoints = def.BracketPoints
	}
	if t.BracketMultipliers == nil {
		t.BracketMultipliers = def.BracketMultipliers
	}
	if t.Light == (RefineBudget{}) {
		t.Light = def.Light
	}
	if t.Thorough == (RefineBudget{}) {
		t.Thorough = def.Thorough
	}
	if t.StallLimit == 0 {
		t.StallLimit = def.StallLimit
	}
	return t
}

func (t Tuning) isZero() bool {
	return t.BracketPoints == 0 && t.BracketMultipliers == nil &&
		t.Light == (RefineBudget{}) && t.Thorough == (RefineBudget{}) &&
		t.StallLimit == 0 && t.SmallValue == 0 && t.MinDirectionNorm == 0
}

func (s *Settings) validate() error {
	const op = "Minimize"

	switch {
	case !(s.Scale > 0) || math.IsInf(s.Scale, 1):
		return optimization.InvalidArgument(component, op, "scale must be positive and finite, got %v", s.Scale)
	case s.MaxIterations < 0:
		return optimization.InvalidArgument(component, op, "negative iteration limit %d", s.MaxIterations)
	case !(s.Tolerance > 0):
		return optimization.InvalidArgument(component, op, "tolerance must be positive, got %v", s.Tolerance)
	case math.IsNaN(s.CritLimit):
		return optimization.InvalidArgument(component, op, "crit limit is NaN")
	}
	return s.Tuning.validate()
}

func (t *Tuning) validate() error {
	const op = "Minimize"

	if t.BracketPoints < 3 {
		return optimization.InvalidArgument(component, op, "need at least 3 bracket points, got %d", t.BracketPoints)
	}
	if len(t.BracketMultipliers) == 0 {
		return optimization.InvalidArgument(component, op, "no bracket multipliers")
	}
	for _, m := range t.BracketMultipliers {
		if !(m > 0) {
			return optimization.InvalidArgument(component, op, "bracket multiplier must be positive, got %v", m)
		}
	}
	for _, b := range []RefineBudget{t.Light, t.Thorough} {
		if b.MaxIterations < 0 || b.ToleranceFactor < 0 || b.Epsilon < 0 {
			return optimization.InvalidArgument(component, op, "negative refine budget %+v", b)
		}
	}
	if t.StallLimit < 1 {
		return optimization.InvalidArgument(component, op, "stall limit must be at least 1, got %d", t.StallLimit)
	}
	if t.SmallValue < 0 || t.MinDirectionNorm < 0 {
		return optimization.InvalidArgument(component, op, "negative threshold")
	}
	return nil
}
