// Package powell implements Powell's direction-set method: a
// derivative-free local minimizer that line-minimizes along a set of n
// directions and replaces the most productive one with the net direction of
// a sweep when a curvature test says the swap pays off.
package powell

import (
	"context"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/powell/internal/optimization"
	"github.com/copyleftdev/powell/internal/optimization/linesearch"
)

const component = "powell"

// noSlot marks that the previous pass replaced no direction.
const noSlot = -1

// Status reports why Minimize stopped.
type Status int

const (
	// NotTerminated is never returned by Minimize.
	NotTerminated Status = iota
	// Converged means StallLimit consecutive passes improved by less than
	// the tolerance.
	Converged
	// IterationLimit means MaxIterations passes were completed.
	IterationLimit
	// CritLimitReached means a value below CritLimit was found.
	CritLimitReached
	// Cancelled means the caller or the objective asked to stop.
	Cancelled
	// Failure means a line search collaborator rejected its arguments.
	Failure
)

func (s Status) String() string {
	switch s {
	case NotTerminated:
		return "not_terminated"
	case Converged:
		return "converged"
	case IterationLimit:
		return "iteration_limit"
	case CritLimitReached:
		return "crit_limit"
	case Cancelled:
		return "cancelled"
	case Failure:
		return "failure"
	default:
		return "unknown"
	}
}

// Problem is the function to minimize and the caller's cancellation poll.
type Problem struct {
	Func   optimization.ObjectiveFunction
	Cancel optimization.CancelFunc
}

// Result is the outcome of Minimize.
type Result struct {
	// X is the best point found; it aliases the slice passed to Minimize.
	X []float64
	// F is the objective value at X, never above the starting value.
	F float64

	Cancelled bool
	Status    Status

	Iterations   int
	Evaluations  int
	Replacements int

	// Directions is the final direction set, one unit row per direction.
	Directions *mat.Dense

	// Cause holds the objective's error when it requested cancellation.
	Cause error
}

// outcome is what a line minimization tells the outer loop to do next.
type outcome int

const (
	proceed outcome = iota
	finishAdopting
	finishReverting
	cancelled
	failed
)

// state is the per-run iteration bookkeeping.
type state struct {
	fbest        float64
	prevBest     float64
	stalls       int
	replaced     int
	pass         int
	replacements int
}

// stalled reports whether the last pass improved prevBest by no more than
// the tolerance. The first pass only stalls when the start value is +Inf,
// and an undefined (NaN) improvement counts as progress.
func (st *state) stalled(tol, small float64) bool {
	if math.IsInf(st.prevBest, 1) {
		return math.IsInf(st.fbest, 1)
	}
	toler := tol
	if math.Abs(st.prevBest) > small {
		toler = tol * math.Abs(st.prevBest)
	}
	return st.prevBest-st.fbest <= toler
}

// run owns everything a single Minimize call mutates.
type run struct {
	ctx    context.Context
	p      Problem
	s      Settings
	logger *zap.Logger

	n    int
	x    []float64
	dirs *mat.Dense
	st   state

	evals int
	cause error
	err   error
}

// Minimize refines x in place and returns the best point found together
// with its value. y must be the objective value at x. The returned error is
// non-nil only for invalid input or when a custom line search collaborator
// fails; in the latter case the Result is still valid.
func Minimize(ctx context.Context, p Problem, x []float64, y float64, settings *Settings) (*Result, error) {
	const op = "Minimize"

	s := resolve(settings)
	switch {
	case p.Func == nil:
		return nil, optimization.InvalidArgument(component, op, "nil objective")
	case len(x) == 0:
		return nil, optimization.InvalidArgument(component, op, "empty starting point")
	case math.IsNaN(y):
		return nil, optimization.InvalidArgument(component, op, "starting value is NaN")
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	n := len(x)
	r := &run{
		ctx:    ctx,
		p:      p,
		s:      s,
		logger: s.Logger.Named(component),
		n:      n,
		x:      x,
		dirs:   identity(n),
		st: state{
			fbest:    y,
			prevBest: math.Inf(1),
			replaced: noSlot,
		},
	}

	status := r.iterate()

	r.logger.Debug("Minimize finished",
		zap.Stringer("status", status),
		zap.Int("passes", r.st.pass),
		zap.Int("evaluations", r.evals),
		zap.Float64("value", r.st.fbest),
	)

	res := &Result{
		X:            r.x,
		F:            r.st.fbest,
		Cancelled:    status == Cancelled,
		Status:       status,
		Iterations:   r.st.pass,
		Evaluations:  r.evals,
		Replacements: r.st.replacements,
		Directions:   r.dirs,
		Cause:        r.cause,
	}
	if r.err != nil {
		return res, optimization.WrapError(r.err, "line search failed").
			WithComponent(component).
			WithOperation(op)
	}
	return res, nil
}

func identity(n int) *mat.Dense {
	d := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		d.Set(i, i, 1)
	}
	return d
}

// evaluate calls the objective, counting evaluations. Context cancellation
// is checked first so a cancelled run stops inside long line searches.
func (r *run) evaluate(x []float64) (float64, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, optimization.WrapError(err, "context done")
	}
	r.evals++
	v, err := r.p.Func(x)
	if err != nil {
		if r.cause == nil {
			r.cause = err
		}
		return v, err
	}
	return v, nil
}

// cancelRequested polls the caller.
func (r *run) cancelRequested() bool {
	if r.ctx.Err() != nil {
		return true
	}
	return r.p.Cancel != nil && r.p.Cancel()
}

func (r *run) iterate() Status {
	tun := r.s.Tuning
	p0 := make([]float64, r.n)
	trial := make([]float64, r.n)

	for {
		if r.s.MaxIterations > 0 && r.st.pass >= r.s.MaxIterations {
			return IterationLimit
		}

		if r.st.fbest < r.s.CritLimit {
			return CritLimitReached
		}

		if r.st.stalled(r.s.Tolerance, tun.SmallValue) {
			r.st.stalls++
			if r.st.stalls >= tun.StallLimit {
				return Converged
			}
		} else {
			r.st.stalls = 0
		}
		if r.st.fbest < r.st.prevBest {
			r.st.prevBest = r.st.fbest
		}

		if r.cancelRequested() {
			return Cancelled
		}
		r.st.pass++

		copy(p0, r.x)
		f0 := r.st.fbest

		out, maxDelta, maxIndex := r.sweep()
		if out != proceed {
			return out.status()
		}

		// Step once more along the net displacement of the sweep; a
		// ravine often continues in that direction.
		floats.SubTo(p0, r.x, p0)
		floats.AddTo(trial, r.x, p0)
		ftrial, err := r.evaluate(trial)
		if err != nil {
			return Cancelled
		}

		ftest := r.st.fbest
		if ftrial < r.st.fbest {
			copy(r.x, trial)
			r.st.fbest = ftrial
		}
		if r.cancelRequested() {
			return Cancelled
		}

		replaced := noSlot
		if ftrial < f0 && replacementFavoured(f0, ftest, ftrial, maxDelta) {
			norm := floats.Norm(p0, 2)
			if norm > tun.MinDirectionNorm {
				floats.Scale(1/norm, p0)
				out, _ := r.lineMinimize(p0)
				if out != proceed {
					return out.status()
				}
				r.dirs.SetRow(maxIndex, p0)
				replaced = maxIndex
				r.st.replacements++
			} else {
				r.logger.Debug("Net direction too short, keeping direction set",
					zap.Int("pass", r.st.pass),
					zap.Float64("norm", norm),
				)
			}
		}
		r.st.replaced = replaced

		r.logger.Debug("Pass complete",
			zap.Int("pass", r.st.pass),
			zap.Float64("value", r.st.fbest),
			zap.Float64("max_delta", maxDelta),
			zap.Int("replaced", replaced),
			zap.Int("stalls", r.st.stalls),
			zap.Int("evaluations", r.evals),
		)
		if r.s.Observer != nil {
			r.s.Observer(Pass{
				Iteration:   r.st.pass,
				X:           r.x,
				F:           r.st.fbest,
				Replaced:    replaced,
				Stalls:      r.st.stalls,
				Evaluations: r.evals,
			})
		}
	}
}

// sweep line-minimizes along every direction in turn and reports the
// largest single improvement and the direction that produced it.
func (r *run) sweep() (outcome, float64, int) {
	maxDelta, maxIndex := -1.0, 0

	for idir := 0; idir < r.n; idir++ {
		// Direction 0 was just minimized along when it was installed.
		if r.n > 1 && idir == 0 && r.st.replaced == 0 {
			continue
		}
		out, gain := r.lineMinimize(r.dirs.RawRowView(idir))
		if out != proceed {
			return out, maxDelta, maxIndex
		}
		if gain > maxDelta {
			maxDelta, maxIndex = gain, idir
		}
	}
	return proceed, maxDelta, maxIndex
}

// replacementFavoured is the curvature test deciding whether the net sweep
// direction should take the place of the direction of largest decrease.
func replacementFavoured(f0, ftest, ftrial, maxDelta float64) bool {
	t := f0 - ftest - maxDelta
	stat := 2 * (f0 - 2*ftest + ftrial) * t * t
	return stat < maxDelta*(f0-ftrial)*(f0-ftrial)
}

// lineMinimize brackets and refines a minimum along dir starting from the
// current point, moving r.x there. It returns the decrease achieved. On
// anything but proceed the run must stop; r.x and fbest then hold the best
// point seen.
func (r *run) lineMinimize(dir []float64) (outcome, float64) {
	line := linesearch.NewLine(r.evaluate, r.x, dir)
	fstart := r.st.fbest

	br, quit, err := r.bracket(line)
	if err != nil {
		r.err = err
		return failed, 0
	}
	if quit || br.Y2 < r.s.CritLimit {
		adopted := r.adopt(line, br.T2, br.Y2)
		switch {
		case quit:
			return cancelled, fstart - r.st.fbest
		case adopted:
			return finishAdopting, fstart - r.st.fbest
		default:
			return finishReverting, 0
		}
	}

	t, fval, quit, err := r.s.Refiner.Refine(line.Func(), br, r.budget(), r.s.CritLimit)
	if err != nil {
		r.err = err
		r.adopt(line, br.T2, br.Y2)
		return failed, fstart - r.st.fbest
	}
	r.adopt(line, t, fval)
	if quit || r.cancelRequested() {
		return cancelled, fstart - r.st.fbest
	}
	return proceed, fstart - r.st.fbest
}

// adopt moves r.x to step t of line when fval improves on fbest; otherwise
// r.x is restored to the line's base. It reports whether the point moved.
func (r *run) adopt(line *linesearch.Line, t, fval float64) bool {
	if fval < r.st.fbest {
		line.Point(r.x, t)
		r.st.fbest = fval
		return true
	}
	copy(r.x, line.Base())
	return false
}

// bracket runs the bracketing search over growing intervals until the
// minimum is enclosed, a value below CritLimit turns up or the caller quits.
func (r *run) bracket(line *linesearch.Line) (linesearch.Bracket, bool, error) {
	tun := r.s.Tuning
	inf := math.Inf(1)
	best := linesearch.Bracket{Y1: inf, Y2: inf, Y3: inf}

	for _, mult := range tun.BracketMultipliers {
		half := mult * r.s.Scale
		b, quit, err := r.s.Bracketer.Bracket(line.Func(), -half, half, tun.BracketPoints, false, r.s.CritLimit)
		if err != nil {
			return best, false, err
		}
		if quit || r.cancelRequested() {
			if b.Y2 < best.Y2 {
				best = b
			}
			return best, true, nil
		}
		best = b
		if b.Bounded() || b.Y2 < r.s.CritLimit {
			break
		}
	}
	return best, false, nil
}

// budget picks the refinement effort: thorough once progress has stalled.
func (r *run) budget() linesearch.Budget {
	b := r.s.Tuning.Light
	if r.st.stalls > 0 {
		b = r.s.Tuning.Thorough
	}
	return linesearch.Budget{
		MaxIterations: b.MaxIterations,
		Tolerance:     b.ToleranceFactor * r.s.Tolerance,
		Epsilon:       b.Epsilon,
	}
}

func (o outcome) status() Status {
	switch o {
	case finishAdopting, finishReverting:
		return CritLimitReached
	case cancelled:
		return Cancelled
	case failed:
		return Failure
	default:
		return NotTerminated
	}
}
