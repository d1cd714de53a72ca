// Package baseline wraps gonum's Nelder–Mead simplex method behind the
// optimization.Optimizer interface so its results can be compared with the
// Powell minimizer on the same objectives.
package baseline

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/optimize"

	"github.com/copyleftdev/powell/internal/optimization"
)

const component = "baseline"

// errCritLimit stops gonum once a value below the target is recorded.
var errCritLimit = errors.New("crit limit reached")

// Settings configures a Nelder–Mead run.
type Settings struct {
	// MaxIterations caps the simplex iterations, 0 for no limit.
	MaxIterations int
	// CritLimit ends the run once a value below it is found.
	CritLimit float64
	// Tolerance is used both as the absolute and relative function
	// convergence threshold.
	Tolerance float64
	// StallIterations is how many iterations may pass without a
	// Tolerance-sized improvement before the run is considered converged.
	StallIterations int
	// SimplexSize is the edge length of the initial simplex.
	SimplexSize float64

	Logger *zap.Logger
}

// DefaultSettings mirrors the Powell defaults where they overlap.
func DefaultSettings() *Settings {
	return &Settings{
		CritLimit:       math.Inf(-1),
		Tolerance:       1e-6,
		StallIterations: 100,
		SimplexSize:     0.2,
	}
}

// NelderMead implements optimization.Optimizer.
type NelderMead struct {
	settings Settings
	logger   *zap.Logger

	bestSolution *optimization.Solution
	history      []optimization.Evaluation

	mu      sync.RWMutex
	stopped atomic.Bool
}

// NewNelderMead creates the baseline optimizer. A nil settings means
// DefaultSettings.
func NewNelderMead(settings *Settings) *NelderMead {
	if settings == nil {
		settings = DefaultSettings()
	}
	logger := settings.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NelderMead{
		settings: *settings,
		logger:   logger.Named("neldermead"),
	}
}

// Optimize runs gonum's Nelder–Mead from config.Initial. Objective errors
// are treated as cancellation requests, like in the Powell minimizer.
func (nm *NelderMead) Optimize(ctx context.Context, config optimization.OptimizerConfig) (*optimization.OptimizationResult, error) {
	const op = "Optimize"

	if config.Objective == nil {
		return nil, optimization.InvalidArgument(component, op, "nil objective")
	}
	if len(config.Initial) == 0 {
		return nil, optimization.InvalidArgument(component, op, "empty initial point")
	}
	if !(nm.settings.Tolerance > 0) {
		return nil, optimization.InvalidArgument(component, op, "tolerance must be positive, got %v", nm.settings.Tolerance)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	nm.stopped.Store(false)
	nm.mu.Lock()
	nm.history = nm.history[:0]
	nm.bestSolution = nil
	nm.mu.Unlock()

	x := append([]float64(nil), config.Initial...)
	y, err := config.Objective(x)
	if err != nil {
		return nil, optimization.WrapError(err, "error evaluating objective function at the initial point").
			WithComponent(component).
			WithOperation(op)
	}
	nm.updateBestSolution(x, y)

	rec := &recorder{
		nm:        nm,
		cancel:    optimization.AnyCancel(optimization.ContextCanceller(ctx), config.Cancel, nm.stopped.Load),
		critLimit: nm.settings.CritLimit,
	}

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			if rec.cancelled.Load() {
				return math.Inf(1)
			}
			v, err := config.Objective(x)
			if err != nil {
				rec.cancelled.Store(true)
				return math.Inf(1)
			}
			nm.updateBestSolution(x, v)
			return v
		},
	}

	maxIter := nm.settings.MaxIterations
	if config.MaxIterations > 0 {
		maxIter = config.MaxIterations
	}
	settings := &optimize.Settings{
		MajorIterations: maxIter,
		Converger: &optimize.FunctionConverge{
			Absolute:   nm.settings.Tolerance,
			Relative:   nm.settings.Tolerance,
			Iterations: nm.settings.StallIterations,
		},
		Recorder: rec,
	}
	method := &optimize.NelderMead{SimplexSize: nm.settings.SimplexSize}

	result, err := optimize.Minimize(problem, x, settings, method)

	status := "failure"
	switch {
	case rec.cancelled.Load() || errors.Is(err, optimization.ErrCancelled):
		status, err = "cancelled", nil
	case errors.Is(err, errCritLimit):
		status, err = "crit_limit", nil
	case err != nil:
		err = optimization.WrapError(err, "nelder-mead failed").
			WithComponent(component).
			WithOperation(op)
	case result != nil:
		status = statusName(result.Status)
	}

	out := &optimization.OptimizationResult{
		Evaluations: 1,
		Converged:   status == "converged" || status == "crit_limit",
		Cancelled:   status == "cancelled",
		Status:      status,
	}
	if result != nil {
		out.Iterations = result.Stats.MajorIterations
		out.Evaluations += result.Stats.FuncEvaluations
		nm.updateBestSolution(result.X, result.F)
	}
	out.BestSolution = nm.GetBestSolution()
	out.History = nm.GetHistory()

	nm.logger.Debug("Nelder-Mead finished",
		zap.String("status", status),
		zap.Int("iterations", out.Iterations),
		zap.Int("evaluations", out.Evaluations))

	if err != nil {
		return out, err
	}
	return out, nil
}

// statusName maps gonum termination statuses to the names used by the
// Powell minimizer.
func statusName(s optimize.Status) string {
	switch s {
	case optimize.FunctionConvergence, optimize.MethodConverge, optimize.GradientThreshold:
		return "converged"
	case optimize.IterationLimit, optimize.FunctionEvaluationLimit, optimize.RuntimeLimit:
		return "iteration_limit"
	default:
		return "failure"
	}
}

// GetBestSolution returns a copy of the best solution found so far
func (nm *NelderMead) GetBestSolution() *optimization.Solution {
	nm.mu.RLock()
	defer nm.mu.RUnlock()
	if nm.bestSolution == nil {
		return nil
	}
	return &optimization.Solution{
		Parameters: append([]float64(nil), nm.bestSolution.Parameters...),
		Value:      nm.bestSolution.Value,
	}
}

// GetHistory returns a copy of the per-iteration history
func (nm *NelderMead) GetHistory() []optimization.Evaluation {
	nm.mu.RLock()
	defer nm.mu.RUnlock()
	return append([]optimization.Evaluation(nil), nm.history...)
}

// Stop asks a running Optimize to finish at its next iteration.
func (nm *NelderMead) Stop() {
	nm.stopped.Store(true)
}

func (nm *NelderMead) updateBestSolution(params []float64, value float64) {
	if math.IsNaN(value) || math.IsInf(value, 1) {
		return
	}
	nm.mu.Lock()
	defer nm.mu.Unlock()
	if nm.bestSolution == nil || value < nm.bestSolution.Value {
		nm.bestSolution = &optimization.Solution{
			Parameters: append([]float64(nil), params...),
			Value:      value,
		}
	}
}

// recorder implements optimize.Recorder. It keeps the major-iteration
// history and turns cancellation and the crit limit into errors that stop
// gonum's loop.
type recorder struct {
	nm        *NelderMead
	cancel    optimization.CancelFunc
	critLimit float64

	cancelled atomic.Bool
	iteration int
}

func (r *recorder) Init() error {
	r.iteration = 0
	return nil
}

func (r *recorder) Record(loc *optimize.Location, op optimize.Operation, _ *optimize.Stats) error {
	if op == optimize.MajorIteration {
		r.iteration++
		r.nm.mu.Lock()
		r.nm.history = append(r.nm.history, optimization.Evaluation{
			Iteration: r.iteration,
			Solution: &optimization.Solution{
				Parameters: append([]float64(nil), loc.X...),
				Value:      loc.F,
			},
		})
		r.nm.mu.Unlock()
	}
	if r.cancelled.Load() {
		return optimization.ErrCancelled
	}
	if r.cancel() {
		r.cancelled.Store(true)
		return optimization.ErrCancelled
	}
	if loc.F < r.critLimit {
		return errCritLimit
	}
	return nil
}
