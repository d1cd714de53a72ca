package powell

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/copyleftdev/powell/internal/optimization"
)

// Optimizer adapts Minimize to the optimization.Optimizer interface. It
// evaluates the objective at the initial point, keeps a per-pass history
// and can be stopped from another goroutine.
type Optimizer struct {
	// Settings used for every run
	settings Settings

	// Best solution found
	bestSolution *optimization.Solution

	// History of completed passes
	history []optimization.Evaluation

	mu      sync.RWMutex
	stopped atomic.Bool
}

// NewOptimizer creates a Powell optimizer. A nil settings means
// DefaultSettings.
func NewOptimizer(settings *Settings) *Optimizer {
	if settings == nil {
		settings = DefaultSettings()
	}
	return &Optimizer{
		settings: *settings,
		history:  make([]optimization.Evaluation, 0, 16),
	}
}

// Optimize runs Minimize from config.Initial. The returned result is
// populated even when the run was cancelled.
func (o *Optimizer) Optimize(ctx context.Context, config optimization.OptimizerConfig) (*optimization.OptimizationResult, error) {
	const op = "Optimize"

	if config.Objective == nil {
		return nil, optimization.InvalidArgument(component, op, "nil objective")
	}
	if len(config.Initial) == 0 {
		return nil, optimization.InvalidArgument(component, op, "empty initial point")
	}

	o.stopped.Store(false)
	o.mu.Lock()
	o.history = o.history[:0]
	o.bestSolution = nil
	o.mu.Unlock()

	x := append([]float64(nil), config.Initial...)
	y, err := config.Objective(x)
	if err != nil {
		return nil, optimization.WrapError(err, "error evaluating objective function at the initial point").
			WithComponent(component).
			WithOperation(op)
	}
	o.updateBestSolution(x, y)

	settings := o.settings
	if config.MaxIterations > 0 {
		settings.MaxIterations = config.MaxIterations
	}
	observer := settings.Observer
	settings.Observer = func(p Pass) {
		o.record(p)
		if observer != nil {
			observer(p)
		}
	}

	problem := Problem{
		Func:   config.Objective,
		Cancel: optimization.AnyCancel(config.Cancel, o.stopped.Load),
	}

	res, err := Minimize(ctx, problem, x, y, &settings)
	if res == nil {
		return nil, err
	}
	o.updateBestSolution(res.X, res.F)

	return &optimization.OptimizationResult{
		BestSolution: o.GetBestSolution(),
		History:      o.GetHistory(),
		Iterations:   res.Iterations,
		Evaluations:  res.Evaluations + 1,
		Converged:    res.Status == Converged || res.Status == CritLimitReached,
		Cancelled:    res.Cancelled,
		Status:       res.Status.String(),
	}, err
}

// GetBestSolution returns a copy of the best solution found so far
func (o *Optimizer) GetBestSolution() *optimization.Solution {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.bestSolution == nil {
		return nil
	}
	return &optimization.Solution{
		Parameters: append([]float64(nil), o.bestSolution.Parameters...),
		Value:      o.bestSolution.Value,
	}
}

// GetHistory returns a copy of the per-pass history
func (o *Optimizer) GetHistory() []optimization.Evaluation {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]optimization.Evaluation(nil), o.history...)
}

// Stop asks a running Optimize to finish; it returns at the next poll.
func (o *Optimizer) Stop() {
	o.stopped.Store(true)
}

func (o *Optimizer) record(p Pass) {
	params := append([]float64(nil), p.X...)
	o.mu.Lock()
	o.history = append(o.history, optimization.Evaluation{
		Iteration: p.Iteration,
		Solution: &optimization.Solution{
			Parameters: params,
			Value:      p.F,
		},
	})
	o.mu.Unlock()
	o.updateBestSolution(params, p.F)
}

// updateBestSolution updates the best solution if the new solution is better
func (o *Optimizer) updateBestSolution(params []float64, value float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.bestSolution == nil || value < o.bestSolution.Value {
		o.bestSolution = &optimization.Solution{
			Parameters: append([]float64(nil), params...),
			Value:      value,
		}
	}
}
