package optimization

import (
	"context"
)

// Optimizer defines the interface for local minimizers
type Optimizer interface {
	// Optimize refines config.Initial and reports the best point found
	Optimize(ctx context.Context, config OptimizerConfig) (*OptimizationResult, error)

	// GetBestSolution returns the best solution found so far
	GetBestSolution() *Solution

	// GetHistory returns one entry per completed iteration
	GetHistory() []Evaluation

	// Stop asks a running optimization to finish cooperatively
	Stop()
}

// OptimizerConfig contains the per-run inputs of an optimizer
type OptimizerConfig struct {
	// Objective function to minimize
	Objective ObjectiveFunction

	// Initial point, left untouched by the optimizer
	Initial []float64

	// Maximum number of iterations, 0 keeps the optimizer's own limit
	MaxIterations int

	// Cancel is polled by the optimizer, nil means never cancelled
	Cancel CancelFunc
}

// ObjectiveFunction maps a point to the value being minimized. A non-nil
// error asks the optimizer to stop as if it had been cancelled.
type ObjectiveFunction func([]float64) (float64, error)

// CancelFunc reports whether the caller wants the optimization to stop.
// It must be cheap and free of side effects.
type CancelFunc func() bool

// ContextCanceller returns a CancelFunc that reports ctx cancellation.
func ContextCanceller(ctx context.Context) CancelFunc {
	return func() bool {
		return ctx.Err() != nil
	}
}

// AnyCancel combines several polls; nil entries are ignored.
func AnyCancel(polls ...CancelFunc) CancelFunc {
	return func() bool {
		for _, poll := range polls {
			if poll != nil && poll() {
				return true
			}
		}
		return false
	}
}

// Solution represents a point and its objective value
type Solution struct {
	Parameters []float64
	Value      float64
}

// Evaluation records the best solution at the end of an iteration
type Evaluation struct {
	Iteration int
	Solution  *Solution
	Error     error
}

// OptimizationResult contains the result of an optimization run
type OptimizationResult struct {
	BestSolution *Solution
	History      []Evaluation
	Iterations   int
	Evaluations  int
	Converged    bool
	Cancelled    bool
	Status       string
}
