package main

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/spf13/cobra"

	"github.com/copyleftdev/powell/internal/config"
	"github.com/copyleftdev/powell/internal/logging"
	"github.com/copyleftdev/powell/internal/optimization"
	"github.com/copyleftdev/powell/internal/optimization/baseline"
	"github.com/copyleftdev/powell/internal/optimization/objectives"
	"github.com/copyleftdev/powell/internal/optimization/powell"
)

type runOptions struct {
	objective string
	x0        []float64
	method    string
	scale     float64
	tol       float64
	maxIter   int
	critLimit string
}

// runOutput is the JSON document printed by the run command.
type runOutput struct {
	Objective   string    `json:"objective"`
	Method      string    `json:"method"`
	X           []float64 `json:"x"`
	F           float64   `json:"f"`
	Status      string    `json:"status"`
	Passes      int       `json:"passes"`
	Evaluations int       `json:"evaluations"`
	Cancelled   bool      `json:"cancelled"`
	ElapsedMS   float64   `json:"elapsed_ms"`
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Minimize a registered objective",
		Long: `Runs one minimization and prints the result as JSON. Interrupting the
run cancels it cooperatively; the best point found so far is still printed.`,
		Example: "  powell run --objective rosenbrock --x0 -1.2,1 --tol 1e-8",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMinimize(cmd, root.logger, opts)
		},
	}

	cmd.Flags().StringVar(&opts.objective, "objective", "", "Objective name (see 'powell objectives')")
	cmd.Flags().Float64SliceVar(&opts.x0, "x0", nil, "Starting point, comma separated")
	cmd.Flags().StringVar(&opts.method, "method", "powell", "Method: powell, nelder-mead")
	cmd.Flags().Float64Var(&opts.scale, "scale", 1, "Half-width of the first bracketing interval")
	cmd.Flags().Float64Var(&opts.tol, "tol", 1e-8, "Convergence tolerance")
	cmd.Flags().IntVar(&opts.maxIter, "max-iter", 0, "Maximum passes, 0 for no limit")
	cmd.Flags().StringVar(&opts.critLimit, "crit-limit", "-inf", "Stop once the value drops below this")

	_ = cmd.MarkFlagRequired("objective")
	_ = cmd.MarkFlagRequired("x0")
	return cmd
}

func runMinimize(cmd *cobra.Command, logger *logging.Logger, opts *runOptions) error {
	o, err := objectives.Lookup(opts.objective)
	if err != nil {
		return err
	}
	f, err := o.Func(len(opts.x0))
	if err != nil {
		return err
	}
	var crit config.CritLimit
	if err := crit.UnmarshalText([]byte(opts.critLimit)); err != nil {
		return err
	}

	zl := logging.NewZapLogger(logger)

	var opt optimization.Optimizer
	switch opts.method {
	case "powell":
		s := powell.DefaultSettings()
		s.Scale = opts.scale
		s.Tolerance = opts.tol
		s.MaxIterations = opts.maxIter
		s.CritLimit = crit.Float64()
		s.Logger = zl
		opt = powell.NewOptimizer(s)
	case "nelder-mead":
		s := baseline.DefaultSettings()
		s.Tolerance = opts.tol
		s.MaxIterations = opts.maxIter
		s.CritLimit = crit.Float64()
		s.Logger = zl
		opt = baseline.NewNelderMead(s)
	default:
		return fmt.Errorf("unknown method %q", opts.method)
	}

	logger.Info("Starting minimization", map[string]interface{}{
		"objective": opts.objective,
		"method":    opts.method,
		"dimension": len(opts.x0),
	})

	start := time.Now()
	result, err := opt.Optimize(cmd.Context(), optimization.OptimizerConfig{
		Objective: f,
		Initial:   opts.x0,
	})
	if err != nil {
		return err
	}

	out := runOutput{
		Objective:   opts.objective,
		Method:      opts.method,
		X:           result.BestSolution.Parameters,
		F:           result.BestSolution.Value,
		Status:      result.Status,
		Passes:      result.Iterations,
		Evaluations: result.Evaluations,
		Cancelled:   result.Cancelled,
		ElapsedMS:   float64(time.Since(start).Microseconds()) / 1000.0,
	}
	if math.IsInf(out.F, 0) || math.IsNaN(out.F) {
		return fmt.Errorf("objective value %v cannot be reported", out.F)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
