package server

import (
	"math"
	"time"

	"github.com/copyleftdev/powell/internal/logging"
	"github.com/copyleftdev/powell/internal/optimization"
	"github.com/copyleftdev/powell/internal/optimization/baseline"
	"github.com/copyleftdev/powell/internal/optimization/powell"
)

// worker drains the queue one job at a time until the server closes.
func (s *Server) worker() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			return
		case id := <-s.queue:
			s.metrics.queueDepth.Set(float64(len(s.queue)))
			s.runJob(id)
		}
	}
}

// runJob executes a pending job and records its outcome.
func (s *Server) runJob(id string) {
	var params JobParams
	started := false
	now := time.Now()
	err := s.jobs.Update(id, func(j *Job) {
		if j.State != StatePending {
			return
		}
		j.State = StateRunning
		j.StartTime = &now
		params = j.Params
		started = true
	})
	if err != nil || !started {
		return
	}

	log := s.logger.WithFields(map[string]interface{}{
		"job_id":    id,
		"objective": params.Objective,
		"method":    params.Method,
	})
	log.Info("Job started")

	objective := func(x []float64) (float64, error) {
		s.metrics.evaluations.Inc()
		return params.objective(x)
	}

	opt := s.newOptimizer(id, params, log)
	result, err := opt.Optimize(s.ctx, optimization.OptimizerConfig{
		Objective: objective,
		Initial:   params.X0,
		Cancel:    s.jobs.cancelPoll(id),
	})
	elapsed := time.Since(now)

	outcome := "failure"
	if result != nil {
		outcome = result.Status
	}
	s.metrics.runs.WithLabelValues(params.Method, outcome).Inc()
	s.metrics.duration.WithLabelValues(params.Method).Observe(elapsed.Seconds())

	end := time.Now()
	_ = s.jobs.Update(id, func(j *Job) {
		j.EndTime = &end
		j.Outcome = outcome
		if result != nil {
			j.Passes = result.Iterations
			j.Evaluations = result.Evaluations
			j.Cancelled = result.Cancelled
			if best := result.BestSolution; best != nil {
				j.setBest(best.Parameters, best.Value)
			}
		}
		switch {
		case err != nil:
			j.State = StateFailed
			j.Error = err.Error()
		case result.Cancelled:
			j.State = StateCancelled
		default:
			j.State = StateCompleted
		}
	})

	if err != nil {
		log.WithError(err).Error("Job failed")
		return
	}
	log.Info("Job finished", map[string]interface{}{
		"outcome":     outcome,
		"passes":      result.Iterations,
		"evaluations": result.Evaluations,
		"elapsed_ms":  float64(elapsed.Microseconds()) / 1000.0,
	})
}

// newOptimizer builds the optimizer for params. Powell passes are mirrored
// into the job as they complete so status requests see progress.
func (s *Server) newOptimizer(id string, p JobParams, log *logging.Logger) optimization.Optimizer {
	zl := logging.NewZapLogger(log)

	if p.Method == MethodNelderMead {
		ns := baseline.DefaultSettings()
		ns.MaxIterations = p.MaxIterations
		ns.CritLimit = p.critLimit()
		ns.Tolerance = p.Tolerance
		ns.Logger = zl
		return baseline.NewNelderMead(ns)
	}

	ps := powell.DefaultSettings()
	ps.Scale = p.Scale
	ps.MaxIterations = p.MaxIterations
	ps.CritLimit = p.critLimit()
	ps.Tolerance = p.Tolerance
	ps.Logger = zl
	ps.Observer = func(pass powell.Pass) {
		s.metrics.passes.Inc()
		_ = s.jobs.Update(id, func(j *Job) {
			j.Passes = pass.Iteration
			j.Evaluations = pass.Evaluations + 1
			j.setBest(pass.X, pass.F)
		})
	}
	return powell.NewOptimizer(ps)
}

// setBest records a best point; non-finite values are not representable
// in JSON and are left out.
func (j *Job) setBest(x []float64, f float64) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return
	}
	j.BestParams = append(j.BestParams[:0], x...)
	j.BestValue = &f
}
