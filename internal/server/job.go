package server

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/copyleftdev/powell/internal/config"
	"github.com/copyleftdev/powell/internal/optimization"
	"github.com/copyleftdev/powell/internal/optimization/objectives"
)

// JobState is the lifecycle state of a minimization job.
type JobState string

const (
	StatePending   JobState = "pending"
	StateRunning   JobState = "running"
	StateCompleted JobState = "completed"
	StateFailed    JobState = "failed"
	StateCancelled JobState = "cancelled"
)

// Terminal reports whether no further transitions can happen.
func (s JobState) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Minimization methods a job can request.
const (
	MethodPowell     = "powell"
	MethodNelderMead = "nelder-mead"
)

var (
	errJobNotFound = errors.New("job not found")
	errJobFinished = errors.New("job already finished")
	errQueueFull   = errors.New("job queue is full")
)

// MinimizeRequest is the body of POST /api/v1/minimize and the params of
// minimize.start. Unset optional fields take the configured defaults.
type MinimizeRequest struct {
	Objective     string    `json:"objective"`
	X0            []float64 `json:"x0"`
	Method        string    `json:"method,omitempty"`
	Scale         *float64  `json:"scale,omitempty"`
	MaxIterations *int      `json:"max_iterations,omitempty"`
	CritLimit     *float64  `json:"crit_limit,omitempty"`
	Tolerance     *float64  `json:"tolerance,omitempty"`
}

// JobParams is a validated request with defaults applied.
type JobParams struct {
	Objective     string    `json:"objective"`
	X0            []float64 `json:"x0"`
	Method        string    `json:"method"`
	Scale         float64   `json:"scale"`
	MaxIterations int       `json:"max_iterations"`
	CritLimit     *float64  `json:"crit_limit,omitempty"`
	Tolerance     float64   `json:"tolerance"`

	objective optimization.ObjectiveFunction
}

// critLimit returns the target value, -Inf when none was set.
func (p JobParams) critLimit() float64 {
	if p.CritLimit == nil {
		return math.Inf(-1)
	}
	return *p.CritLimit
}

// resolve validates r against the registry and fills in defaults.
func (r MinimizeRequest) resolve(defaults config.Powell) (JobParams, error) {
	o, err := objectives.Lookup(r.Objective)
	if err != nil {
		return JobParams{}, err
	}
	f, err := o.Func(len(r.X0))
	if err != nil {
		return JobParams{}, err
	}
	for i, v := range r.X0 {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return JobParams{}, fmt.Errorf("x0[%d] is not finite", i)
		}
	}

	p := JobParams{
		Objective:     r.Objective,
		X0:            append([]float64(nil), r.X0...),
		Method:        r.Method,
		Scale:         defaults.Scale,
		MaxIterations: defaults.MaxIterations,
		Tolerance:     defaults.Tolerance,
		objective:     f,
	}
	if p.Method == "" {
		p.Method = MethodPowell
	}
	if p.Method != MethodPowell && p.Method != MethodNelderMead {
		return JobParams{}, fmt.Errorf("unknown method %q", r.Method)
	}
	if r.Scale != nil {
		if !(*r.Scale > 0) || math.IsInf(*r.Scale, 1) {
			return JobParams{}, fmt.Errorf("scale must be positive and finite")
		}
		p.Scale = *r.Scale
	}
	if r.MaxIterations != nil {
		if *r.MaxIterations < 0 {
			return JobParams{}, fmt.Errorf("max_iterations must not be negative")
		}
		p.MaxIterations = *r.MaxIterations
	}
	if r.Tolerance != nil {
		if !(*r.Tolerance > 0) {
			return JobParams{}, fmt.Errorf("tolerance must be positive")
		}
		p.Tolerance = *r.Tolerance
	}
	if r.CritLimit != nil {
		v := *r.CritLimit
		p.CritLimit = &v
	} else if c := defaults.CritLimit.Float64(); !math.IsInf(c, -1) {
		p.CritLimit = &c
	}
	return p, nil
}

// Job is one queued or finished minimization.
type Job struct {
	ID          string     `json:"job_id"`
	State       JobState   `json:"status"`
	Params      JobParams  `json:"params"`
	BestParams  []float64  `json:"best_point,omitempty"`
	BestValue   *float64   `json:"best_value,omitempty"`
	Outcome     string     `json:"outcome,omitempty"`
	Passes      int        `json:"passes"`
	Evaluations int        `json:"evaluations"`
	Cancelled   bool       `json:"cancelled"`
	CreatedAt   time.Time  `json:"created_at"`
	StartTime   *time.Time `json:"start_time,omitempty"`
	EndTime     *time.Time `json:"end_time,omitempty"`
	Error       string     `json:"error,omitempty"`

	cancel *atomic.Bool
}

// snapshot copies the exported fields for rendering outside the lock.
func (j *Job) snapshot() Job {
	out := Job{
		ID:          j.ID,
		State:       j.State,
		Params:      j.Params,
		BestParams:  append([]float64(nil), j.BestParams...),
		Outcome:     j.Outcome,
		Passes:      j.Passes,
		Evaluations: j.Evaluations,
		Cancelled:   j.Cancelled,
		CreatedAt:   j.CreatedAt,
		StartTime:   j.StartTime,
		EndTime:     j.EndTime,
		Error:       j.Error,
	}
	if j.BestValue != nil {
		v := *j.BestValue
		out.BestValue = &v
	}
	return out
}

// JobManager owns the job table.
type JobManager struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewJobManager creates an empty JobManager
func NewJobManager() *JobManager {
	return &JobManager{jobs: make(map[string]*Job)}
}

// CreateJob registers a pending job for params.
func (jm *JobManager) CreateJob(params JobParams) *Job {
	job := &Job{
		ID:        uuid.New().String(),
		State:     StatePending,
		Params:    params,
		CreatedAt: time.Now(),
		cancel:    &atomic.Bool{},
	}

	jm.mu.Lock()
	jm.jobs[job.ID] = job
	jm.mu.Unlock()
	return job
}

// Remove deletes a job, used when it could not be queued.
func (jm *JobManager) Remove(id string) {
	jm.mu.Lock()
	delete(jm.jobs, id)
	jm.mu.Unlock()
}

// Get returns a snapshot of the job.
func (jm *JobManager) Get(id string) (Job, error) {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	job, ok := jm.jobs[id]
	if !ok {
		return Job{}, errJobNotFound
	}
	return job.snapshot(), nil
}

// List returns snapshots of every job, oldest first.
func (jm *JobManager) List() []Job {
	jm.mu.RLock()
	out := make([]Job, 0, len(jm.jobs))
	for _, job := range jm.jobs {
		out = append(out, job.snapshot())
	}
	jm.mu.RUnlock()

	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.Before(out[k].CreatedAt) })
	return out
}

// Update applies fn to the job under the lock.
func (jm *JobManager) Update(id string, fn func(*Job)) error {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job, ok := jm.jobs[id]
	if !ok {
		return errJobNotFound
	}
	fn(job)
	return nil
}

// RequestCancel flags the job for cancellation. A pending job is
// cancelled at once; a running one stops at its next poll.
func (jm *JobManager) RequestCancel(id string) (JobState, error) {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job, ok := jm.jobs[id]
	if !ok {
		return "", errJobNotFound
	}
	if job.State.Terminal() {
		return job.State, errJobFinished
	}

	job.cancel.Store(true)
	if job.State == StatePending {
		now := time.Now()
		job.State = StateCancelled
		job.Cancelled = true
		job.EndTime = &now
	}
	return job.State, nil
}

// cancelPoll returns the job's cancellation flag as a poll function.
func (jm *JobManager) cancelPoll(id string) optimization.CancelFunc {
	jm.mu.RLock()
	job, ok := jm.jobs[id]
	jm.mu.RUnlock()
	if !ok {
		return func() bool { return true }
	}
	return job.cancel.Load
}

// cancelAll flags every unfinished job.
func (jm *JobManager) cancelAll() {
	jm.mu.RLock()
	defer jm.mu.RUnlock()
	for _, job := range jm.jobs {
		if !job.State.Terminal() {
			job.cancel.Store(true)
		}
	}
}
