package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/copyleftdev/powell/internal/config"
	"github.com/copyleftdev/powell/internal/logging"
	"github.com/copyleftdev/powell/internal/optimization/objectives"
)

// Logger defines the logging interface used by the server
type Logger interface {
	Debug(msg string, fields ...map[string]interface{})
	Info(msg string, fields ...map[string]interface{})
	Warn(msg string, fields ...map[string]interface{})
	Error(msg string, fields ...map[string]interface{})
	WithFields(fields map[string]interface{}) *logging.Logger
}

// JSON-RPC 2.0 error codes.
const (
	rpcParseError     = -32700
	rpcInvalidRequest = -32600
	rpcMethodNotFound = -32601
	rpcInvalidParams  = -32602
	rpcServerError    = -32000
)

// Server implements the HTTP and JSON-RPC API for minimization jobs.
// Jobs are queued and run one at a time by a single worker goroutine.
type Server struct {
	cfg     *config.Config
	logger  Logger
	jobs    *JobManager
	metrics *metrics

	queue chan string

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// NewServer creates a server and starts its worker. Metrics are registered
// with reg when it is non-nil.
func NewServer(cfg *config.Config, logger Logger, reg prometheus.Registerer) *Server {
	queueSize := cfg.Powell.QueueSize
	if queueSize < 1 {
		queueSize = 1
	}
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		cfg:     cfg,
		logger:  logger,
		jobs:    NewJobManager(),
		metrics: newMetrics(reg),
		queue:   make(chan string, queueSize),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go s.worker()
	return s
}

// RegisterRoutes mounts the API on r.
func (s *Server) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/minimize", s.handleMinimize)
		r.Get("/status/{id}", s.handleStatus)
		r.Delete("/minimize/{id}", s.handleCancel)
		r.Get("/objectives", s.handleObjectives)
	})

	r.Post("/rpc", s.handleJSONRPC)
}

// Close cancels every unfinished job and waits for the worker to exit.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		s.jobs.cancelAll()
		s.cancel()
		<-s.done
	})
	return nil
}

// submit validates req, registers a job and queues it.
func (s *Server) submit(req MinimizeRequest) (Job, error) {
	params, err := req.resolve(s.cfg.Powell)
	if err != nil {
		return Job{}, err
	}

	job := s.jobs.CreateJob(params)
	select {
	case s.queue <- job.ID:
	default:
		s.jobs.Remove(job.ID)
		return Job{}, errQueueFull
	}
	s.metrics.queueDepth.Set(float64(len(s.queue)))

	s.logger.Info("Job queued", map[string]interface{}{
		"job_id":    job.ID,
		"objective": params.Objective,
		"method":    params.Method,
		"dimension": len(params.X0),
	})
	return s.jobs.Get(job.ID)
}

// cancelJob requests cancellation of job id.
func (s *Server) cancelJob(id string) (JobState, error) {
	state, err := s.jobs.RequestCancel(id)
	if err != nil {
		return state, err
	}
	s.logger.Info("Cancellation requested", map[string]interface{}{
		"job_id": id,
		"state":  state,
	})
	return state, nil
}

type startResponse struct {
	JobID  string   `json:"job_id"`
	Status JobState `json:"status"`
}

type cancelResponse struct {
	JobID   string   `json:"job_id"`
	Status  JobState `json:"status"`
	Message string   `json:"message"`
}

// handleMinimize handles POST /api/v1/minimize.
func (s *Server) handleMinimize(w http.ResponseWriter, r *http.Request) {
	var req MinimizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("invalid request body: %v", err)})
		return
	}

	job, err := s.submit(req)
	switch {
	case errors.Is(err, errQueueFull):
		s.respondJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
	case err != nil:
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		s.respondJSON(w, http.StatusAccepted, startResponse{JobID: job.ID, Status: job.State})
	}
}

// handleStatus handles GET /api/v1/status/{id}.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.respondJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	s.respondJSON(w, http.StatusOK, job)
}

// handleCancel handles DELETE /api/v1/minimize/{id}.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	state, err := s.cancelJob(id)
	switch {
	case errors.Is(err, errJobNotFound):
		s.respondJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, errJobFinished):
		s.respondJSON(w, http.StatusConflict, map[string]string{"error": fmt.Sprintf("cannot cancel job with status %s", state)})
	default:
		s.respondJSON(w, http.StatusAccepted, cancelResponse{JobID: id, Status: state, Message: "cancellation requested"})
	}
}

// handleObjectives handles GET /api/v1/objectives.
func (s *Server) handleObjectives(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"objectives": objectives.All()})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn("Failed to encode response", map[string]interface{}{"error": err.Error()})
	}
}

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type jobIDParams struct {
	JobID string `json:"job_id"`
}

// handleJSONRPC handles JSON-RPC 2.0 requests on /rpc.
func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	var request rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.respondWithError(w, rpcParseError, "Parse error", nil)
		return
	}
	if request.JSONRPC != "2.0" || request.Method == "" {
		s.respondWithError(w, rpcInvalidRequest, "Invalid Request", request.ID)
		return
	}

	var (
		result interface{}
		code   int
		err    error
	)
	switch request.Method {
	case "minimize.start":
		var req MinimizeRequest
		if err = decodeParams(request.Params, &req); err != nil {
			code = rpcInvalidParams
			break
		}
		var job Job
		job, err = s.submit(req)
		if err != nil {
			code = rpcInvalidParams
			if errors.Is(err, errQueueFull) {
				code = rpcServerError
			}
			break
		}
		result = startResponse{JobID: job.ID, Status: job.State}
	case "minimize.status":
		var p jobIDParams
		if err = decodeJobID(request.Params, &p); err != nil {
			code = rpcInvalidParams
			break
		}
		var job Job
		if job, err = s.jobs.Get(p.JobID); err != nil {
			code = rpcServerError
			break
		}
		result = job
	case "minimize.cancel":
		var p jobIDParams
		if err = decodeJobID(request.Params, &p); err != nil {
			code = rpcInvalidParams
			break
		}
		var state JobState
		if state, err = s.cancelJob(p.JobID); err != nil {
			code = rpcServerError
			break
		}
		result = cancelResponse{JobID: p.JobID, Status: state, Message: "cancellation requested"}
	default:
		s.respondWithError(w, rpcMethodNotFound, "Method not found", request.ID)
		return
	}

	if err != nil {
		s.respondWithError(w, code, err.Error(), request.ID)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      request.ID,
		"result":  result,
	})
}

// decodeParams accepts params either as an object or as a one-element
// array holding the object.
func decodeParams(raw json.RawMessage, v interface{}) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return errors.New("missing required parameters")
	}
	if raw[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(raw, &list); err != nil {
			return fmt.Errorf("invalid parameter format: %w", err)
		}
		if len(list) == 0 {
			return errors.New("missing required parameters")
		}
		raw = list[0]
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("invalid parameter format, expected object: %w", err)
	}
	return nil
}

func decodeJobID(raw json.RawMessage, p *jobIDParams) error {
	if err := decodeParams(raw, p); err != nil {
		return err
	}
	if p.JobID == "" {
		return errors.New("job_id is required")
	}
	return nil
}

// respondWithError sends a JSON-RPC 2.0 error response
func (s *Server) respondWithError(w http.ResponseWriter, code int, message string, id interface{}) {
	s.logger.Warn("RPC error", map[string]interface{}{
		"code":    code,
		"message": message,
	})

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"jsonrpc": "2.0",
		"error": map[string]interface{}{
			"code":    code,
			"message": message,
		},
		"id": id,
	})
}
