package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/mcintyjp/microservice-worker/internal/apperrors"
	"github.com/mcintyjp/microservice-worker/internal/health"
	"github.com/mcintyjp/microservice-worker/internal/queue"
)

// handleHealth godoc
// @Summary      Aggregate health snapshot
// @Description  Reports every registered health check plus the aggregate status
// @Tags         ops
// @Produce      json
// @Success      200 {object} HealthResponse
// @Failure      503 {object} HealthResponse
// @Router       /health [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks, aggregate := s.health.Snapshot()

	resp := HealthResponse{
		Status:    aggregate.String(),
		Timestamp: time.Now(),
		Checks:    make(map[string]HealthCheckResponse, len(checks)),
	}
	for name, check := range checks {
		resp.Checks[name] = HealthCheckResponse{Status: check.Status.String(), Details: check.Details}
	}

	w.Header().Set("Content-Type", "application/json")
	if aggregate == health.RED {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// handleLiveness godoc
// @Summary      Liveness probe
// @Description  Indicates whether the process is alive
// @Tags         ops
// @Produce      text/plain
// @Success      200 {string} string "ok"
// @Router       /healthz [get]
func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReadiness godoc
// @Summary      Readiness probe
// @Description  Pings the queue backend; 503 if unreachable
// @Tags         ops
// @Produce      text/plain
// @Success      200 {string} string "ready"
// @Failure      503 {string} string "not ready"
// @Router       /readyz [get]
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), time.Second)
	defer cancel()

	if err := s.pingQueue(ctx); err != nil {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// handleDevJob godoc
// @Summary      Submit a job synchronously (dev mode only)
// @Description  Enqueues the request body as a job, waits for its terminal state, and returns the outcome
// @Tags         dev
// @Accept       json
// @Produce      json
// @Param        request body object true "Job payload, must include an \"action\" field"
// @Success      200 {object} DevJobResponse
// @Failure      422 {object} DevJobResponse
// @Failure      400 {string} string
// @Router       /dev/job [post]
func (s *Server) handleDevJob(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil || !json.Valid(body) {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	start := time.Now()

	id, err := s.devQueue.Submit(body)
	if err != nil {
		http.Error(w, "failed to submit job", http.StatusInternalServerError)
		return
	}

	job, err := s.devQueue.WaitForTerminal(r.Context(), id, s.devTimeout)
	runtimeMS := time.Since(start).Milliseconds()

	if err != nil {
		resp := DevJobResponse{
			JobID:     id.String(),
			Status:    "TIMEOUT",
			RuntimeMS: runtimeMS,
			Error:     &ErrorResponse{Code: string(apperrors.CodeOf(err)), Message: err.Error()},
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusGatewayTimeout)
		_ = json.NewEncoder(w).Encode(resp)
		return
	}

	resp := DevJobResponse{
		JobID:     job.ID.String(),
		Status:    string(job.Status),
		Result:    job.Result,
		RuntimeMS: runtimeMS,
	}
	if job.Error != nil {
		resp.Error = &ErrorResponse{Code: job.Error.Code, Message: job.Error.Message}
	}

	w.Header().Set("Content-Type", "application/json")
	if job.Status == queue.Failed {
		w.WriteHeader(http.StatusUnprocessableEntity)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	_ = json.NewEncoder(w).Encode(resp)
}
