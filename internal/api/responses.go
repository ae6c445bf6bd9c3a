package api

import (
	"encoding/json"
	"time"
)

type HealthCheckResponse struct {
	Status  string         `json:"status"`
	Details map[string]any `json:"details,omitempty"`
}

type HealthResponse struct {
	Status    string                          `json:"status"`
	Timestamp time.Time                       `json:"timestamp"`
	Checks    map[string]HealthCheckResponse  `json:"checks"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type DevJobResponse struct {
	JobID     string          `json:"job_id"`
	Status    string          `json:"status"`
	Result    json.RawMessage `json:"results,omitempty"`
	Error     *ErrorResponse  `json:"error,omitempty"`
	RuntimeMS int64           `json:"runtime_ms"`
}
