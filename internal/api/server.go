// Package api exposes the HTTP control surface: health, readiness,
// Prometheus metrics, Swagger docs, and (dev mode only) a synchronous
// job submission endpoint, routed with gorilla/mux in the teacher's
// style.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/mcintyjp/microservice-worker/internal/health"
	"github.com/mcintyjp/microservice-worker/internal/metrics"
	"github.com/mcintyjp/microservice-worker/internal/observability"
	"github.com/mcintyjp/microservice-worker/internal/queue"
	"github.com/mcintyjp/microservice-worker/internal/queue/memqueue"
)

// Server owns the router and every dependency its handlers read from.
type Server struct {
	health  *health.Registry
	metrics *metrics.Collector
	logger  *observability.Logger
	queue   queue.Queue

	// devQueue is non-nil only in dev mode, when the in-memory backend's
	// extra Submit/WaitForTerminal surface backs /dev/job.
	devQueue   *memqueue.Queue
	devTimeout time.Duration

	router http.Handler
}

// NewServer wires the router. The /dev/job route is registered only when
// devQueue is non-nil; devTimeout bounds how long that route waits for the
// submitted job to reach a terminal state.
func NewServer(healthRegistry *health.Registry, metricsCollector *metrics.Collector, logger *observability.Logger, q queue.Queue, devQueue *memqueue.Queue, devTimeout time.Duration) *Server {
	s := &Server{
		health:     healthRegistry,
		metrics:    metricsCollector,
		logger:     logger,
		queue:      q,
		devQueue:   devQueue,
		devTimeout: devTimeout,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// pingQueue exercises the readiness path's dependency on the queue
// backend. A backend without a Ping method is reported reachable.
func (s *Server) pingQueue(ctx context.Context) error {
	type pinger interface {
		Ping(ctx context.Context) error
	}
	if p, ok := s.queue.(pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
