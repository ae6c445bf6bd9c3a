// Package app wires every component into the sequenced startup the
// orchestrator describes: configuration, logging, metrics and health,
// the queue backend, action registration, the service container, the
// optional registry publisher, the HTTP server, and the worker loop.
// Shutdown reverses this order and is idempotent.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/mcintyjp/microservice-worker/internal/actions"
	"github.com/mcintyjp/microservice-worker/internal/actions/builtin"
	"github.com/mcintyjp/microservice-worker/internal/api"
	"github.com/mcintyjp/microservice-worker/internal/apperrors"
	"github.com/mcintyjp/microservice-worker/internal/config"
	"github.com/mcintyjp/microservice-worker/internal/container"
	"github.com/mcintyjp/microservice-worker/internal/health"
	"github.com/mcintyjp/microservice-worker/internal/metrics"
	"github.com/mcintyjp/microservice-worker/internal/observability"
	"github.com/mcintyjp/microservice-worker/internal/queue"
	"github.com/mcintyjp/microservice-worker/internal/queue/memqueue"
	"github.com/mcintyjp/microservice-worker/internal/queue/sqlqueue"
	"github.com/mcintyjp/microservice-worker/internal/registry"
	"github.com/mcintyjp/microservice-worker/internal/resilience/breaker"
	"github.com/mcintyjp/microservice-worker/internal/restclient"
	"github.com/mcintyjp/microservice-worker/internal/services"
	"github.com/mcintyjp/microservice-worker/internal/worker"
)

// healthMetricSyncInterval bounds how stale the /metrics health_status
// gauge can be relative to the HealthRegistry's own aggregate.
const healthMetricSyncInterval = 2 * time.Second

// App owns every long-lived component and the order they must stop in.
type App struct {
	cfg *config.Config

	logger  *observability.Logger
	health  *health.Registry
	metrics *metrics.Collector

	q        queue.Queue
	devQueue *memqueue.Queue

	actions   *actions.Registry
	container *container.Container

	registryPublisher *registry.Publisher

	httpServer *http.Server
	worker     *worker.Engine

	instanceID string
}

// New performs every startup step described by the orchestrator up to,
// but not including, Run: config is already loaded by the caller so
// configuration errors surface before any component is constructed.
func New(cfg *config.Config) (*App, error) {
	logger := observability.NewLoggerWithOptions(cfg.MicroserviceName, cfg.LogConsoleJSON, cfg.Debug)

	healthRegistry := health.NewRegistry()
	metricsCollector := metrics.NewCollector()

	a := &App{
		cfg:        cfg,
		logger:     logger,
		health:     healthRegistry,
		metrics:    metricsCollector,
		instanceID: uuid.NewString(),
	}

	q, devQueue, err := a.buildQueue(cfg)
	if err != nil {
		return nil, fmt.Errorf("app: build queue backend: %w", err)
	}
	a.q = q
	a.devQueue = devQueue

	a.actions = actions.NewRegistry()
	if err := builtin.Register(a.actions); err != nil {
		return nil, fmt.Errorf("app: register built-in actions: %w", err)
	}

	a.container = container.NewContainer(healthRegistry, logger)
	a.registerServices()
	if err := a.container.Build(); err != nil {
		return nil, fmt.Errorf("app: build service container: %w", err)
	}

	// ping_upstream is only meaningful once the restapi service exists in
	// the container, so it is registered alongside it rather than inside
	// builtin.Register.
	if err := builtin.RegisterPingUpstream(a.actions); err != nil {
		return nil, fmt.Errorf("app: register ping_upstream action: %w", err)
	}

	a.httpServer = &http.Server{
		Addr:    cfg.HTTPHost + ":" + cfg.HTTPPort,
		Handler: api.NewServer(healthRegistry, metricsCollector, logger, q, devQueue, cfg.JobTimeout).Handler(),
	}

	a.worker = worker.New(worker.Config{
		PollInterval:      cfg.PollingInterval,
		MaxConcurrentJobs: cfg.MaxConcurrentJobs,
		JobTimeout:        cfg.JobTimeout,
		ShutdownTimeout:   cfg.ShutdownTimeout,
		WorkerID:          a.instanceID,
	}, q, a.actions, a.container, healthRegistry, metricsCollector, logger)

	return a, nil
}

func (a *App) buildQueue(cfg *config.Config) (queue.Queue, *memqueue.Queue, error) {
	if cfg.DevMode {
		q := memqueue.New()
		return q, q, nil
	}

	connString := fmt.Sprintf("postgres://%s:%s@%s", cfg.OracleUser, cfg.OraclePassword, cfg.OracleDSN)
	store, err := sqlqueue.NewStore(context.Background(), sqlqueue.Config{
		ConnString: connString,
		TableName:  cfg.OracleTable,
		MaxConns:   int32(cfg.MaxConcurrentJobs) + 1,
	})
	if err != nil {
		return nil, nil, err
	}
	return store, nil, nil
}

func (a *App) registerServices() {
	a.container.Register(container.Descriptor{
		Name: "restapi",
		Factory: func(deps map[string]container.Service, healthRegistry *health.Registry) (container.Service, error) {
			svc := services.NewRestAPIService("restapi", restclient.Config{
				BaseURL:    "https://httpbin.org",
				MaxRetries: 3,
				RateLimit:  restclient.RateLimitConfig{Capacity: 10, WindowSeconds: 1},
				Breaker:    breaker.Config{FailureThreshold: 5, SuccessThreshold: 2, RecoveryTimeout: 30 * time.Second},
			})
			svc.BindHealth(healthRegistry)
			return svc, nil
		},
	})
}

// Run starts the registry publisher (if configured), the HTTP server,
// and the worker loop, and blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if err := a.container.Initialize(ctx); err != nil {
		return fmt.Errorf("app: initialize service container: %w", err)
	}

	if a.cfg.MongoDBURI != "" {
		publisher, err := registry.Connect(ctx, registry.Config{
			URI:               a.cfg.MongoDBURI,
			Database:          a.cfg.MongoDBDatabase,
			ServiceName:       a.cfg.MicroserviceName,
			ServiceVersion:    a.cfg.ServiceVersion,
			InstanceID:        a.instanceID,
			Host:              a.cfg.HTTPHost,
			Port:              a.cfg.HTTPPort,
			HeartbeatInterval: a.cfg.MongoDBHeartbeatInterval,
			KeyTTL:            a.cfg.MongoDBKeyTTL,
			MaxPoolSize:       uint64(a.cfg.MongoDBMaxPoolSize),
			MinPoolSize:       uint64(a.cfg.MongoDBMinPoolSize),
		}, a.health, a.logger, a.health.Snapshot)
		if err != nil {
			a.logger.LogError(ctx, "registry_connect_failed", "REGISTRY_UNAVAILABLE", err.Error())
		} else {
			a.registryPublisher = publisher
			if err := publisher.PublishSchema(ctx, actionDescriptors(a.actions)); err != nil {
				a.logger.LogError(ctx, "registry_publish_schema_failed", "REGISTRY_UNAVAILABLE", err.Error())
			}
			go publisher.Run(ctx)
		}
	}

	serverErrors := make(chan error, 1)
	go func() {
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()

	workerDone := make(chan struct{})
	go func() {
		a.worker.Run(ctx)
		close(workerDone)
	}()

	go a.syncHealthMetric(ctx)

	select {
	case <-ctx.Done():
	case err := <-serverErrors:
		a.logger.LogError(ctx, "http_server_failed", "HTTP_SERVER_ERROR", err.Error())
	}

	return a.shutdown(workerDone)
}

func (a *App) shutdown(workerDone <-chan struct{}) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	<-workerDone

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.LogError(shutdownCtx, "http_server_shutdown_failed", "HTTP_SERVER_ERROR", err.Error())
	}

	if a.registryPublisher != nil {
		if err := a.registryPublisher.Close(shutdownCtx); err != nil {
			a.logger.LogError(shutdownCtx, "registry_close_failed", "REGISTRY_UNAVAILABLE", err.Error())
		}
	}

	a.container.Teardown(shutdownCtx)

	if err := a.q.Shutdown(shutdownCtx); err != nil {
		a.logger.LogError(shutdownCtx, "queue_shutdown_failed", string(apperrors.CodeOf(err)), err.Error())
	}

	return nil
}

// syncHealthMetric keeps the health_status Prometheus gauge in step with
// the HealthRegistry's own aggregate, since nothing else in the pipeline
// pushes health changes into metrics on its own.
func (a *App) syncHealthMetric(ctx context.Context) {
	report := func() {
		_, aggregate := a.health.Snapshot()
		a.metrics.SetHealthStatus(float64(aggregate))
	}

	report()

	ticker := time.NewTicker(healthMetricSyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report()
		}
	}
}

func actionDescriptors(reg *actions.Registry) []registry.ActionDescriptor {
	defs := reg.Definitions()
	out := make([]registry.ActionDescriptor, 0, len(defs))
	for name, def := range defs {
		out = append(out, registry.ActionDescriptor{Name: name, Dependencies: def.Dependencies})
	}
	return out
}
