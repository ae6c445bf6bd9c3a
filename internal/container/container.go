// Package container implements the ServiceContainer: descriptor
// registration, topological-sort build, and ordered initialize/teardown of
// long-lived service instances.
package container

import (
	"context"
	"fmt"

	"github.com/mcintyjp/microservice-worker/internal/apperrors"
	"github.com/mcintyjp/microservice-worker/internal/health"
	"github.com/mcintyjp/microservice-worker/internal/observability"
)

// Service is the minimal capability every long-lived dependency exposes.
// Inheritance of ServiceProvider becomes composition: any struct with
// these three methods qualifies.
type Service interface {
	Name() string
	Initialize(ctx context.Context) error
	Cleanup(ctx context.Context) error
}

// Factory constructs a service instance given its already-built
// dependencies (keyed by name) and a bound HealthRegistry handle the
// service may register checks against before Initialize runs.
type Factory func(deps map[string]Service, healthRegistry *health.Registry) (Service, error)

// Descriptor is a registered, not-yet-built service.
type Descriptor struct {
	Name       string
	DependsOn  []string
	Factory    Factory
}

// Container owns every built Service instance for the process lifetime.
type Container struct {
	logger *observability.Logger
	health *health.Registry

	descriptors map[string]Descriptor
	order       []string
	instances   map[string]Service
}

func NewContainer(healthRegistry *health.Registry, logger *observability.Logger) *Container {
	return &Container{
		logger:      logger,
		health:      healthRegistry,
		descriptors: make(map[string]Descriptor),
		instances:   make(map[string]Service),
	}
}

// Register appends a service descriptor. Order of registration does not
// matter; Build resolves the dependency order.
func (c *Container) Register(desc Descriptor) {
	c.descriptors[desc.Name] = desc
}

// Build performs a topological sort over DependsOn edges. Cycles raise
// DEPENDENCY_CYCLE, a fatal pre-run error.
func (c *Container) Build() error {
	const (
		unvisited = 0
		visiting  = 1
		visited   = 2
	)

	state := make(map[string]int, len(c.descriptors))
	var order []string

	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		switch state[name] {
		case visited:
			return nil
		case visiting:
			return apperrors.New(apperrors.DependencyCycle, fmt.Sprintf("cycle detected: %v -> %s", path, name))
		}

		desc, ok := c.descriptors[name]
		if !ok {
			return apperrors.New(apperrors.DependencyUnresolved, fmt.Sprintf("service %q is not registered (required via %v)", name, path))
		}

		state[name] = visiting
		for _, dep := range desc.DependsOn {
			if err := visit(dep, append(path, name)); err != nil {
				return err
			}
		}
		state[name] = visited
		order = append(order, name)
		return nil
	}

	for name := range c.descriptors {
		if err := visit(name, nil); err != nil {
			return err
		}
	}

	c.order = order
	return nil
}

// Initialize builds each service (via its Factory, once its dependencies
// are already built) and calls Initialize in topological order. On the
// first failure, already-initialized services are cleaned up in reverse
// order and the error propagates.
func (c *Container) Initialize(ctx context.Context) error {
	var initialized []string

	for _, name := range c.order {
		desc := c.descriptors[name]

		deps := make(map[string]Service, len(desc.DependsOn))
		for _, dep := range desc.DependsOn {
			deps[dep] = c.instances[dep]
		}

		instance, err := desc.Factory(deps, c.health)
		if err != nil {
			c.rollback(ctx, initialized)
			return fmt.Errorf("container: build service %q: %w", name, err)
		}

		if err := instance.Initialize(ctx); err != nil {
			c.rollback(ctx, initialized)
			return fmt.Errorf("container: initialize service %q: %w", name, err)
		}

		c.instances[name] = instance
		initialized = append(initialized, name)
	}

	return nil
}

func (c *Container) rollback(ctx context.Context, initialized []string) {
	for i := len(initialized) - 1; i >= 0; i-- {
		name := initialized[i]
		if err := c.instances[name].Cleanup(ctx); err != nil {
			c.logger.LogError(ctx, "service_rollback_cleanup_failed", "CLEANUP_ERROR", err.Error())
		}
		delete(c.instances, name)
	}
}

// Teardown runs Cleanup on every built service in reverse topological
// order, swallowing individual errors (logged) so every hook runs.
func (c *Container) Teardown(ctx context.Context) {
	for i := len(c.order) - 1; i >= 0; i-- {
		name := c.order[i]
		instance, ok := c.instances[name]
		if !ok {
			continue
		}
		if err := instance.Cleanup(ctx); err != nil {
			c.logger.LogError(ctx, "service_cleanup_failed", "CLEANUP_ERROR", err.Error())
		}
	}
}

// Get resolves a built service instance by name, for use by the
// ActionRegistry's dependency resolution step.
func (c *Container) Get(name string) (Service, bool) {
	instance, ok := c.instances[name]
	return instance, ok
}
