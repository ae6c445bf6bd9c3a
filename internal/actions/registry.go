// Package actions implements the name -> {input schema, dependencies,
// handler} dispatch table and the Dispatch algorithm that validates a raw
// job payload, resolves declared service dependencies, and invokes the
// handler.
package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mcintyjp/microservice-worker/internal/apperrors"
	"github.com/mcintyjp/microservice-worker/internal/container"
)

// Validator validates an untyped payload into a typed value, or rejects it
// with a field-level error. Dispatch passes the full job payload, "action"
// field included; the implementation leaves that field out of validation
// (StructSchema deletes it before applying its rules). Implementations may be statically generated or
// backed by a runtime JSON-schema library; the engine only depends on this
// interface.
type Validator interface {
	Validate(raw json.RawMessage) (any, error)
}

// Handler processes a validated input with its resolved dependencies and
// produces a serializable result.
type Handler func(ctx context.Context, input any, deps map[string]any) (any, error)

// Definition is one registered action.
type Definition struct {
	Name         string
	Schema       Validator
	Dependencies []string
	Handler      Handler
}

// Registry is the name -> Definition dispatch table.
type Registry struct {
	mu          sync.RWMutex
	definitions map[string]Definition
}

func NewRegistry() *Registry {
	return &Registry{definitions: make(map[string]Definition)}
}

// Register adds a new action definition. Duplicate names are rejected.
func (r *Registry) Register(def Definition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.definitions[def.Name]; exists {
		return apperrors.New(apperrors.DuplicateAction, fmt.Sprintf("action %q already registered", def.Name))
	}

	r.definitions[def.Name] = def
	return nil
}

// rawPayload is the shape every job payload must at least satisfy.
type rawPayload struct {
	Action string `json:"action"`
}

// Dispatch runs the full dispatch algorithm against a raw job payload:
// extract the action name, look it up, validate the remaining fields,
// resolve dependencies, and invoke the handler.
func (r *Registry) Dispatch(ctx context.Context, payload json.RawMessage, c *container.Container) (any, error) {
	var head rawPayload
	if err := json.Unmarshal(payload, &head); err != nil || head.Action == "" {
		return nil, apperrors.New(apperrors.InvalidPayload, "payload is missing a string \"action\" field")
	}

	r.mu.RLock()
	def, ok := r.definitions[head.Action]
	r.mu.RUnlock()
	if !ok {
		return nil, apperrors.New(apperrors.UnknownAction, fmt.Sprintf("no action registered with name %q", head.Action))
	}

	var input any
	if def.Schema != nil {
		validated, err := def.Schema.Validate(payload)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ValidationError, err)
		}
		input = validated
	}

	deps := make(map[string]any, len(def.Dependencies))
	for _, name := range def.Dependencies {
		instance, ok := c.Get(name)
		if !ok {
			return nil, apperrors.New(apperrors.DependencyUnresolved, fmt.Sprintf("action %q requires unresolved dependency %q", head.Action, name))
		}
		deps[name] = instance
	}

	result, err := def.Handler(ctx, input, deps)
	if err != nil {
		// A handler that already returns a structured *apperrors.Error (e.g.
		// CIRCUIT_OPEN from a restclient call) keeps its own code and
		// message; only a plain error gets wrapped as HANDLER_ERROR.
		var structured *apperrors.Error
		if e, ok := err.(*apperrors.Error); ok {
			structured = e
			return nil, structured
		}
		return nil, apperrors.Wrap(apperrors.HandlerError, err)
	}

	return result, nil
}

// Definitions returns a snapshot of every registered action, keyed by
// name, for the registry publisher's schema export.
func (r *Registry) Definitions() map[string]Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Definition, len(r.definitions))
	for name, def := range r.definitions {
		out[name] = def
	}
	return out
}
