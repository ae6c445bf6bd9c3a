// Package builtin registers the example actions shipped with the
// service: greet, the end-to-end happy-path scenario, and echo, a
// dependency-free action useful for liveness checks against /dev/job.
package builtin

import (
	"context"
	"fmt"

	"github.com/mcintyjp/microservice-worker/internal/actions"
)

// Register adds the greet and echo actions to reg; ping_upstream is added
// separately by RegisterPingUpstream. Call this once during
// application startup, in the same place the teacher would have wired
// its own handler registrations.
func Register(reg *actions.Registry) error {
	if err := reg.Register(greetDefinition()); err != nil {
		return err
	}
	if err := reg.Register(echoDefinition()); err != nil {
		return err
	}
	return nil
}

func greetDefinition() actions.Definition {
	return actions.Definition{
		Name: "greet",
		Schema: &actions.StructSchema{
			Rules: []actions.Rule{
				{
					Field:    "name",
					Required: true,
					Check: func(value any) string {
						s, ok := value.(string)
						if !ok {
							return "must be a string"
						}
						if s == "" {
							return "must not be empty"
						}
						return ""
					},
				},
			},
		},
		Handler: func(ctx context.Context, input any, deps map[string]any) (any, error) {
			fields := input.(map[string]any)
			name := fields["name"].(string)
			return map[string]string{"message": fmt.Sprintf("Hello, %s!", name)}, nil
		},
	}
}

func echoDefinition() actions.Definition {
	return actions.Definition{
		Name: "echo",
		Handler: func(ctx context.Context, input any, deps map[string]any) (any, error) {
			return map[string]any{"echo": true}, nil
		},
	}
}
