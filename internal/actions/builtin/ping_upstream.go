package builtin

import (
	"context"

	"github.com/mcintyjp/microservice-worker/internal/actions"
	"github.com/mcintyjp/microservice-worker/internal/apperrors"
	"github.com/mcintyjp/microservice-worker/internal/restclient"
	"github.com/mcintyjp/microservice-worker/internal/services"
)

// RegisterPingUpstream adds an action that calls through the "restapi"
// service dependency, exercising the RestAPIClient template (rate
// limiting, circuit breaking, retry) from inside the dispatch path. It is
// only registered when the caller has a RestAPIService to depend on.
func RegisterPingUpstream(reg *actions.Registry) error {
	return reg.Register(actions.Definition{
		Name:         "ping_upstream",
		Dependencies: []string{"restapi"},
		Handler: func(ctx context.Context, input any, deps map[string]any) (any, error) {
			svc, ok := deps["restapi"].(*services.RestAPIService)
			if !ok {
				return nil, apperrors.New(apperrors.DependencyUnresolved, "restapi service is not a RestAPIService")
			}

			var out map[string]any
			err := svc.Client().Do(ctx, restclient.Request{Method: "GET", Path: "/"}, &out)
			if err != nil {
				return nil, err
			}
			return map[string]any{"upstream": out}, nil
		},
	})
}
