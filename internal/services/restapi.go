// Package services holds the long-lived, container-managed service
// implementations that action handlers declare as dependencies.
package services

import (
	"context"

	"github.com/mcintyjp/microservice-worker/internal/health"
	"github.com/mcintyjp/microservice-worker/internal/restclient"
)

// RestAPIService wraps a restclient.Client as a container.Service so
// action handlers can declare "restapi" as a dependency and receive the
// already-initialized client.
type RestAPIService struct {
	name   string
	cfg    restclient.Config
	health *health.Registry
	client *restclient.Client
}

func NewRestAPIService(name string, cfg restclient.Config) *RestAPIService {
	return &RestAPIService{name: name, cfg: cfg}
}

func (s *RestAPIService) Name() string { return s.name }

func (s *RestAPIService) Initialize(ctx context.Context) error {
	s.client = restclient.New(s.cfg, s.health)
	return nil
}

func (s *RestAPIService) Cleanup(ctx context.Context) error {
	return nil
}

// Client returns the underlying rest client for handlers to call through.
func (s *RestAPIService) Client() *restclient.Client {
	return s.client
}

// BindHealth lets the factory attach the shared health registry before
// Initialize constructs the client (the container.Factory signature
// hands the health registry to the factory, not to Initialize).
func (s *RestAPIService) BindHealth(h *health.Registry) {
	s.health = h
}
