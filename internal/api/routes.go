package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
)

func (s *Server) registerRoutes() {
	r := mux.NewRouter()

	r.PathPrefix("/swagger/").Handler(httpSwagger.WrapHandler)

	r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleLiveness).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReadiness).Methods(http.MethodGet)

	if s.devQueue != nil {
		r.HandleFunc("/dev/job", s.handleDevJob).Methods(http.MethodPost)
	}

	s.router = r
}
