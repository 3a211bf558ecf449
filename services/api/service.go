// Package api exposes workflow documents and run control over HTTP.
package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"nodeflow/services/node"
	"nodeflow/services/supervisor"
	"nodeflow/services/workflow"
)

// Service wires the workflow store, the node registry and the run supervisor
// to HTTP handlers.
type Service struct {
	store      workflow.Store
	registry   *node.Registry
	supervisor *supervisor.Supervisor
	defaults   supervisor.StartOptions
}

type Option func(*Service)

// WithRunDefaults sets the storage used by runs that do not choose one.
func WithRunDefaults(opts supervisor.StartOptions) Option {
	return func(s *Service) { s.defaults = opts }
}

// NewService creates a Service.
func NewService(store workflow.Store, registry *node.Registry, sup *supervisor.Supervisor, opts ...Option) *Service {
	s := &Service{store: store, registry: registry, supervisor: sup}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// jsonMiddleware sets the Content-Type header to application/json.
func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// LoadRoutes registers the workflow, run and node-type handlers on the given router.
func (s *Service) LoadRoutes(parentRouter *mux.Router) {
	workflows := parentRouter.PathPrefix("/workflows").Subrouter()
	workflows.StrictSlash(false)
	workflows.Use(jsonMiddleware)

	workflows.HandleFunc("", s.HandleListWorkflows).Methods("GET")
	workflows.HandleFunc("/{id}", s.HandleGetWorkflow).Methods("GET")
	workflows.HandleFunc("/{id}", s.HandlePutWorkflow).Methods("PUT")
	workflows.HandleFunc("/{id}/runs", s.HandleStartWorkflowRun).Methods("POST")

	runs := parentRouter.PathPrefix("/runs").Subrouter()
	runs.StrictSlash(false)
	runs.Use(jsonMiddleware)

	runs.HandleFunc("", s.HandleListRuns).Methods("GET")
	runs.HandleFunc("", s.HandleStartRun).Methods("POST")
	runs.HandleFunc("/{id}", s.HandleRunStatus).Methods("GET")
	runs.HandleFunc("/{id}/stop", s.HandleStopRun).Methods("POST")
	runs.HandleFunc("/{id}/nodes/{nodeId}/trigger", s.HandleTriggerNode).Methods("POST")

	parentRouter.Handle("/node-types", jsonMiddleware(http.HandlerFunc(s.HandleNodeTypes))).Methods("GET")
}
