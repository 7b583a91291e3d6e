// Package httpapi implements the engine's external HTTP interface (spec
// §6.2, §6.3): workflow submission, status, cancellation, the
// server-sent-events observer stream with its inbound sub-routes, and the
// email-approval webhook endpoints.
//
// The route/handler shape — a chi router, handlers closing over a *Server
// holding the engine façade — is grounded on the pack's
// r3e-network-service_layer applications/httpapi package (plain
// route-table HTTP), generalized from its stdlib http.ServeMux to chi so
// path parameters ({id}, {messageRef}, {correlationKey}) are extracted
// without hand-rolled parsing; chi is already present (indirect) in the
// teacher's own go.mod.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/bpmnkit/engine/internal/bpmn/engine"
	"github.com/bpmnkit/engine/internal/bpmn/telemetry"
)

// Server bundles the engine façade behind the HTTP surface spec §6
// describes.
type Server struct {
	engine *engine.Engine
	log    telemetry.Logger
}

// New constructs a Server. A nil logger uses a no-op implementation.
func New(eng *engine.Engine, log telemetry.Logger) *Server {
	if log == nil {
		noop, _, _ := telemetry.NewNoop()
		log = noop
	}
	return &Server{engine: eng, log: log}
}

// Router builds the chi router exposing every route this package handles.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Route("/workflows", func(r chi.Router) {
		r.Post("/execute", s.handleExecute)
		r.Get("/{id}/status", s.handleStatus)
		r.Post("/{id}/cancel", s.handleCancel)
		r.Get("/{id}/events", s.handleEventsSSE)
		r.Post("/{id}/events/ping", s.handleEventPing)
		r.Post("/{id}/events/userTask.complete", s.handleEventUserTaskComplete)
		r.Post("/{id}/events/task.cancel.request", s.handleEventCancelRequest)
		r.Post("/{id}/events/replay.request", s.handleEventReplayRequest)
		r.Post("/{id}/events/clear.history", s.handleEventClearHistory)
		r.Get("/", s.handleListInstances)
	})

	r.Route("/webhooks", func(r chi.Router) {
		r.Get("/approve/{messageRef}/{correlationKey}", s.handleWebhook("approved"))
		r.Get("/deny/{messageRef}/{correlationKey}", s.handleWebhook("denied"))
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return r
}
