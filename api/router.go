// Package api adapts Core's six public operations (spec §4.8) to HTTP
// using chi for routing and Server-Sent Events for SubscribeJob.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/romanqed/tonequeue"
	"github.com/romanqed/tonequeue/metrics"
)

// Server is the HTTP front door over a Core.
type Server struct {
	core *tonequeue.Core
	log  *slog.Logger
}

// NewServer builds a Server.
func NewServer(core *tonequeue.Core, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{core: core, log: log}
}

// Router builds the chi router exposing Server's handlers. rec, if
// non-nil, exposes a /metrics endpoint in Prometheus exposition
// format; only cmd/tonequeue-server's main is expected to pass one.
func (s *Server) Router(rec *metrics.Recorder) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealthz)
	if rec != nil {
		r.Handle("/metrics", rec.Handler())
	}

	r.Route("/shootouts", func(r chi.Router) {
		r.Post("/", s.handleSubmitShootout)
	})

	r.Route("/jobs", func(r chi.Router) {
		r.Get("/", s.handleListJobs)
		r.Route("/{jobID}", func(r chi.Router) {
			r.Get("/", s.handleGetJob)
			r.Post("/cancel", s.handleCancelJob)
			r.Get("/stream", s.handleSubscribeJob)
		})
	})

	r.Route("/credentials", func(r chi.Router) {
		r.Put("/", s.handleStoreCredential)
		r.Delete("/", s.handleRevokeCredential)
	})

	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.log.Debug("http request", "method", r.Method, "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()))
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
