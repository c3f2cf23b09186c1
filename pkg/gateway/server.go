// Package gateway exposes the webhook HTTP surface the telephony provider
// calls into.
package gateway

import (
	"log/slog"
	"net/http"

	"github.com/mesieou/skedy-ai-sub002/pkg/agent"
	"github.com/mesieou/skedy-ai-sub002/pkg/agent/config"
	"github.com/mesieou/skedy-ai-sub002/pkg/gateway/mw"
)

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux

	receptionist *agent.Receptionist
	ready        func() bool
}

// New builds the webhook server. ready reports whether the backing stores
// are reachable; nil means always ready.
func New(cfg config.Config, receptionist *agent.Receptionist, ready func() bool, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:          cfg,
		logger:       logger,
		mux:          http.NewServeMux(),
		receptionist: receptionist,
		ready:        ready,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	s.mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if s.ready != nil && !s.ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	calls := CallsHandler{Receptionist: s.receptionist, Logger: s.logger}
	s.mux.HandleFunc("POST /v1/calls", calls.Start)
	s.mux.HandleFunc("DELETE /v1/calls/{id}", calls.End)
	s.mux.HandleFunc("GET /v1/calls/{id}", calls.Status)
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.Auth(s.cfg, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}
