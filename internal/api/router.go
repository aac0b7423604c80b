package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, "method not allowed")
	})

	r.Route(s.basePath(), func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/gateways", func(r chi.Router) {
			r.Get("/", s.handleListGateways)
			r.Post("/", s.handleCreateGateway)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetGateway)
				r.Get("/peripherals", s.handleGatewayPeripherals)
			})
		})

		r.Route("/peripherals", func(r chi.Router) {
			r.Get("/", s.handleListPeripherals)
			r.Post("/", s.handleCreatePeripheral)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetPeripheral)
				r.Delete("/", s.handleDeletePeripheral)
			})
		})

		r.Get(s.wsPath(), s.handleWebSocket)
	})

	return r
}

func (s *Server) basePath() string {
	if s.cfg.BasePath == "" {
		return "/api"
	}
	return s.cfg.BasePath
}

func (s *Server) wsPath() string {
	if s.wsCfg.Path == "" {
		return "/ws"
	}
	return s.wsCfg.Path
}

// handleHealth reports the server version and whether the record store
// answers. A failing store check yields 503. Sink failures only mark the
// report degraded, since the registry keeps serving without them.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":  "ok",
		"version": s.version,
	}

	if len(s.checks) > 0 {
		checks := make(map[string]string, len(s.checks))
		for name, c := range s.checks {
			if err := c.HealthCheck(r.Context()); err != nil {
				checks[name] = "unavailable"
				resp["status"] = "degraded"
				s.logger.Debug("health check failed", "check", name, "error", err)
				continue
			}
			checks[name] = "ok"
		}
		resp["checks"] = checks
	}

	if err := s.registry.HealthCheck(r.Context()); err != nil {
		resp["status"] = "unavailable"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
