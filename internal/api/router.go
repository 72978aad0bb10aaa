package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
)

// apiPrefix is the mount point of every route.
const apiPrefix = "/api/v1"

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsHandler().Handler)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route(apiPrefix, func(r chi.Router) {
		r.Method(http.MethodGet, "/health", s.instrument("/health", s.handleHealth))

		if s.metrics != nil {
			r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
		}

		r.Group(func(r chi.Router) {
			r.Use(s.identityMiddleware)

			r.Route("/devices", func(r chi.Router) {
				r.Method(http.MethodGet, "/", s.instrument("/devices", s.handleListDevices))
				r.Method(http.MethodPost, "/", s.instrument("/devices", s.handleCreateDevice))

				r.Route("/{id}", func(r chi.Router) {
					r.Method(http.MethodGet, "/", s.instrument("/devices/{id}", s.handleGetDevice))
					r.Method(http.MethodPost, "/control", s.instrument("/devices/{id}/control", s.handleControlDevice))
					r.Method(http.MethodGet, "/logs", s.instrument("/devices/{id}/logs", s.handleDeviceLogs))
					r.Method(http.MethodGet, "/statistics", s.instrument("/devices/{id}/statistics", s.handleDeviceStatistics))
				})
			})

			r.Route("/statistics", func(r chi.Router) {
				r.Method(http.MethodGet, "/overall", s.instrument("/statistics/overall", s.handleOverallStatistics))
				r.Method(http.MethodGet, "/realtime", s.instrument("/statistics/realtime", s.handleRealtimeUsage))
				r.Method(http.MethodPost, "/cleanup-sessions", s.instrument("/statistics/cleanup-sessions", s.handleCleanupSessions))
			})

			r.Route("/schedules", func(r chi.Router) {
				r.Method(http.MethodGet, "/", s.instrument("/schedules", s.handleListSchedules))
				r.Method(http.MethodPost, "/", s.instrument("/schedules", s.handleCreateSchedule))

				r.Route("/{id}", func(r chi.Router) {
					r.Method(http.MethodGet, "/", s.instrument("/schedules/{id}", s.handleGetSchedule))
					r.Method(http.MethodPut, "/", s.instrument("/schedules/{id}", s.handleUpdateSchedule))
					r.Method(http.MethodDelete, "/", s.instrument("/schedules/{id}", s.handleDeleteSchedule))
					r.Method(http.MethodPost, "/toggle", s.instrument("/schedules/{id}/toggle", s.handleToggleSchedule))
				})
			})

			// WebSocket upgrades are not instrumented: the recorder hides the hijacker.
			r.Get("/ws", s.handleWebSocket)
		})
	})

	return r
}

// instrument records request metrics under the route pattern.
func (s *Server) instrument(pattern string, h http.HandlerFunc) http.Handler {
	return s.metrics.WrapHandler(apiPrefix+pattern, h)
}

// corsHandler builds the CORS policy from config. An empty origin list
// allows every origin.
func (s *Server) corsHandler() *cors.Cors {
	origins := s.cfg.CORS.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	methods := s.cfg.CORS.AllowedMethods
	if len(methods) == 0 {
		methods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}
	}
	headers := s.cfg.CORS.AllowedHeaders
	if len(headers) == 0 {
		headers = []string{"Authorization", "Content-Type", "X-Request-ID"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: methods,
		AllowedHeaders: headers,
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         86400,
	})
}

// handleHealth returns the server health status. A database failure makes
// the server unavailable; a broker or telemetry failure only degrades it.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	database := "ok"
	if s.database != nil {
		if err := s.database.HealthCheck(r.Context()); err != nil {
			s.logger.Warn("database health check failed", "error", err)
			database = "unavailable"
			status, code = "degraded", http.StatusServiceUnavailable
		}
	}

	optional := func(name string, check HealthChecker) string {
		if check == nil {
			return "disabled"
		}
		if err := check.HealthCheck(r.Context()); err != nil {
			s.logger.Warn(name+" health check failed", "error", err)
			status = "degraded"
			return "unavailable"
		}
		return "ok"
	}
	mqtt := optional("mqtt", s.broker)
	influx := optional("influxdb", s.telemetry)

	writeJSON(w, code, map[string]any{
		"status":     status,
		"version":    s.version,
		"database":   database,
		"mqtt":       mqtt,
		"influxdb":   influx,
		"devices":    s.registry.Count(),
		"ws_clients": s.hub.ClientCount(),
	})
}
