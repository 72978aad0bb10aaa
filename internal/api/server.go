package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-home/internal/audit"
	"github.com/nerrad567/gray-logic-home/internal/control"
	"github.com/nerrad567/gray-logic-home/internal/device"
	"github.com/nerrad567/gray-logic-home/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-home/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-home/internal/metrics"
	"github.com/nerrad567/gray-logic-home/internal/schedule"
	"github.com/nerrad567/gray-logic-home/internal/usage"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// HealthChecker reports whether a dependency is usable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config    config.APIConfig
	WS        config.WebSocketConfig
	Security  config.SecurityConfig
	Usage     config.UsageConfig
	Location  *time.Location
	Logger    *logging.Logger
	Registry  *device.Registry
	Control   *control.Service
	Logs      audit.Repository
	Stats     *usage.Accumulator
	Schedules *schedule.Service
	Metrics   *metrics.Metrics // optional
	Database  HealthChecker    // optional
	Broker    HealthChecker    // optional; MQTT
	Telemetry HealthChecker    // optional; InfluxDB
	Hub       *Hub             // optional; created by New when nil
	Version   string
}

// Server is the HTTP API server for Gray Logic Home.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	secCfg    config.SecurityConfig
	usageCfg  config.UsageConfig
	loc       *time.Location
	logger    *logging.Logger
	registry  *device.Registry
	control   *control.Service
	logs      audit.Repository
	stats     *usage.Accumulator
	schedules *schedule.Service
	metrics   *metrics.Metrics
	database  HealthChecker
	broker    HealthChecker
	telemetry HealthChecker
	version   string
	server    *http.Server
	hub       *Hub
	cancel    context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	var errs []error
	if deps.Logger == nil {
		errs = append(errs, errors.New("logger is required"))
	}
	if deps.Registry == nil {
		errs = append(errs, errors.New("device registry is required"))
	}
	if deps.Control == nil {
		errs = append(errs, errors.New("control service is required"))
	}
	if deps.Logs == nil {
		errs = append(errs, errors.New("device log repository is required"))
	}
	if deps.Stats == nil {
		errs = append(errs, errors.New("usage accumulator is required"))
	}
	if deps.Schedules == nil {
		errs = append(errs, errors.New("schedule service is required"))
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		secCfg:    deps.Security,
		usageCfg:  deps.Usage,
		loc:       deps.Location,
		logger:    deps.Logger,
		registry:  deps.Registry,
		control:   deps.Control,
		logs:      deps.Logs,
		stats:     deps.Stats,
		schedules: deps.Schedules,
		metrics:   deps.Metrics,
		database:  deps.Database,
		broker:    deps.Broker,
		telemetry: deps.Telemetry,
		hub:       deps.Hub,
		version:   deps.Version,
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	return s, nil
}

// Hub returns the WebSocket hub. The control service publishes to it.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the full HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start begins listening for HTTP connections in a background goroutine.
// The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
