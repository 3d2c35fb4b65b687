package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/scryerhq/scryer-core/internal/identity"
	"github.com/scryerhq/scryer-core/internal/infrastructure/config"
	"github.com/scryerhq/scryer-core/internal/infrastructure/logging"
	"github.com/scryerhq/scryer-core/internal/scheduler"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight
// requests to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// MQTTStatus reports whether the MQTT broker connection is currently up.
type MQTTStatus interface {
	IsConnected() bool
}

// IdentityLister is the subset of *identity.Resolver the read-only device
// listing and metrics endpoints need.
type IdentityLister interface {
	List(ctx context.Context) ([]identity.Record, error)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config    config.HTTPConfig
	Logger    *logging.Logger
	Resolver  IdentityLister
	MQTT      MQTTStatus
	DB        DBStatsProvider // optional: for the database section of /metrics
	Scheduler *scheduler.Scheduler
	Version   string
}

// Server is the minimal read-only HTTP server (§13): /health, /api/v1/metrics,
// and /api/v1/devices. It has no auth, no mutation routes, and no
// WebSocket hub — every write path runs through internal/scheduler and
// internal/mqttbridge instead.
type Server struct {
	cfg       config.HTTPConfig
	logger    *logging.Logger
	resolver  IdentityLister
	mqtt      MQTTStatus
	db        DBStatsProvider
	scheduler *scheduler.Scheduler
	version   string
	startTime time.Time

	server *http.Server
	cancel context.CancelFunc
}

// New creates a new API server with the given dependencies. The server is
// not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Resolver == nil {
		return nil, fmt.Errorf("identity resolver is required")
	}

	return &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		resolver:  deps.Resolver,
		mqtt:      deps.MQTT,
		db:        deps.DB,
		scheduler: deps.Scheduler,
		version:   deps.Version,
		startTime: time.Now(),
	}, nil
}

// Start begins listening for HTTP connections in a background goroutine.
func (s *Server) Start(ctx context.Context) error {
	_, s.cancel = context.WithCancel(ctx)

	router := s.buildRouter()
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server, waiting up to
// gracefulShutdownTimeout for in-flight requests to complete.
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
