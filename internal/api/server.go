package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-litterbox/internal/auth"
	"github.com/nerrad567/gray-logic-litterbox/internal/bridges/petmarvel"
	"github.com/nerrad567/gray-logic-litterbox/internal/cloud"
	"github.com/nerrad567/gray-logic-litterbox/internal/history"
	"github.com/nerrad567/gray-logic-litterbox/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-litterbox/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-litterbox/internal/litterbox"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Controller is the subset of *litterbox.Controller the API drives.
type Controller interface {
	IoTID() string
	Snapshot() (litterbox.Snapshot, bool)
	Status() litterbox.Status
	OnUpdate(fn func(litterbox.Snapshot))
	OnFailure(fn func(error))
	Refresh(ctx context.Context) (litterbox.Snapshot, error)
	Execute(ctx context.Context, key string, action litterbox.Action) error
	InvokeService(ctx context.Context, name string) error
	UsageHistory(ctx context.Context) ([]litterbox.UsageEvent, error)
	Name() string
}

// DiscoverFunc logs in with creds on a fresh session and lists litter boxes.
// Usually a closure over litterbox.Discover.
type DiscoverFunc func(ctx context.Context, creds cloud.Credentials) ([]cloud.Device, litterbox.SetupOutcome, error)

// HealthSource reports bridge health. Satisfied by *petmarvel.HealthReporter.
type HealthSource interface {
	Snapshot() petmarvel.HealthMessage
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.APIConfig
	WS         config.WebSocketConfig
	Security   config.SecurityConfig
	Logger     *logging.Logger
	Auth       *auth.Authenticator
	Controller Controller

	// Optional.
	History  history.Repository
	Discover DiscoverFunc
	Health   HealthSource

	// Optional metrics sources.
	Session SessionStats
	Bridge  BridgeStats
	DB      *sql.DB

	Version string

	// Now overrides time.Now for tokens and tickets.
	Now func() time.Time
}

// Server is the HTTP API server for the litter box bridge.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg      config.APIConfig
	wsCfg    config.WebSocketConfig
	secCfg   config.SecurityConfig
	logger   *logging.Logger
	auth     *auth.Authenticator
	ctrl     Controller
	history  history.Repository
	discover DiscoverFunc
	health   HealthSource
	version  string
	now      func() time.Time

	server  *http.Server
	hub     *Hub
	tickets *ticketStore
	metrics *metrics
	cancel  context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (logger, authenticator, controller)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Auth == nil {
		return nil, fmt.Errorf("authenticator is required")
	}
	if deps.Controller == nil {
		return nil, fmt.Errorf("controller is required")
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	s := &Server{
		cfg:      deps.Config,
		wsCfg:    deps.WS,
		secCfg:   deps.Security,
		logger:   deps.Logger,
		auth:     deps.Auth,
		ctrl:     deps.Controller,
		history:  deps.History,
		discover: deps.Discover,
		health:   deps.Health,
		version:  deps.Version,
		now:      deps.Now,
		hub:      NewHub(deps.WS, deps.Logger),
	}
	s.tickets = newTicketStore(deps.Now)
	s.metrics = newMetrics(s, deps.Session, deps.Bridge, deps.DB)
	return s, nil
}

// Hub returns the server's WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub, relays controller updates to it, and
// launches the HTTP listener in a background goroutine. The server can be
// stopped with Close().
//
// Parameters:
//   - ctx: Parent context for background goroutines
//
// Returns:
//   - error: If the server fails to start
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)
	go s.tickets.cleanLoop(srvCtx)

	s.relayControllerEvents()

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
