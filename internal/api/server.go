package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/savecair-bridge/internal/bridges/climate"
	"github.com/nerrad567/savecair-bridge/internal/infrastructure/config"
	"github.com/nerrad567/savecair-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/savecair-bridge/internal/savecair"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// defaultWSPath is used when the WebSocket config leaves Path empty.
const defaultWSPath = "/ws"

// Gateway is the session surface the API reads and commands.
// *savecair.Session satisfies it.
type Gateway interface {
	climate.Gateway
	Snapshot() savecair.Snapshot
}

// Bridge is the optional MQTT bridge surface. When set, its health and
// counters are reported and POST /command is routed through it.
type Bridge interface {
	Health() climate.HealthMessage
	GetMetrics() climate.BridgeMetrics
	Execute(ctx context.Context, cmd climate.CommandMessage) climate.AckMessage
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Gateway  Gateway
	Bridge   Bridge // optional
	Version  string
}

// Server is the HTTP API server for the savecair bridge.
//
// It manages the HTTP listener, routes, middleware, the WebSocket hub and
// the Prometheus registry. The server is created with New() and started
// with Start().
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	security  config.SecurityConfig
	logger    *logging.Logger
	gateway   Gateway
	bridge    Bridge
	entity    *climate.Entity
	metrics   *Metrics
	version   string
	startTime time.Time
	server    *http.Server
	hub       *Hub
	tickets   *ticketStore
	cancel    context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The hub and metrics are usable immediately, so updates published before
// Start are not lost. The listener is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, gateway, JWT secret)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Gateway == nil {
		return nil, fmt.Errorf("gateway is required")
	}
	if deps.Security.JWT.Secret == "" {
		return nil, fmt.Errorf("JWT secret is required")
	}
	if deps.WS.Path == "" {
		deps.WS.Path = defaultWSPath
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		security:  deps.Security,
		logger:    deps.Logger,
		gateway:   deps.Gateway,
		bridge:    deps.Bridge,
		version:   deps.Version,
		startTime: time.Now(),
		tickets:   newTicketStore(),
	}

	s.entity = climate.NewEntity("savecair", deps.Gateway)
	s.entity.SetLogger(deps.Logger)
	s.hub = NewHub(s.logger)
	s.metrics = NewMetrics(deps.Gateway, deps.Bridge, s.hub)

	return s, nil
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub and ticket cleanup, and launches the HTTP listener in a
// background goroutine. The server can be stopped with Close().
//
// Parameters:
//   - ctx: Context for cancellation (not used for listener lifetime)
//
// Returns:
//   - error: Always nil; listener errors are logged
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)
	go s.cleanTicketsLoop(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.GetReadTimeout(),
		ReadHeaderTimeout: s.cfg.GetReadTimeout(),
		WriteTimeout:      s.cfg.GetWriteTimeout(),
		IdleTimeout:       s.cfg.GetIdleTimeout(),
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

// PublishUpdate fans a session update out to WebSocket clients and the
// Prometheus gauges. Register it with Session.OnUpdate.
func (s *Server) PublishUpdate(snapshot savecair.Snapshot) {
	s.metrics.Observe(snapshot)
	s.hub.Broadcast(ChannelState, snapshot)
	s.hub.Broadcast(ChannelClimate, s.entity.State())
}

// PublishError forwards a gateway protocol error to WebSocket clients.
func (s *Server) PublishError(payload savecair.ErrorPayload) {
	s.metrics.ObserveError(payload)
	s.hub.Broadcast(ChannelError, map[string]any{
		"error_type_id": payload.ErrorTypeID,
	})
}
