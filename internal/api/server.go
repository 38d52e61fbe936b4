package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/carewatch-core/internal/backend"
	"github.com/nerrad567/carewatch-core/internal/care"
	"github.com/nerrad567/carewatch-core/internal/entity"
	"github.com/nerrad567/carewatch-core/internal/infrastructure/config"
	"github.com/nerrad567/carewatch-core/internal/infrastructure/database"
	"github.com/nerrad567/carewatch-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/carewatch-core/internal/infrastructure/logging"
	"github.com/nerrad567/carewatch-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/carewatch-core/internal/radar"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Backend is the write path to the care backend. *backend.Client
// satisfies it.
type Backend interface {
	GetDevice(ctx context.Context, id string) (backend.Record, error)
	CreateDevice(ctx context.Context, device backend.Record) (backend.Record, error)
	UpdateDevice(ctx context.Context, id string, device backend.Record) (backend.Record, error)
	DeleteDevice(ctx context.Context, id string) error
	UpdateDeviceStatus(ctx context.Context, id, status string) error
	BatchUpdateDeviceStatus(ctx context.Context, ids []string, status string) error
	CreateMapping(ctx context.Context, m backend.MappingRequest) (backend.Record, error)
	DeleteMapping(ctx context.Context, id string) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Scope    *care.Scope
	Backend  Backend
	MQTT     *mqtt.Client     // optional: live telemetry ingress
	Influx   *influxdb.Client // optional: vital time series
	DB       *database.DB     // optional: snapshot store, reported in metrics
	Location *time.Location   // display timezone, UTC when nil
	Version  string
}

// Server is the CareWatch view server.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	secCfg    config.SecurityConfig
	logger    *logging.Logger
	scope     *care.Scope
	cache     *entity.Cache
	backend   Backend
	mqtt      *mqtt.Client
	influx    *influxdb.Client
	db        *database.DB
	loc       *time.Location
	version   string
	server    *http.Server
	hub       *Hub
	tickets   *ticketStore
	startTime time.Time
	now       func() time.Time
	cancel    context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called, but its WebSocket
// hub exists immediately so hydration results can be broadcast.
//
// Parameters:
//   - deps: Required dependencies (logger, scope); the rest are optional
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Scope == nil {
		return nil, fmt.Errorf("scope is required")
	}

	loc := deps.Location
	if loc == nil {
		loc = time.UTC
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		secCfg:    deps.Security,
		logger:    deps.Logger,
		scope:     deps.Scope,
		cache:     deps.Scope.Cache(),
		backend:   deps.Backend,
		mqtt:      deps.MQTT,
		influx:    deps.Influx,
		db:        deps.DB,
		loc:       loc,
		version:   deps.Version,
		hub:       NewHub(deps.WS, deps.Logger),
		tickets:   newTicketStore(),
		startTime: time.Now(),
		now:       time.Now,
	}

	s.scope.SetOnHydrated(s.publishScope)
	return s, nil
}

// Handler returns the routed HTTP handler. Useful for embedding the API
// in another server or in tests.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub, subscribes to radar telemetry over MQTT,
// and launches the HTTP listener in a background goroutine. The server
// can be stopped with Close().
//
// Parameters:
//   - ctx: Context for cancellation of background goroutines
//
// Returns:
//   - error: If the server fails to start
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)
	go s.cleanTicketsLoop(srvCtx)

	if err := s.subscribeTelemetry(srvCtx); err != nil {
		s.logger.Warn("failed to subscribe to radar telemetry", "error", err)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
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

// publishScope runs after every hydration. It pushes the fresh alert
// stats to WebSocket clients and, when connected, to MQTT as a retained
// summary.
func (s *Server) publishScope(view care.View) {
	summary := alertStatsEvent{
		PersonID:     view.SelectedPersonID,
		Stats:        view.AlertStats,
		LastSyncedAt: view.LastSyncedAt,
	}
	s.hub.Broadcast(radar.ChannelAlertStats, summary)

	if s.mqtt == nil || !s.mqtt.IsConnected() {
		return
	}
	if err := s.mqtt.PublishJSON(mqtt.Topics{}.AlertStats(), summary); err != nil {
		s.logger.Warn("publishing alert stats failed", "error", err)
	}
}

// alertStatsEvent is broadcast on radar.ChannelAlertStats.
type alertStatsEvent struct {
	PersonID     string          `json:"personId,omitempty"`
	Stats        care.AlertStats `json:"stats"`
	LastSyncedAt *time.Time      `json:"lastSyncedAt,omitempty"`
}
