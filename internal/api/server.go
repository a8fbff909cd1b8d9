// Package api provides the HTTP REST API and WebSocket server for the
// dashboard core.
//
// It exposes sign-in, the per-account device view, relay and dimmer
// commands, and admin user management to browser clients, with real-time
// device snapshots pushed over WebSocket.
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/riyaztrinon/esp32-secure-dashboard/internal/admin"
	"github.com/riyaztrinon/esp32-secure-dashboard/internal/audit"
	"github.com/riyaztrinon/esp32-secure-dashboard/internal/command"
	"github.com/riyaztrinon/esp32-secure-dashboard/internal/devcache"
	"github.com/riyaztrinon/esp32-secure-dashboard/internal/infrastructure/config"
	"github.com/riyaztrinon/esp32-secure-dashboard/internal/infrastructure/logging"
	"github.com/riyaztrinon/esp32-secure-dashboard/internal/session"
	"github.com/riyaztrinon/esp32-secure-dashboard/internal/store"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.APIConfig
	WS         config.WebSocketConfig
	Security   config.SecurityConfig
	Logger     *logging.Logger
	Sessions   *session.Registry
	Store      store.Store
	Cache      *devcache.Cache
	Dispatcher *command.Dispatcher
	Admin      *admin.Service
	Audit      audit.Repository // optional; audit endpoints 404 without it
	Version    string
}

// Server is the HTTP API server for the dashboard core.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg        config.APIConfig
	wsCfg      config.WebSocketConfig
	secCfg     config.SecurityConfig
	logger     *logging.Logger
	sessions   *session.Registry
	store      store.Store
	cache      *devcache.Cache
	dispatcher *command.Dispatcher
	admin      *admin.Service
	audit      audit.Repository
	version    string
	server     *http.Server
	hub        *Hub
	tickets    *ticketStore
	cancel     context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Sessions == nil {
		return nil, fmt.Errorf("session registry is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if deps.Cache == nil {
		return nil, fmt.Errorf("device cache is required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("command dispatcher is required")
	}
	if deps.Admin == nil {
		return nil, fmt.Errorf("admin service is required")
	}

	return &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		secCfg:     deps.Security,
		logger:     deps.Logger,
		sessions:   deps.Sessions,
		store:      deps.Store,
		cache:      deps.Cache,
		dispatcher: deps.Dispatcher,
		admin:      deps.Admin,
		audit:      deps.Audit,
		version:    deps.Version,
		tickets:    newTicketStore(),
	}, nil
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub, registers the device
// cache listener for real-time broadcast, and launches the HTTP listener in
// a background goroutine. The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	// Internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	s.hub = NewHub(s.wsCfg, s.logger)
	go s.hub.Run(srvCtx)

	// Periodic ticket cleanup to prevent memory leaks
	go s.cleanTicketsLoop(srvCtx)

	// Every cache update fans out as per-client filtered snapshots.
	s.cache.OnUpdate(func() {
		s.hub.BroadcastDevices(s.cache.Snapshot(), time.Now())
	})

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
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
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
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	// Cancel background goroutines (hub, ticket cleanup)
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

// HealthCheck verifies the API server is running and responsive.
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
