package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/jcihitachi-core/internal/cloud/session"
	"github.com/nerrad567/jcihitachi-core/internal/cloud/thing"
	"github.com/nerrad567/jcihitachi-core/internal/history"
	"github.com/nerrad567/jcihitachi-core/internal/infrastructure/config"
	"github.com/nerrad567/jcihitachi-core/internal/infrastructure/logging"
)

const gracefulShutdownTimeout = 10 * time.Second

// Controller is the part of session.Controller the API exposes.
type Controller interface {
	Devices() []*thing.Thing
	Device(name string) (*thing.Thing, bool)
	LookupByCustomName(customName string) (string, bool)
	GetField(ctx context.Context, name, field string, forceRefresh bool) (any, bool)
	SetField(ctx context.Context, name, field string, value any) error
	RefreshDevice(ctx context.Context, name string) error
	State() session.State
	IsConnected() bool
	IsHost() bool
}

// Deps holds the server's collaborators. History and Hub are optional.
type Deps struct {
	Config     config.APIConfig
	WS         config.WebSocketConfig
	Logger     *logging.Logger
	Controller Controller
	History    history.Recorder
	Hub        *Hub
	Version    string
}

// Server is the HTTP server. Create with New, then Start.
type Server struct {
	cfg     config.APIConfig
	wsCfg   config.WebSocketConfig
	logger  *logging.Logger
	ctrl    Controller
	history history.Recorder
	hub     *Hub
	version string

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	cancel   context.CancelFunc
}

// New checks the required dependencies.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, errors.New("api: logger is required")
	}
	if deps.Controller == nil {
		return nil, errors.New("api: controller is required")
	}
	hub := deps.Hub
	if hub == nil {
		hub = NewHub(deps.WS, deps.Logger)
	}
	return &Server{
		cfg:     deps.Config,
		wsCfg:   deps.WS,
		logger:  deps.Logger,
		ctrl:    deps.Controller,
		history: deps.History,
		hub:     hub,
		version: deps.Version,
	}, nil
}

// Hub is the server's WebSocket hub.
func (s *Server) Hub() *Hub { return s.hub }

// Start binds the listener and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return errors.New("api: already started")
	}

	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("api: listening on %s: %w", addr, err)
	}

	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)

	s.listener = ln
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}
	srv := s.server
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", "error", err)
		}
	}()
	s.logger.Info("api server listening", "address", ln.Addr().String())
	return nil
}

// Addr is the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close stops the hub and shuts the server down, waiting up to
// gracefulShutdownTimeout for in-flight requests.
func (s *Server) Close() error {
	s.mu.Lock()
	srv, cancel := s.server, s.cancel
	s.server, s.listener, s.cancel = nil, nil, nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	if cancel != nil {
		cancel()
	}
	ctx, done := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer done()
	s.logger.Info("api server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down api server: %w", err)
	}
	return nil
}
