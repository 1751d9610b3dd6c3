package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/ems-console/internal/audit"
	"github.com/nerrad567/ems-console/internal/auth"
	"github.com/nerrad567/ems-console/internal/connection"
	"github.com/nerrad567/ems-console/internal/events"
	"github.com/nerrad567/ems-console/internal/infrastructure/config"
	"github.com/nerrad567/ems-console/internal/infrastructure/influxdb"
	"github.com/nerrad567/ems-console/internal/infrastructure/logging"
	"github.com/nerrad567/ems-console/internal/infrastructure/mqtt"
	"github.com/nerrad567/ems-console/internal/push"
	"github.com/nerrad567/ems-console/internal/service"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Recorder receives console metrics. *influxdb.Client satisfies it, including
// a nil client.
type Recorder interface {
	WriteStats(s influxdb.StatsPoint)
	WritePushResult(succeeded, failed int)
}

type noopRecorder struct{}

func (noopRecorder) WriteStats(influxdb.StatsPoint) {}
func (noopRecorder) WritePushResult(int, int)       {}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config      config.APIConfig
	WS          config.WebSocketConfig
	Security    config.SecurityConfig
	Push        config.PushConfig
	Logger      *logging.Logger
	Console     *service.Console
	Connections *connection.Manager
	Pusher      *push.Client
	Users       *auth.Users
	MQTT        *mqtt.Client             // optional, reported by /metrics
	Recorder    Recorder                 // optional
	Events      events.Publisher         // optional, receives push.completed
	Audit       audit.Repository         // optional, serves /audit
	Hub         *Hub                     // If set, the server uses this hub instead of creating its own
	SerialPorts func() ([]string, error) // defaults to connection.SerialPorts
	Version     string
}

// Server is the HTTP API server for the console.
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	secCfg      config.SecurityConfig
	pushCfg     config.PushConfig
	logger      *logging.Logger
	console     *service.Console
	connections *connection.Manager
	pusher      *push.Client
	users       *auth.Users
	mqtt        *mqtt.Client
	recorder    Recorder
	events      events.Publisher
	audit       audit.Repository
	serialPorts func() ([]string, error)
	version     string
	startTime   time.Time

	server      *http.Server
	hub         *Hub
	externalHub bool
	cancel      context.CancelFunc
}

// New creates a new API server with the given dependencies.
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if deps.Console == nil {
		return nil, errors.New("console service is required")
	}
	if deps.Connections == nil {
		return nil, errors.New("connection manager is required")
	}
	if deps.Users == nil {
		return nil, errors.New("user list is required")
	}

	s := &Server{
		cfg:         deps.Config,
		wsCfg:       deps.WS,
		secCfg:      deps.Security,
		pushCfg:     deps.Push,
		logger:      deps.Logger,
		console:     deps.Console,
		connections: deps.Connections,
		pusher:      deps.Pusher,
		users:       deps.Users,
		mqtt:        deps.MQTT,
		recorder:    deps.Recorder,
		events:      deps.Events,
		audit:       deps.Audit,
		serialPorts: deps.SerialPorts,
		version:     deps.Version,
		startTime:   time.Now(),
	}
	if s.recorder == nil {
		s.recorder = noopRecorder{}
	}
	if s.serialPorts == nil {
		s.serialPorts = connection.SerialPorts
	}
	if deps.Hub != nil {
		s.hub = deps.Hub
		s.externalHub = true
	} else {
		s.hub = NewHub(deps.WS, deps.Logger)
	}
	if s.events == nil {
		s.events = s.hub
	}

	return s, nil
}

// Hub returns the WebSocket hub so it can be registered as an event sink.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections in a background goroutine.
// The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if !s.externalHub {
		go s.hub.Run(srvCtx)
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
			s.logger.Info("API server starting with TLS", "address", s.server.Addr, "cert", s.cfg.TLS.CertFile)
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

// Close gracefully shuts down the API server, waiting up to
// gracefulShutdownTimeout for in-flight requests.
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
		return errors.New("api server not started")
	}
	return nil
}
