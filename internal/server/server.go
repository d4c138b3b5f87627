package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bsn-realtime/config"
	"bsn-realtime/internal/handler"
	"bsn-realtime/internal/identity"
	"bsn-realtime/internal/metrics"
	"bsn-realtime/internal/middleware"
	"bsn-realtime/internal/websocket"
	"bsn-realtime/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/multierr"
)

const shutdownTimeout = 5 * time.Second

type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	config     *config.Config
	logger     *logger.Logger
	gateway    *websocket.Gateway
	closers    []func(ctx context.Context) error
}

var (
	ReleaseMode = "release"
	DebugMode   = "debug"
	TestMode    = "test"
)

// Deps are the routed components. Limiter may be nil.
type Deps struct {
	Gateway  *websocket.Gateway
	Verifier identity.Verifier
	Presence handler.PresenceReader
	Limiter  middleware.QueryLimiter
	Metrics  *metrics.Metrics
	Checks   map[string]handler.Check
}

func New(cfg *config.Config, l *logger.Logger) *Server {
	if cfg.AppMode == ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	} else if cfg.AppMode == TestMode {
		gin.SetMode(gin.TestMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%s", cfg.AppPort),
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		},
		engine: engine,
		config: cfg,
		logger: l,
	}
}

func (s *Server) SetupRoutes(d Deps) {
	s.engine.Use(middleware.RequestIDMiddleware())
	s.engine.Use(middleware.LoggingMiddleware(s.logger))
	s.engine.Use(middleware.ErrorHandler(s.logger))

	health := handler.NewHealthHandler(s.config.InstanceID, d.Checks)
	s.engine.GET("/ping", health.Ping)
	s.engine.GET("/health", health.Health)

	if d.Metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}

	if d.Presence != nil {
		presence := handler.NewPresenceHandler(d.Presence)
		v1 := s.engine.Group("/v1", middleware.AuthMiddleware(d.Verifier))
		if d.Limiter != nil {
			v1.Use(middleware.PresenceRateLimitMiddleware(d.Limiter))
		}
		v1.GET("/presence", presence.Status)
	}

	if d.Gateway != nil {
		s.gateway = d.Gateway
		d.Gateway.Register(s.engine)
	}
}

// OnShutdown registers cleanup that runs after the listener and the gateway
// have stopped, in registration order.
func (s *Server) OnShutdown(fn func(ctx context.Context) error) {
	s.closers = append(s.closers, fn)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) Start() error {
	errCh := make(chan error, 1)
	go func() {
		if s.logger != nil {
			s.logger.Infof("Starting the server on port %s...", s.config.AppPort)
		}
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	if s.logger != nil {
		s.logger.Infof("Server is running on :%s", s.config.AppPort)
	}

	select {
	case <-quit:
		if s.logger != nil {
			s.logger.Infof("Quitting signal received.. Shutting down within %s", shutdownTimeout)
		}
	case err := <-errCh:
		if s.logger != nil {
			s.logger.Errorf("Error in starting the server: %s", err)
		}
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.Shutdown(ctx); err != nil {
		if s.logger != nil {
			s.logger.Errorf("Error in the graceful shutdown of the server: %s", err)
		}
		return err
	}

	if s.logger != nil {
		s.logger.Infof("Server stopped gracefully")
	}
	return nil
}

// Shutdown stops accepting requests, closes every websocket and then runs
// the registered closers.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if s.gateway != nil {
		err = multierr.Append(err, s.gateway.Shutdown(ctx))
	}
	for _, fn := range s.closers {
		err = multierr.Append(err, fn(ctx))
	}
	return err
}
