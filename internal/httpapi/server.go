// Package httpapi serves the JSON API and dashboard reads over HTTP. It
// mirrors the stdio tool surface and adds the web-only routes (graph, file,
// dashboard aggregates).
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/xaxixak/oracle-v2/internal/config"
	"github.com/xaxixak/oracle-v2/internal/consult"
	"github.com/xaxixak/oracle-v2/internal/dashboard"
	"github.com/xaxixak/oracle-v2/internal/decision"
	"github.com/xaxixak/oracle-v2/internal/forum"
	"github.com/xaxixak/oracle-v2/internal/learn"
	"github.com/xaxixak/oracle-v2/internal/oracle"
	"github.com/xaxixak/oracle-v2/internal/search"
	"github.com/xaxixak/oracle-v2/internal/store"
	"github.com/xaxixak/oracle-v2/internal/trace"
)

const shutdownGrace = 5 * time.Second

// Deps carries the services the handlers dispatch to.
type Deps struct {
	Store     *store.Store
	Search    *search.Service
	Consult   *consult.Service
	Learn     *learn.Service
	Trace     *trace.Service
	Forum     *forum.Service
	Decision  *decision.Service
	Dashboard *dashboard.Service
}

// Server is the HTTP front end.
type Server struct {
	echo   *echo.Echo
	cfg    *config.Config
	deps   Deps
	logger *zap.Logger

	lock *instanceLock
}

// NewServer builds the server and registers every route.
func NewServer(cfg *config.Config, deps Deps, logger *zap.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{AllowOrigins: []string{"*"}}))
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			logger.Debug("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)))
			return err
		}
	})
	e.HTTPErrorHandler = errorHandler(logger)

	s := &Server{echo: e, cfg: cfg, deps: deps, logger: logger}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	e := s.echo
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api")
	api.GET("/health", s.handleHealth)
	api.GET("/search", s.handleSearch)
	api.GET("/consult", s.handleConsult)
	api.GET("/reflect", s.handleReflect)
	api.GET("/stats", s.handleStats)
	api.GET("/list", s.handleList)
	api.GET("/graph", s.handleGraph)
	api.GET("/concepts", s.handleConcepts)
	api.POST("/learn", s.handleLearn)
	api.GET("/file", s.handleFile)
	api.GET("/projects", s.handleProjects)

	api.GET("/dashboard", s.handleDashboardSummary)
	api.GET("/dashboard/summary", s.handleDashboardSummary)
	api.GET("/dashboard/activity", s.handleDashboardActivity)
	api.GET("/dashboard/growth", s.handleDashboardGrowth)
	api.GET("/session/stats", s.handleSessionStats)

	api.GET("/threads", s.handleThreads)
	api.POST("/thread", s.handleThreadMessage)
	api.GET("/thread/:id", s.handleThreadRead)
	api.PATCH("/thread/:id/status", s.handleThreadStatus)

	api.GET("/decisions", s.handleDecisionsList)
	api.POST("/decisions", s.handleDecisionsCreate)
	api.GET("/decisions/:id", s.handleDecisionsGet)
	api.PATCH("/decisions/:id", s.handleDecisionsUpdate)
	api.POST("/decisions/:id/transition", s.handleDecisionsTransition)

	api.GET("/trace", s.handleTraceList)
	api.POST("/trace", s.handleTraceCreate)
	api.GET("/trace/:id", s.handleTraceGet)
}

// Start runs the startup sequence and blocks serving until ctx is
// cancelled: reset the indexing flag a crashed run may have left set,
// acquire the single-instance lock, write the PID file, then listen.
func (s *Server) Start(ctx context.Context) error {
	if err := s.deps.Store.ResetIndexing(); err != nil {
		return fmt.Errorf("resetting indexing status: %w", err)
	}

	lock, err := acquireLock(s.cfg.LockFile())
	if err != nil {
		return err
	}
	s.lock = lock

	if err := writePIDFile(s.cfg.PIDFile(), s.cfg.Port); err != nil {
		s.lock.release()
		return fmt.Errorf("writing pid file: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", s.cfg.Port)
		s.logger.Info("http server listening", zap.String("addr", addr))
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.cleanup()
		return err
	case <-ctx.Done():
		return s.Shutdown()
	}
}

// Shutdown drains in-flight requests and removes the instance files.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	err := s.echo.Shutdown(ctx)
	s.cleanup()
	return err
}

func (s *Server) cleanup() {
	removePIDFile(s.cfg.PIDFile())
	if s.lock != nil {
		if err := s.lock.release(); err != nil {
			s.logger.Warn("releasing instance lock", zap.Error(err))
		}
		s.lock = nil
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// errorHandler maps domain error kinds onto status codes with an
// {error: message} body.
func errorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status := http.StatusInternalServerError
		message := err.Error()

		var httpErr *echo.HTTPError
		switch {
		case errors.As(err, &httpErr):
			status = httpErr.Code
			message = fmt.Sprintf("%v", httpErr.Message)
		case oracle.IsInvalid(err):
			status = http.StatusBadRequest
		case oracle.IsNotFound(err):
			status = http.StatusNotFound
		case oracle.IsConflict(err):
			status = http.StatusConflict
		case oracle.IsDegraded(err):
			status = http.StatusServiceUnavailable
		default:
			logger.Error("unhandled error", zap.Error(err))
		}
		if err := c.JSON(status, map[string]string{"error": message}); err != nil {
			logger.Warn("writing error response", zap.Error(err))
		}
	}
}
