// Package mcp exposes the oracle over the Model Context Protocol's stdio
// transport. Tools call the internal services directly; stdout carries only
// protocol frames, so all logging goes to stderr.
package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/xaxixak/oracle-v2/internal/consult"
	"github.com/xaxixak/oracle-v2/internal/dashboard"
	"github.com/xaxixak/oracle-v2/internal/decision"
	"github.com/xaxixak/oracle-v2/internal/forum"
	"github.com/xaxixak/oracle-v2/internal/learn"
	"github.com/xaxixak/oracle-v2/internal/metrics"
	"github.com/xaxixak/oracle-v2/internal/search"
	"github.com/xaxixak/oracle-v2/internal/store"
	"github.com/xaxixak/oracle-v2/internal/trace"
)

// Server is the stdio tool server.
type Server struct {
	mcp          *mcp.Server
	store        *store.Store
	searchSvc    *search.Service
	consultSvc   *consult.Service
	learnSvc     *learn.Service
	traceSvc     *trace.Service
	forumSvc     *forum.Service
	decisionSvc  *decision.Service
	dashboardSvc *dashboard.Service
	logger       *zap.Logger
}

// Config configures the tool server.
type Config struct {
	Name    string
	Version string
	Logger  *zap.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "oracle-v2",
		Version: "2.0.0",
		Logger:  zap.NewNop(),
	}
}

// Deps carries the services the tools dispatch to.
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

// NewServer creates the tool server and registers all tools.
func NewServer(cfg *Config, deps Deps) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if deps.Search == nil || deps.Consult == nil || deps.Learn == nil {
		return nil, fmt.Errorf("search, consult and learn services are required")
	}
	if deps.Trace == nil || deps.Forum == nil || deps.Decision == nil || deps.Dashboard == nil {
		return nil, fmt.Errorf("trace, forum, decision and dashboard services are required")
	}

	s := &Server{
		mcp: mcp.NewServer(
			&mcp.Implementation{Name: cfg.Name, Version: cfg.Version},
			nil,
		),
		store:        deps.Store,
		searchSvc:    deps.Search,
		consultSvc:   deps.Consult,
		learnSvc:     deps.Learn,
		traceSvc:     deps.Trace,
		forumSvc:     deps.Forum,
		decisionSvc:  deps.Decision,
		dashboardSvc: deps.Dashboard,
		logger:       cfg.Logger,
	}
	s.registerKnowledgeTools()
	s.registerForumTools()
	s.registerDecisionTools()
	s.registerTraceTools()
	return s, nil
}

// Run serves tool calls over stdio until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting tool server on stdio transport")
	if err := s.mcp.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("tool server: %w", err)
	}
	return nil
}

// observe wraps a tool outcome into the per-tool metric.
func observe(tool string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.ToolCalls.WithLabelValues(tool, outcome).Inc()
}
