// Oracled serves a personal knowledge base to both agents and humans.
//
// With no subcommand it speaks the stdio tool protocol for agent clients.
// The server subcommand runs the HTTP/JSON API, index rebuilds the search
// indices from the markdown corpus, and ensure-server starts the HTTP
// server if none is running.
//
// Configuration is loaded from ORACLE_* environment variables, optionally
// layered over a YAML file given with --config. A .env file in the working
// directory is honored.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xaxixak/oracle-v2/internal/config"
	"github.com/xaxixak/oracle-v2/internal/consult"
	"github.com/xaxixak/oracle-v2/internal/dashboard"
	"github.com/xaxixak/oracle-v2/internal/decision"
	"github.com/xaxixak/oracle-v2/internal/forum"
	"github.com/xaxixak/oracle-v2/internal/httpapi"
	"github.com/xaxixak/oracle-v2/internal/indexer"
	"github.com/xaxixak/oracle-v2/internal/learn"
	"github.com/xaxixak/oracle-v2/internal/logging"
	"github.com/xaxixak/oracle-v2/internal/mcp"
	"github.com/xaxixak/oracle-v2/internal/projects"
	"github.com/xaxixak/oracle-v2/internal/search"
	"github.com/xaxixak/oracle-v2/internal/store"
	"github.com/xaxixak/oracle-v2/internal/trace"
	"github.com/xaxixak/oracle-v2/internal/vector"
)

var version = "2.0.0"

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "oracled",
	Short:   "Personal knowledge memory layer",
	Version: version,
	// Stdio tool protocol is the default so agent clients can launch the
	// binary with no arguments.
	RunE: runMCP,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file")
	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(ensureServerCmd)
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the HTTP/JSON API server",
	RunE:  runServer,
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the stdio tool protocol",
	RunE:  runMCP,
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Rebuild the keyword and vector indices from the markdown corpus",
	RunE:  runIndex,
}

// app bundles everything a subcommand needs.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	store   *store.Store
	backend vector.Backend
	deps    serviceDeps
}

type serviceDeps struct {
	Search    *search.Service
	Consult   *consult.Service
	Learn     *learn.Service
	Trace     *trace.Service
	Forum     *forum.Service
	Decision  *decision.Service
	Dashboard *dashboard.Service
}

func newApp() (*app, error) {
	// Missing .env is the common case and not an error.
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.DBPath, logger)
	if err != nil {
		logger.Sync()
		return nil, err
	}

	// Backends connect lazily; an unreachable child degrades retrieval to
	// keyword-only at query time. A constructor error means bad config.
	backend, err := vector.New(cfg.Vector, logger)
	if err != nil {
		st.Close()
		logger.Sync()
		return nil, err
	}

	detector := projects.NewDetector(cfg.Projects)
	collection := cfg.Vector.Collection
	consultSvc := consult.New(st, backend, collection, detector, logger)
	learnSvc := learn.New(st, cfg.LearningsDir(), detector, logger)

	return &app{
		cfg:     cfg,
		logger:  logger,
		store:   st,
		backend: backend,
		deps: serviceDeps{
			Search:    search.New(st, backend, collection, detector, logger),
			Consult:   consultSvc,
			Learn:     learnSvc,
			Trace:     trace.New(st, learnSvc, detector, logger),
			Forum:     forum.New(st, consultSvc, logger),
			Decision:  decision.New(st, logger),
			Dashboard: dashboard.New(st, logger),
		},
	}, nil
}

func (a *app) close() {
	if a.backend != nil {
		if err := a.backend.Close(); err != nil {
			a.logger.Warn("closing vector backend", zap.Error(err))
		}
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing store", zap.Error(err))
	}
	a.logger.Sync()
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func runServer(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	srv, err := httpapi.NewServer(a.cfg, httpapi.Deps{
		Store:     a.store,
		Search:    a.deps.Search,
		Consult:   a.deps.Consult,
		Learn:     a.deps.Learn,
		Trace:     a.deps.Trace,
		Forum:     a.deps.Forum,
		Decision:  a.deps.Decision,
		Dashboard: a.deps.Dashboard,
	}, a.logger)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()
	return srv.Start(ctx)
}

func runMCP(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	srv, err := mcp.NewServer(&mcp.Config{
		Name:    "oracle-v2",
		Version: version,
		Logger:  a.logger,
	}, mcp.Deps{
		Store:     a.store,
		Search:    a.deps.Search,
		Consult:   a.deps.Consult,
		Learn:     a.deps.Learn,
		Trace:     a.deps.Trace,
		Forum:     a.deps.Forum,
		Decision:  a.deps.Decision,
		Dashboard: a.deps.Dashboard,
	})
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()
	return srv.Run(ctx)
}

func runIndex(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := signalContext()
	defer cancel()

	ix := indexer.New(a.store, a.backend, a.cfg.Vector.Collection, a.logger)
	res, err := ix.Run(ctx, a.cfg.KnowledgeRoot())
	if err != nil {
		return err
	}
	fmt.Printf("Indexed %d documents", res.Documents)
	if res.VectorOK {
		fmt.Printf(" (%d embedded)\n", res.VectorIndexed)
	} else {
		fmt.Println(" (vector backend unavailable, keyword index only)")
	}
	return nil
}
