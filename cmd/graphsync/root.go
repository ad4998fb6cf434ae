package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/OmerRastgar/studio-sub002/internal/config"
	"github.com/OmerRastgar/studio-sub002/internal/graph"
	"github.com/OmerRastgar/studio-sub002/internal/observability"
	"github.com/OmerRastgar/studio-sub002/internal/queue"
	"github.com/OmerRastgar/studio-sub002/internal/record"
	"github.com/OmerRastgar/studio-sub002/internal/store"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "graphsync",
	Short: "Event-sourced graph projection for the compliance program",
	Long: `graphsync keeps a Neo4j property-graph projection of the compliance
system of record eventually consistent: a worker applies mutation events
idempotently, and offline tools backfill, prune, and audit the projection.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command with signal handling.
func Execute(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "graphsync.yaml", "path to configuration file")

	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(backfillCmd)
	rootCmd.AddCommand(pruneCmd)
	rootCmd.AddCommand(driftCmd)
	rootCmd.AddCommand(crosswalkCmd)
	rootCmd.AddCommand(versionCmd)
}

// app bundles the shared dependencies every subcommand needs: config,
// logger, projection store, system-of-record source, and the event queue.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	store  store.Store
	source *record.SQLiteSource
	queue  *queue.SQLiteQueue
}

// setup loads configuration and wires the dependency graph. The caller
// owns the returned app and must Close it.
func setup(ctx context.Context) (*app, error) {
	cfg, err := config.LoadWithDefaults(configFile)
	if err != nil {
		return nil, err
	}
	logger := observability.NewLogger(cfg.Logging)

	client, err := graph.NewNeo4jClient(graph.Config{
		URI:                     cfg.Graph.URI,
		Username:                cfg.Graph.Username,
		Password:                cfg.Graph.Password,
		Database:                cfg.Graph.Database,
		MaxConnectionPoolSize:   cfg.Graph.MaxConnectionPoolSize,
		ConnectionTimeout:       cfg.Graph.ConnectionTimeout,
		MaxTransactionRetryTime: cfg.Graph.MaxTransactionRetry,
	})
	if err != nil {
		return nil, err
	}
	if err := client.Connect(ctx); err != nil {
		return nil, err
	}

	var st store.Store = store.NewNeo4jStore(client)
	if cfg.Tracing.Enabled {
		st = observability.NewTracedStore(st)
	}
	if err := st.EnsureSchema(ctx); err != nil {
		st.Close(ctx)
		return nil, err
	}

	source, err := record.NewSQLiteSource(cfg.Record)
	if err != nil {
		st.Close(ctx)
		return nil, err
	}

	q, err := queue.NewSQLiteQueue(cfg.Queue)
	if err != nil {
		source.Close()
		st.Close(ctx)
		return nil, err
	}

	return &app{
		cfg:    cfg,
		logger: logger,
		store:  st,
		source: source,
		queue:  q,
	}, nil
}

// Close releases every held connection; errors are logged, not returned,
// since shutdown continues regardless.
func (a *app) Close(ctx context.Context) {
	if err := a.queue.Close(); err != nil {
		a.logger.Error("failed to close queue", "error", err)
	}
	if err := a.source.Close(); err != nil {
		a.logger.Error("failed to close record source", "error", err)
	}
	if err := a.store.Close(ctx); err != nil {
		a.logger.Error("failed to close graph store", "error", err)
	}
}
