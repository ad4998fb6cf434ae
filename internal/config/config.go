package config

import (
	"time"

	"github.com/OmerRastgar/studio-sub002/internal/types"
)

// Config is the root configuration for the graph sync service and its
// companion reconciliation tools. Every entry point (worker, backfill,
// prune, drift, crosswalk) loads the same file through the same loader.
type Config struct {
	Graph   GraphConfig   `mapstructure:"graph" yaml:"graph"`
	Record  RecordConfig  `mapstructure:"record" yaml:"record"`
	Queue   QueueConfig   `mapstructure:"queue" yaml:"queue"`
	Worker  WorkerConfig  `mapstructure:"worker" yaml:"worker"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Tracing TracingConfig `mapstructure:"tracing" yaml:"tracing"`
}

// GraphConfig contains connection settings for the Neo4j projection store.
type GraphConfig struct {
	// URI is the bolt/neo4j connection URI. Scheme controls encryption:
	// bolt://, bolt+s://, neo4j://, neo4j+s://.
	URI      string `mapstructure:"uri" yaml:"uri"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
	// Database selects the Neo4j database; empty uses the server default.
	Database              string        `mapstructure:"database" yaml:"database"`
	MaxConnectionPoolSize int           `mapstructure:"max_connection_pool_size" yaml:"max_connection_pool_size"`
	ConnectionTimeout     time.Duration `mapstructure:"connection_timeout" yaml:"connection_timeout"`
	MaxTransactionRetry   time.Duration `mapstructure:"max_transaction_retry" yaml:"max_transaction_retry"`
}

// RecordConfig locates the relational system of record read by backfill,
// prune, and drift tooling.
type RecordConfig struct {
	Path         string        `mapstructure:"path" yaml:"path"`
	QueryTimeout time.Duration `mapstructure:"query_timeout" yaml:"query_timeout"`
	PageSize     int           `mapstructure:"page_size" yaml:"page_size"`
}

// QueueConfig configures the durable event queue consumed by the worker.
type QueueConfig struct {
	Path              string        `mapstructure:"path" yaml:"path"`
	PollInterval      time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	VisibilityTimeout time.Duration `mapstructure:"visibility_timeout" yaml:"visibility_timeout"`
	MaxAttempts       int           `mapstructure:"max_attempts" yaml:"max_attempts"`
}

// WorkerConfig controls the sync worker pool.
type WorkerConfig struct {
	// Concurrency is the number of goroutines pulling events concurrently.
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency"`
	// OperationTimeout bounds a single event's graph transaction.
	OperationTimeout time.Duration `mapstructure:"operation_timeout" yaml:"operation_timeout"`
	// ReplaceAssignments switches auditor/manager/reviewer assignment
	// handlers from append-only to replace semantics: the previous
	// same-type edge is detached before the new one is merged.
	ReplaceAssignments bool `mapstructure:"replace_assignments" yaml:"replace_assignments"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// TracingConfig contains OpenTelemetry tracing configuration.
type TracingConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Graph: GraphConfig{
			URI:                   "bolt://localhost:7687",
			Username:              "neo4j",
			Password:              "password",
			MaxConnectionPoolSize: 50,
			ConnectionTimeout:     30 * time.Second,
			MaxTransactionRetry:   30 * time.Second,
		},
		Record: RecordConfig{
			Path:         "studio.db",
			QueryTimeout: 30 * time.Second,
			PageSize:     200,
		},
		Queue: QueueConfig{
			Path:              "events.db",
			PollInterval:      250 * time.Millisecond,
			VisibilityTimeout: 30 * time.Second,
			MaxAttempts:       10,
		},
		Worker: WorkerConfig{
			Concurrency:      4,
			OperationTimeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	if c.Graph.URI == "" {
		return types.NewError(types.CONFIG_VALIDATION_FAILED, "graph.uri cannot be empty")
	}
	if c.Graph.Username == "" {
		return types.NewError(types.CONFIG_VALIDATION_FAILED, "graph.username cannot be empty")
	}
	if c.Graph.Password == "" {
		return types.NewError(types.CONFIG_VALIDATION_FAILED, "graph.password cannot be empty")
	}
	if c.Graph.ConnectionTimeout <= 0 {
		return types.NewError(types.CONFIG_VALIDATION_FAILED, "graph.connection_timeout must be positive")
	}
	if c.Record.Path == "" {
		return types.NewError(types.CONFIG_VALIDATION_FAILED, "record.path cannot be empty")
	}
	if c.Record.PageSize <= 0 {
		return types.NewError(types.CONFIG_VALIDATION_FAILED, "record.page_size must be positive")
	}
	if c.Queue.Path == "" {
		return types.NewError(types.CONFIG_VALIDATION_FAILED, "queue.path cannot be empty")
	}
	if c.Queue.VisibilityTimeout <= 0 {
		return types.NewError(types.CONFIG_VALIDATION_FAILED, "queue.visibility_timeout must be positive")
	}
	if c.Queue.MaxAttempts <= 0 {
		return types.NewError(types.CONFIG_VALIDATION_FAILED, "queue.max_attempts must be positive")
	}
	if c.Worker.Concurrency <= 0 || c.Worker.Concurrency > 64 {
		return types.NewError(types.CONFIG_VALIDATION_FAILED, "worker.concurrency must be between 1 and 64")
	}
	if c.Worker.OperationTimeout <= 0 {
		return types.NewError(types.CONFIG_VALIDATION_FAILED, "worker.operation_timeout must be positive")
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return types.NewError(types.CONFIG_VALIDATION_FAILED, "logging.level must be debug, info, warn or error")
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return types.NewError(types.CONFIG_VALIDATION_FAILED, "logging.format must be text or json")
	}
	return nil
}
