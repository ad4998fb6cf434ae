package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/OmerRastgar/studio-sub002/internal/types"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty graph uri", func(c *Config) { c.Graph.URI = "" }},
		{"empty graph username", func(c *Config) { c.Graph.Username = "" }},
		{"empty graph password", func(c *Config) { c.Graph.Password = "" }},
		{"zero connection timeout", func(c *Config) { c.Graph.ConnectionTimeout = 0 }},
		{"empty record path", func(c *Config) { c.Record.Path = "" }},
		{"zero page size", func(c *Config) { c.Record.PageSize = 0 }},
		{"empty queue path", func(c *Config) { c.Queue.Path = "" }},
		{"zero visibility timeout", func(c *Config) { c.Queue.VisibilityTimeout = 0 }},
		{"zero max attempts", func(c *Config) { c.Queue.MaxAttempts = 0 }},
		{"zero concurrency", func(c *Config) { c.Worker.Concurrency = 0 }},
		{"excessive concurrency", func(c *Config) { c.Worker.Concurrency = 1000 }},
		{"zero operation timeout", func(c *Config) { c.Worker.OperationTimeout = 0 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Equal(t, types.CONFIG_VALIDATION_FAILED, types.CodeOf(err))
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
graph:
  uri: bolt://graph.internal:7687
  username: studio
  password: ${STUDIO_GRAPH_PASSWORD}
record:
  path: /data/studio.db
queue:
  path: /data/events.db
  visibility_timeout: 45s
worker:
  concurrency: 8
  replace_assignments: true
logging:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("STUDIO_GRAPH_PASSWORD", "s3cret")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "bolt://graph.internal:7687", cfg.Graph.URI)
	assert.Equal(t, "s3cret", cfg.Graph.Password)
	assert.Equal(t, "/data/studio.db", cfg.Record.Path)
	assert.Equal(t, 45*time.Second, cfg.Queue.VisibilityTimeout)
	assert.Equal(t, 8, cfg.Worker.Concurrency)
	assert.True(t, cfg.Worker.ReplaceAssignments)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	// Defaults fill sections the file omits.
	assert.Equal(t, 200, cfg.Record.PageSize)
	assert.Equal(t, 10, cfg.Queue.MaxAttempts)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Equal(t, types.CONFIG_LOAD_FAILED, types.CodeOf(err))
}

func TestLoadWithDefaults_MissingFile(t *testing.T) {
	cfg, err := LoadWithDefaults(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Graph.URI, cfg.Graph.URI)
}

func TestConfig_YAMLRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Worker.ReplaceAssignments = true

	data, err := yaml.Marshal(cfg)
	require.NoError(t, err)

	var decoded Config
	require.NoError(t, yaml.Unmarshal(data, &decoded))
	assert.True(t, decoded.Worker.ReplaceAssignments)
	assert.Equal(t, cfg.Graph.URI, decoded.Graph.URI)
}
