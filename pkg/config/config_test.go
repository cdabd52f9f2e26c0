package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultValues(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "config.yaml")
	content := `
store:
  uri: bolt://localhost:7687
`
	err := os.WriteFile(configFile, []byte(content), 0644)
	require.NoError(t, err)

	cfg, err := Load(configFile)
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	assert.Equal(t, 8000, cfg.Processing.ChunkSize)
	assert.Equal(t, 1000, cfg.Processing.BatchSize)
	assert.Equal(t, 4, cfg.Processing.MaxWorkers)
	assert.Equal(t, 3, cfg.Processing.MaxRetries)
	assert.Equal(t, 5, cfg.CircuitBreaker.FailureThreshold)
	assert.Equal(t, 60, cfg.CircuitBreaker.RecoveryTimeoutSec)
	assert.Equal(t, "CITES", cfg.Layout.EdgeLabel)
	assert.Equal(t, "BIBLIOGRAPHIC_LINK", cfg.Layout.EdgeLabelAlias)
	assert.True(t, cfg.Layout.ExcludeIsolatedVertices)
	assert.Equal(t, 1, cfg.Distributed.TotalWorkers)
}

func TestLoad_CustomValues(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "config.yaml")
	content := `
store:
  uri: bolt://db.example.com:7687
  user: neo4j
  password: secret
  pool_size: 100
processing:
  chunk_size: 4000
  batch_size: 500
  max_workers: 8
circuit_breaker:
  failure_threshold: 10
  recovery_timeout_sec: 30
distributed:
  worker_id: 1
  total_workers: 4
`
	err := os.WriteFile(configFile, []byte(content), 0644)
	require.NoError(t, err)

	cfg, err := Load(configFile)
	require.NoError(t, err)

	assert.Equal(t, "bolt://db.example.com:7687", cfg.Store.URI)
	assert.Equal(t, 100, cfg.Store.PoolSize)
	assert.Equal(t, 4000, cfg.Processing.ChunkSize)
	assert.Equal(t, 8, cfg.Processing.MaxWorkers)
	assert.Equal(t, 10, cfg.CircuitBreaker.FailureThreshold)
	assert.Equal(t, 1, cfg.Distributed.WorkerID)
	assert.Equal(t, 4, cfg.Distributed.TotalWorkers)
}

func TestLoad_FileNotFound(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	require.NoError(t, err)
	assert.NotNil(t, cfg)
}

func TestLoadFromReader(t *testing.T) {
	content := []byte(`
store:
  uri: bolt://other:7687
processing:
  max_workers: 6
`)
	cfg, err := LoadFromReader("yaml", content)
	require.NoError(t, err)
	assert.Equal(t, "bolt://other:7687", cfg.Store.URI)
	assert.Equal(t, 6, cfg.Processing.MaxWorkers)
}

func TestValidate_EmptyURI(t *testing.T) {
	cfg := &Config{
		Processing:     ProcessingConfig{MaxWorkers: 1, MaxParallelWorkers: 1, BatchSize: 1, ChunkSize: 1},
		CircuitBreaker: CircuitBreakerConfig{FailureThreshold: 1, RecoveryTimeoutSec: 1},
		Layout:         LayoutConfig{EdgeLabel: "CITES"},
		Distributed:    DistributedConfig{TotalWorkers: 1},
	}

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store uri is required")
}

func TestValidate_InvalidWorkerCount(t *testing.T) {
	cfg := &Config{
		Store:          StoreConfig{URI: "bolt://localhost:7687"},
		Processing:     ProcessingConfig{MaxWorkers: 0, MaxParallelWorkers: 1, BatchSize: 1, ChunkSize: 1},
		CircuitBreaker: CircuitBreakerConfig{FailureThreshold: 1, RecoveryTimeoutSec: 1},
		Layout:         LayoutConfig{EdgeLabel: "CITES"},
		Distributed:    DistributedConfig{TotalWorkers: 1},
	}

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "max_workers must be at least 1")
}

func TestValidate_WorkerIDOutOfRange(t *testing.T) {
	cfg := &Config{
		Store:          StoreConfig{URI: "bolt://localhost:7687"},
		Processing:     ProcessingConfig{MaxWorkers: 1, MaxParallelWorkers: 1, BatchSize: 1, ChunkSize: 1},
		CircuitBreaker: CircuitBreakerConfig{FailureThreshold: 1, RecoveryTimeoutSec: 1},
		Layout:         LayoutConfig{EdgeLabel: "CITES"},
		Distributed:    DistributedConfig{WorkerID: 4, TotalWorkers: 4},
	}

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "worker_id must be in")
}
