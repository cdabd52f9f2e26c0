// Package config provides configuration management for the layout engine.
package config

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Store          StoreConfig          `mapstructure:"store"`
	Processing     ProcessingConfig     `mapstructure:"processing"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Layout         LayoutConfig         `mapstructure:"layout"`
	Distributed    DistributedConfig    `mapstructure:"distributed"`
	Log            LogConfig            `mapstructure:"log"`
}

// StoreConfig holds graph store connection configuration.
type StoreConfig struct {
	URI        string `mapstructure:"uri"`
	User       string `mapstructure:"user"`
	Password   string `mapstructure:"password"`
	Database   string `mapstructure:"database"`
	PoolSize   int    `mapstructure:"pool_size"`
	TimeoutSec int    `mapstructure:"timeout_sec"`
}

// ProcessingConfig holds batch-sizing and concurrency configuration.
type ProcessingConfig struct {
	ChunkSize          int     `mapstructure:"chunk_size"`
	BatchSize          int     `mapstructure:"batch_size"`
	MaxWorkers         int     `mapstructure:"max_workers"`
	MaxParallelWorkers int     `mapstructure:"max_parallel_workers"`
	MaxRetries         int     `mapstructure:"max_retries"`
	RetryDelaySec      int     `mapstructure:"retry_delay_sec"`
	MemoryLimitGB      float64 `mapstructure:"memory_limit_gb"`
	MaxQueriesPerSec   int     `mapstructure:"max_queries_per_sec"`
}

// CircuitBreakerConfig holds circuit breaker thresholds.
type CircuitBreakerConfig struct {
	FailureThreshold  int `mapstructure:"failure_threshold"`
	RecoveryTimeoutSec int `mapstructure:"recovery_timeout_sec"`
}

// LayoutConfig holds layout-algorithm behavioral configuration.
type LayoutConfig struct {
	ExcludeIsolatedVertices bool   `mapstructure:"exclude_isolated_vertices"`
	ValidateTopoOrder       bool   `mapstructure:"validate_topo_order"`
	EdgeLabel               string `mapstructure:"edge_label"`
	EdgeLabelAlias          string `mapstructure:"edge_label_alias"`
}

// DistributedConfig holds multi-worker rendezvous configuration.
type DistributedConfig struct {
	WorkerID            int `mapstructure:"worker_id"`
	TotalWorkers        int `mapstructure:"total_workers"`
	SyncPollIntervalSec int `mapstructure:"sync_poll_interval_sec"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"` // json or text
}

// Load reads configuration from the specified file path.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/layout-engine")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			fmt.Println("Config file not found, using defaults")
		} else if os.IsNotExist(err) {
			fmt.Printf("Config file %s not found, using defaults\n", configPath)
		} else {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadFromReader loads configuration from raw bytes (useful for testing).
func LoadFromReader(configType string, content []byte) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType(configType)
	if err := v.ReadConfig(bytes.NewReader(content)); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values, per the engine's
// configuration surface.
func setDefaults(v *viper.Viper) {
	// Store defaults
	v.SetDefault("store.uri", "bolt://localhost:7687")
	v.SetDefault("store.user", "neo4j")
	v.SetDefault("store.database", "neo4j")
	v.SetDefault("store.pool_size", 50)
	v.SetDefault("store.timeout_sec", 300)

	// Processing defaults
	v.SetDefault("processing.chunk_size", 8000)
	v.SetDefault("processing.batch_size", 1000)
	v.SetDefault("processing.max_workers", 4)
	v.SetDefault("processing.max_parallel_workers", 4)
	v.SetDefault("processing.max_retries", 3)
	v.SetDefault("processing.retry_delay_sec", 60)
	v.SetDefault("processing.memory_limit_gb", 4.0)
	v.SetDefault("processing.max_queries_per_sec", 0)

	// Circuit breaker defaults
	v.SetDefault("circuit_breaker.failure_threshold", 5)
	v.SetDefault("circuit_breaker.recovery_timeout_sec", 60)

	// Layout defaults
	v.SetDefault("layout.exclude_isolated_vertices", true)
	v.SetDefault("layout.validate_topo_order", false)
	v.SetDefault("layout.edge_label", "CITES")
	v.SetDefault("layout.edge_label_alias", "BIBLIOGRAPHIC_LINK")

	// Distributed defaults
	v.SetDefault("distributed.worker_id", 0)
	v.SetDefault("distributed.total_workers", 1)
	v.SetDefault("distributed.sync_poll_interval_sec", 2)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.output_path", "")
	v.SetDefault("log.format", "text")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Store.URI == "" {
		return fmt.Errorf("store uri is required")
	}

	if c.Processing.MaxWorkers < 1 {
		return fmt.Errorf("max_workers must be at least 1")
	}
	if c.Processing.MaxParallelWorkers < 1 {
		return fmt.Errorf("max_parallel_workers must be at least 1")
	}
	if c.Processing.BatchSize < 1 {
		return fmt.Errorf("batch_size must be positive")
	}
	if c.Processing.ChunkSize < 1 {
		return fmt.Errorf("chunk_size must be positive")
	}
	if c.Processing.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative")
	}

	if c.CircuitBreaker.FailureThreshold < 1 {
		return fmt.Errorf("circuit_breaker.failure_threshold must be at least 1")
	}
	if c.CircuitBreaker.RecoveryTimeoutSec < 1 {
		return fmt.Errorf("circuit_breaker.recovery_timeout_sec must be at least 1")
	}

	if c.Layout.EdgeLabel == "" {
		return fmt.Errorf("layout.edge_label must not be empty")
	}

	if c.Distributed.TotalWorkers < 1 {
		return fmt.Errorf("distributed.total_workers must be at least 1")
	}
	if c.Distributed.WorkerID < 0 || c.Distributed.WorkerID >= c.Distributed.TotalWorkers {
		return fmt.Errorf("distributed.worker_id must be in [0, total_workers)")
	}

	return nil
}
