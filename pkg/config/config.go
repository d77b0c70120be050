// Package config loads the YAML-driven table engine configuration:
// storage backend selection, retry tuning, checkpoint cadence, and vacuum
// retention, via the familiar yaml.v3 decode-then-Validate shape.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration document.
type Config struct {
	Table   TableConfig   `yaml:"table"`
	Storage StorageConfig `yaml:"storage"`
	Retry   RetryConfig   `yaml:"retry"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Vacuum  VacuumConfig  `yaml:"vacuum"`
	Logging LoggingConfig `yaml:"logging"`
}

// TableConfig names the table and its partitioning.
type TableConfig struct {
	Name             string   `yaml:"name"`
	Root             string   `yaml:"root"`
	PartitionColumns []string `yaml:"partition_columns"`
}

// StorageConfig selects and configures the object storage backend.
type StorageConfig struct {
	// Provider is one of "memory", "fs", "s3", "gcs", "azure" — anything
	// thanos-io/objstore.NewBucket accepts, plus "memory" for the
	// in-process test backend this module adds.
	Provider string            `yaml:"provider"`
	Bucket   string            `yaml:"bucket"`
	Prefix   string            `yaml:"prefix"`
	Options  map[string]string `yaml:"options"`
}

// RetryConfig mirrors pkg/retry.Config in YAML-friendly form.
type RetryConfig struct {
	MaxRetries   int     `yaml:"max_retries"`
	BaseDelayMs  int     `yaml:"base_delay_ms"`
	MaxDelayMs   int     `yaml:"max_delay_ms"`
	Multiplier   float64 `yaml:"multiplier"`
	Jitter       bool    `yaml:"jitter"`
	JitterFactor float64 `yaml:"jitter_factor"`
}

// BaseDelay and MaxDelay convert the millisecond YAML fields to
// time.Duration for pkg/retry.Config.
func (c RetryConfig) BaseDelay() time.Duration { return time.Duration(c.BaseDelayMs) * time.Millisecond }
func (c RetryConfig) MaxDelay() time.Duration  { return time.Duration(c.MaxDelayMs) * time.Millisecond }

// CheckpointConfig tunes checkpoint cadence, part-splitting and retention.
type CheckpointConfig struct {
	Interval                int   `yaml:"interval"`
	Keep                    int   `yaml:"keep"`
	MaxActionsPerCheckpoint int   `yaml:"maxActionsPerCheckpoint"`
	MaxCheckpointSizeBytes  int64 `yaml:"maxCheckpointSizeBytes"`
	NumRetainedCheckpoints  int   `yaml:"numRetainedCheckpoints"`
	CheckpointRetentionMs   int64 `yaml:"checkpointRetentionMs"`
}

// VacuumConfig tunes garbage collection.
type VacuumConfig struct {
	RetentionHours int  `yaml:"retention_hours"`
	DryRun         bool `yaml:"dry_run"`
}

// LoggingConfig controls the go-kit logger's verbosity.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error; default info
}

// Load reads and parses a Config from path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", path, err)
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Retry.MaxRetries == 0 {
		c.Retry.MaxRetries = 3
	}
	if c.Retry.BaseDelayMs == 0 {
		c.Retry.BaseDelayMs = 100
	}
	if c.Retry.MaxDelayMs == 0 {
		c.Retry.MaxDelayMs = 10000
	}
	if c.Retry.Multiplier == 0 {
		c.Retry.Multiplier = 2
	}
	if c.Checkpoint.Interval == 0 {
		c.Checkpoint.Interval = 10
	}
	if c.Checkpoint.Keep == 0 {
		c.Checkpoint.Keep = 2
	}
	if c.Checkpoint.NumRetainedCheckpoints == 0 {
		c.Checkpoint.NumRetainedCheckpoints = c.Checkpoint.Keep
	}
	if c.Checkpoint.MaxActionsPerCheckpoint == 0 {
		c.Checkpoint.MaxActionsPerCheckpoint = 1_000_000
	}
	if c.Checkpoint.CheckpointRetentionMs == 0 {
		c.Checkpoint.CheckpointRetentionMs = int64((7 * 24 * time.Hour) / time.Millisecond)
	}
	if c.Vacuum.RetentionHours == 0 {
		c.Vacuum.RetentionHours = 7 * 24
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Storage.Provider == "" {
		c.Storage.Provider = "memory"
	}
}

// Validate checks the config invariants that aren't self-healing defaults.
func (c *Config) Validate() error {
	if c.Table.Name == "" {
		return fmt.Errorf("table.name is required")
	}
	if c.Table.Root == "" {
		return fmt.Errorf("table.root is required")
	}
	switch c.Storage.Provider {
	case "memory", "fs", "s3", "gcs", "azure":
	default:
		return fmt.Errorf("storage.provider %q is not supported", c.Storage.Provider)
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must be non-negative")
	}
	if c.Checkpoint.Interval < 1 {
		return fmt.Errorf("checkpoint.interval must be at least 1")
	}
	if c.Checkpoint.MaxActionsPerCheckpoint < 0 {
		return fmt.Errorf("checkpoint.maxActionsPerCheckpoint must be non-negative")
	}
	if c.Checkpoint.MaxCheckpointSizeBytes < 0 {
		return fmt.Errorf("checkpoint.maxCheckpointSizeBytes must be non-negative")
	}
	if c.Checkpoint.NumRetainedCheckpoints < 1 {
		return fmt.Errorf("checkpoint.numRetainedCheckpoints must be at least 1")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	return nil
}
