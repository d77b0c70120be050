package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadAppliesDefaults(t *testing.T) {
	p := writeConfigFile(t, "table:\n  name: t\n  root: /tables/t\n")
	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Retry.MaxRetries)
	assert.Equal(t, 100, cfg.Retry.BaseDelayMs)
	assert.Equal(t, 10000, cfg.Retry.MaxDelayMs)
	assert.Equal(t, 2.0, cfg.Retry.Multiplier)
	assert.Equal(t, 10, cfg.Checkpoint.Interval)
	assert.Equal(t, 2, cfg.Checkpoint.Keep)
	assert.Equal(t, 2, cfg.Checkpoint.NumRetainedCheckpoints)
	assert.Equal(t, 1_000_000, cfg.Checkpoint.MaxActionsPerCheckpoint)
	assert.Equal(t, int64(0), cfg.Checkpoint.MaxCheckpointSizeBytes)
	assert.Equal(t, 7*24, cfg.Vacuum.RetentionHours)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "memory", cfg.Storage.Provider)
}

func TestLoadPreservesExplicitValues(t *testing.T) {
	p := writeConfigFile(t, `
table:
  name: t
  root: /tables/t
retry:
  max_retries: 9
storage:
  provider: s3
  bucket: my-bucket
logging:
  level: debug
`)
	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Retry.MaxRetries)
	assert.Equal(t, "s3", cfg.Storage.Provider)
	assert.Equal(t, "my-bucket", cfg.Storage.Bucket)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadRejectsMissingTableName(t *testing.T) {
	p := writeConfigFile(t, "table:\n  root: /tables/t\n")
	_, err := Load(p)
	assert.Error(t, err)
}

func TestLoadRejectsMissingTableRoot(t *testing.T) {
	p := writeConfigFile(t, "table:\n  name: t\n")
	_, err := Load(p)
	assert.Error(t, err)
}

func TestLoadRejectsUnsupportedStorageProvider(t *testing.T) {
	p := writeConfigFile(t, "table:\n  name: t\n  root: /t\nstorage:\n  provider: ftp\n")
	_, err := Load(p)
	assert.Error(t, err)
}

func TestLoadRejectsUnsupportedLoggingLevel(t *testing.T) {
	p := writeConfigFile(t, "table:\n  name: t\n  root: /t\nlogging:\n  level: verbose\n")
	_, err := Load(p)
	assert.Error(t, err)
}

func TestLoadCheckpointIntervalZeroFallsBackToDefault(t *testing.T) {
	p := writeConfigFile(t, "table:\n  name: t\n  root: /t\ncheckpoint:\n  interval: 0\n")
	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Checkpoint.Interval)
}

func TestLoadRejectsNegativeCheckpointInterval(t *testing.T) {
	p := writeConfigFile(t, "table:\n  name: t\n  root: /t\ncheckpoint:\n  interval: -1\n")
	_, err := Load(p)
	assert.Error(t, err)
}

func TestLoadPreservesExplicitCheckpointSplitSettings(t *testing.T) {
	p := writeConfigFile(t, `
table:
  name: t
  root: /tables/t
checkpoint:
  maxActionsPerCheckpoint: 1000000
  maxCheckpointSizeBytes: 536870912
  numRetainedCheckpoints: 2
`)
	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, 1_000_000, cfg.Checkpoint.MaxActionsPerCheckpoint)
	assert.Equal(t, int64(536870912), cfg.Checkpoint.MaxCheckpointSizeBytes)
	assert.Equal(t, 2, cfg.Checkpoint.NumRetainedCheckpoints)
}

func TestLoadRejectsNegativeMaxActionsPerCheckpoint(t *testing.T) {
	p := writeConfigFile(t, "table:\n  name: t\n  root: /t\ncheckpoint:\n  maxActionsPerCheckpoint: -1\n")
	_, err := Load(p)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestRetryConfigDurationHelpers(t *testing.T) {
	rc := RetryConfig{BaseDelayMs: 250, MaxDelayMs: 5000}
	assert.Equal(t, 250*time.Millisecond, rc.BaseDelay())
	assert.Equal(t, 5*time.Second, rc.MaxDelay())
}
