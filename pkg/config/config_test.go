package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
environment: test
backend:
  type: clickhouse
clickhouse:
  host: localhost
  port: 9000
  database: threatlens
detector:
  train_interval: 30s
  contamination: 0.05
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.Environment)
	assert.Equal(t, 30*time.Second, cfg.Detector.TrainInterval)
	assert.Equal(t, 0.05, cfg.Detector.Contamination)
	// defaults
	assert.Equal(t, int64(42), cfg.Detector.Seed)
	assert.Equal(t, 100, cfg.Detector.Trees)
	assert.Equal(t, "isolation_forest_model.bin", cfg.Detector.ModelPath)
}

func TestLoadInvalidBackend(t *testing.T) {
	_, err := Load(writeConfig(t, `
environment: test
backend:
  type: postgres
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend.type")
}

func TestValidateContamination(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	cfg.Detector.Contamination = 1.5
	assert.Error(t, cfg.Validate())

	cfg.Detector.Contamination = 0.05
	assert.NoError(t, cfg.Validate())
}

func TestLoadWithEnv(t *testing.T) {
	t.Setenv("API_KEY", "env-secret")
	t.Setenv("MODEL_PATH", "/tmp/model.bin")
	t.Setenv("TRAIN_INTERVAL", "5m")

	cfg, err := LoadWithEnv(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "env-secret", cfg.Auth.APIKey)
	assert.Equal(t, "/tmp/model.bin", cfg.Detector.ModelPath)
	assert.Equal(t, 5*time.Minute, cfg.Detector.TrainInterval)
}
