package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, "db", cfg.DataDir)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().PageSize, cfg.PageSize)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"data_dir": "/var/lib/ubcc",
		"log_level": "debug",
		"page_size": 50
	}`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/ubcc", cfg.DataDir)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 50, cfg.PageSize)
	// Untouched fields keep defaults.
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("UBCC_DATA_DIR", "/tmp/override")
	t.Setenv("UBCC_PAGE_SIZE", "25")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/override", cfg.DataDir)
	assert.Equal(t, 25, cfg.PageSize)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PageSize = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.PageSize = 1000
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.LogLevel = "trace"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.DataDir = ""
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Retry.MaxAttempts = 0
	assert.Error(t, cfg.Validate())
}
