package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"focusguard/internal/platform/config"
)

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.Load(dir, "")
	require.NoError(t, err)
	assert.Equal(t, config.DriverBadger, cfg.Storage.Driver)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, cfg.Retry.BaseDelay)
	assert.Equal(t, 5*time.Minute, cfg.Cooldown)
	assert.Equal(t, filepath.Join(dir, "focusguard.sock"), cfg.SocketPath)
}

func TestLoadReadsYAMLAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
storage:
  driver: sqlite
retry:
  max_attempts: 5
  base_delay: 250ms
cooldown: 10m
sites:
  - domain: reddit.com
    name: Reddit
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("FOCUSGUARD_COOLDOWN", "2m")
	t.Setenv("FOCUSGUARD_STRICT_COOLDOWN", "true")

	cfg, err := config.Load(dir, path)
	require.NoError(t, err)
	assert.Equal(t, config.DriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.BaseDelay)
	assert.Equal(t, 2*time.Minute, cfg.Cooldown)
	assert.True(t, cfg.StrictCooldown)
	require.Len(t, cfg.Sites, 1)
	assert.Equal(t, "Reddit", cfg.Sites[0].Name)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  driver: redis\n"), 0o644))
	_, err := config.Load(dir, path)
	require.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("sites:\n  - domain: x.com\n"), 0o644))
	_, err = config.Load(dir, path)
	require.Error(t, err)

	_, err = config.Load("", "")
	require.Error(t, err)
}

func TestLoadAllowedOrigins(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("allowed_origins:\n  - chrome-extension://abc\n"), 0o644))

	cfg, err := config.Load(dir, path)
	require.NoError(t, err)
	assert.Equal(t, []string{"chrome-extension://abc"}, cfg.AllowedOrigins)

	t.Setenv("FOCUSGUARD_ALLOWED_ORIGINS", "moz-extension://one, chrome-extension://two")
	cfg, err = config.Load(dir, path)
	require.NoError(t, err)
	assert.Equal(t, []string{"moz-extension://one", "chrome-extension://two"}, cfg.AllowedOrigins)

	t.Setenv("FOCUSGUARD_ALLOWED_ORIGINS", "not-an-origin")
	_, err = config.Load(dir, path)
	require.Error(t, err)
}
