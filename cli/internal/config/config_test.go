package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "default", cfg.CurrentProfile)
	assert.NotNil(t, cfg.Profiles)
	assert.Empty(t, cfg.Profiles)
	assert.Equal(t, DefaultServerURL, cfg.Defaults.ServerURL)
}

func TestLoad_NoConfigFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing", "config.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "default", cfg.CurrentProfile)
	assert.Equal(t, DefaultServerURL, cfg.ServerURL(""))
}

func TestLoad_WithConfigFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	content := `current_profile: staging
profiles:
  staging:
    server_url: https://access.staging.example.com
defaults:
  server_url: http://localhost:4000
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0600))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "staging", cfg.CurrentProfile)
	assert.Equal(t, "https://access.staging.example.com", cfg.ServerURL(""))
	assert.Equal(t, "http://localhost:4000", cfg.ServerURL("unknown"))
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("ACCESSCTL_SERVER_URL", "http://10.0.0.5:4000")

	cfg, err := Load(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.5:4000", cfg.ServerURL(""))
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("profiles: [not: a map"), 0600))

	_, err := Load(configPath)
	assert.Error(t, err)
}

func TestDefaultPath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ACCESSCTL_CONFIG_DIR", dir)

	p, err := DefaultPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "config.yaml"), p)
}

func TestSaveProfile_RoundTrip(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(configPath)
	require.NoError(t, err)
	require.NoError(t, cfg.SaveProfile("prod", "https://access.example.com/"))

	info, err := os.Stat(configPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, "prod", loaded.CurrentProfile)
	assert.Equal(t, "https://access.example.com", loaded.ServerURL(""))
}

func TestRemoveProfile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	cfg, err := Load(configPath)
	require.NoError(t, err)
	require.NoError(t, cfg.SaveProfile("dev", "http://localhost:4000"))

	require.NoError(t, cfg.RemoveProfile("dev"))
	assert.Empty(t, cfg.CurrentProfile)
	assert.Error(t, cfg.RemoveProfile("dev"))

	_, err = cfg.GetProfile("dev")
	assert.Error(t, err)
}
