package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/boubkhaled/streampump/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o640))
	return path
}

func TestLoadFromFile_EnvSubstitution(t *testing.T) {
	t.Setenv("STREAMPUMP_PORT", "9090")

	path := writeConfig(t, `
server:
  port: "${STREAMPUMP_PORT}"
  log_level: "${STREAMPUMP_LOG_LEVEL:-debug}"
pump:
  spool_dir: /var/spool/pump
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Server.LogLevel)
	assert.Equal(t, "/var/spool/pump", cfg.Pump.SpoolDir)
}

func TestLoadFromFile_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
server: {}
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "*", cfg.Server.AllowedOrigins)
	assert.Equal(t, 64*1024, cfg.Pump.ChunkSize)
	assert.Equal(t, "spool", cfg.Pump.SpoolDir)
	assert.NotZero(t, cfg.Pump.HTTPTimeoutMs)
}

func TestLoadFromFile_RejectsWrongExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o640))

	_, err := LoadFromFile(path)
	assert.Error(t, err)
}

func TestLoadFromFile_RejectsTraversal(t *testing.T) {
	_, err := LoadFromFile("../outside/config.yaml")
	assert.Error(t, err)
}

func TestValidate_MissingAuthKeys(t *testing.T) {
	cfg := &Config{
		Server: models.ServerConfig{Port: "8080"},
		Pump:   models.PumpConfig{ChunkSize: 1024, SpoolDir: "spool"},
		Auth:   &models.AuthConfig{Enabled: true},
	}

	err := cfg.Validate()
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.MissingFields, "auth.api_keys")
}

func TestValidate_CompleteConfig(t *testing.T) {
	cfg := &Config{
		Server: models.ServerConfig{Port: "8080"},
		Pump:   models.PumpConfig{ChunkSize: 1024, SpoolDir: "spool"},
		Auth:   &models.AuthConfig{Enabled: true, APIKeys: []string{"key-1"}},
	}

	assert.NoError(t, cfg.Validate())
}

func TestGetNormalizedLogLevel(t *testing.T) {
	cfg := &Config{Server: models.ServerConfig{LogLevel: "DEBUG"}}
	assert.Equal(t, "debug", cfg.GetNormalizedLogLevel())
}

func TestIsProduction(t *testing.T) {
	assert.True(t, (&Config{Server: models.ServerConfig{Environment: "production"}}).IsProduction())
	assert.False(t, (&Config{Server: models.ServerConfig{Environment: "development"}}).IsProduction())
}
