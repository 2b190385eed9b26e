// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable Load reads so ambient state cannot leak
// into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"ENVIRONMENT", "PORT", "DATABASE_URL", "REDIS_URL",
		"ENCRYPTION_KEY", "JWT_SECRET", "LLM_ATTEMPT_TIMEOUT_SECONDS",
		"WHATSAPP_ACCESS_TOKEN", "WHATSAPP_PHONE_NUMBER_ID", "CONFIG_FILE",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "localhost:6379", cfg.RedisURL)
	assert.Equal(t, 45*time.Second, cfg.AttemptTimeout)
	assert.True(t, cfg.Development(), "empty environment counts as development")
}

func TestLoadProductionRequiresSecrets(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENVIRONMENT", "production")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ENCRYPTION_KEY")

	t.Setenv("ENCRYPTION_KEY", "a2V5")
	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")

	t.Setenv("JWT_SECRET", "secret")
	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")

	t.Setenv("DATABASE_URL", "postgres://localhost/agentline")
	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.Development())
}

func TestLoadAttemptTimeout(t *testing.T) {
	clearEnv(t)

	t.Setenv("LLM_ATTEMPT_TIMEOUT_SECONDS", "60")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 60*time.Second, cfg.AttemptTimeout)

	t.Setenv("LLM_ATTEMPT_TIMEOUT_SECONDS", "abc")
	_, err = Load()
	assert.Error(t, err)

	t.Setenv("LLM_ATTEMPT_TIMEOUT_SECONDS", "0")
	_, err = Load()
	assert.Error(t, err)
}

func TestLoadYAMLOverlay(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
environment: development
port: "9090"
database_url: postgres://file-host/agentline
jwt_secret: from-file
cors_allowed_origins:
  - https://app.example.com
`), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("JWT_SECRET", "from-env")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "postgres://file-host/agentline", cfg.DatabaseURL)
	assert.Equal(t, "from-env", cfg.JWTSecret, "environment variables win over the file")
	assert.Equal(t, []string{"https://app.example.com"}, cfg.CORSAllowedOrigins)
}

func TestLoadMissingConfigFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))

	_, err := Load()
	assert.Error(t, err)
}
