package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	vars := map[string]string{
		"IDGATEWAY_ACCOUNT_SERVICE_API_KEY": "account-key",
		"IDGATEWAY_DOWNSTREAM_API_KEY":      "downstream-key",
		"IDGATEWAY_INGRESS_API_KEY":         "ingress-key",
		"IDGATEWAY_DOWNSTREAM_WRITE_URL":    "https://downstream.example/write",
		"IDGATEWAY_EXISTENCE_CHECK_URL":     "https://account-service.example/exists/",
	}
	for k, v := range vars {
		t.Setenv(k, v)
	}
}

func TestLoadSucceedsWithAllRequiredVarsSet(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "account-key", cfg.AccountServiceAPIKey)
	assert.Equal(t, "downstream-key", cfg.DownstreamAPIKey)
	assert.Equal(t, "ingress-key", cfg.IngressAPIKey)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "./data", cfg.DataDir)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadAppliesOverridesForOptionalVars(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("IDGATEWAY_PORT", "9090")
	t.Setenv("IDGATEWAY_DATA_DIR", "/var/lib/idgateway")
	t.Setenv("IDGATEWAY_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "/var/lib/idgateway", cfg.DataDir)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadFailsWhenRequiredVarMissing(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("IDGATEWAY_DOWNSTREAM_API_KEY", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "IDGATEWAY_DOWNSTREAM_API_KEY")
}

func TestLoadFallsBackOnUnparsablePort(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("IDGATEWAY_PORT", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
}
