package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "9090", cfg.Server.MetricsPort)
	assert.Equal(t, 10, cfg.Pipeline.MaxJobs)
	assert.Equal(t, 10*time.Minute, cfg.Pipeline.Timeout)
	assert.Equal(t, 5, cfg.Search.MaxResults)
	assert.Equal(t, "llama-3.3-70b-versatile", cfg.LLM.Model)
	assert.Equal(t, "1024x1024", cfg.Images.Size)
	assert.Equal(t, "https://openapi.etsy.com/v3", cfg.Market.BaseURL)
	assert.Equal(t, 2, cfg.Notify.Workers)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "3000")
	t.Setenv("PIPELINE_MAX_JOBS", "3")
	t.Setenv("PIPELINE_TIMEOUT", "30s")
	t.Setenv("LLM_API_KEY", "test-key")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, 3, cfg.Pipeline.MaxJobs)
	assert.Equal(t, 30*time.Second, cfg.Pipeline.Timeout)
	assert.Equal(t, "test-key", cfg.LLM.APIKey)
}

func TestReadSecret_File(t *testing.T) {
	secretPath := filepath.Join(t.TempDir(), "secret")
	require.NoError(t, os.WriteFile(secretPath, []byte("file-secret\n"), 0o600))

	t.Setenv("MARKET_API_KEY", "")
	t.Setenv("MARKET_API_KEY_FILE", secretPath)

	readSecret("MARKET_API_KEY")

	assert.Equal(t, "file-secret", os.Getenv("MARKET_API_KEY"))
}

func TestReadSecret_DirectValueWins(t *testing.T) {
	secretPath := filepath.Join(t.TempDir(), "secret")
	require.NoError(t, os.WriteFile(secretPath, []byte("file-secret"), 0o600))

	t.Setenv("SEARCH_API_KEY", "direct")
	t.Setenv("SEARCH_API_KEY_FILE", secretPath)

	readSecret("SEARCH_API_KEY")

	assert.Equal(t, "direct", os.Getenv("SEARCH_API_KEY"))
}
