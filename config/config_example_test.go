package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFrom_ExampleFile(t *testing.T) {
	example, err := filepath.Abs("config.example.yaml")
	require.NoError(t, err)
	isolate(t)
	t.Setenv("QWEATHER_API_KEY", "example-key")

	result, err := LoadFrom(example)
	require.NoError(t, err)

	cfg := result.Config
	assert.Equal(t, example, result.Path)
	assert.Empty(t, result.Warnings)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "example-key", cfg.QWeather.APIKey)
	assert.Equal(t, 5, cfg.Fetch.Timeout)
	assert.Equal(t, 3, cfg.Fetch.MaxAttempts)
	assert.Equal(t, 1, cfg.Fetch.RetryDelay)
	assert.Equal(t, CacheTypeLocal, cfg.Cache.Type)
	assert.Equal(t, StateTypeFile, cfg.State.Type)
	assert.Equal(t, "weatherdesk:", cfg.Cache.Redis.Prefix)
	assert.False(t, cfg.Refresh.Enabled)
}
