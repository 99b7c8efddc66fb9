package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "data.db", cfg.Store.Path)
	assert.Equal(t, 20, cfg.Anthropic.BatchSize)
	assert.Equal(t, "https://api.hunter.io/v2", cfg.Hunter.BaseURL)
	assert.Equal(t, 150, cfg.Ingest.DetailDelayMs)
	assert.Equal(t, 500, cfg.Ingest.PageDelayMs)
	assert.Equal(t, 300, cfg.Ingest.ClassifyDelayMs)
	assert.Equal(t, 3001, cfg.Server.Port)
	assert.Equal(t, 15, cfg.Server.PipelineTimeoutMins)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("PLANTCRM_STORE_DRIVER", "postgres")
	t.Setenv("PLANTCRM_SERVER_PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestInitLogger_BadLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "shouting", Format: "json"})
	assert.Error(t, err)
}

func TestInitLogger_Console(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	assert.NoError(t, err)
}
