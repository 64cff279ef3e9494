package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "edward-playground", cfg.CorpusOwner)
	assert.Equal(t, "aidefense-framework", cfg.CorpusRepo)
	assert.Equal(t, "main", cfg.CorpusBranch)
	assert.Equal(t, "tactics", cfg.TacticsPath)
	assert.Equal(t, "localhost", cfg.QdrantHost)
	assert.Equal(t, 6334, cfg.QdrantPort)
	assert.Equal(t, time.Hour, cfg.SyncInterval)
	assert.False(t, cfg.ServerMode)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("QDRANT_PORT", "7001")
	t.Setenv("SYNC_INTERVAL", "30m")
	t.Setenv("SERVER_MODE", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7001, cfg.QdrantPort)
	assert.Equal(t, 30*time.Minute, cfg.SyncInterval)
	assert.True(t, cfg.ServerMode)
}

func TestLoad_BadValuesRejected(t *testing.T) {
	t.Setenv("QDRANT_PORT", "not-a-port")
	_, err := Load()
	assert.Error(t, err)
}
