// Package config gathers service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds everything the binaries need. Secrets (OPENAI_API_KEY,
// GITHUB_TOKEN) stay in the environment; the packages that need them read
// them directly.
type Config struct {
	// Upstream corpus coordinates.
	CorpusOwner  string
	CorpusRepo   string
	CorpusBranch string
	TacticsPath  string

	// Qdrant connection.
	QdrantHost string
	QdrantPort int

	// Local state directory for the badger database.
	DataDir string

	// HTTP listen port for health and MCP endpoints.
	HTTPPort string

	// ServerMode serves MCP over HTTP instead of stdio.
	ServerMode bool

	// SyncInterval is the background sync cadence. Zero disables the
	// background loop.
	SyncInterval time.Duration

	// SyncPoolSize bounds per-member concurrency during a sync. Zero
	// means an automatic CPU-based default.
	SyncPoolSize int
}

// Load reads configuration from the environment, applying defaults for
// everything optional.
func Load() (*Config, error) {
	cfg := &Config{
		CorpusOwner:  getEnv("CORPUS_OWNER", "edward-playground"),
		CorpusRepo:   getEnv("CORPUS_REPO", "aidefense-framework"),
		CorpusBranch: getEnv("CORPUS_BRANCH", "main"),
		TacticsPath:  getEnv("CORPUS_TACTICS_PATH", "tactics"),
		QdrantHost:   getEnv("QDRANT_HOST", "localhost"),
		DataDir:      getEnv("DATA_DIR", "./data"),
		HTTPPort:     getEnv("PORT", "8080"),
		ServerMode:   getEnv("SERVER_MODE", "false") == "true",
	}

	var err error
	cfg.QdrantPort, err = getEnvInt("QDRANT_PORT", 6334)
	if err != nil {
		return nil, err
	}
	cfg.SyncPoolSize, err = getEnvInt("SYNC_POOL_SIZE", 0)
	if err != nil {
		return nil, err
	}
	cfg.SyncInterval, err = getEnvDuration("SYNC_INTERVAL", time.Hour)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return i, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration like 30m or 1h, got %q", key, v)
	}
	return d, nil
}
