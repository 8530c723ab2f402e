package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "file", cfg.SnapshotDriver)
	assert.Equal(t, 3, cfg.AgentWorkers)
	assert.Equal(t, 64, cfg.AgentQueueSize)
	assert.Zero(t, cfg.ExpirySweepInterval)
	assert.Equal(t, time.Hour, cfg.AccessTTL())
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing secret", env: map[string]string{"JWT_SECRET": ""}},
		{name: "db driver without dsn", env: map[string]string{"JWT_SECRET": "x", "SNAPSHOT_DRIVER": "mysql"}},
		{name: "unknown driver", env: map[string]string{"JWT_SECRET": "x", "SNAPSHOT_DRIVER": "mongo"}},
		{name: "zero workers", env: map[string]string{"JWT_SECRET": "x", "AGENT_WORKERS": "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoadCacheAndRateLimit(t *testing.T) {
	t.Setenv("CACHE_METHODS", "get, head")
	t.Setenv("RATE_LIMIT_CAPACITY", "0")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "2s")
	t.Setenv("RATE_LIMIT_TTL", "1s")

	cc, err := LoadCacheConfig()
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"GET": true, "HEAD": true}, cc.Methods)

	rl, err := LoadRateLimitConfig()
	require.NoError(t, err)
	assert.Equal(t, 1, rl.Capacity)
	assert.Equal(t, 10*time.Second, rl.TTL)
}
