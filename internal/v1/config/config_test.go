package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("PORT", "8080")
}

func TestValidateEnvDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := ValidateEnv()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "/ws", cfg.WsPath)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, 4, cfg.MaxPeersPerRoom)
	assert.Equal(t, 0, cfg.MaxRoomsPerServer)
	assert.False(t, cfg.RequireRoomPassword)
	assert.Equal(t, "production", cfg.GoEnv)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "100-M", cfg.RateLimitWsIP)
	assert.Len(t, cfg.ICEServers, 2)
	assert.Empty(t, cfg.OtelCollectorAddr)
}

func TestValidateEnvMissingPort(t *testing.T) {
	t.Setenv("PORT", "")
	_, err := ValidateEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PORT is required")
}

func TestValidateEnvInvalidPort(t *testing.T) {
	t.Setenv("PORT", "99999")
	_, err := ValidateEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PORT must be a valid port number")
}

func TestValidateEnvAggregatesErrors(t *testing.T) {
	t.Setenv("PORT", "nope")
	t.Setenv("WS_PATH", "ws")
	t.Setenv("MAX_PEERS_PER_ROOM", "-1")

	_, err := ValidateEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PORT must be a valid port number")
	assert.Contains(t, err.Error(), "WS_PATH must start with '/'")
	assert.Contains(t, err.Error(), "MAX_PEERS_PER_ROOM must be a non-negative integer")
}

func TestValidateEnvOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("HOST", "127.0.0.1")
	t.Setenv("WS_PATH", "/signaling")
	t.Setenv("MAX_PEERS_PER_ROOM", "0")
	t.Setenv("MAX_ROOMS_PER_SERVER", "500")
	t.Setenv("REQUIRE_ROOM_PASSWORD", "true")
	t.Setenv("GO_ENV", "development")
	t.Setenv("RATE_LIMIT_WS_IP", "10-M")

	cfg, err := ValidateEnv()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8080", cfg.Addr())
	assert.Equal(t, "/signaling", cfg.WsPath)
	assert.Equal(t, 0, cfg.MaxPeersPerRoom)
	assert.Equal(t, 500, cfg.MaxRoomsPerServer)
	assert.True(t, cfg.RequireRoomPassword)
	assert.Equal(t, "development", cfg.GoEnv)
	assert.Equal(t, "10-M", cfg.RateLimitWsIP)
}

func TestValidateEnvICEServers(t *testing.T) {
	t.Run("custom array", func(t *testing.T) {
		setRequired(t)
		t.Setenv("ICE_SERVERS", `[{"urls":"turn:turn.example.com:3478","username":"u","credential":"c"}]`)

		cfg, err := ValidateEnv()
		require.NoError(t, err)
		require.Len(t, cfg.ICEServers, 1)
		assert.JSONEq(t, `{"urls":"turn:turn.example.com:3478","username":"u","credential":"c"}`, string(cfg.ICEServers[0]))
	})

	t.Run("invalid json", func(t *testing.T) {
		setRequired(t)
		t.Setenv("ICE_SERVERS", "stun:stun.example.com")

		_, err := ValidateEnv()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ICE_SERVERS must be a JSON array")
	})
}

func TestValidateEnvOtelCollectorAddr(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		setRequired(t)
		t.Setenv("OTEL_COLLECTOR_ADDR", "collector:4317")

		cfg, err := ValidateEnv()
		require.NoError(t, err)
		assert.Equal(t, "collector:4317", cfg.OtelCollectorAddr)
	})

	t.Run("invalid", func(t *testing.T) {
		setRequired(t)
		t.Setenv("OTEL_COLLECTOR_ADDR", "collector")

		_, err := ValidateEnv()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "OTEL_COLLECTOR_ADDR must be in format 'host:port'")
	})
}
