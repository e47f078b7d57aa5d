package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// defaultICEServers is handed to every peer on connect when ICE_SERVERS
// is not set.
const defaultICEServers = `[{"urls":"stun:stun.l.google.com:19302"},{"urls":"stun:stun1.l.google.com:19302"}]`

// Config holds validated environment configuration
type Config struct {
	// Required variables
	Port string

	// Optional variables with defaults
	Host                string
	WsPath              string
	GoEnv               string
	LogLevel            string
	AllowedOrigins      string
	MaxPeersPerRoom     int
	MaxRoomsPerServer   int
	RequireRoomPassword bool
	ICEServers          []json.RawMessage

	// Rate Limits
	RateLimitWsIP string

	// Observability
	OtelCollectorAddr string
}

// ValidateEnv validates all environment variables and returns a Config
// object. Returns an error if any required variable is missing or invalid;
// all failures are aggregated into one error.
func ValidateEnv() (*Config, error) {
	cfg := &Config{}
	var errors []string

	// Required: PORT (valid port number)
	cfg.Port = os.Getenv("PORT")
	if cfg.Port == "" {
		errors = append(errors, "PORT is required")
	} else {
		port, err := strconv.Atoi(cfg.Port)
		if err != nil || port < 1 || port > 65535 {
			errors = append(errors, fmt.Sprintf("PORT must be a valid port number between 1 and 65535 (got '%s')", cfg.Port))
		}
	}

	// Optional: HOST (defaults to all interfaces)
	cfg.Host = os.Getenv("HOST")

	// Optional: WS_PATH (defaults to "/ws", must start with "/")
	cfg.WsPath = getEnvOrDefault("WS_PATH", "/ws")
	if !strings.HasPrefix(cfg.WsPath, "/") {
		errors = append(errors, fmt.Sprintf("WS_PATH must start with '/' (got '%s')", cfg.WsPath))
	}

	// Optional: MAX_PEERS_PER_ROOM (defaults to 4, 0 means unlimited)
	if v, err := getEnvInt("MAX_PEERS_PER_ROOM", 4); err != nil {
		errors = append(errors, err.Error())
	} else {
		cfg.MaxPeersPerRoom = v
	}

	// Optional: MAX_ROOMS_PER_SERVER (defaults to 0, unlimited)
	if v, err := getEnvInt("MAX_ROOMS_PER_SERVER", 0); err != nil {
		errors = append(errors, err.Error())
	} else {
		cfg.MaxRoomsPerServer = v
	}

	// Optional: REQUIRE_ROOM_PASSWORD (defaults to false)
	cfg.RequireRoomPassword = os.Getenv("REQUIRE_ROOM_PASSWORD") == "true"

	// Optional: ICE_SERVERS (JSON array, passed through to clients verbatim)
	iceServers := getEnvOrDefault("ICE_SERVERS", defaultICEServers)
	if err := json.Unmarshal([]byte(iceServers), &cfg.ICEServers); err != nil {
		errors = append(errors, fmt.Sprintf("ICE_SERVERS must be a JSON array (got '%s')", iceServers))
	}

	// Optional: GO_ENV (defaults to "production")
	cfg.GoEnv = getEnvOrDefault("GO_ENV", "production")

	// Optional: LOG_LEVEL (defaults to "info")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	cfg.AllowedOrigins = os.Getenv("ALLOWED_ORIGINS")

	// Rate Limits (M = Minute, H = Hour)
	cfg.RateLimitWsIP = getEnvOrDefault("RATE_LIMIT_WS_IP", "100-M")

	// Tracing is disabled when OTEL_COLLECTOR_ADDR is unset.
	cfg.OtelCollectorAddr = os.Getenv("OTEL_COLLECTOR_ADDR")
	if cfg.OtelCollectorAddr != "" && !isValidHostPort(cfg.OtelCollectorAddr) {
		errors = append(errors, fmt.Sprintf("OTEL_COLLECTOR_ADDR must be in format 'host:port' (got '%s')", cfg.OtelCollectorAddr))
	}

	if len(errors) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return cfg, nil
}

// Addr returns the host:port the HTTP server binds to.
func (c *Config) Addr() string {
	return c.Host + ":" + c.Port
}

// isValidHostPort checks if a string is in the format "host:port"
func isValidHostPort(addr string) bool {
	parts := strings.Split(addr, ":")
	if len(parts) != 2 {
		return false
	}

	port, err := strconv.Atoi(parts[1])
	if err != nil || port < 1 || port > 65535 {
		return false
	}

	return parts[0] != ""
}

// getEnvOrDefault returns the value of the environment variable or a default value if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvInt parses an environment variable as a non-negative integer.
func getEnvInt(key string, defaultValue int) (int, error) {
	raw, exists := os.LookupEnv(key)
	if !exists || raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer (got '%s')", key, raw)
	}
	return v, nil
}
