package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/parleyhq/parley/internal/v1/config"
	"github.com/parleyhq/parley/internal/v1/health"
	"github.com/parleyhq/parley/internal/v1/logging"
	"github.com/parleyhq/parley/internal/v1/middleware"
	"github.com/parleyhq/parley/internal/v1/ratelimit"
	"github.com/parleyhq/parley/internal/v1/server"
	"github.com/parleyhq/parley/internal/v1/tracing"
)

func main() {
	// Load .env file for local development.
	// Try multiple paths to handle different ways of running the app
	envPaths := []string{".env", "../../../.env", "../../.env"}
	var envLoaded bool

	for _, path := range envPaths {
		if err := godotenv.Load(path); err == nil {
			slog.Info("Loaded environment from", "path", path)
			envLoaded = true
			break
		}
	}

	if !envLoaded {
		slog.Warn("No .env file found in any expected location, relying on environment variables")
	}

	// Validate environment variables before starting the server
	cfg, err := config.ValidateEnv()
	if err != nil {
		slog.Error("Environment validation failed", "error", err)
		os.Exit(1)
	}

	if err := logging.Initialize(cfg.GoEnv != "production"); err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}

	// --- Tracing (Optional) ---
	var tracerShutdown func(context.Context) error
	if cfg.OtelCollectorAddr != "" {
		tp, err := tracing.InitTracer(context.Background(), "signaling", cfg.OtelCollectorAddr)
		if err != nil {
			slog.Error("Failed to initialize tracing, continuing without it", "error", err)
		} else {
			slog.Info("✅ Tracing initialized", "collector", cfg.OtelCollectorAddr)
			tracerShutdown = tp.Shutdown
		}
	}

	rl, err := ratelimit.New(cfg.RateLimitWsIP)
	if err != nil {
		slog.Error("Failed to create rate limiter", "error", err)
		os.Exit(1)
	}

	// --- Set up Router ---
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(otelgin.Middleware("signaling"))

	// Cors
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = allowedOrigins(cfg.AllowedOrigins)
	router.Use(cors.New(corsConfig))

	// --- Signaling Server ---
	srv, err := server.New(server.Options{
		Host:   cfg.Host,
		Port:   cfg.Port,
		Path:   cfg.WsPath,
		Engine: router,
		Limits: &server.Limits{
			MaxPeersPerRoom:   cfg.MaxPeersPerRoom,
			MaxRoomsPerServer: cfg.MaxRoomsPerServer,
		},
		RequireRoomPassword: cfg.RequireRoomPassword,
		ICEServers:          cfg.ICEServers,
		RateLimiter:         rl,
	})
	if err != nil {
		slog.Error("Failed to create signaling server", "error", err)
		os.Exit(1)
	}

	// Prometheus metrics endpoint
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health check endpoints
	healthHandler := health.NewHandler(srv)
	router.GET("/health/live", healthHandler.Liveness)
	router.GET("/health/ready", healthHandler.Readiness)

	if err := srv.Start(); err != nil {
		slog.Error("Failed to start signaling server", "error", err)
		os.Exit(1)
	}
	slog.Info("Signaling server listening", "addr", srv.Addr(), "path", cfg.WsPath)

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	if err := srv.Stop(); err != nil {
		slog.Error("Error during server shutdown", "error", err)
	}

	if tracerShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerShutdown(ctx); err != nil {
			slog.Error("Error during tracer shutdown", "error", err)
		}
	}

	slog.Info("Server exiting")
}

// allowedOrigins parses the comma-separated ALLOWED_ORIGINS value, falling
// back to the local dev origin.
func allowedOrigins(raw string) []string {
	if raw == "" {
		return []string{"http://localhost:3000"}
	}
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
