package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/lunara-health/lunara-platform/internal/api/router"
	appconfig "github.com/lunara-health/lunara-platform/internal/config"
	"github.com/lunara-health/lunara-platform/internal/conversation"
	"github.com/lunara-health/lunara-platform/internal/http/handlers"
	"github.com/lunara-health/lunara-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.NewWithFormat(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting lunara conversation API",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()

	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()
	if err := db.PingContext(ctx); err != nil {
		logger.Error("failed to reach database", "error", err)
		os.Exit(1)
	}
	store := conversation.NewPostgresStore(db)

	detector := conversation.NewServiceDetector(cfg.GeminiAPIKey)
	mockGen := conversation.NewMockGenerator(logger.Component("mock"))

	var aiGen *conversation.AIGenerator
	if cfg.AIConfigured() {
		geminiClient, err := conversation.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			logger.Error("failed to initialize gemini client", "error", err)
			os.Exit(1)
		}
		defer func() { _ = geminiClient.Close() }()
		aiGen = conversation.NewAIGenerator(geminiClient, cfg.GeminiModelID, logger.Component("ai"),
			conversation.WithAITimeout(cfg.AIRequestTimeout),
			conversation.WithHistoryWindow(cfg.HistoryWindow),
		)
	}
	logger.Info("reply backend resolved", "mode", string(detector.Detect()))

	coordinatorOpts := []conversation.CoordinatorOption{
		conversation.WithMaxMessageLength(cfg.MaxMessageLength),
		conversation.WithMaxBatchSize(cfg.MaxBatchSize),
		conversation.WithOptionCount(cfg.ResponseOptionCount),
	}
	if cfg.RedisAddr != "" {
		redisOpts := &redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		}
		if cfg.RedisTLS {
			redisOpts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		redisClient := redis.NewClient(redisOpts)
		defer func() { _ = redisClient.Close() }()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, context cache disabled", "error", err)
		} else {
			coordinatorOpts = append(coordinatorOpts,
				conversation.WithContextCache(conversation.NewContextCache(redisClient)))
		}
	}

	coordinator := conversation.NewCoordinator(store, detector, aiGen, mockGen,
		logger.Component("coordinator"), coordinatorOpts...)

	r := router.New(&router.Config{
		Logger:             logger,
		ChatHandler:        handlers.NewChatHandler(coordinator, logger.Component("chat")),
		MetricsHandler:     promhttp.Handler(),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
