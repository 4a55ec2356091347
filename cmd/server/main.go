package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"
	"github.com/playarena/credit_engine/internal/config"
	"github.com/playarena/credit_engine/internal/database"
	"github.com/playarena/credit_engine/internal/gateway"
	"github.com/playarena/credit_engine/internal/handlers"
	"github.com/playarena/credit_engine/internal/middleware"
	"github.com/playarena/credit_engine/internal/repositories"
	"github.com/playarena/credit_engine/internal/services"
	"github.com/playarena/credit_engine/pkg/logger"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment")
	}

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config: ", err)
	}

	// Initialize logger
	logger.Init(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("Starting credit engine...")

	if cfg.AppEnv == "production" {
		if err := cfg.ValidateProductionSecurity(); err != nil {
			logger.Fatal("Production security validation failed", err)
		}
		logger.Info("Production security validation passed")
	}

	// Connect to database
	db, err := database.Connect(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to database", err)
	}

	if err := database.AutoMigrate(db); err != nil {
		logger.Fatal("Failed to run migrations", err)
	}

	if err := database.SeedCatalog(db); err != nil {
		logger.Warn("Failed to seed catalog", "error", err)
	}

	store := repositories.NewStore(db)
	gatewayClient := gateway.NewHTTPClient(cfg.GatewayBaseURL, cfg.GatewayToken, cfg.GetGatewayTimeout())

	// Stats fan-out runs on its own goroutine; settlement never blocks on it.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	statsWorker := services.NewStatsWorker(store, cfg.StatsQueueSize)
	go statsWorker.Run(ctx)

	matchService := services.NewMatchService(store, statsWorker, cfg.TxRetryAttempts)
	paymentService := services.NewPaymentService(store, gatewayClient, cfg.GetOrderExpiry(), cfg.TxRetryAttempts)

	sweeper := services.NewSweeper(store, cfg.GetSweepInterval(), cfg.GetOrderExpiry())
	if err := sweeper.Start(); err != nil {
		logger.Fatal("Failed to start payment sweeper", err)
	}

	app := fiber.New(fiber.Config{
		AppName:               "credit-engine",
		DisableStartupMessage: cfg.AppEnv == "production",
	})

	rl := middleware.NewRateLimiter(cfg.RateLimitPerAccount, cfg.RateLimitPerIP, time.Minute)
	handler := handlers.NewHandler(matchService, paymentService, statsWorker, store)
	handler.Register(app, cfg.JWTSecret, rl)

	go func() {
		if err := app.Listen(":" + cfg.AppPort); err != nil {
			logger.Fatal("HTTP server failed", err)
		}
	}()

	logger.Info("Credit engine started", "env", cfg.AppEnv, "port", cfg.AppPort)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down gracefully...")
	sweeper.Stop()
	cancel()
	_ = app.Shutdown()
	logger.Info("Credit engine stopped")
}
