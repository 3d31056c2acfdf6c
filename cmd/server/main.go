package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/afroboost/Tribeat-v4-sub000/internal/config"
	"github.com/afroboost/Tribeat-v4-sub000/internal/database"
	"github.com/afroboost/Tribeat-v4-sub000/internal/logging"
	"github.com/afroboost/Tribeat-v4-sub000/internal/routes"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
)

func main() {
	// 1. Load Config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zl, err := logging.New(cfg.AppEnv)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	// 2. Connect to Database
	if cfg.DBUrl == "" {
		zl.Fatal("DB_URL is required")
	}
	if err := database.ConnectDB(cfg.DBUrl, cfg.DBMaxConns); err != nil {
		zl.Fatal("failed to connect to database", zap.Error(err))
	}
	defer database.CloseDB()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Setup Fiber
	app := fiber.New()

	// Middleware
	app.Use(cors.New())
	app.Use(logger.New())
	app.Use(recover.New())

	// Routes
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
		})
	})
	if err := routes.RegisterRoutes(ctx, app, cfg, database.DB, zl); err != nil {
		zl.Fatal("failed to register routes", zap.Error(err))
	}

	go func() {
		<-ctx.Done()
		zl.Info("shutting down")
		if err := app.Shutdown(); err != nil {
			zl.Error("server shutdown", zap.Error(err))
		}
	}()

	// 4. Start Server
	zl.Info("server starting", zap.String("port", cfg.Port), zap.String("env", cfg.AppEnv))
	if err := app.Listen(":" + cfg.Port); err != nil {
		zl.Fatal("server failed to start", zap.Error(err))
	}
}
