package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dealgrid/api/internal/config"
	"github.com/dealgrid/api/internal/infra/http"
	"github.com/dealgrid/api/internal/infra/http/routes"
	"github.com/dealgrid/api/internal/infra/postgres"
	"github.com/dealgrid/api/internal/infra/redis"
	"github.com/dealgrid/api/pkg/jwt"
	"github.com/dealgrid/api/pkg/logger"
	"github.com/dealgrid/api/pkg/validator"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ==========================================================================
	// Configuration & Logger
	// ==========================================================================
	cfg, err := config.Load()
	if err != nil {
		log := logger.NewDefault()
		log.Error("failed to load configuration", "error", err)
		return 1
	}

	log := initLogger(cfg)
	log.Info("starting application", "app", cfg.App.Name, "env", cfg.App.Env)

	// ==========================================================================
	// Infrastructure
	// ==========================================================================
	db, err := postgres.New(&cfg.Database)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		return 1
	}
	defer closeWithLog(db, "database", log)
	log.Info("database connected")

	redisClient, err := redis.New(&cfg.Redis, log)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		return 1
	}
	defer closeWithLog(redisClient, "redis", log)
	log.Info("redis connected")

	// ==========================================================================
	// Repositories
	// ==========================================================================
	repos := NewRepositories(db)
	log.Info("repositories initialized")

	// ==========================================================================
	// Services
	// ==========================================================================
	services, err := NewServices(&ServiceDeps{
		Config:      cfg,
		Log:         log,
		Repos:       repos,
		RedisClient: redisClient,
	})
	if err != nil {
		log.Error("failed to initialize services", "error", err)
		return 1
	}
	log.Info("services initialized")

	// ==========================================================================
	// Authentication
	// ==========================================================================
	jwtGen := jwt.NewGenerator(jwt.TokenConfig{
		Secret:               cfg.Auth.JWTSecret,
		Issuer:               cfg.Auth.JWTIssuer,
		AccessTokenDuration:  cfg.Auth.AccessTokenDuration,
		RefreshTokenDuration: cfg.Auth.RefreshTokenDuration,
	})

	// ==========================================================================
	// Handlers
	// ==========================================================================
	v := validator.New()
	handlers := NewHandlers(&HandlerDeps{
		Log:         log,
		Validator:   v,
		DB:          db,
		RedisClient: redisClient,
		Services:    services,
	})

	// ==========================================================================
	// HTTP Server
	// ==========================================================================
	server := http.NewServer(cfg, log)
	routes.Register(server.Router(), handlers, routes.Deps{
		JWT:    jwtGen,
		Access: services.Access,
	})

	go func() {
		if err := server.Start(); err != nil {
			log.Error("server error", "error", err)
		}
	}()
	log.Info("application started", "http_addr", cfg.Server.Addr())

	// ==========================================================================
	// Graceful Shutdown
	// ==========================================================================
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
		return 1
	}

	log.Info("application stopped")
	return 0
}

func initLogger(cfg *config.Config) *logger.Logger {
	if cfg.IsDevelopment() {
		return logger.NewDevelopment()
	}
	return logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
}

func closeWithLog(c interface{ Close() error }, name string, log *logger.Logger) {
	if err := c.Close(); err != nil {
		log.Error("failed to close "+name, "error", err)
	}
}
