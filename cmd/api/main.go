package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mnlamart/shop-sub002/internal/config"
	"github.com/mnlamart/shop-sub002/internal/infrastructure/database/postgres"
	"github.com/mnlamart/shop-sub002/internal/infrastructure/database/redis"
	"github.com/mnlamart/shop-sub002/internal/interfaces/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	setupLogger(cfg)

	logrus.WithFields(logrus.Fields{
		"app":     cfg.App.Name,
		"env":     cfg.App.Environment,
		"port":    cfg.Server.Port,
		"version": "1.0.0",
	}).Info("Starting application")

	db, err := postgres.NewConnection(cfg)
	if err != nil {
		logrus.Fatalf("Failed to connect to database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		logrus.Fatalf("Failed to access database handle: %v", err)
	}
	defer sqlDB.Close()

	redisClient, err := redis.NewConnection(cfg)
	if err != nil {
		logrus.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	if err := redisClient.Health(); err != nil {
		logrus.Fatalf("Redis health check failed: %v", err)
	}

	migration := postgres.NewMigration(db)
	if err := migration.RunAutoMigrations(); err != nil {
		logrus.Fatalf("Failed to run migrations: %v", err)
	}
	if err := migration.CreateIndexes(); err != nil {
		logrus.Fatalf("Failed to create indexes: %v", err)
	}

	server := http.NewServer(cfg, db, redisClient.GetClient())

	go func() {
		if err := server.Start(); err != nil {
			logrus.Fatalf("Failed to start server: %v", err)
		}
	}()

	logrus.WithField("port", cfg.Server.Port).Info("Server is ready to handle requests")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		logrus.Fatalf("Server forced to shutdown: %v", err)
	}

	logrus.Info("Server exited")
}

func setupLogger(cfg *config.Config) {
	if cfg.IsProduction() {
		logrus.SetFormatter(&logrus.JSONFormatter{})
		logrus.SetLevel(logrus.InfoLevel)
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
		logrus.SetLevel(logrus.DebugLevel)
	}
	logrus.SetOutput(os.Stdout)
}
