// Package main provides the API server entry point for the property scanner service.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/property-scanner/internal/alert"
	"github.com/property-scanner/internal/api"
	"github.com/property-scanner/internal/config"
	"github.com/property-scanner/internal/job"
	"github.com/property-scanner/internal/logging"
	"github.com/property-scanner/internal/storage"
	"github.com/property-scanner/internal/workflow"
)

func main() {
	fmt.Println("Property Scanner API Server")
	log.Println("Server starting...")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))

	logger := logging.GetGlobalLogger()
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	if cfg.Auth.JWTSecret == "" {
		logger.Fatal("JWT_SECRET must be set")
	}

	logger.Info("Connecting to databases...")

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	redisClient, err := storage.NewRedisClient(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redisClient.Close()

	logger.Info("Database connections established")

	// Initialize repositories
	jobRepo := storage.NewBatchJobRepository(postgres)
	ruleRepo := storage.NewAlertRuleRepository(postgres)
	propertyRepo := storage.NewPropertyRepository(postgres)
	alertRepo := storage.NewPropertyAlertRepository(postgres)

	// Initialize services
	logger.Info("Initializing services...")

	trigger := workflow.NewTrigger(&cfg.Workflow)
	jobManager := job.NewManager(jobRepo, trigger, &cfg.Jobs, cfg.Workflow.TriggerTypes)

	scanner := alert.NewScanner(ruleRepo, propertyRepo, alertRepo, storage.NewRedisLease(redisClient), &cfg.Scanner)
	alertService := alert.NewService(ruleRepo, alertRepo)

	logger.WithFields(map[string]interface{}{
		"workflow":     cfg.Workflow.BaseURL,
		"triggerTypes": cfg.Workflow.TriggerTypes,
	}).Info("Services initialized")

	serverConfig := &api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    60 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		AdminRPS:        cfg.RateLimit.AdminRPS,
		UserRPS:         cfg.RateLimit.UserRPS,
		ViewerRPS:       cfg.RateLimit.ViewerRPS,
	}

	server := api.NewServer(serverConfig, jobManager, scanner, alertService, api.NewJWTAuthenticator(&cfg.Auth))

	// Start server in a goroutine
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Server started successfully")

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Server exited")
}
