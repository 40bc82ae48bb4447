// Package main provides the alert scan runner.
// It runs one scan and exits, or repeats on -interval until signalled.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/property-scanner/internal/alert"
	"github.com/property-scanner/internal/config"
	apperrors "github.com/property-scanner/internal/errors"
	"github.com/property-scanner/internal/logging"
	"github.com/property-scanner/internal/storage"
)

func main() {
	var (
		properties = flag.String("properties", "", "Comma separated property ids to scan (default: all active)")
		rules      = flag.String("rules", "", "Comma separated rule ids to evaluate (default: all enabled)")
		interval   = flag.Duration("interval", 0, "Repeat the scan on this interval; 0 runs once")
	)
	flag.Parse()

	fmt.Println("Property Alert Scanner")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger := logging.GetGlobalLogger()

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

	scanner := alert.NewScanner(
		storage.NewAlertRuleRepository(postgres),
		storage.NewPropertyRepository(postgres),
		storage.NewPropertyAlertRepository(postgres),
		storage.NewRedisLease(redisClient),
		&cfg.Scanner,
	)

	req := alert.ScanRequest{
		PropertyIDs: splitIDs(*properties),
		RuleIDs:     splitIDs(*rules),
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if *interval <= 0 {
		if err := runOnce(ctx, scanner, req, logger); err != nil {
			logger.WithError(err).Fatal("Scan failed")
		}
		return
	}

	runScheduler(ctx, scanner, req, *interval, logger)
	logger.Info("Scanner stopped")
}

// runOnce runs a single scan. A scan skipped because another full scan holds the lease is not an error.
func runOnce(ctx context.Context, scanner *alert.Scanner, req alert.ScanRequest, logger *logging.Logger) error {
	result, err := scanner.Scan(ctx, req)
	if err != nil {
		if apperrors.IsConflict(err) {
			logger.Warn("Another full scan is running, skipping")
			return nil
		}
		return err
	}

	logger.WithFields(map[string]interface{}{
		"alertsCreated":     result.AlertsCreated,
		"rulesChecked":      result.RulesChecked,
		"propertiesScanned": result.PropertiesScanned,
	}).Info("Scan complete")
	return nil
}

// runScheduler repeats the scan every interval until ctx is cancelled
func runScheduler(ctx context.Context, scanner *alert.Scanner, req alert.ScanRequest, interval time.Duration, logger *logging.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := runOnce(ctx, scanner, req, logger); err != nil {
			logger.WithError(err).Error("Scheduled scan failed")
		}

		logger.WithFields(map[string]interface{}{
			"next_run": time.Now().Add(interval).UTC().Format(time.RFC3339),
		}).Info("Waiting for next scan")

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func splitIDs(raw string) []string {
	var ids []string
	for _, part := range strings.Split(raw, ",") {
		if id := strings.TrimSpace(part); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
