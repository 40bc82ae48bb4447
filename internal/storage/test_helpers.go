package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/property-scanner/internal/config"
)

// testContext creates a context with timeout for tests
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func testPostgresConfig() *config.PostgresConfig {
	getenv := func(key, fallback string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return fallback
	}
	return &config.PostgresConfig{
		Host:           getenv("POSTGRES_HOST", "localhost"),
		Port:           getenv("POSTGRES_PORT", "5432"),
		Database:       getenv("POSTGRES_DB", "property_scanner_test"),
		User:           getenv("POSTGRES_USER", "scanner"),
		Password:       getenv("POSTGRES_PASSWORD", "scanner_dev_password"),
		MaxConnections: 10,
	}
}

// setupTestDB connects to the integration database, migrates it and empties
// every table. The test is skipped when no database is reachable.
func setupTestDB(t *testing.T) *PostgresDB {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	cfg := testPostgresConfig()
	db, err := NewPostgresDB(cfg)
	if err != nil {
		t.Skipf("Skipping test - Postgres not available: %v", err)
	}
	t.Cleanup(db.Close)

	if err := RunMigrations(cfg.DatabaseURL(), "../../"+DefaultMigrationsPath); err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}

	ctx := testContext(t)
	if _, err := db.Pool().Exec(ctx, `TRUNCATE property_alerts, alert_rules, properties, batch_jobs`); err != nil {
		t.Fatalf("truncate error = %v", err)
	}
	return db
}
