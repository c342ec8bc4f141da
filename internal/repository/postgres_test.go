package repository

import (
	"context"
	"os"
	"testing"

	"github.com/stwalsh4118/canopy/internal/config"
	"github.com/stwalsh4118/canopy/internal/database"
)

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// setupTestDB connects to the database named by the DB_* environment
// variables and applies migrations. The test is skipped when the database
// is not reachable.
func setupTestDB(t *testing.T) *database.Database {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	cfg := config.DatabaseConfig{
		Host:           getEnvOrDefault("DB_HOST", "host.docker.internal"),
		Port:           getEnvOrDefault("DB_PORT", "5432"),
		Name:           getEnvOrDefault("DB_NAME", "canopy"),
		User:           getEnvOrDefault("DB_USER", "postgres"),
		Password:       getEnvOrDefault("DB_PASSWORD", "postgres"),
		PoolMin:        1,
		PoolMax:        5,
		ConnectRetries: 1,
	}

	ctx := context.Background()
	db, err := database.NewPostgresPool(ctx, cfg)
	if err != nil {
		t.Skipf("Database not available: %v", err)
	}
	t.Cleanup(db.Close)

	if _, err := db.Migrate(ctx); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	return db
}

func TestPostgresStore_Contract(t *testing.T) {
	db := setupTestDB(t)
	runStoreContract(t, NewPostgresStore(db))
}
