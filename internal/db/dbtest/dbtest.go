// Package dbtest provides database fixtures for tests: a private in-memory
// sqlite database per test, and a PostgreSQL container through testcontainers.
package dbtest

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/tropicaldog17/finledger/internal/db"
)

var seq atomic.Int64

// NewSQLite returns a migrated in-memory database that lives for the duration of t.
func NewSQLite(t testing.TB) *db.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, seq.Add(1))

	database, err := db.OpenSQLite(dsn)
	if err != nil {
		t.Fatalf("Failed to open sqlite database: %v", err)
	}
	if err := database.Migrate(context.Background()); err != nil {
		t.Fatalf("Failed to migrate sqlite database: %v", err)
	}
	t.Cleanup(func() {
		if err := database.Close(); err != nil {
			t.Logf("Failed to close sqlite database: %v", err)
		}
	})
	return database
}

// NewPostgres starts a PostgreSQL container and returns a migrated connection.
// The test is skipped under -short or when no container provider is reachable.
func NewPostgres(t *testing.T) *db.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping PostgreSQL container in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx, cancel := context.WithTimeout(context.Background(), 180*time.Second)
	defer cancel()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("finledger_test"),
		postgres.WithUsername("finledger_user"),
		postgres.WithPassword("finledger_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		if err := pgContainer.Terminate(context.Background()); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	})

	host, err := pgContainer.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := pgContainer.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	database, err := db.Connect(&db.Config{
		Driver:   db.DriverPostgres,
		Host:     host,
		Port:     port.Port(),
		User:     "finledger_user",
		Password: "finledger_password",
		Name:     "finledger_test",
		SSLMode:  "disable",
	})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := database.Migrate(ctx); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	return database
}
