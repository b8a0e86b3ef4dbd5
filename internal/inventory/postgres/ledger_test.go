//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dejobratic/checkout/internal/checkout/ports"
	"github.com/dejobratic/checkout/internal/database"
	"github.com/dejobratic/checkout/internal/inventory/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	testpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := testpostgres.Run(ctx,
		"postgres:16-alpine",
		testpostgres.WithDatabase("test"),
		testpostgres.WithUsername("test"),
		testpostgres.WithPassword("test"),
		testpostgres.BasicWaitStrategies(),
		testcontainers.WithWaitStrategy(wait.ForLog("database system is ready to accept connections").WithOccurrence(2)),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	projectRoot := findProjectRoot(t)
	migrationsPath := filepath.Join(projectRoot, "migrations")

	if err := database.RunMigrations(connStr, migrationsPath); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	pool, err := database.NewPool(ctx, connStr)
	if err != nil {
		t.Fatalf("failed to create pool: %v", err)
	}

	t.Cleanup(func() {
		pool.Close()
	})

	return pool
}

func findProjectRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("could not find project root (go.mod)")
		}
		dir = parent
	}
}

func TestReserveCommitRelease(t *testing.T) {
	pool := setupTestDB(t)
	ledger := postgres.NewLedger(pool)
	ctx := context.Background()

	if err := ledger.SetStock(ctx, "widget", 10); err != nil {
		t.Fatalf("SetStock() failed: %v", err)
	}

	t.Run("reserve moves stock from available to reserved", func(t *testing.T) {
		token, err := ledger.Reserve(ctx, "widget", 4)
		if err != nil {
			t.Fatalf("Reserve() failed: %v", err)
		}

		available, reserved, err := ledger.Stock(ctx, "widget")
		if err != nil {
			t.Fatalf("Stock() failed: %v", err)
		}
		if available != 6 || reserved != 4 {
			t.Errorf("expected (6, 4), got (%d, %d)", available, reserved)
		}

		if err := ledger.Release(ctx, token); err != nil {
			t.Fatalf("Release() failed: %v", err)
		}
		available, reserved, _ = ledger.Stock(ctx, "widget")
		if available != 10 || reserved != 0 {
			t.Errorf("expected (10, 0) after release, got (%d, %d)", available, reserved)
		}
	})

	t.Run("commit removes reserved stock permanently", func(t *testing.T) {
		token, err := ledger.Reserve(ctx, "widget", 3)
		if err != nil {
			t.Fatalf("Reserve() failed: %v", err)
		}
		if err := ledger.Commit(ctx, token); err != nil {
			t.Fatalf("Commit() failed: %v", err)
		}

		available, reserved, _ := ledger.Stock(ctx, "widget")
		if available != 7 || reserved != 0 {
			t.Errorf("expected (7, 0), got (%d, %d)", available, reserved)
		}

		if err := ledger.Commit(ctx, token); !errors.Is(err, ports.ErrAlreadyCommitted) {
			t.Errorf("expected ErrAlreadyCommitted on reuse, got: %v", err)
		}
		if err := ledger.Release(ctx, token); !errors.Is(err, ports.ErrAlreadyCommitted) {
			t.Errorf("expected ErrAlreadyCommitted on release-after-commit, got: %v", err)
		}
	})

	t.Run("over-reserving names the sku", func(t *testing.T) {
		_, err := ledger.Reserve(ctx, "widget", 100)

		var oos *ports.OutOfStockError
		if !errors.As(err, &oos) {
			t.Fatalf("expected OutOfStockError, got: %v", err)
		}
		if oos.SKU != "widget" {
			t.Errorf("expected sku widget, got %s", oos.SKU)
		}
	})

	t.Run("unknown sku", func(t *testing.T) {
		if _, err := ledger.Reserve(ctx, "ghost", 1); !errors.Is(err, ports.ErrUnknownSKU) {
			t.Fatalf("expected ErrUnknownSKU, got: %v", err)
		}
	})
}

func TestConcurrentReserveNeverOversells(t *testing.T) {
	pool := setupTestDB(t)
	ledger := postgres.NewLedger(pool)
	ctx := context.Background()

	if err := ledger.SetStock(ctx, "hot", 20); err != nil {
		t.Fatalf("SetStock() failed: %v", err)
	}

	const workers = 50
	var wg sync.WaitGroup
	granted := make(chan ports.ReservationToken, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if token, err := ledger.Reserve(ctx, "hot", 1); err == nil {
				granted <- token
			}
		}()
	}
	wg.Wait()
	close(granted)

	var count int
	for range granted {
		count++
	}
	if count != 20 {
		t.Errorf("expected exactly 20 grants, got %d", count)
	}

	available, reserved, err := ledger.Stock(ctx, "hot")
	if err != nil {
		t.Fatalf("Stock() failed: %v", err)
	}
	if available != 0 || reserved != 20 {
		t.Errorf("expected (0, 20), got (%d, %d)", available, reserved)
	}
}

func TestReleaseExpired(t *testing.T) {
	pool := setupTestDB(t)
	ledger := postgres.NewLedger(pool)
	ctx := context.Background()

	if err := ledger.SetStock(ctx, "stale", 5); err != nil {
		t.Fatalf("SetStock() failed: %v", err)
	}
	if _, err := ledger.Reserve(ctx, "stale", 2); err != nil {
		t.Fatalf("Reserve() failed: %v", err)
	}

	t.Run("leaves fresh reservations alone", func(t *testing.T) {
		released, err := ledger.ReleaseExpired(ctx, time.Now().UTC().Add(-time.Hour))
		if err != nil {
			t.Fatalf("ReleaseExpired() failed: %v", err)
		}
		if released != 0 {
			t.Errorf("expected 0 released, got %d", released)
		}
	})

	t.Run("returns expired stock to the available pool", func(t *testing.T) {
		released, err := ledger.ReleaseExpired(ctx, time.Now().UTC().Add(time.Hour))
		if err != nil {
			t.Fatalf("ReleaseExpired() failed: %v", err)
		}
		if released != 1 {
			t.Errorf("expected 1 released, got %d", released)
		}

		available, reserved, _ := ledger.Stock(ctx, "stale")
		if available != 5 || reserved != 0 {
			t.Errorf("expected (5, 0), got (%d, %d)", available, reserved)
		}
	})
}
