//go:build integration

package postgres_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/dejobratic/checkout/internal/checkout/ports"
	"github.com/dejobratic/checkout/internal/database"
	"github.com/dejobratic/checkout/internal/idempotency/postgres"
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

func TestClaimAndAttach(t *testing.T) {
	pool := setupTestDB(t)
	store := postgres.NewStore(pool)
	ctx := context.Background()

	claim, err := store.Claim(ctx, "checkout-key-1")
	if err != nil {
		t.Fatalf("failed to claim key: %v", err)
	}
	if !claim.Winner {
		t.Fatal("expected first claim to win")
	}

	result := []byte(`{"order_id": "ord_1"}`)
	if err := store.AttachResult(ctx, "checkout-key-1", result); err != nil {
		t.Fatalf("failed to attach result: %v", err)
	}

	replay, err := store.Claim(ctx, "checkout-key-1")
	if err != nil {
		t.Fatalf("failed to re-claim key: %v", err)
	}
	if replay.Winner {
		t.Error("expected second claim to lose")
	}
	if !bytes.Equal(replay.Result, result) {
		t.Errorf("expected result %s, got %s", result, replay.Result)
	}
}

func TestClaim_ConcurrentSingleWinner(t *testing.T) {
	pool := setupTestDB(t)
	store := postgres.NewStore(pool)
	ctx := context.Background()

	const claimants = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)

	for i := 0; i < claimants; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claim, err := store.Claim(ctx, "contended-key")
			if err != nil {
				t.Errorf("claim: %v", err)
				return
			}
			if claim.Winner {
				mu.Lock()
				winners++
				mu.Unlock()
				if err := store.AttachResult(ctx, "contended-key", []byte("done")); err != nil {
					t.Errorf("attach: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	if winners != 1 {
		t.Errorf("expected exactly 1 winner, got %d", winners)
	}
}

func TestAttachResult_Errors(t *testing.T) {
	pool := setupTestDB(t)
	store := postgres.NewStore(pool)
	ctx := context.Background()

	if err := store.AttachResult(ctx, "never-claimed", []byte("x")); !errors.Is(err, ports.ErrNotClaimed) {
		t.Fatalf("expected ErrNotClaimed, got: %v", err)
	}

	if _, err := store.Claim(ctx, "resolve-once"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := store.AttachResult(ctx, "resolve-once", []byte("first")); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if err := store.AttachResult(ctx, "resolve-once", []byte("second")); !errors.Is(err, ports.ErrAlreadyResolved) {
		t.Fatalf("expected ErrAlreadyResolved, got: %v", err)
	}
}
