//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dejobratic/checkout/internal/checkout/adapters/postgres"
	"github.com/dejobratic/checkout/internal/checkout/domain"
	"github.com/dejobratic/checkout/internal/checkout/ports"
	"github.com/dejobratic/checkout/internal/database"
	"github.com/dejobratic/checkout/internal/money"
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

func sampleOrder(id string) domain.Order {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return domain.Order{
		ID:            id,
		CustomerEmail: "buyer@example.com",
		Lines: []domain.CartLine{
			{SKU: "widget", UnitPrice: money.MustNew(1000, "USD"), Quantity: 2},
		},
		Totals: domain.Totals{
			Subtotal:       money.MustNew(2000, "USD"),
			DiscountAmount: money.MustNew(650, "USD"),
			TotalExclVAT:   money.MustNew(1350, "USD"),
		},
		PaymentRef:     "pi_test",
		ReservationIDs: []string{"res-1"},
		Status:         domain.StatusPlaced,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestCreateAndGetOrder(t *testing.T) {
	pool := setupTestDB(t)
	repo := postgres.NewRepository(pool)
	ctx := context.Background()

	t.Run("round-trips the priced cart exactly", func(t *testing.T) {
		order := sampleOrder("ord_pg_1")
		if err := repo.Create(ctx, order); err != nil {
			t.Fatalf("Create() failed: %v", err)
		}

		got, err := repo.GetByID(ctx, order.ID)
		if err != nil {
			t.Fatalf("GetByID() failed: %v", err)
		}

		if got.CustomerEmail != order.CustomerEmail {
			t.Errorf("expected email %q, got %q", order.CustomerEmail, got.CustomerEmail)
		}
		if !got.Totals.TotalExclVAT.Equal(order.Totals.TotalExclVAT) {
			t.Errorf("expected total %s, got %s", order.Totals.TotalExclVAT, got.Totals.TotalExclVAT)
		}
		if len(got.Lines) != 1 || got.Lines[0].SKU != "widget" {
			t.Errorf("unexpected lines: %+v", got.Lines)
		}
		if len(got.ReservationIDs) != 1 || got.ReservationIDs[0] != "res-1" {
			t.Errorf("unexpected reservation ids: %v", got.ReservationIDs)
		}
	})

	t.Run("returns ErrNotFound for missing orders", func(t *testing.T) {
		if _, err := repo.GetByID(ctx, "ord_missing"); !errors.Is(err, ports.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got: %v", err)
		}
	})
}

func TestListOrders(t *testing.T) {
	pool := setupTestDB(t)
	repo := postgres.NewRepository(pool)
	ctx := context.Background()

	for _, id := range []string{"ord_list_1", "ord_list_2", "ord_list_3"} {
		if err := repo.Create(ctx, sampleOrder(id)); err != nil {
			t.Fatalf("Create(%s) failed: %v", id, err)
		}
	}

	t.Run("filters by status", func(t *testing.T) {
		status := domain.StatusPlaced
		orders, err := repo.List(ctx, ports.ListFilter{Status: &status})
		if err != nil {
			t.Fatalf("List() failed: %v", err)
		}
		if len(orders) != 3 {
			t.Errorf("expected 3 orders, got %d", len(orders))
		}
	})

	t.Run("paginates", func(t *testing.T) {
		orders, err := repo.List(ctx, ports.ListFilter{Page: 2, PageSize: 2})
		if err != nil {
			t.Fatalf("List() failed: %v", err)
		}
		if len(orders) != 1 {
			t.Errorf("expected 1 order on page 2, got %d", len(orders))
		}
	})
}

func TestUpdateOrderStatus(t *testing.T) {
	pool := setupTestDB(t)
	repo := postgres.NewRepository(pool)
	ctx := context.Background()

	order := sampleOrder("ord_status_1")
	if err := repo.Create(ctx, order); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	t.Run("advances the status", func(t *testing.T) {
		if err := repo.UpdateStatus(ctx, order.ID, domain.StatusShipped); err != nil {
			t.Fatalf("UpdateStatus() failed: %v", err)
		}
		got, err := repo.GetByID(ctx, order.ID)
		if err != nil {
			t.Fatalf("GetByID() failed: %v", err)
		}
		if got.Status != domain.StatusShipped {
			t.Errorf("expected shipped, got %s", got.Status)
		}
	})

	t.Run("returns ErrNotFound for missing orders", func(t *testing.T) {
		if err := repo.UpdateStatus(ctx, "ord_missing", domain.StatusShipped); !errors.Is(err, ports.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got: %v", err)
		}
	})
}
