package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	checkoutadapters "github.com/dejobratic/checkout/internal/checkout/adapters"
	httpadapter "github.com/dejobratic/checkout/internal/checkout/adapters/http"
	checkoutmemory "github.com/dejobratic/checkout/internal/checkout/adapters/memory"
	checkoutpostgres "github.com/dejobratic/checkout/internal/checkout/adapters/postgres"
	checkoutapp "github.com/dejobratic/checkout/internal/checkout/app"
	"github.com/dejobratic/checkout/internal/checkout/domain"
	checkoutmetrics "github.com/dejobratic/checkout/internal/checkout/metrics"
	"github.com/dejobratic/checkout/internal/config"
	"github.com/dejobratic/checkout/internal/database"
	idempostgres "github.com/dejobratic/checkout/internal/idempotency/postgres"
	invpostgres "github.com/dejobratic/checkout/internal/inventory/postgres"
	"github.com/dejobratic/checkout/internal/kafka"
	"github.com/dejobratic/checkout/internal/money"
	"github.com/dejobratic/checkout/internal/payment"
	"github.com/dejobratic/checkout/internal/payment/fake"
	paypostgres "github.com/dejobratic/checkout/internal/payment/postgres"
	"github.com/dejobratic/checkout/internal/telemetry"
	"go.opentelemetry.io/otel"
)

func main() {
	if err := run(); err != nil {
		slog.Error("service failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := telemetry.NewLogger(parseLogLevel(cfg.Telemetry.LogLevel))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.Initialize(ctx, telemetry.Config{
		ServiceName:    cfg.Service.Name,
		ServiceVersion: cfg.Service.Version,
		Environment:    cfg.Service.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTelEndpoint,
		EnableTracing:  cfg.Telemetry.EnableTracing,
		EnableMetrics:  cfg.Telemetry.EnableMetrics,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown failed", "error", err)
		}
	}()

	pool, err := database.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("create database pool: %w", err)
	}
	defer pool.Close()

	if cfg.Database.AutoMigrate {
		logger.Info("running database migrations", "path", cfg.Database.MigrationsPath)
		if err := database.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsPath); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		logger.Info("migrations completed successfully")
	}

	meter := otel.Meter(cfg.Service.Name)

	dbMetrics, err := database.NewMetrics(meter)
	if err != nil {
		return fmt.Errorf("create database metrics: %w", err)
	}
	kafkaMetrics, err := kafka.NewMetrics(meter)
	if err != nil {
		return fmt.Errorf("create kafka metrics: %w", err)
	}
	httpMetrics, err := httpadapter.NewMetrics(meter)
	if err != nil {
		return fmt.Errorf("create http metrics: %w", err)
	}
	coMetrics, err := checkoutmetrics.NewMetrics(meter)
	if err != nil {
		return fmt.Errorf("create checkout metrics: %w", err)
	}

	repo := checkoutadapters.NewObservableRepository(checkoutpostgres.NewRepository(pool), dbMetrics)
	idemStore := idempostgres.NewStore(pool)
	eventBus := checkoutadapters.NewObservableEventBus(kafka.NewNoopEventBus(), kafkaMetrics)

	ledger := invpostgres.NewLedger(pool)
	go runReservationReaper(ctx, ledger, cfg.Checkout.ReservationTTL, logger)

	// The fake gateway stands in until a real PSP integration lands.
	orchestrator := payment.NewOrchestrator(
		fake.NewGateway(),
		paypostgres.NewStore(pool),
		payment.RetryPolicy{
			BaseInterval: cfg.Checkout.GatewayRetryBase,
			MaxTries:     uint(cfg.Checkout.GatewayRetryMaxTries),
		},
		logger,
	)

	catalog := seedCatalog(cfg.Checkout.Currency)

	service := checkoutapp.NewService(repo, ledger, idemStore, orchestrator, catalog, eventBus, logger, coMetrics)
	checkoutHandler := httpadapter.NewHandler(service)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := database.CheckHealth(r.Context(), pool); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "error": err.Error()})
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	checkoutHandler.Register(mux)

	handler := withRecovery(httpadapter.WithMetrics(mux, httpMetrics))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "port", cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownGrace)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	logger.Info("http server stopped")
	return nil
}

// runReservationReaper releases reservations whose checkout never finished,
// returning their stock to the available pool.
func runReservationReaper(ctx context.Context, ledger *invpostgres.Ledger, ttl time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			released, err := ledger.ReleaseExpired(ctx, time.Now().UTC().Add(-ttl))
			if err != nil {
				logger.Error("reservation reaper failed", "error", err)
				continue
			}
			if released > 0 {
				logger.Info("released expired reservations", "count", released)
			}
		}
	}
}

// seedCatalog registers the launch promotions. Catalog management moves to
// the database once a merchandising surface exists.
func seedCatalog(currency string) *checkoutmemory.Catalog {
	catalog := checkoutmemory.NewCatalog()
	catalog.Add(domain.Promotion{
		Code:        "SAVE5",
		Description: "5.00 off any cart",
		Discount:    domain.Discount{Kind: domain.DiscountFixed, Amount: money.MustNew(500, currency)},
	})
	catalog.Add(domain.Promotion{
		Code:        "SPRING10",
		Description: "10% off carts of 50.00 or more",
		Rule:        domain.MinCartAmount{Threshold: money.MustNew(5000, currency)},
		Discount:    domain.Discount{Kind: domain.DiscountPercentage, PercentBP: 1000},
	})
	return catalog
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("panic recovered", "error", rec)
				respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
