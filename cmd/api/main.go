// Vendeu Online Payments Service
//
// This is the main entry point for the marketplace payment service.
// It wires up all dependencies and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vendeuonline/vendeu-payments/config"
	"github.com/vendeuonline/vendeu-payments/internal/adapters/asaas"
	"github.com/vendeuonline/vendeu-payments/internal/adapters/cache"
	"github.com/vendeuonline/vendeu-payments/internal/adapters/commerce"
	"github.com/vendeuonline/vendeu-payments/internal/adapters/memory"
	"github.com/vendeuonline/vendeu-payments/internal/adapters/mercadopago"
	"github.com/vendeuonline/vendeu-payments/internal/adapters/postgres"
	"github.com/vendeuonline/vendeu-payments/internal/core/ports"
	"github.com/vendeuonline/vendeu-payments/internal/core/service"
	"github.com/vendeuonline/vendeu-payments/internal/handlers"
	"github.com/vendeuonline/vendeu-payments/internal/observability"
)

const version = "1.0.0"

const shutdownTimeout = 15 * time.Second

// gatewayBundle is everything that depends on the selected provider.
type gatewayBundle struct {
	gateway ports.PaymentGateway
	auth    ports.WebhookAuthenticator
	decoder ports.WebhookDecoder
	mode    string
}

func main() {
	log.Println("Starting Vendeu Online Payments Service...")

	// Load configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Configuration error: %v", err)
	}
	cfg.Warn()
	log.Printf("Configuration loaded: Env=%s, Port=%s, Provider=%s", cfg.App.Env, cfg.Server.Port, cfg.Gateway.Provider)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observability.Setup(ctx, cfg.Telemetry.OTLPEndpoint, cfg.Telemetry.ServiceName, version)
	if err != nil {
		log.Fatalf("Telemetry setup failed: %v", err)
	}

	// Wire up dependencies (manual dependency injection)
	//
	// Infrastructure Layer
	gw, err := newGateway(cfg)
	if err != nil {
		log.Fatalf("Payment gateway setup failed: %v", err)
	}
	log.Printf("Payment gateway: %s (%s mode)", cfg.Gateway.Provider, gw.mode)

	var (
		charges ports.ChargeRepository
		subs    ports.SubscriptionRepository
		pool    *pgxpool.Pool
	)
	if cfg.Database.URL != "" {
		pool, err = postgres.Connect(ctx, cfg.Database.URL)
		if err != nil {
			log.Fatalf("Database connection failed: %v", err)
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			log.Fatalf("Database migration failed: %v", err)
		}
		charges = postgres.NewChargeRepository(pool)
		subs = postgres.NewSubscriptionRepository(pool)
	} else {
		charges = memory.NewChargeStore()
		subs = memory.NewSubscriptionStore()
	}

	var dedup ports.IdempotencyStore
	if cfg.Redis.Addr != "" {
		rdb, err := cache.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			// Status ordering alone keeps redeliveries safe.
			log.Printf("WARNING: Redis unavailable, webhook dedup cache disabled: %v", err)
		} else {
			defer rdb.Close()
			dedup = cache.NewIdempotencyStore(rdb, cfg.Redis.DedupTTL)
		}
	} else {
		dedup = memory.NewIdempotencyStore(cfg.Redis.DedupTTL)
	}

	commerceClient := commerce.NewClient(cfg.Commerce.BaseURL, cfg.Commerce.APIKey, cfg.Commerce.Timeout)

	metrics, err := observability.NewWebhookMetrics(nil)
	if err != nil {
		log.Fatalf("Metrics setup failed: %v", err)
	}

	// Service Layer
	subscriptions := service.NewSubscriptionService(
		subs,
		commerceClient, // implements ports.PlanCatalog
		commerceClient, // implements ports.SellerPlanWriter
		commerceClient, // implements ports.Notifier
		cfg.Subscription.FreePlanSlug,
	)
	checkout := service.NewCheckoutService(
		gw.gateway,
		charges,
		subs,
		commerceClient, // implements ports.PlanCatalog
		commerceClient, // implements ports.OrderService
		commerceClient, // implements ports.UserDirectory
		subscriptions,
	)
	subscriptions.SetRenewalRequester(checkout)
	ingestor := service.NewWebhookIngestor(gw.gateway, charges, dedup, subscriptions, commerceClient, commerceClient, metrics)

	sweeper := service.NewSweeper(subscriptions.SweepExpired, cfg.Subscription.SweepInterval)
	sweeper.Start(ctx)

	// API Layer
	paymentHandler := handlers.NewPaymentHandler(gw.auth, gw.decoder, ingestor, handlers.HealthInfo{
		Service:  cfg.Telemetry.ServiceName,
		Version:  version,
		Provider: cfg.Gateway.Provider,
		Mode:     gw.mode,
	})
	router := handlers.SetupRouter(
		paymentHandler,
		handlers.NewSubscriptionHandler(subscriptions),
		handlers.NewCheckoutHandler(checkout),
		handlers.RouterConfig{
			GinMode:        cfg.Server.GinMode,
			ServiceName:    cfg.Telemetry.ServiceName,
			ServiceAPIKey:  cfg.Server.ServiceAPIKey,
			AllowedOrigins: cfg.Server.AllowedOrigins,
			Production:     cfg.IsProduction(),
		},
	)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	<-ctx.Done()
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	sweeper.Wait()
	if err := commerceClient.Wait(shutdownCtx); err != nil {
		log.Printf("Pending notifications dropped: %v", err)
	}
	if pool != nil {
		pool.Close()
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		log.Printf("Telemetry shutdown error: %v", err)
	}
	log.Println("Server stopped")
}

// newGateway builds the client, webhook authenticator and decoder of the
// configured provider.
func newGateway(cfg *config.Config) (*gatewayBundle, error) {
	switch cfg.Gateway.Provider {
	case "mercadopago":
		adapter, err := mercadopago.NewAdapter(cfg.Gateway.APIKey, cfg.Gateway.NotificationURL, cfg.Gateway.Timeout)
		if err != nil {
			return nil, err
		}
		return &gatewayBundle{
			gateway: adapter,
			auth:    mercadopago.NewWebhookValidator(cfg.Gateway.WebhookToken, cfg.IsProduction()),
			decoder: mercadopago.WebhookDecoder{},
			mode:    "live",
		}, nil
	default:
		client, err := asaas.NewClient(asaas.Options{
			APIKey:         cfg.Gateway.APIKey,
			BaseURL:        cfg.Gateway.BaseURL,
			Timeout:        cfg.Gateway.Timeout,
			MaxConcurrency: cfg.Gateway.MaxConcurrency,
			Production:     cfg.IsProduction(),
		})
		if err != nil {
			return nil, err
		}
		return &gatewayBundle{
			gateway: client,
			auth:    asaas.NewTokenAuthenticator(cfg.Gateway.WebhookToken, cfg.IsProduction()),
			decoder: asaas.WebhookDecoder{},
			mode:    client.Mode().String(),
		}, nil
	}
}
