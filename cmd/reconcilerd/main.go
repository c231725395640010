package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/orderflow/reconciler/pkg/auth"
	"github.com/orderflow/reconciler/pkg/config"
	"github.com/orderflow/reconciler/pkg/idempotency"
	"github.com/orderflow/reconciler/pkg/logging"
	"github.com/orderflow/reconciler/pkg/outbox"
	"github.com/orderflow/reconciler/pkg/shutdown"
	"github.com/orderflow/reconciler/pkg/tracing"

	catalogapp "github.com/orderflow/reconciler/internal/catalog/application"
	catalogpg "github.com/orderflow/reconciler/internal/catalog/infrastructure/postgres"
	"github.com/orderflow/reconciler/internal/mirror/infrastructure/contentapi"
	mirrorhttp "github.com/orderflow/reconciler/internal/mirror/infrastructure/http"
	orderapp "github.com/orderflow/reconciler/internal/order/application"
	orderhttp "github.com/orderflow/reconciler/internal/order/infrastructure/http"
	orderkafka "github.com/orderflow/reconciler/internal/order/infrastructure/kafka"
	orderpg "github.com/orderflow/reconciler/internal/order/infrastructure/postgres"
	paymentapp "github.com/orderflow/reconciler/internal/payment/application"
	"github.com/orderflow/reconciler/internal/payment/infrastructure/gateway"
	paymenthttp "github.com/orderflow/reconciler/internal/payment/infrastructure/http"
	syncapp "github.com/orderflow/reconciler/internal/sync/application"
	synchttp "github.com/orderflow/reconciler/internal/sync/infrastructure/http"
)

func main() {
	cfg := config.Load()
	log := logging.New(logging.Options{Service: cfg.Service, Env: cfg.Env, Level: cfg.LogLevel})

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	tp, err := tracing.Init(ctx, cfg.Service, cfg.OTLPEndpoint, log)
	if err != nil {
		log.Error("otel init failed", "err", err)
		os.Exit(1)
	}
	defer func() { _ = tp.Shutdown(ctx) }()

	pool, err := pgxpool.New(ctx, cfg.PGURL)
	if err != nil {
		log.Error("pg connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	writer := orderkafka.NewWriter(cfg.KafkaBrokers)
	defer writer.Close()

	// Order store
	orders := orderpg.NewRepository(log, pool)
	users := orderpg.NewUserRepository(log, pool)
	addresses := orderpg.NewAddressRepository(log, pool)
	identity := orderapp.NewIdentity(log, users)
	orderSvc := orderapp.NewService(log, orders, addresses)

	// Outbox relay
	outboxStore := orderpg.NewOutboxStore(log, pool)
	dispatch := outbox.NewDispatcher(log, writer, cfg.OutboxTopic)
	relay := outbox.NewRelay(log, outboxStore, dispatch, cfg.Service+"-relay")
	go func() {
		if err := relay.Run(ctx); err != nil {
			log.Error("relay stopped with error", "err", err)
		}
	}()

	// Catalog
	products := catalogpg.NewRepository(log, pool)
	catalog := catalogapp.NewService(log, products)

	// Payment gateway
	idem := idempotency.NewStore(rdb, cfg.IdemTTL)
	gw := gateway.NewClient(log, cfg.GatewayBaseURL, cfg.GatewayAPIKey, cfg.GatewayWebhookSecret)
	checkout := paymentapp.NewCheckout(log, gw, orders, addresses, identity, catalog, idem, cfg.Currency, cfg.PriceEnforce)
	webhook := paymentapp.NewWebhook(log, orders, idem)

	// Content mirror
	mirror := contentapi.NewClient(log, cfg.MirrorBaseURL, cfg.MirrorToken)
	reconciler := syncapp.NewReconciler(log, orders, mirror)

	// HTTP surface
	verifier := auth.NewHSVerifier(cfg.AuthJWTSecret, cfg.AuthIssuer)
	orderHandler := orderhttp.NewHandler(log, orderSvc, identity)
	paymentHandler := paymenthttp.NewHandler(log, checkout, webhook, gw)
	syncHandler := synchttp.NewHandler(log, reconciler, cfg.SyncToken)
	mirrorHandler := mirrorhttp.NewHandler(log, reconciler, cfg.MirrorWebhookSecret)

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(log, verifier))
		orderHandler.Register(r)
		paymentHandler.Register(r)
	})
	paymentHandler.RegisterWebhook(r)
	mirrorHandler.Register(r)
	syncHandler.Register(r)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	go func() {
		log.Info("http listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server error", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = srv.Shutdown(shutdownCtx)
	log.Info("shutdown complete")
}
