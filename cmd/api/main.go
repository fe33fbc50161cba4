package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ariefcatur/go-saree-storefront/internal/auth"
	"github.com/ariefcatur/go-saree-storefront/internal/cart"
	"github.com/ariefcatur/go-saree-storefront/internal/catalog"
	"github.com/ariefcatur/go-saree-storefront/internal/checkout"
	"github.com/ariefcatur/go-saree-storefront/internal/config"
	"github.com/ariefcatur/go-saree-storefront/internal/confirm"
	"github.com/ariefcatur/go-saree-storefront/internal/httpx"
	kafkax "github.com/ariefcatur/go-saree-storefront/internal/kafka"
	"github.com/ariefcatur/go-saree-storefront/internal/logger"
	"github.com/ariefcatur/go-saree-storefront/internal/orders"
	"github.com/ariefcatur/go-saree-storefront/internal/postgres"
	"github.com/ariefcatur/go-saree-storefront/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log, err := logger.New(logger.Config{
		Level:    cfg.LogLevel,
		Format:   cfg.LogFormat,
		Output:   cfg.LogOutput,
		FilePath: cfg.LogFile,
		Service:  cfg.ServiceName,
	})
	if err != nil {
		slog.Error("logger setup", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	if cfg.AutoMigrate {
		if err := postgres.Migrate(cfg.PostgresDSN); err != nil {
			log.Error("db migrate", "error", err)
			os.Exit(1)
		}
	}
	db, err := postgres.Connect(ctx, cfg.PostgresDSN, postgres.PoolOptions{})
	if err != nil {
		log.Error("db connect", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	statusCache := redisx.NewStatusCache(rdb)

	// Kafka producers, one per topic
	pPlaced := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderPlaced, cfg.ProducerBuffer, log)
	pPlaced.Start(ctx)
	pStatus := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderStatusChanged, cfg.ProducerBuffer, log)
	pStatus.Start(ctx)
	events := &orders.Publisher{Placed: pPlaced, Status: pStatus, Service: cfg.ServiceName}

	// Domain
	orderRepo := &orders.Repo{DB: db}
	catalogRepo := &catalog.Repo{DB: db}
	sessions := cart.NewSessions(redisx.NewCartPersister(rdb, cfg.CartTTL), log)
	orch := checkout.NewOrchestrator(checkout.Deps{
		Sessions: sessions,
		Catalog:  catalogRepo,
		Orders:   orderRepo,
		Events:   events,
		Status:   statusCache,
		Log:      log,
	}, checkout.Options{
		Timeout:         cfg.CheckoutTimeout,
		BreakerFailures: cfg.BreakerFailures,
		BreakerCooldown: cfg.BreakerCooldown,
	})
	desk := &confirm.Desk{Redis: rdb, Status: statusCache, ServiceName: cfg.ServiceName, Log: log}

	if cfg.JWTSecret == "" {
		log.Warn("AUTH_JWT_SECRET not set, bearer tokens will be rejected")
	}

	router := httpx.NewRouter(log)
	httpx.Routes{
		Cart:     &httpx.CartHandler{Sessions: sessions},
		Checkout: &httpx.CheckoutHandler{Orchestrator: orch},
		Catalog:  &httpx.CatalogHandler{Catalog: catalogRepo, Log: log},
		Orders: &httpx.OrdersHandler{
			Repo:      orderRepo,
			Cache:     statusCache,
			Publisher: events,
			Callbacks: desk,
			Log:       log,
		},
		Session:  &httpx.SessionHandler{Sessions: sessions, Phases: orch.Phases()},
		Verifier: auth.NewVerifier(cfg.JWTSecret),
		Timeout:  cfg.CheckoutTimeout + 5*time.Second,
	}.Mount(router)

	// evict idle carts from memory, redis keeps them; idle checkout phases go too
	go func() {
		t := time.NewTicker(time.Minute)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if n := sessions.Sweep(cfg.SessionIdle); n > 0 {
					log.Debug("idle carts evicted", "count", n)
				}
				if n := orch.Phases().Sweep(cfg.SessionIdle); n > 0 {
					log.Debug("idle checkout phases dropped", "count", n)
				}
			}
		}
	}()

	// HTTP server
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	// graceful shutdown
	go func() {
		log.Info("http listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("listen", "error", err)
			os.Exit(1)
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	pPlaced.Close()
	pStatus.Close()
	cancel()
	pPlaced.WaitClosed()
	pStatus.WaitClosed()
}
