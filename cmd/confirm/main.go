package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ariefcatur/go-saree-storefront/internal/config"
	"github.com/ariefcatur/go-saree-storefront/internal/confirm"
	kafkax "github.com/ariefcatur/go-saree-storefront/internal/kafka"
	"github.com/ariefcatur/go-saree-storefront/internal/logger"
	"github.com/ariefcatur/go-saree-storefront/internal/orders"
	"github.com/ariefcatur/go-saree-storefront/internal/redisx"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	service := cfg.ServiceName + "-confirm"
	log, err := logger.New(logger.Config{
		Level:    cfg.LogLevel,
		Format:   cfg.LogFormat,
		Output:   cfg.LogOutput,
		FilePath: cfg.LogFile,
		Service:  service,
	})
	if err != nil {
		slog.Error("logger setup", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	desk := &confirm.Desk{
		Redis:       rdb,
		Status:      redisx.NewStatusCache(rdb),
		ServiceName: service,
		Log:         log,
	}

	// Consumer; after giving up on a message a fresh one resumes from the last commit
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		for {
			cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.ConfirmGroup, orders.TopicOrderPlaced, cfg.ConfirmWorkers, log)
			log.Info("confirm consumer started", "group", cfg.ConfirmGroup, "topic", orders.TopicOrderPlaced, "workers", cfg.ConfirmWorkers)
			err := cons.Start(ctx, desk.HandleOrderPlaced)
			if err == nil {
				return
			}
			if !errors.Is(err, kafkax.ErrGaveUp) {
				log.Error("consumer exit", "error", err)
				cancel()
				return
			}
			log.Warn("consumer restarting", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
		}
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Info("shutting down consumer")
	cancel()
	select {
	case <-stopped:
	case <-time.After(10 * time.Second):
		log.Warn("consumer did not stop in time")
	}
}
