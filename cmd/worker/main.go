package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"beacon/internal/engine/delivery"
	"beacon/internal/pkg/logger"
	"beacon/internal/platform/config"
	"beacon/internal/platform/database"
	"beacon/internal/platform/repositories"
	"beacon/internal/workers"
)

func main() {
	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.Init(cfg.Logging)

	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	webhookRepo := repositories.NewWebhookRepository(db)
	deliveryRepo := repositories.NewDeliveryRepository(db)
	engine := delivery.NewEngine(webhookRepo, deliveryRepo, cfg.Webhooks.Timeout)

	policy := delivery.DefaultRetryPolicy()
	policy.MaxAttempts = cfg.Webhooks.MaxAttempts
	policy.BaseDelay = cfg.Webhooks.BackoffBase

	worker := workers.NewRetryWorker(engine, webhookRepo, deliveryRepo, policy)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go worker.Run(ctx, cfg.Webhooks.RetryInterval)
	log.Println("Delivery retry worker started")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("Shutting down")
}
