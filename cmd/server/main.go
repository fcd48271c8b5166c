package main

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"beacon/internal/api"
	"beacon/internal/api/handlers"
	"beacon/internal/api/middleware"
	"beacon/internal/engine/delivery"
	"beacon/internal/engine/receiver"
	"beacon/internal/engine/registry"
	"beacon/internal/engine/stream"
	"beacon/internal/pkg/logger"
	"beacon/internal/platform/auth"
	"beacon/internal/platform/config"
	"beacon/internal/platform/database"
	"beacon/internal/platform/entitystore"
	"beacon/internal/platform/repositories"
	"beacon/internal/platform/security"
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

	if err := repositories.Migrate(db); err != nil {
		log.Fatalf("Failed to apply schema: %v", err)
	}

	// Repositories
	webhookRepo := repositories.NewWebhookRepository(db)
	deliveryRepo := repositories.NewDeliveryRepository(db)
	incomingRepo := repositories.NewIncomingWebhookRepository(db)

	// Services
	tokenSvc := auth.NewTokenService(cfg.JWT)
	gate := security.NewGate(cfg.RateLimit)
	defer gate.Close()
	registrySvc := registry.NewService(webhookRepo, deliveryRepo)
	engine := delivery.NewEngine(webhookRepo, deliveryRepo, cfg.Webhooks.Timeout)

	// Stream hub: the periodic snapshot is a cheap aggregate over live
	// connection state.
	var hub *stream.Hub
	hub = stream.NewHub(stream.HubOptions{
		UpdateInterval: cfg.Stream.UpdateInterval,
		SendBuffer:     cfg.Stream.SendBuffer,
		Snapshot: func() interface{} {
			return map[string]interface{}{
				"connections": hub.ConnectionCount(),
				"topics":      hub.TopicCount(),
				"generated":   time.Now().Unix(),
			}
		},
		Data: func(dataType string) (interface{}, error) {
			switch dataType {
			case "connections":
				return map[string]interface{}{"count": hub.ConnectionCount()}, nil
			case "topics":
				return map[string]interface{}{"count": hub.TopicCount()}, nil
			default:
				return nil, fmt.Errorf("unknown data type: %s", dataType)
			}
		},
	})
	broadcaster := stream.NewBroadcaster(hub)

	// Inbound receiver with provider normalizers
	store := entitystore.New(db)
	normalizers := receiver.NewRegistry()
	normalizers.Register("crm", receiver.NewCRMNormalizer(store))
	normalizers.Register("forms", receiver.NewFormsNormalizer(store))
	receiverSvc := receiver.NewService(incomingRepo, normalizers)

	// Handlers
	deps := &api.Dependencies{
		WebhookHandler:  handlers.NewWebhookHandler(registrySvc, gate),
		TriggerHandler:  handlers.NewTriggerHandler(engine, registrySvc, broadcaster),
		StreamHandler:   handlers.NewStreamHandler(hub),
		ReceiverHandler: handlers.NewReceiverHandler(receiverSvc),
		DeliveryHandler: handlers.NewDeliveryHandler(registrySvc, deliveryRepo),
		HealthHandler:   handlers.NewHealthHandler(db),
		MetricsHandler:  handlers.NewMetricsHandler(hub),
		AuthMiddleware:  middleware.NewAuthMiddleware(tokenSvc),
		Gate:            gate,
	}
	router := api.NewRouter(deps)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	log.Printf("Server starting on %s", addr)
	if err := server.ListenAndServe(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
