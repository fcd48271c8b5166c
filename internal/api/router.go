package api

import (
	"context"
	"net/http"

	"github.com/julienschmidt/httprouter"

	apiContext "beacon/internal/api/context"
	"beacon/internal/api/handlers"
	"beacon/internal/api/middleware"
	"beacon/internal/platform/security"
)

type Dependencies struct {
	WebhookHandler  *handlers.WebhookHandler
	TriggerHandler  *handlers.TriggerHandler
	StreamHandler   *handlers.StreamHandler
	ReceiverHandler *handlers.ReceiverHandler
	DeliveryHandler *handlers.DeliveryHandler
	HealthHandler   *handlers.HealthHandler
	MetricsHandler  *handlers.MetricsHandler
	AuthMiddleware  *middleware.AuthMiddleware
	Gate            *security.Gate
}

func NewRouter(deps *Dependencies) *httprouter.Router {
	router := httprouter.New()

	authMid := deps.AuthMiddleware.Handle
	readLimit := middleware.RateLimit(deps.Gate, "api_read")
	writeLimit := middleware.RateLimit(deps.Gate, "api_write")
	receiverLimit := middleware.RateLimit(deps.Gate, "receiver")

	// Webhook management
	router.GET("/api/v1/webhooks", chain(deps.WebhookHandler.List, authMid, readLimit))
	router.POST("/api/v1/webhooks", chain(deps.WebhookHandler.Create, authMid, writeLimit))
	router.GET("/api/v1/webhooks/:webhook_id", chain(deps.WebhookHandler.Get, authMid, readLimit))
	router.PATCH("/api/v1/webhooks/:webhook_id", chain(deps.WebhookHandler.Update, authMid, writeLimit))
	router.DELETE("/api/v1/webhooks/:webhook_id", chain(deps.WebhookHandler.Delete, authMid, writeLimit))
	router.POST("/api/v1/webhooks/:webhook_id/test", chain(deps.TriggerHandler.Test, authMid, writeLimit))

	// Delivery log
	router.GET("/api/v1/deliveries", chain(deps.DeliveryHandler.List, authMid, readLimit))

	// Event distribution
	router.POST("/api/v1/events/trigger", chain(deps.TriggerHandler.Trigger, authMid, writeLimit))
	router.POST("/api/v1/broadcast", chain(deps.TriggerHandler.Broadcast, authMid, writeLimit))

	// Live connections
	router.GET("/api/v1/stream", chain(deps.StreamHandler.Handle, authMid))

	// Inbound receiver: public, rate-limited by remote address
	router.POST("/receive/:provider", chain(deps.ReceiverHandler.Handle, receiverLimit))

	// Operational
	router.GET("/health", wrap(deps.HealthHandler.Check))
	router.GET("/metrics", wrap(deps.MetricsHandler.Export))

	return router
}

// Helper function to chain middlewares
func chain(handler http.HandlerFunc, middlewares ...func(http.HandlerFunc) http.HandlerFunc) httprouter.Handle {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return wrap(handler)
}

// Convert http.HandlerFunc to httprouter.Handle
func wrap(handler http.HandlerFunc) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		// Inject params into context
		ctx := context.WithValue(r.Context(), apiContext.Params, ps)
		handler(w, r.WithContext(ctx))
	}
}
