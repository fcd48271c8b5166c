package delivery

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"beacon/internal/platform/models"
	"beacon/internal/platform/repositories"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open db: %v", err)
	}
	// One shared in-memory database across the pool.
	db.SetMaxOpenConns(1)
	if err := repositories.Migrate(db); err != nil {
		t.Fatalf("Failed to apply schema: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestEngine(t *testing.T) (*Engine, *repositories.WebhookRepository, *repositories.DeliveryRepository) {
	t.Helper()
	db := setupTestDB(t)
	webhookRepo := repositories.NewWebhookRepository(db)
	deliveryRepo := repositories.NewDeliveryRepository(db)
	return NewEngine(webhookRepo, deliveryRepo, 5*time.Second), webhookRepo, deliveryRepo
}

func createWebhook(t *testing.T, repo *repositories.WebhookRepository, url string, events []string) *models.Webhook {
	t.Helper()
	webhook := &models.Webhook{
		OwnerID: "user_1",
		Name:    "org-sync",
		URL:     url,
		Events:  events,
		Secret:  "whsec_test",
	}
	if err := repo.Create(webhook); err != nil {
		t.Fatalf("Failed to create webhook: %v", err)
	}
	return webhook
}

func TestDeliverOne_Success(t *testing.T) {
	var gotSignature, gotEvent, gotDeliveryID, gotCustom string
	var gotBody []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSignature = r.Header.Get(HeaderSignature)
		gotEvent = r.Header.Get(HeaderEvent)
		gotDeliveryID = r.Header.Get(HeaderDelivery)
		gotCustom = r.Header.Get("X-Custom")
		body := make([]byte, r.ContentLength)
		r.Body.Read(body)
		gotBody = body
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	engine, webhookRepo, _ := newTestEngine(t)
	webhook := createWebhook(t, webhookRepo, server.URL, []string{"organization.created"})
	webhook.Headers = map[string]string{
		"X-Custom":      "yes",
		HeaderSignature: "spoofed", // reserved; must not override
	}

	event := models.NewEventPayload("organization.created", map[string]interface{}{"id": 42, "name": "Acme"})
	record, err := engine.DeliverOne(context.Background(), webhook, event, Options{})
	if err != nil {
		t.Fatalf("DeliverOne() error: %v", err)
	}

	if record.Status != models.DeliveryStatusDelivered {
		t.Errorf("Expected status delivered, got %s (error: %s)", record.Status, record.Error)
	}
	if record.HTTPStatus != http.StatusOK {
		t.Errorf("Expected HTTP 200, got %d", record.HTTPStatus)
	}
	if record.Attempt != 1 {
		t.Errorf("Expected attempt 1, got %d", record.Attempt)
	}

	if gotEvent != "organization.created" {
		t.Errorf("Expected event header organization.created, got %s", gotEvent)
	}
	if gotDeliveryID != record.ID {
		t.Errorf("Expected delivery header %s, got %s", record.ID, gotDeliveryID)
	}
	if gotCustom != "yes" {
		t.Errorf("Expected custom header to pass through, got %q", gotCustom)
	}
	if gotSignature == "spoofed" {
		t.Error("Custom header overrode the reserved signature header")
	}
	if !Verify(gotSignature, gotBody, webhook.Secret) {
		t.Error("Outbound signature does not verify against the body")
	}

	var sent models.EventPayload
	if err := json.Unmarshal(gotBody, &sent); err != nil {
		t.Fatalf("Outbound body is not valid JSON: %v", err)
	}
	if sent.Data["id"] != float64(42) {
		t.Errorf("Expected data.id=42 in outbound payload, got %v", sent.Data["id"])
	}

	// Counters incremented
	updated, err := webhookRepo.GetByID("user_1", webhook.ID)
	if err != nil {
		t.Fatalf("Failed to reload webhook: %v", err)
	}
	if updated.SuccessCount != 1 || updated.AttemptCount != 1 {
		t.Errorf("Expected success/attempt counts 1/1, got %d/%d", updated.SuccessCount, updated.AttemptCount)
	}
	if updated.LastSuccessAt == 0 {
		t.Error("Expected last_success_at to be set")
	}
}

func TestDeliverOne_Failure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("upstream broke"))
	}))
	defer server.Close()

	engine, webhookRepo, _ := newTestEngine(t)
	webhook := createWebhook(t, webhookRepo, server.URL, []string{"deal.updated"})

	event := models.NewEventPayload("deal.updated", map[string]interface{}{"id": 7})
	record, err := engine.DeliverOne(context.Background(), webhook, event, Options{})
	if err != nil {
		t.Fatalf("DeliverOne() error: %v", err)
	}

	if record.Status != models.DeliveryStatusFailed {
		t.Errorf("Expected status failed, got %s", record.Status)
	}
	if record.HTTPStatus != http.StatusInternalServerError {
		t.Errorf("Expected HTTP 500, got %d", record.HTTPStatus)
	}
	if record.Error == "" {
		t.Error("Expected error detail on failed record")
	}
	if record.Response != "upstream broke" {
		t.Errorf("Expected response excerpt, got %q", record.Response)
	}

	updated, _ := webhookRepo.GetByID("user_1", webhook.ID)
	if updated.FailureCount != 1 {
		t.Errorf("Expected failure count 1, got %d", updated.FailureCount)
	}
}

func TestDeliverOne_NetworkError(t *testing.T) {
	engine, webhookRepo, _ := newTestEngine(t)
	// Closed port: connection refused.
	webhook := createWebhook(t, webhookRepo, "http://127.0.0.1:1", []string{"contact.created"})

	event := models.NewEventPayload("contact.created", nil)
	record, err := engine.DeliverOne(context.Background(), webhook, event, Options{})
	if err != nil {
		t.Fatalf("DeliverOne() error: %v", err)
	}

	if record.Status != models.DeliveryStatusFailed {
		t.Errorf("Expected status failed, got %s", record.Status)
	}
	if record.HTTPStatus != 0 {
		t.Errorf("Expected no HTTP status on network error, got %d", record.HTTPStatus)
	}
}

func TestDeliverOne_TestDeliverySkipsCounters(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	engine, webhookRepo, _ := newTestEngine(t)
	webhook := createWebhook(t, webhookRepo, server.URL, []string{"webhook.test"})

	event := models.NewEventPayload("webhook.test", map[string]interface{}{"test": true})
	record, err := engine.DeliverOne(context.Background(), webhook, event, Options{IsTest: true})
	if err != nil {
		t.Fatalf("DeliverOne() error: %v", err)
	}
	if !record.IsTest {
		t.Error("Expected is_test flag on record")
	}

	updated, _ := webhookRepo.GetByID("user_1", webhook.ID)
	if updated.AttemptCount != 0 {
		t.Errorf("Test delivery must not touch counters, attempt count = %d", updated.AttemptCount)
	}
}

func TestDeliverToSubscribers_IsolatesFailures(t *testing.T) {
	var okCount int32
	okServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&okCount, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer okServer.Close()

	badServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer badServer.Close()

	engine, webhookRepo, _ := newTestEngine(t)
	createWebhook(t, webhookRepo, okServer.URL, []string{"organization.created"})
	createWebhook(t, webhookRepo, badServer.URL, []string{"organization.created"})
	createWebhook(t, webhookRepo, okServer.URL, []string{"organization.created"})
	// Subscribed to a different event; must not be targeted.
	createWebhook(t, webhookRepo, okServer.URL, []string{"deal.won"})

	event := models.NewEventPayload("organization.created", map[string]interface{}{"id": 42})
	records, tally, err := engine.DeliverToSubscribers(context.Background(), "organization.created", event)
	if err != nil {
		t.Fatalf("DeliverToSubscribers() error: %v", err)
	}

	if len(records) != 3 {
		t.Fatalf("Expected 3 delivery records, got %d", len(records))
	}
	if tally.Delivered != 2 || tally.Failed != 1 {
		t.Errorf("Expected tally 2/1, got %d/%d", tally.Delivered, tally.Failed)
	}
	if atomic.LoadInt32(&okCount) != 2 {
		t.Errorf("Expected 2 successful sends, got %d", okCount)
	}
}

func TestDeliverToSubscribers_InactiveExcluded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	engine, webhookRepo, _ := newTestEngine(t)
	webhook := createWebhook(t, webhookRepo, server.URL, []string{"contact.created"})
	webhook.Active = false
	if err := webhookRepo.Update(webhook); err != nil {
		t.Fatalf("Failed to deactivate webhook: %v", err)
	}

	event := models.NewEventPayload("contact.created", nil)
	records, tally, err := engine.DeliverToSubscribers(context.Background(), "contact.created", event)
	if err != nil {
		t.Fatalf("DeliverToSubscribers() error: %v", err)
	}
	if len(records) != 0 || tally.Delivered != 0 {
		t.Errorf("Inactive webhook was targeted: %d records", len(records))
	}
}
