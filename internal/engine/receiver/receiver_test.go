package receiver

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"beacon/internal/platform/entitystore"
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

func newTestService(t *testing.T) (*Service, *repositories.IncomingWebhookRepository, *entitystore.Store) {
	t.Helper()
	db := setupTestDB(t)
	records := repositories.NewIncomingWebhookRepository(db)
	store := entitystore.New(db)
	registry := NewRegistry()
	registry.Register("crm", NewCRMNormalizer(store))
	registry.Register("forms", NewFormsNormalizer(store))
	return NewService(records, registry), records, store
}

type failingNormalizer struct{ err error }

func (f *failingNormalizer) Normalize(context.Context, []byte, map[string]string) (*Result, error) {
	return nil, f.err
}

type panickingNormalizer struct{}

func (panickingNormalizer) Normalize(context.Context, []byte, map[string]string) (*Result, error) {
	panic("boom")
}

func TestReceive_UnknownProviderUsesGeneric(t *testing.T) {
	svc, records, _ := newTestService(t)

	payload := []byte(`{"event":"user.created","user":{"id":5}}`)
	record, err := svc.Receive(context.Background(), "mystery", payload, map[string]string{"Content-Type": "application/json"})
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}

	if !record.Processed {
		t.Error("Expected record to be processed")
	}
	if record.ProcessingError != "" {
		t.Errorf("Expected no processing error, got %q", record.ProcessingError)
	}

	var result Result
	if err := json.Unmarshal([]byte(record.Result), &result); err != nil {
		t.Fatalf("Result is not valid JSON: %v", err)
	}
	if !strings.Contains(result.Summary, "2 top-level keys") {
		t.Errorf("Expected summary to count top-level keys, got %q", result.Summary)
	}
	keys, _ := result.Details["keys"].([]interface{})
	if len(keys) != 2 || keys[0] != "event" || keys[1] != "user" {
		t.Errorf("Expected sorted keys [event user], got %v", keys)
	}

	stored, err := records.GetByID(record.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if !stored.Processed || stored.ProcessedAt == 0 {
		t.Error("Expected persisted record to be marked processed with a timestamp")
	}
	if stored.Payload != string(payload) {
		t.Error("Expected raw payload to be persisted untouched")
	}
}

func TestReceive_NormalizerErrorStillFinalizesRecord(t *testing.T) {
	svc, records, _ := newTestService(t)
	svc.normalizers.Register("broken", &failingNormalizer{err: errors.New("upstream format changed")})

	record, err := svc.Receive(context.Background(), "broken", []byte(`{}`), nil)
	if err != nil {
		t.Fatalf("Receive should not fail on normalizer error: %v", err)
	}
	if !record.Processed {
		t.Error("Expected record to be processed despite normalizer error")
	}
	if record.ProcessingError != "upstream format changed" {
		t.Errorf("Expected processing error to be recorded, got %q", record.ProcessingError)
	}

	stored, _ := records.GetByID(record.ID)
	if stored.ProcessingError == "" {
		t.Error("Expected processing error to be persisted")
	}
	if stored.Result != "" {
		t.Errorf("Expected no result on failure, got %q", stored.Result)
	}
}

func TestReceive_NormalizerPanicIsContained(t *testing.T) {
	svc, _, _ := newTestService(t)
	svc.normalizers.Register("spiky", panickingNormalizer{})

	record, err := svc.Receive(context.Background(), "spiky", []byte(`{}`), nil)
	if err != nil {
		t.Fatalf("Receive should contain normalizer panics: %v", err)
	}
	if !strings.Contains(record.ProcessingError, "normalizer panic") {
		t.Errorf("Expected panic to surface as processing error, got %q", record.ProcessingError)
	}
}

func TestReceive_CRMCreateAndUpdate(t *testing.T) {
	svc, _, store := newTestService(t)

	// Seed a contact the update operation can hit.
	id, err := store.Create(context.Background(), "contacts", map[string]interface{}{
		"name":  "Ada",
		"email": "ada@example.com",
	})
	if err != nil {
		t.Fatalf("Seed contact failed: %v", err)
	}
	if !strings.HasPrefix(id, "con_") {
		t.Errorf("Expected contact id prefix con_, got %s", id)
	}

	payload := []byte(`{"operations":[
		{"collection":"deals","action":"create","fields":{"title":"Renewal","stage":"open","amount":1200}},
		{"collection":"contacts","action":"update","filter":{"email":"ada@example.com"},"fields":{"phone":"555-0100"}}
	]}`)

	record, err := svc.Receive(context.Background(), "crm", payload, nil)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if record.ProcessingError != "" {
		t.Fatalf("Expected clean processing, got error %q", record.ProcessingError)
	}

	var result Result
	json.Unmarshal([]byte(record.Result), &result)
	if len(result.Entities) != 2 {
		t.Fatalf("Expected 2 entity changes, got %d", len(result.Entities))
	}
	if result.Entities[0].Operation != "created" || result.Entities[0].Collection != "deals" {
		t.Errorf("Unexpected first change: %+v", result.Entities[0])
	}
	if result.Entities[1].Operation != "updated:1" {
		t.Errorf("Expected one contact updated, got %q", result.Entities[1].Operation)
	}
}

func TestReceive_CRMRejectsUnknownCollection(t *testing.T) {
	svc, _, _ := newTestService(t)

	payload := []byte(`{"operations":[{"collection":"invoices","action":"create","fields":{"title":"x"}}]}`)
	record, err := svc.Receive(context.Background(), "crm", payload, nil)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if record.ProcessingError == "" {
		t.Error("Expected processing error for unknown collection")
	}
}

func TestReceive_FormsUpsertsContact(t *testing.T) {
	svc, _, _ := newTestService(t)

	payload := []byte(`{"email":"lead@example.com","name":"Lead","form":"pricing"}`)
	record, err := svc.Receive(context.Background(), "forms", payload, nil)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if record.ProcessingError != "" {
		t.Fatalf("Expected clean processing, got error %q", record.ProcessingError)
	}

	var first Result
	json.Unmarshal([]byte(record.Result), &first)
	if len(first.Entities) != 1 || first.Entities[0].Operation != "created" {
		t.Fatalf("Expected a contact to be created, got %+v", first.Entities)
	}

	// Same email again updates instead of duplicating.
	record, err = svc.Receive(context.Background(), "forms", []byte(`{"email":"lead@example.com","phone":"555-0101","form":"contact"}`), nil)
	if err != nil {
		t.Fatalf("Second receive failed: %v", err)
	}

	var second Result
	json.Unmarshal([]byte(record.Result), &second)
	if len(second.Entities) != 1 || second.Entities[0].Operation != "updated" {
		t.Errorf("Expected the existing contact to be updated, got %+v", second.Entities)
	}
}

func TestReceive_FormsRequiresEmail(t *testing.T) {
	svc, _, _ := newTestService(t)

	record, err := svc.Receive(context.Background(), "forms", []byte(`{"name":"No Email"}`), nil)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if !strings.Contains(record.ProcessingError, "missing email") {
		t.Errorf("Expected missing-email error, got %q", record.ProcessingError)
	}
}

func TestGenericNormalizer_DoesNotTouchEntities(t *testing.T) {
	g := &GenericNormalizer{}
	result, err := g.Normalize(context.Background(), []byte(`{"b":1,"a":2}`), nil)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if len(result.Entities) != 0 {
		t.Errorf("Generic normalizer must not report entity changes, got %+v", result.Entities)
	}
}

func TestGenericNormalizer_RejectsInvalidJSON(t *testing.T) {
	g := &GenericNormalizer{}
	if _, err := g.Normalize(context.Background(), []byte(`not json`), nil); err == nil {
		t.Error("Expected error for invalid JSON payload")
	}
}
