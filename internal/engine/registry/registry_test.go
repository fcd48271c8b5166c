package registry

import (
	"database/sql"
	"errors"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	apperrors "beacon/internal/pkg/errors"
	"beacon/internal/platform/models"
	"beacon/internal/platform/repositories"
)

func newTestService(t *testing.T) (*Service, *repositories.DeliveryRepository) {
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

	deliveries := repositories.NewDeliveryRepository(db)
	return NewService(repositories.NewWebhookRepository(db), deliveries), deliveries
}

func validInput() CreateInput {
	return CreateInput{
		Name:   "CRM Sync",
		URL:    "https://example.com/hooks/crm",
		Events: []string{"contact.created"},
	}
}

func TestCreate_GeneratesSecret(t *testing.T) {
	svc, _ := newTestService(t)

	w, err := svc.Create("org_1", validInput())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if !strings.HasPrefix(w.Secret, "whsec_") {
		t.Errorf("Expected generated secret with whsec_ prefix, got %q", w.Secret)
	}
	if len(w.Secret) != len("whsec_")+48 {
		t.Errorf("Expected 48 hex chars of secret material, got %d", len(w.Secret)-len("whsec_"))
	}

	// Two creations never share a secret.
	w2, _ := svc.Create("org_1", validInput())
	if w.Secret == w2.Secret {
		t.Error("Expected distinct secrets per webhook")
	}
}

func TestCreate_KeepsCallerSecret(t *testing.T) {
	svc, _ := newTestService(t)

	input := validInput()
	input.Secret = "whsec_caller_chosen"
	w, err := svc.Create("org_1", input)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if w.Secret != "whsec_caller_chosen" {
		t.Errorf("Expected caller secret to be kept, got %q", w.Secret)
	}
}

func TestCreate_Validation(t *testing.T) {
	svc, _ := newTestService(t)

	tests := []struct {
		name   string
		mutate func(*CreateInput)
		field  string
	}{
		{"empty name", func(in *CreateInput) { in.Name = "" }, "name"},
		{"no events", func(in *CreateInput) { in.Events = nil }, "events"},
		{"blank event", func(in *CreateInput) { in.Events = []string{"contact.created", ""} }, "events"},
		{"relative url", func(in *CreateInput) { in.URL = "/hooks/crm" }, "url"},
		{"bad scheme", func(in *CreateInput) { in.URL = "ftp://example.com/hook" }, "url"},
		{"empty url", func(in *CreateInput) { in.URL = "" }, "url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := validInput()
			tt.mutate(&input)

			_, err := svc.Create("org_1", input)
			var vErr *apperrors.ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("Expected validation error, got %v", err)
			}
			if vErr.Field != tt.field {
				t.Errorf("Expected field %q, got %q", tt.field, vErr.Field)
			}
		})
	}
}

func TestGet_NotFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Get("org_1", "wh_missing")
	var nfErr *apperrors.NotFoundError
	if !errors.As(err, &nfErr) {
		t.Fatalf("Expected not-found error, got %v", err)
	}
}

func TestUpdate_PartialFields(t *testing.T) {
	svc, _ := newTestService(t)

	w, _ := svc.Create("org_1", validInput())

	inactive := false
	newName := "Renamed"
	updated, err := svc.Update("org_1", w.ID, UpdateInput{Name: &newName, Active: &inactive})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.Name != "Renamed" || updated.Active {
		t.Errorf("Expected name and active to change, got %+v", updated)
	}
	if updated.URL != w.URL || updated.Secret != w.Secret {
		t.Error("Expected untouched fields to survive a partial update")
	}
}

func TestUpdate_RevalidatesMergedState(t *testing.T) {
	svc, _ := newTestService(t)

	w, _ := svc.Create("org_1", validInput())

	badURL := "not-a-url"
	_, err := svc.Update("org_1", w.ID, UpdateInput{URL: &badURL})
	var vErr *apperrors.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("Expected validation error, got %v", err)
	}

	// The stored definition is unchanged.
	got, _ := svc.Get("org_1", w.ID)
	if got.URL != w.URL {
		t.Errorf("Expected URL to be unchanged, got %q", got.URL)
	}
}

func TestDelete_ThenNotFound(t *testing.T) {
	svc, _ := newTestService(t)

	w, _ := svc.Create("org_1", validInput())
	if err := svc.Delete("org_1", w.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	var nfErr *apperrors.NotFoundError
	if err := svc.Delete("org_1", w.ID); !errors.As(err, &nfErr) {
		t.Errorf("Expected not-found on second delete, got %v", err)
	}
	if _, err := svc.Get("org_1", w.ID); !errors.As(err, &nfErr) {
		t.Errorf("Expected not-found after delete, got %v", err)
	}
}

func TestList_AnnotatesStats(t *testing.T) {
	svc, deliveries := newTestService(t)

	w, _ := svc.Create("org_1", validInput())

	rec := &models.DeliveryRecord{WebhookID: w.ID, Event: "contact.created", Attempt: 1}
	deliveries.Create(rec)
	deliveries.MarkDelivered(rec.ID, 200, "", w.CreatedAt)

	listed, err := svc.List("org_1", repositories.ListFilters{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("Expected 1 webhook, got %d", len(listed))
	}
	if listed[0].Stats.SampleSize != 1 || listed[0].Stats.SuccessRate != 1.0 {
		t.Errorf("Unexpected stats annotation: %+v", listed[0].Stats)
	}
}
