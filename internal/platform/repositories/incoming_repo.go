package repositories

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"beacon/internal/platform/models"
)

type IncomingWebhookRepository struct {
	db *sql.DB
}

func NewIncomingWebhookRepository(db *sql.DB) *IncomingWebhookRepository {
	return &IncomingWebhookRepository{db: db}
}

func (r *IncomingWebhookRepository) Create(record *models.IncomingWebhook) error {
	record.ID = "in_" + uuid.New().String()
	record.ReceivedAt = time.Now().Unix()

	query := `
		INSERT INTO incoming_webhooks (id, provider, headers, payload, processed, received_at)
		VALUES (?, ?, ?, ?, 0, ?)
	`
	_, err := r.db.Exec(query, record.ID, record.Provider, record.Headers, record.Payload, record.ReceivedAt)
	return err
}

// MarkProcessed records the terminal outcome exactly once. Either result or
// processingError is set, never both.
func (r *IncomingWebhookRepository) MarkProcessed(id, result, processingError string) error {
	_, err := r.db.Exec(`UPDATE incoming_webhooks
		SET processed = 1, result = ?, processing_error = ?, processed_at = ?
		WHERE id = ? AND processed = 0`,
		nullableString(result), nullableString(processingError), time.Now().Unix(), id)
	return err
}

func (r *IncomingWebhookRepository) GetByID(id string) (*models.IncomingWebhook, error) {
	row := r.db.QueryRow(`SELECT id, provider, headers, payload, processed, result, processing_error, received_at, processed_at
		FROM incoming_webhooks WHERE id = ?`, id)

	var in models.IncomingWebhook
	var headers, result, procErr sql.NullString
	var processedAt sql.NullInt64

	err := row.Scan(&in.ID, &in.Provider, &headers, &in.Payload, &in.Processed, &result, &procErr, &in.ReceivedAt, &processedAt)
	if err != nil {
		return nil, err
	}

	if headers.Valid {
		in.Headers = headers.String
	}
	if result.Valid {
		in.Result = result.String
	}
	if procErr.Valid {
		in.ProcessingError = procErr.String
	}
	if processedAt.Valid {
		in.ProcessedAt = processedAt.Int64
	}
	return &in, nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
