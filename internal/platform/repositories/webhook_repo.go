package repositories

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"beacon/internal/platform/models"
)

type WebhookRepository struct {
	db *sql.DB
}

func NewWebhookRepository(db *sql.DB) *WebhookRepository {
	return &WebhookRepository{db: db}
}

const webhookColumns = `id, owner_id, name, url, events, secret, active, headers, transform,
	attempt_count, success_count, failure_count, last_attempt_at, last_success_at, last_failure_at,
	created_at, updated_at, deleted_at`

func (r *WebhookRepository) Create(webhook *models.Webhook) error {
	webhook.ID = "wh_" + uuid.New().String()
	webhook.CreatedAt = time.Now().Unix()
	webhook.UpdatedAt = webhook.CreatedAt
	webhook.Active = true

	eventsJSON, err := json.Marshal(webhook.Events)
	if err != nil {
		return err
	}
	headersJSON, err := marshalOrNil(webhook.Headers)
	if err != nil {
		return err
	}
	transformJSON, err := marshalTransform(webhook.Transform)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO webhooks (id, owner_id, name, url, events, secret, active, headers, transform, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.Exec(query, webhook.ID, webhook.OwnerID, webhook.Name, webhook.URL,
		string(eventsJSON), webhook.Secret, webhook.Active, headersJSON, transformJSON,
		webhook.CreatedAt, webhook.UpdatedAt)
	return err
}

func (r *WebhookRepository) GetByID(ownerID, id string) (*models.Webhook, error) {
	query := `SELECT ` + webhookColumns + ` FROM webhooks WHERE id = ? AND owner_id = ? AND deleted_at IS NULL`
	return scanWebhook(r.db.QueryRow(query, id, ownerID))
}

// GetAnyByID is the unscoped lookup used by background delivery work, where
// no caller identity exists.
func (r *WebhookRepository) GetAnyByID(id string) (*models.Webhook, error) {
	query := `SELECT ` + webhookColumns + ` FROM webhooks WHERE id = ? AND deleted_at IS NULL`
	return scanWebhook(r.db.QueryRow(query, id))
}

type ListFilters struct {
	Active *bool
	Event  string
}

func (r *WebhookRepository) List(ownerID string, filters ListFilters) ([]*models.Webhook, error) {
	query := `SELECT ` + webhookColumns + ` FROM webhooks WHERE owner_id = ? AND deleted_at IS NULL`
	args := []interface{}{ownerID}
	if filters.Active != nil {
		query += ` AND active = ?`
		args = append(args, *filters.Active)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var webhooks []*models.Webhook
	for rows.Next() {
		w, err := scanWebhook(rows)
		if err != nil {
			return nil, err
		}
		// Event membership lives in a JSON column, so filter in app code.
		if filters.Event != "" && !w.SubscribedTo(filters.Event) {
			continue
		}
		webhooks = append(webhooks, w)
	}
	return webhooks, rows.Err()
}

// GetByEvent returns every active, non-deleted definition subscribed to the
// given event, across all owners. Fan-out delivery uses this.
func (r *WebhookRepository) GetByEvent(event string) ([]*models.Webhook, error) {
	query := `SELECT ` + webhookColumns + ` FROM webhooks WHERE active = 1 AND deleted_at IS NULL`
	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matched []*models.Webhook
	for rows.Next() {
		w, err := scanWebhook(rows)
		if err != nil {
			return nil, err
		}
		if w.SubscribedTo(event) {
			matched = append(matched, w)
		}
	}
	return matched, rows.Err()
}

func (r *WebhookRepository) Update(webhook *models.Webhook) error {
	eventsJSON, err := json.Marshal(webhook.Events)
	if err != nil {
		return err
	}
	headersJSON, err := marshalOrNil(webhook.Headers)
	if err != nil {
		return err
	}
	transformJSON, err := marshalTransform(webhook.Transform)
	if err != nil {
		return err
	}
	webhook.UpdatedAt = time.Now().Unix()

	query := `
		UPDATE webhooks
		SET name = ?, url = ?, events = ?, secret = ?, active = ?, headers = ?, transform = ?, updated_at = ?
		WHERE id = ? AND owner_id = ? AND deleted_at IS NULL
	`
	_, err = r.db.Exec(query, webhook.Name, webhook.URL, string(eventsJSON), webhook.Secret,
		webhook.Active, headersJSON, transformJSON, webhook.UpdatedAt, webhook.ID, webhook.OwnerID)
	return err
}

// Delete is soft: in-flight deliveries keep their detached copy and delivery
// records keep the id as a weak reference.
func (r *WebhookRepository) Delete(ownerID, id string) error {
	now := time.Now().Unix()
	res, err := r.db.Exec(`UPDATE webhooks SET deleted_at = ?, active = 0 WHERE id = ? AND owner_id = ? AND deleted_at IS NULL`,
		now, id, ownerID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// RecordAttempt bumps the rolling counters in a single UPDATE so concurrent
// deliveries never lose an increment.
func (r *WebhookRepository) RecordAttempt(id string, success bool, at int64) error {
	if success {
		_, err := r.db.Exec(`UPDATE webhooks
			SET attempt_count = attempt_count + 1, success_count = success_count + 1,
			    last_attempt_at = ?, last_success_at = ?
			WHERE id = ?`, at, at, id)
		return err
	}
	_, err := r.db.Exec(`UPDATE webhooks
		SET attempt_count = attempt_count + 1, failure_count = failure_count + 1,
		    last_attempt_at = ?, last_failure_at = ?
		WHERE id = ?`, at, at, id)
	return err
}

func marshalOrNil(m map[string]string) (interface{}, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func marshalTransform(t *models.TransformRules) (interface{}, error) {
	if t.IsZero() {
		return nil, nil
	}
	b, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanWebhook(row rowScanner) (*models.Webhook, error) {
	var w models.Webhook
	var eventsStr string
	var headersStr, transformStr sql.NullString
	var lastAttempt, lastSuccess, lastFailure, deletedAt sql.NullInt64

	err := row.Scan(&w.ID, &w.OwnerID, &w.Name, &w.URL, &eventsStr, &w.Secret, &w.Active,
		&headersStr, &transformStr, &w.AttemptCount, &w.SuccessCount, &w.FailureCount,
		&lastAttempt, &lastSuccess, &lastFailure, &w.CreatedAt, &w.UpdatedAt, &deletedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(eventsStr), &w.Events); err != nil {
		return nil, err
	}
	if headersStr.Valid && headersStr.String != "" {
		if err := json.Unmarshal([]byte(headersStr.String), &w.Headers); err != nil {
			return nil, err
		}
	}
	if transformStr.Valid && transformStr.String != "" {
		var t models.TransformRules
		if err := json.Unmarshal([]byte(transformStr.String), &t); err != nil {
			return nil, err
		}
		w.Transform = &t
	}
	if lastAttempt.Valid {
		w.LastAttemptAt = lastAttempt.Int64
	}
	if lastSuccess.Valid {
		w.LastSuccessAt = lastSuccess.Int64
	}
	if lastFailure.Valid {
		w.LastFailureAt = lastFailure.Int64
	}
	if deletedAt.Valid {
		w.DeletedAt = &deletedAt.Int64
	}
	return &w, nil
}
