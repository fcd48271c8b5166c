package repositories

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"beacon/internal/platform/models"
)

type DeliveryRepository struct {
	db *sql.DB
}

func NewDeliveryRepository(db *sql.DB) *DeliveryRepository {
	return &DeliveryRepository{db: db}
}

const deliveryColumns = `id, webhook_id, event, payload, attempt, max_attempts, status,
	http_status, response, error, is_test, created_at, delivered_at, failed_at`

func (r *DeliveryRepository) Create(record *models.DeliveryRecord) error {
	if record.ID == "" {
		record.ID = "del_" + uuid.New().String()
	}
	if record.Status == "" {
		record.Status = models.DeliveryStatusPending
	}
	if record.MaxAttempts == 0 {
		record.MaxAttempts = models.MaxDeliveryAttempts
	}
	record.CreatedAt = time.Now().Unix()

	query := `
		INSERT INTO deliveries (id, webhook_id, event, payload, attempt, max_attempts, status, is_test, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query, record.ID, record.WebhookID, record.Event, record.Payload,
		record.Attempt, record.MaxAttempts, record.Status, record.IsTest, record.CreatedAt)
	return err
}

// MarkDelivered transitions a pending record to its terminal delivered state.
func (r *DeliveryRepository) MarkDelivered(id string, httpStatus int, response string, at int64) error {
	_, err := r.db.Exec(`UPDATE deliveries
		SET status = ?, http_status = ?, response = ?, delivered_at = ?
		WHERE id = ? AND status = ?`,
		models.DeliveryStatusDelivered, httpStatus, response, at, id, models.DeliveryStatusPending)
	return err
}

// MarkFailed transitions a pending record to its terminal failed state.
func (r *DeliveryRepository) MarkFailed(id string, httpStatus int, response, errMsg string, at int64) error {
	_, err := r.db.Exec(`UPDATE deliveries
		SET status = ?, http_status = ?, response = ?, error = ?, failed_at = ?
		WHERE id = ? AND status = ?`,
		models.DeliveryStatusFailed, nullableInt(httpStatus), response, errMsg, at, id, models.DeliveryStatusPending)
	return err
}

func (r *DeliveryRepository) GetByID(id string) (*models.DeliveryRecord, error) {
	query := `SELECT ` + deliveryColumns + ` FROM deliveries WHERE id = ?`
	return scanDelivery(r.db.QueryRow(query, id))
}

func (r *DeliveryRepository) ListByWebhook(webhookID string, limit int) ([]*models.DeliveryRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + deliveryColumns + ` FROM deliveries WHERE webhook_id = ? ORDER BY created_at DESC LIMIT ?`
	rows, err := r.db.Query(query, webhookID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDeliveries(rows)
}

// RetryCandidates returns failed, non-test records that have attempts left
// and were last touched before the cutoff. The retry worker feeds on these.
func (r *DeliveryRepository) RetryCandidates(before int64, limit int) ([]*models.DeliveryRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + deliveryColumns + ` FROM deliveries
		WHERE status = ? AND is_test = 0 AND attempt < max_attempts AND failed_at < ?
		ORDER BY failed_at ASC LIMIT ?`
	rows, err := r.db.Query(query, models.DeliveryStatusFailed, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDeliveries(rows)
}

// Stats computes the derived list-annotation summary: success rate over the
// most recent `window` deliveries and the count in the last 24h.
func (r *DeliveryRepository) Stats(webhookID string, window int) (models.WebhookStats, error) {
	if window <= 0 {
		window = 100
	}
	var stats models.WebhookStats

	row := r.db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0)
		FROM (SELECT status FROM deliveries WHERE webhook_id = ? AND is_test = 0 ORDER BY created_at DESC LIMIT ?)`,
		models.DeliveryStatusDelivered, webhookID, window)

	var total, delivered int
	if err := row.Scan(&total, &delivered); err != nil {
		return stats, err
	}
	stats.SampleSize = total
	if total > 0 {
		stats.SuccessRate = float64(delivered) / float64(total)
	}

	dayAgo := time.Now().Add(-24 * time.Hour).Unix()
	row = r.db.QueryRow(`SELECT COUNT(*) FROM deliveries WHERE webhook_id = ? AND is_test = 0 AND created_at >= ?`,
		webhookID, dayAgo)
	if err := row.Scan(&stats.Recent24h); err != nil {
		return stats, err
	}
	return stats, nil
}

func nullableInt(v int) interface{} {
	if v == 0 {
		return nil
	}
	return v
}

func collectDeliveries(rows *sql.Rows) ([]*models.DeliveryRecord, error) {
	var records []*models.DeliveryRecord
	for rows.Next() {
		rec, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanDelivery(row rowScanner) (*models.DeliveryRecord, error) {
	var d models.DeliveryRecord
	var httpStatus, deliveredAt, failedAt sql.NullInt64
	var response, errMsg sql.NullString

	err := row.Scan(&d.ID, &d.WebhookID, &d.Event, &d.Payload, &d.Attempt, &d.MaxAttempts,
		&d.Status, &httpStatus, &response, &errMsg, &d.IsTest, &d.CreatedAt, &deliveredAt, &failedAt)
	if err != nil {
		return nil, err
	}

	if httpStatus.Valid {
		d.HTTPStatus = int(httpStatus.Int64)
	}
	if response.Valid {
		d.Response = response.String
	}
	if errMsg.Valid {
		d.Error = errMsg.String
	}
	if deliveredAt.Valid {
		d.DeliveredAt = deliveredAt.Int64
	}
	if failedAt.Valid {
		d.FailedAt = failedAt.Int64
	}
	return &d, nil
}
