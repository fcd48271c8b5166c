// Package entitystore exposes the business entity store to provider
// normalizers as a generic create/update-by-filter surface. The core never
// validates or interprets CRM entities; it only moves fields.
package entitystore

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Collections the store accepts. Anything else is rejected before touching
// SQL, since collection names are interpolated into statements.
var allowedCollections = map[string]bool{
	"organizations": true,
	"contacts":      true,
	"deals":         true,
}

var allowedFields = map[string]map[string]bool{
	"organizations": {"name": true, "industry": true, "website": true},
	"contacts":      {"organization_id": true, "name": true, "email": true, "phone": true, "source": true},
	"deals":         {"organization_id": true, "title": true, "stage": true, "amount": true},
}

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Create(ctx context.Context, collection string, fields map[string]interface{}) (string, error) {
	cols, vals, err := filterFields(collection, fields)
	if err != nil {
		return "", err
	}

	id := collection[:3] + "_" + uuid.New().String()
	now := time.Now().Unix()
	cols = append(cols, "id", "created_at", "updated_at")
	vals = append(vals, id, now, now)

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", collection, strings.Join(cols, ", "), placeholders)

	if _, err := s.db.ExecContext(ctx, query, vals...); err != nil {
		return "", err
	}
	return id, nil
}

// UpdateByFilter updates every row matching the filter and returns the number
// of rows touched. Provider normalizers use it for upsert-style flows.
func (s *Store) UpdateByFilter(ctx context.Context, collection string, filter, fields map[string]interface{}) (int64, error) {
	cols, vals, err := filterFields(collection, fields)
	if err != nil {
		return 0, err
	}
	if len(cols) == 0 {
		return 0, fmt.Errorf("entitystore: no updatable fields for %s", collection)
	}

	filterCols, filterVals, err := filterFields(collection, filter)
	if err != nil {
		return 0, err
	}
	if len(filterCols) == 0 {
		return 0, fmt.Errorf("entitystore: empty filter for %s", collection)
	}

	var set, where []string
	for _, c := range cols {
		set = append(set, c+" = ?")
	}
	set = append(set, "updated_at = ?")
	vals = append(vals, time.Now().Unix())
	for _, c := range filterCols {
		where = append(where, c+" = ?")
	}
	vals = append(vals, filterVals...)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s", collection, strings.Join(set, ", "), strings.Join(where, " AND "))
	res, err := s.db.ExecContext(ctx, query, vals...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func filterFields(collection string, fields map[string]interface{}) ([]string, []interface{}, error) {
	if !allowedCollections[collection] {
		return nil, nil, fmt.Errorf("entitystore: unknown collection %q", collection)
	}

	allowed := allowedFields[collection]
	var cols []string
	for k := range fields {
		if allowed[k] {
			cols = append(cols, k)
		}
	}
	sort.Strings(cols)

	vals := make([]interface{}, 0, len(cols))
	for _, c := range cols {
		vals = append(vals, fields[c])
	}
	return cols, vals, nil
}
