package repositories

import "database/sql"

// Schema holds the table definitions for the core store. cmd/migrate and the
// repository tests both apply it.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS webhooks (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		name TEXT NOT NULL,
		url TEXT NOT NULL,
		events TEXT NOT NULL,
		secret TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		headers TEXT,
		transform TEXT,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		success_count INTEGER NOT NULL DEFAULT 0,
		failure_count INTEGER NOT NULL DEFAULT 0,
		last_attempt_at INTEGER,
		last_success_at INTEGER,
		last_failure_at INTEGER,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		deleted_at INTEGER
	)`,
	`CREATE INDEX IF NOT EXISTS idx_webhooks_owner ON webhooks(owner_id)`,
	`CREATE TABLE IF NOT EXISTS deliveries (
		id TEXT PRIMARY KEY,
		webhook_id TEXT NOT NULL,
		event TEXT NOT NULL,
		payload TEXT NOT NULL,
		attempt INTEGER NOT NULL DEFAULT 1,
		max_attempts INTEGER NOT NULL DEFAULT 3,
		status TEXT NOT NULL DEFAULT 'pending',
		http_status INTEGER,
		response TEXT,
		error TEXT,
		is_test INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		delivered_at INTEGER,
		failed_at INTEGER
	)`,
	`CREATE INDEX IF NOT EXISTS idx_deliveries_webhook ON deliveries(webhook_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_deliveries_status ON deliveries(status, created_at)`,
	`CREATE TABLE IF NOT EXISTS incoming_webhooks (
		id TEXT PRIMARY KEY,
		provider TEXT NOT NULL,
		headers TEXT,
		payload TEXT NOT NULL,
		processed INTEGER NOT NULL DEFAULT 0,
		result TEXT,
		processing_error TEXT,
		received_at INTEGER NOT NULL,
		processed_at INTEGER
	)`,
	`CREATE TABLE IF NOT EXISTS organizations (
		id TEXT PRIMARY KEY,
		name TEXT,
		industry TEXT,
		website TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS contacts (
		id TEXT PRIMARY KEY,
		organization_id TEXT,
		name TEXT,
		email TEXT,
		phone TEXT,
		source TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS deals (
		id TEXT PRIMARY KEY,
		organization_id TEXT,
		title TEXT,
		stage TEXT,
		amount REAL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
}

func Migrate(db *sql.DB) error {
	for _, stmt := range Schema {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
