package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"rental-obligations/internal/logger"
)

// Schema holds the tables the engine reads and writes. Rentals, invoices and
// users are owned by the marketplace; the definitions here cover the columns
// the engine depends on so a fresh database can run the jobs.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id SERIAL PRIMARY KEY,
		email TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		id SERIAL PRIMARY KEY,
		name TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS rentals (
		id SERIAL PRIMARY KEY,
		customer_id INTEGER NOT NULL REFERENCES users(id),
		product_id INTEGER NOT NULL REFERENCES products(id),
		quantity INTEGER NOT NULL DEFAULT 1,
		start_date DATE NOT NULL,
		end_date DATE NOT NULL,
		status TEXT NOT NULL,
		payment_status TEXT NOT NULL,
		CHECK (end_date >= start_date)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_rentals_status_end_date ON rentals (status, end_date)`,
	`CREATE TABLE IF NOT EXISTS invoices (
		id SERIAL PRIMARY KEY,
		rental_id INTEGER NOT NULL REFERENCES rentals(id),
		customer_id INTEGER NOT NULL REFERENCES users(id),
		product_id INTEGER NOT NULL REFERENCES products(id),
		invoice_number TEXT NOT NULL UNIQUE,
		due_date DATE NOT NULL,
		subtotal_cents BIGINT NOT NULL DEFAULT 0,
		security_deposit_cents BIGINT NOT NULL DEFAULT 0,
		late_fee_cents BIGINT NOT NULL DEFAULT 0 CHECK (late_fee_cents >= 0),
		total_amount_cents BIGINT NOT NULL DEFAULT 0,
		upfront_payment_cents BIGINT NOT NULL DEFAULT 0,
		remaining_balance_cents BIGINT NOT NULL DEFAULT 0,
		payment_status TEXT NOT NULL DEFAULT 'unpaid',
		version INTEGER NOT NULL DEFAULT 1,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_invoices_status_due_date ON invoices (payment_status, due_date)`,
	`CREATE TABLE IF NOT EXISTS user_preferences (
		user_id INTEGER PRIMARY KEY REFERENCES users(id),
		reminder_offsets INTEGER[] NOT NULL DEFAULT '{3,1}',
		email_enabled BOOLEAN NOT NULL DEFAULT TRUE
	)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id SERIAL PRIMARY KEY,
		user_id INTEGER NOT NULL REFERENCES users(id),
		obligation_id INTEGER NOT NULL,
		type TEXT NOT NULL,
		title TEXT NOT NULL,
		message TEXT NOT NULL,
		metadata_key TEXT NOT NULL DEFAULT '',
		attributes JSONB,
		scheduled_at TIMESTAMPTZ NOT NULL,
		sent_at TIMESTAMPTZ,
		email_sent BOOLEAN NOT NULL DEFAULT FALSE,
		email_message_id TEXT,
		email_error TEXT,
		is_read BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_notifications_trigger
		ON notifications (user_id, obligation_id, type, metadata_key)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_due ON notifications (scheduled_at) WHERE sent_at IS NULL`,
}

// Migrate applies Schema inside a single transaction.
func Migrate(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration: %w", err)
	}
	defer tx.Rollback()

	for i, stmt := range Schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration statement %d failed: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}
	logger.Info("Schema migrated", "statements", len(Schema))
	return nil
}
