package sqlstore

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// sqliteSchema mirrors migrations/001_init.up.sql for local runs and tests.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS accounts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	address TEXT NOT NULL UNIQUE,
	password TEXT NOT NULL DEFAULT '',
	imap_host TEXT NOT NULL DEFAULT '',
	imap_port INTEGER NOT NULL DEFAULT 993,
	imap_tls BOOLEAN NOT NULL DEFAULT 1,
	smtp_host TEXT NOT NULL DEFAULT '',
	smtp_port INTEGER NOT NULL DEFAULT 587,
	smtp_tls BOOLEAN NOT NULL DEFAULT 0,
	is_bad BOOLEAN NOT NULL DEFAULT 0,
	last_error TEXT NOT NULL DEFAULT '',
	is_sms BOOLEAN NOT NULL DEFAULT 0,
	is_placeholder BOOLEAN NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS places (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	kind TEXT NOT NULL DEFAULT 'Unknown'
);

CREATE TABLE IF NOT EXISTS transactions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	account_id INTEGER NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
	external_id TEXT NOT NULL,
	from_address TEXT NOT NULL,
	card_no TEXT NOT NULL,
	currency TEXT NOT NULL,
	amount TEXT NOT NULL,
	occurred_at DATETIME NOT NULL,
	place_id INTEGER NOT NULL REFERENCES places(id),
	correlation_tag TEXT,
	created_by TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	UNIQUE (account_id, external_id)
);

CREATE INDEX IF NOT EXISTS idx_transactions_correlation
	ON transactions (account_id, created_by, correlation_tag);
`

// InitSQLite creates the schema in a SQLite database if it is missing.
func InitSQLite(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		return fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}
