package database

import (
	"context"
	"fmt"
)

// schema is applied by Migrate. Every statement is idempotent so the server and the
// configure CLI can both run it on startup.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		identity                TEXT PRIMARY KEY,
		email                   TEXT NOT NULL,
		username                TEXT NOT NULL,
		membership              TEXT NOT NULL DEFAULT 'free',
		status                  TEXT NOT NULL DEFAULT 'active',
		billing_customer_id     TEXT,
		billing_subscription_id TEXT,
		created_at              TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at              TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT users_username_key UNIQUE (username),
		CONSTRAINT users_billing_customer_id_key UNIQUE (billing_customer_id),
		CONSTRAINT users_membership_check CHECK (membership IN ('free', 'pro')),
		CONSTRAINT users_status_check CHECK (status IN ('active', 'inactive', 'banned')),
		CONSTRAINT users_updated_at_check CHECK (updated_at >= created_at)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_users_created_at ON users (created_at)`,
	`CREATE TABLE IF NOT EXISTS oidc_config (
		id            UUID PRIMARY KEY,
		provider      TEXT NOT NULL UNIQUE,
		issuer        TEXT NOT NULL,
		domain        TEXT,
		client_id     TEXT NOT NULL,
		client_secret TEXT,
		redirect_uri  TEXT NOT NULL,
		jwks_url      TEXT,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS app_settings (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// Migrate creates the tables the service needs if they do not exist yet.
func (db *DB) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement %d: %w", i, err)
		}
	}
	return nil
}
