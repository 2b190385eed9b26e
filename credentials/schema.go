// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package credentials

import (
	"context"
	"database/sql"
	"fmt"
)

// EnsureSchema creates the credentials table if it does not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS credentials (
		id VARCHAR(64) PRIMARY KEY,
		tenant_id VARCHAR(64) NOT NULL,
		name VARCHAR(255) NOT NULL,
		provider VARCHAR(32) NOT NULL,
		encrypted_key TEXT NOT NULL,
		status VARCHAR(32) NOT NULL DEFAULT 'active',
		priority INTEGER NOT NULL,
		monthly_cap_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
		usage_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
		last_used TIMESTAMPTZ,
		last_validated TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_credentials_selection
		ON credentials (tenant_id, status, priority);
	`
	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create credentials schema: %w", err)
	}
	return nil
}
