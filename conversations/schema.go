// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package conversations

import (
	"context"
	"database/sql"
	"fmt"
)

// EnsureSchema creates the conversation tables if they do not exist. The
// unique (tenant_id, phone_number) constraint is what GetOrCreate's
// insert race settles on.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS conversations (
		id VARCHAR(64) PRIMARY KEY,
		tenant_id VARCHAR(64) NOT NULL,
		phone_number VARCHAR(32) NOT NULL,
		channel VARCHAR(16) NOT NULL DEFAULT 'whatsapp',
		agent_id VARCHAR(64),
		status VARCHAR(16) NOT NULL DEFAULT 'open',
		is_ai_handled BOOLEAN NOT NULL DEFAULT TRUE,
		requires_human BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		last_message_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (tenant_id, phone_number)
	);

	CREATE TABLE IF NOT EXISTS conversation_messages (
		id VARCHAR(64) PRIMARY KEY,
		conversation_id VARCHAR(64) NOT NULL REFERENCES conversations(id),
		role VARCHAR(16) NOT NULL,
		content TEXT NOT NULL,
		external_id VARCHAR(128),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation
		ON conversation_messages (conversation_id, created_at);
	`
	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create conversation schema: %w", err)
	}
	return nil
}
