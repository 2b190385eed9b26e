// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package agents

import (
	"context"
	"database/sql"
	"fmt"
)

// EnsureSchema creates the agent, task, and crew tables if they do not
// exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS agents (
		id VARCHAR(64) PRIMARY KEY,
		tenant_id VARCHAR(64) NOT NULL,
		name VARCHAR(255) NOT NULL,
		role VARCHAR(255) NOT NULL DEFAULT '',
		system_prompt TEXT NOT NULL,
		instructions TEXT,
		category VARCHAR(32) NOT NULL DEFAULT 'general',
		provider VARCHAR(32) NOT NULL DEFAULT '',
		model VARCHAR(128),
		settings JSONB NOT NULL DEFAULT '{}',
		status VARCHAR(32) NOT NULL DEFAULT 'idle',
		tasks_completed INTEGER NOT NULL DEFAULT 0,
		tasks_failed INTEGER NOT NULL DEFAULT 0,
		tokens_used BIGINT NOT NULL DEFAULT 0,
		cost_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_agents_tenant ON agents (tenant_id);

	CREATE TABLE IF NOT EXISTS tasks (
		id VARCHAR(64) PRIMARY KEY,
		tenant_id VARCHAR(64) NOT NULL,
		agent_id VARCHAR(64) NOT NULL,
		crew_id VARCHAR(64),
		description TEXT NOT NULL,
		input TEXT,
		priority VARCHAR(16) NOT NULL DEFAULT 'medium',
		status VARCHAR(16) NOT NULL DEFAULT 'pending',
		output TEXT,
		error_message TEXT,
		tokens_used BIGINT NOT NULL DEFAULT 0,
		cost_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
		execution_time DOUBLE PRECISION NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		started_at TIMESTAMPTZ,
		completed_at TIMESTAMPTZ
	);
	CREATE INDEX IF NOT EXISTS idx_tasks_crew ON tasks (tenant_id, crew_id);

	CREATE TABLE IF NOT EXISTS crews (
		id VARCHAR(64) PRIMARY KEY,
		tenant_id VARCHAR(64) NOT NULL,
		name VARCHAR(255) NOT NULL,
		process VARCHAR(16) NOT NULL DEFAULT 'sequential',
		agent_ids TEXT[] NOT NULL DEFAULT '{}',
		task_ids TEXT[] NOT NULL DEFAULT '{}',
		status VARCHAR(16) NOT NULL DEFAULT 'pending',
		total_cost_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
		total_time_secs DOUBLE PRECISION NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		completed_at TIMESTAMPTZ
	);
	CREATE INDEX IF NOT EXISTS idx_crews_tenant ON crews (tenant_id);
	`
	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create agent schema: %w", err)
	}
	return nil
}
