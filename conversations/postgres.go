// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package conversations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed conversation store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const conversationColumns = `
	id, tenant_id, phone_number, channel, agent_id, status,
	is_ai_handled, requires_human, created_at, last_message_at
`

// GetOrCreate resolves the conversation for (tenant, phone), creating an
// open AI-handled one when absent. The insert races are settled by the
// unique (tenant_id, phone_number) constraint and a re-read.
func (s *PostgresStore) GetOrCreate(ctx context.Context, tenantID, phoneNumber string, channel Channel) (*Conversation, error) {
	conv, err := s.getByPhone(ctx, tenantID, phoneNumber)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	created := &Conversation{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		PhoneNumber: phoneNumber,
		Channel:     channel,
		Status:      ConversationOpen,
		IsAIHandled: true,
	}

	query := `
		INSERT INTO conversations (
			id, tenant_id, phone_number, channel, status, is_ai_handled, requires_human
		) VALUES ($1, $2, $3, $4, $5, $6, false)
		ON CONFLICT (tenant_id, phone_number) DO NOTHING
	`
	_, err = s.db.ExecContext(ctx, query,
		created.ID, created.TenantID, created.PhoneNumber, created.Channel,
		created.Status, created.IsAIHandled)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}

	return s.getByPhone(ctx, tenantID, phoneNumber)
}

func (s *PostgresStore) getByPhone(ctx context.Context, tenantID, phoneNumber string) (*Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE tenant_id = $1 AND phone_number = $2
	`
	conv, err := scanConversation(s.db.QueryRowContext(ctx, query, tenantID, phoneNumber))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return conv, nil
}

// Get retrieves one conversation by id, scoped to the tenant.
func (s *PostgresStore) Get(ctx context.Context, tenantID, id string) (*Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE id = $1 AND tenant_id = $2
	`
	conv, err := scanConversation(s.db.QueryRowContext(ctx, query, id, tenantID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return conv, nil
}

// List returns a tenant's conversations, most recently active first.
func (s *PostgresStore) List(ctx context.Context, tenantID string) ([]Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE tenant_id = $1
		ORDER BY last_message_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var convs []Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		convs = append(convs, *conv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conversations: %w", err)
	}
	return convs, nil
}

// Update rewrites a conversation's mutable state.
func (s *PostgresStore) Update(ctx context.Context, conv *Conversation) error {
	query := `
		UPDATE conversations SET
			agent_id = $1, status = $2, is_ai_handled = $3, requires_human = $4
		WHERE id = $5 AND tenant_id = $6
	`

	result, err := s.db.ExecContext(ctx, query,
		nullString(conv.AgentID),
		conv.Status,
		conv.IsAIHandled,
		conv.RequiresHuman,
		conv.ID,
		conv.TenantID,
	)
	if err != nil {
		return fmt.Errorf("failed to update conversation: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendMessage adds one message and advances last_message_at.
func (s *PostgresStore) AppendMessage(ctx context.Context, msg *ChatMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	query := `
		INSERT INTO conversation_messages (id, conversation_id, role, content, external_id)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.db.ExecContext(ctx, query,
		msg.ID, msg.ConversationID, msg.Role, msg.Content, nullString(msg.ExternalID))
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE conversations SET last_message_at = NOW() WHERE id = $1`, msg.ConversationID)
	if err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}
	return nil
}

// RecentMessages returns the latest n messages in chronological order.
func (s *PostgresStore) RecentMessages(ctx context.Context, conversationID string, n int) ([]ChatMessage, error) {
	query := `
		SELECT id, conversation_id, role, content, external_id, created_at
		FROM (
			SELECT id, conversation_id, role, content, external_id, created_at
			FROM conversation_messages
			WHERE conversation_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent
		ORDER BY created_at
	`

	rows, err := s.db.QueryContext(ctx, query, conversationID, n)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var msgs []ChatMessage
	for rows.Next() {
		var msg ChatMessage
		var externalID sql.NullString
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &externalID, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.ExternalID = externalID.String
		msgs = append(msgs, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}
	return msgs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*Conversation, error) {
	var conv Conversation
	var agentID sql.NullString

	err := row.Scan(
		&conv.ID,
		&conv.TenantID,
		&conv.PhoneNumber,
		&conv.Channel,
		&agentID,
		&conv.Status,
		&conv.IsAIHandled,
		&conv.RequiresHuman,
		&conv.CreatedAt,
		&conv.LastMessageAt,
	)
	if err != nil {
		return nil, err
	}

	conv.AgentID = agentID.String
	return &conv, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Ensure PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
