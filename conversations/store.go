// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package conversations

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a conversation lookup matches nothing.
var ErrNotFound = errors.New("conversation not found")

// Store persists conversations and their message history.
type Store interface {
	// GetOrCreate resolves the conversation for (tenant, phone), creating
	// an open AI-handled one when absent.
	GetOrCreate(ctx context.Context, tenantID, phoneNumber string, channel Channel) (*Conversation, error)

	Get(ctx context.Context, tenantID, id string) (*Conversation, error)
	List(ctx context.Context, tenantID string) ([]Conversation, error)
	Update(ctx context.Context, conv *Conversation) error

	// AppendMessage adds one message and advances last_message_at.
	AppendMessage(ctx context.Context, msg *ChatMessage) error

	// RecentMessages returns the latest n messages in chronological order.
	RecentMessages(ctx context.Context, conversationID string, n int) ([]ChatMessage, error)
}
