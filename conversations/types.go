// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package conversations handles customer-facing message threads: the
// conversation model, its Postgres store, the WhatsApp outbound channel,
// and the auto-responder that drafts AI replies through the LLM
// orchestrator.
package conversations

import (
	"time"
)

// ConversationStatus is the lifecycle state of a thread.
type ConversationStatus string

const (
	ConversationOpen      ConversationStatus = "open"
	ConversationPending   ConversationStatus = "pending"
	ConversationEscalated ConversationStatus = "escalated"
	ConversationClosed    ConversationStatus = "closed"
)

// Channel identifies the messaging transport a conversation lives on.
type Channel string

const (
	ChannelWhatsApp Channel = "whatsapp"
	ChannelWeb      Channel = "web"
)

// MessageRole identifies who authored a message in a thread.
type MessageRole string

const (
	RoleCustomer MessageRole = "customer"
	RoleAgent    MessageRole = "agent"
	RoleSystem   MessageRole = "system"
)

// Conversation is one customer thread keyed by (tenant, phone number).
type Conversation struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`

	PhoneNumber string  `json:"phone_number"`
	Channel     Channel `json:"channel"`

	// AgentID is the sticky assignment: set on first AI reply and reused
	// while that agent remains available.
	AgentID string `json:"agent_id,omitempty"`

	Status ConversationStatus `json:"status"`

	// IsAIHandled marks threads the auto-responder answers; RequiresHuman
	// parks the thread for an operator.
	IsAIHandled   bool `json:"is_ai_handled"`
	RequiresHuman bool `json:"requires_human"`

	CreatedAt     time.Time `json:"created_at"`
	LastMessageAt time.Time `json:"last_message_at"`
}

// Respondable reports whether the auto-responder may draft a reply.
func (c *Conversation) Respondable() bool {
	return c.IsAIHandled && !c.RequiresHuman && c.Status != ConversationEscalated && c.Status != ConversationClosed
}

// ChatMessage is one entry in a conversation's ordered history.
type ChatMessage struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversation_id"`
	Role           MessageRole `json:"role"`
	Content        string      `json:"content"`

	// ExternalID is the channel-side message identifier, used for inbound
	// deduplication and outbound receipts.
	ExternalID string `json:"external_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// InboundMessage is a normalized customer message parsed from a channel
// webhook, before it is attached to a conversation.
type InboundMessage struct {
	ExternalID string
	From       string
	Content    string
	Timestamp  time.Time
}
