// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package conversations

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"axonflow/agentline/agents"
	"axonflow/agentline/credentials"
	"axonflow/agentline/llm"
)

// DefaultContextWindow is how many recent messages feed the reply prompt.
const DefaultContextWindow = 10

// whatsappGuidelines shape the reply for the channel: short messages,
// plain tone, offer a human when the customer is stuck.
const whatsappGuidelines = `

Channel guidelines:
- Keep replies short and conversational; this is a WhatsApp chat.
- Use plain language, no markdown or headers.
- If the customer is frustrated or asks for a person, suggest they reply "human" to reach one.`

// Completer is the slice of the LLM orchestrator the responder needs.
// llm.Orchestrator satisfies it.
type Completer interface {
	ChatCompletion(ctx context.Context, tenantID string, req llm.ChatRequest, preferredProvider credentials.Provider, preferredModel string) (*llm.Response, error)
}

// AgentDirectory is the slice of agent persistence the responder needs.
// agents.PostgresAgentStore satisfies it.
type AgentDirectory interface {
	Get(ctx context.Context, tenantID, id string) (*agents.Agent, error)
	List(ctx context.Context, tenantID string) ([]agents.Agent, error)
}

// Responder drafts AI replies to inbound customer messages through the
// LLM orchestrator, escalating to a human when it cannot.
type Responder struct {
	store   Store
	agents  AgentDirectory
	llm     Completer
	channel OutboundChannel
	dedup   Deduper
	logger  *log.Logger
	window  int
}

// ResponderOption configures the responder during creation.
type ResponderOption func(*Responder)

// WithContextWindow sets how many recent messages feed the reply prompt.
func WithContextWindow(n int) ResponderOption {
	return func(r *Responder) {
		if n > 0 {
			r.window = n
		}
	}
}

// WithResponderLogger sets a custom logger.
func WithResponderLogger(l *log.Logger) ResponderOption {
	return func(r *Responder) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithDeduper enables inbound message deduplication.
func WithDeduper(d Deduper) ResponderOption {
	return func(r *Responder) {
		r.dedup = d
	}
}

// NewResponder creates a responder over the given collaborators.
func NewResponder(store Store, directory AgentDirectory, completer Completer, channel OutboundChannel, opts ...ResponderOption) *Responder {
	r := &Responder{
		store:   store,
		agents:  directory,
		llm:     completer,
		channel: channel,
		logger:  log.New(os.Stdout, "[RESPONDER] ", log.LstdFlags),
		window:  DefaultContextWindow,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ProcessInbound handles one normalized customer message: it resolves the
// conversation, appends the message, and drafts a reply unless the thread
// is parked for a human. A reply failure never drops the customer's
// message; the thread is flagged for human follow-up instead.
func (r *Responder) ProcessInbound(ctx context.Context, tenantID string, inbound InboundMessage) error {
	if r.dedup != nil && inbound.ExternalID != "" {
		seen, err := r.dedup.Seen(ctx, tenantID, inbound.ExternalID)
		if err != nil {
			// Dedup is an optimization; a broken Redis must not drop
			// customer messages.
			r.logger.Printf("Dedup check failed for message %s: %v", inbound.ExternalID, err)
		} else if seen {
			r.logger.Printf("Skipping duplicate inbound message %s", inbound.ExternalID)
			return nil
		}
	}

	conv, err := r.store.GetOrCreate(ctx, tenantID, inbound.From, ChannelWhatsApp)
	if err != nil {
		return err
	}

	customerMsg := &ChatMessage{
		ConversationID: conv.ID,
		Role:           RoleCustomer,
		Content:        inbound.Content,
		ExternalID:     inbound.ExternalID,
	}
	if err := r.store.AppendMessage(ctx, customerMsg); err != nil {
		return err
	}

	if !conv.Respondable() {
		r.logger.Printf("Conversation %s is not AI-handled; leaving for a human", conv.ID)
		return nil
	}

	agent, err := r.resolveAgent(ctx, conv)
	if err != nil {
		r.logger.Printf("No agent available for conversation %s: %v", conv.ID, err)
		return r.parkForHuman(ctx, conv)
	}

	reply, err := r.draftReply(ctx, conv, agent)
	if err != nil {
		r.logger.Printf("Failed to draft reply for conversation %s: %v", conv.ID, err)
		return r.parkForHuman(ctx, conv)
	}

	externalID, err := r.channel.SendMessage(ctx, conv.PhoneNumber, reply)
	if err != nil {
		r.logger.Printf("Failed to send reply for conversation %s: %v", conv.ID, err)
		return r.parkForHuman(ctx, conv)
	}

	agentMsg := &ChatMessage{
		ConversationID: conv.ID,
		Role:           RoleAgent,
		Content:        reply,
		ExternalID:     externalID,
	}
	if err := r.store.AppendMessage(ctx, agentMsg); err != nil {
		return err
	}

	r.logger.Printf("Replied to conversation %s with agent %s", conv.ID, agent.ID)
	return nil
}

// resolveAgent returns the conversation's assigned agent while it remains
// available, else picks a new one and assigns it: support and general
// agents first, then the least-loaded available agent.
func (r *Responder) resolveAgent(ctx context.Context, conv *Conversation) (*agents.Agent, error) {
	if conv.AgentID != "" {
		agent, err := r.agents.Get(ctx, conv.TenantID, conv.AgentID)
		if err == nil && agent.Available() {
			return agent, nil
		}
	}

	all, err := r.agents.List(ctx, conv.TenantID)
	if err != nil {
		return nil, err
	}

	var pick *agents.Agent
	for i := range all {
		candidate := &all[i]
		if !candidate.Available() {
			continue
		}
		if pick == nil {
			pick = candidate
			continue
		}
		if preferAgent(candidate, pick) {
			pick = candidate
		}
	}
	if pick == nil {
		return nil, fmt.Errorf("tenant %s has no available agents", conv.TenantID)
	}

	conv.AgentID = pick.ID
	if err := r.store.Update(ctx, conv); err != nil {
		return nil, err
	}
	return pick, nil
}

// preferAgent reports whether a should replace b as the pick: preferred
// categories win, then the lighter task load.
func preferAgent(a, b *agents.Agent) bool {
	ap, bp := preferredCategory(a.Category), preferredCategory(b.Category)
	if ap != bp {
		return ap
	}
	return a.TasksCompleted+a.TasksFailed < b.TasksCompleted+b.TasksFailed
}

func preferredCategory(c agents.Category) bool {
	return c == agents.CategorySupport || c == agents.CategoryGeneral
}

// draftReply builds the prompt from recent history and the agent persona
// and calls the orchestrator.
func (r *Responder) draftReply(ctx context.Context, conv *Conversation, agent *agents.Agent) (string, error) {
	history, err := r.store.RecentMessages(ctx, conv.ID, r.window)
	if err != nil {
		return "", err
	}

	var prompt strings.Builder
	prompt.WriteString(agent.SystemPrompt)
	if agent.Instructions != "" {
		prompt.WriteString("\n\n")
		prompt.WriteString(agent.Instructions)
	}
	prompt.WriteString(whatsappGuidelines)

	messages := []llm.Message{{Role: llm.RoleSystem, Content: prompt.String()}}
	for _, msg := range history {
		switch msg.Role {
		case RoleCustomer:
			messages = append(messages, llm.Message{Role: llm.RoleUser, Content: msg.Content})
		case RoleAgent:
			messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: msg.Content})
		}
		// System audit messages stay out of the prompt.
	}

	req := llm.ChatRequest{
		Messages:    messages,
		Temperature: agent.Temperature(),
		MaxTokens:   agent.MaxTokens(),
	}

	resp, err := r.llm.ChatCompletion(ctx, conv.TenantID, req, agent.Provider, agent.Model)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// parkForHuman leaves the thread for an operator instead of silently
// dropping the customer's message.
func (r *Responder) parkForHuman(ctx context.Context, conv *Conversation) error {
	conv.Status = ConversationPending
	conv.RequiresHuman = true
	return r.store.Update(ctx, conv)
}

// SendProactive dispatches a message into a conversation outside the
// auto-reply loop, creating the thread when absent.
func (r *Responder) SendProactive(ctx context.Context, tenantID, phoneNumber, content string) error {
	conv, err := r.store.GetOrCreate(ctx, tenantID, phoneNumber, ChannelWhatsApp)
	if err != nil {
		return err
	}

	externalID, err := r.channel.SendMessage(ctx, conv.PhoneNumber, content)
	if err != nil {
		return fmt.Errorf("failed to send proactive message: %w", err)
	}

	return r.store.AppendMessage(ctx, &ChatMessage{
		ConversationID: conv.ID,
		Role:           RoleAgent,
		Content:        content,
		ExternalID:     externalID,
	})
}

// EscalateToHuman marks the conversation escalated and records why. The
// transition is irreversible from here; only operator tooling reopens an
// escalated thread.
func (r *Responder) EscalateToHuman(ctx context.Context, tenantID, conversationID, reason string) error {
	conv, err := r.store.Get(ctx, tenantID, conversationID)
	if err != nil {
		return err
	}

	conv.Status = ConversationEscalated
	conv.RequiresHuman = true
	if err := r.store.Update(ctx, conv); err != nil {
		return err
	}

	audit := fmt.Sprintf("Conversation escalated to human: %s", reason)
	return r.store.AppendMessage(ctx, &ChatMessage{
		ConversationID: conv.ID,
		Role:           RoleSystem,
		Content:        audit,
	})
}
