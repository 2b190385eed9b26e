// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"axonflow/agentline/conversations"
)

// handleWhatsAppWebhook ingests a Meta Cloud API delivery. The route is
// unauthenticated; signature validation happens at the edge proxy. Meta
// retries non-200 responses, so parse failures still acknowledge.
func (s *Server) handleWhatsAppWebhook(w http.ResponseWriter, r *http.Request) {
	tenant := mux.Vars(r)["tenant_id"]

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, http.StatusBadRequest, codeBadRequest, "failed to read payload")
		return
	}

	inbound, err := conversations.ParseWebhook(payload)
	if err != nil {
		s.log.Warn(tenant, requestID(r), "Unparseable webhook payload", map[string]interface{}{"error": err.Error()})
		respondJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	for _, msg := range inbound {
		if err := s.responder.ProcessInbound(r.Context(), tenant, msg); err != nil {
			s.log.ErrorWithCode(tenant, requestID(r), "Failed to process inbound message", http.StatusInternalServerError, err, map[string]interface{}{
				"external_id": msg.ExternalID,
			})
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "processed", "messages": len(inbound)})
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := s.convs.List(r.Context(), tenantID(r))
	if err != nil {
		respondError(w, http.StatusInternalServerError, codeInternal, "failed to list conversations")
		return
	}
	respondJSON(w, http.StatusOK, convs)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	conv, err := s.convs.Get(r.Context(), tenantID(r), mux.Vars(r)["id"])
	if err != nil {
		s.respondConversationError(w, err)
		return
	}

	msgs, err := s.convs.RecentMessages(r.Context(), conv.ID, 100)
	if err != nil {
		respondError(w, http.StatusInternalServerError, codeInternal, "failed to list messages")
		return
	}
	respondJSON(w, http.StatusOK, msgs)
}

// handleSendProactive pushes a message into a thread outside the
// auto-reply loop.
func (s *Server) handleSendProactive(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PhoneNumber string `json:"phone_number"`
		Content     string `json:"content"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.PhoneNumber == "" || req.Content == "" {
		respondError(w, http.StatusBadRequest, codeBadRequest, "phone_number and content are required")
		return
	}

	if err := s.responder.SendProactive(r.Context(), tenantID(r), req.PhoneNumber, req.Content); err != nil {
		s.log.ErrorWithCode(tenantID(r), requestID(r), "Failed to send proactive message", http.StatusInternalServerError, err, nil)
		respondError(w, http.StatusInternalServerError, codeInternal, "failed to send message")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

// handleEscalate hands a thread to a human, permanently for this layer.
func (s *Server) handleEscalate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Reason == "" {
		req.Reason = "escalation requested"
	}

	if err := s.responder.EscalateToHuman(r.Context(), tenantID(r), mux.Vars(r)["id"], req.Reason); err != nil {
		s.respondConversationError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": string(conversations.ConversationEscalated)})
}

func (s *Server) respondConversationError(w http.ResponseWriter, err error) {
	if errors.Is(err, conversations.ErrNotFound) {
		respondError(w, http.StatusNotFound, codeNotFound, "conversation not found")
		return
	}
	respondError(w, http.StatusInternalServerError, codeInternal, "conversation operation failed")
}
