// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"axonflow/agentline/credentials"
)

// credentialView is the client-facing shape of a credential: the key is
// only ever shown redacted.
type credentialView struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Provider      string  `json:"provider"`
	Status        string  `json:"status"`
	Priority      int     `json:"priority"`
	KeyPreview    string  `json:"key_preview"`
	MonthlyCapUSD float64 `json:"monthly_cap_usd,omitempty"`
	UsageUSD      float64 `json:"usage_usd"`
}

func (s *Server) credentialView(cred *credentials.Credential) credentialView {
	preview := ""
	if plaintext, err := s.cipher.Decrypt(cred.EncryptedKey); err == nil {
		preview = credentials.Redacted(plaintext)
	}
	return credentialView{
		ID:            cred.ID,
		Name:          cred.Name,
		Provider:      string(cred.Provider),
		Status:        string(cred.Status),
		Priority:      cred.Priority,
		KeyPreview:    preview,
		MonthlyCapUSD: cred.MonthlyCapUSD,
		UsageUSD:      cred.UsageUSD,
	}
}

// handleCreateCredential registers a tenant key. The key is validated
// live against the vendor before it is encrypted and stored.
func (s *Server) handleCreateCredential(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name          string  `json:"name"`
		Provider      string  `json:"provider"`
		APIKey        string  `json:"api_key"`
		Priority      int     `json:"priority"`
		MonthlyCapUSD float64 `json:"monthly_cap_usd"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	provider := credentials.Provider(req.Provider)
	if !provider.Valid() {
		respondError(w, http.StatusBadRequest, codeBadRequest, "unknown provider "+req.Provider)
		return
	}
	if req.APIKey == "" {
		respondError(w, http.StatusBadRequest, codeBadRequest, "api_key is required")
		return
	}
	if req.Priority <= 0 {
		req.Priority = 1
	}

	if !s.orch.ValidateAPIKey(r.Context(), provider, req.APIKey) {
		respondError(w, http.StatusBadRequest, codeInvalidKey, "the provided API key failed live validation")
		return
	}

	encrypted, err := s.cipher.Encrypt(req.APIKey)
	if err != nil {
		s.log.ErrorWithCode(tenantID(r), requestID(r), "Failed to encrypt credential", http.StatusInternalServerError, err, nil)
		respondError(w, http.StatusInternalServerError, codeInternal, "failed to encrypt key")
		return
	}

	cred := &credentials.Credential{
		TenantID:      tenantID(r),
		Name:          req.Name,
		Provider:      provider,
		EncryptedKey:  encrypted,
		Priority:      req.Priority,
		MonthlyCapUSD: req.MonthlyCapUSD,
	}
	if err := s.creds.Create(r.Context(), cred); err != nil {
		respondError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}

	if err := s.creds.TouchLastValidated(r.Context(), cred.TenantID, cred.ID); err != nil {
		s.log.Warn(tenantID(r), requestID(r), "Failed to record validation time", map[string]interface{}{"credential_id": cred.ID})
	}

	s.log.Info(tenantID(r), requestID(r), "Credential registered", map[string]interface{}{
		"credential_id": cred.ID,
		"provider":      cred.Provider,
	})
	respondJSON(w, http.StatusCreated, s.credentialView(cred))
}

func (s *Server) handleListCredentials(w http.ResponseWriter, r *http.Request) {
	creds, err := s.creds.List(r.Context(), tenantID(r))
	if err != nil {
		respondError(w, http.StatusInternalServerError, codeInternal, "failed to list credentials")
		return
	}

	views := make([]credentialView, 0, len(creds))
	for i := range creds {
		views = append(views, s.credentialView(&creds[i]))
	}
	respondJSON(w, http.StatusOK, views)
}

func (s *Server) handleDeleteCredential(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.creds.Delete(r.Context(), tenantID(r), id); err != nil {
		if errors.Is(err, credentials.ErrNotFound) {
			respondError(w, http.StatusNotFound, codeNotFound, "credential not found")
			return
		}
		respondError(w, http.StatusInternalServerError, codeInternal, "failed to delete credential")
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

// handleTestCredential re-runs live validation on a stored key.
func (s *Server) handleTestCredential(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	cred, err := s.creds.Get(r.Context(), tenantID(r), id)
	if err != nil {
		if errors.Is(err, credentials.ErrNotFound) {
			respondError(w, http.StatusNotFound, codeNotFound, "credential not found")
			return
		}
		respondError(w, http.StatusInternalServerError, codeInternal, "failed to load credential")
		return
	}

	plaintext, err := s.cipher.Decrypt(cred.EncryptedKey)
	if err != nil {
		respondError(w, http.StatusInternalServerError, codeInternal, "failed to decrypt credential")
		return
	}

	valid := s.orch.ValidateAPIKey(r.Context(), cred.Provider, plaintext)
	if valid {
		if err := s.creds.TouchLastValidated(r.Context(), cred.TenantID, cred.ID); err != nil {
			s.log.Warn(tenantID(r), requestID(r), "Failed to record validation time", map[string]interface{}{"credential_id": cred.ID})
		}
	}
	respondJSON(w, http.StatusOK, map[string]bool{"valid": valid})
}

// handleReactivateCredential resets a demoted credential to active.
func (s *Server) handleReactivateCredential(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.creds.Reactivate(r.Context(), tenantID(r), id); err != nil {
		if errors.Is(err, credentials.ErrNotFound) {
			respondError(w, http.StatusNotFound, codeNotFound, "credential not found")
			return
		}
		respondError(w, http.StatusInternalServerError, codeInternal, "failed to reactivate credential")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": string(credentials.StatusActive)})
}

// handleListProviders returns the provider catalog.
func (s *Server) handleListProviders(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.orch.AvailableProviders())
}

// handleListModels returns one provider's model catalog.
func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	provider := credentials.Provider(mux.Vars(r)["provider"])
	models := s.orch.AvailableModels(provider)
	if models == nil {
		respondError(w, http.StatusNotFound, codeNotFound, "unknown provider")
		return
	}
	respondJSON(w, http.StatusOK, models)
}

// handleEstimateCost returns the advisory cost for a token count.
func (s *Server) handleEstimateCost(w http.ResponseWriter, r *http.Request) {
	provider := credentials.Provider(mux.Vars(r)["provider"])
	model := r.URL.Query().Get("model")

	tokens, err := strconv.Atoi(r.URL.Query().Get("tokens"))
	if err != nil || tokens < 0 {
		respondError(w, http.StatusBadRequest, codeBadRequest, "tokens must be a non-negative integer")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"provider":      provider,
		"model":         model,
		"tokens":        tokens,
		"estimated_usd": s.orch.EstimateCost(provider, tokens, model),
	})
}
