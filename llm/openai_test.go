// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newOpenAITestServer(t *testing.T, handler http.HandlerFunc) (*OpenAI, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	adapter, err := NewOpenAI(AdapterConfig{APIKey: "test-key", Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("NewOpenAI: %v", err)
	}
	return adapter, srv
}

func TestOpenAIChatCompletion(t *testing.T) {
	adapter, _ := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}

		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req["model"] != "gpt-4o" {
			t.Errorf("expected model gpt-4o, got %v", req["model"])
		}

		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":    "chatcmpl-123",
			"model": "gpt-4o",
			"choices": []map[string]any{
				{"message": map[string]string{"content": "hello"}, "finish_reason": "stop"},
			},
			"usage": map[string]int{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
		})
	})

	resp, err := adapter.ChatCompletion(context.Background(), ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
		Model:    "gpt-4o",
	})
	if err != nil {
		t.Fatalf("ChatCompletion: %v", err)
	}

	if resp.Content != "hello" {
		t.Errorf("expected content hello, got %q", resp.Content)
	}
	if resp.TokensUsed != 15 {
		t.Errorf("expected 15 tokens, got %d", resp.TokensUsed)
	}
	if resp.Provider != "openai" {
		t.Errorf("expected provider openai, got %q", resp.Provider)
	}
	if resp.Cost != exactCost("openai", "gpt-4o", 10, 5) {
		t.Errorf("unexpected cost %v", resp.Cost)
	}
}

func TestOpenAIErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     map[string]any
		wantKind ErrorKind
	}{
		{
			name:   "insufficient quota",
			status: 429,
			body: map[string]any{"error": map[string]string{
				"message": "You exceeded your current quota",
				"type":    "insufficient_quota",
				"code":    "insufficient_quota",
			}},
			wantKind: KindQuota,
		},
		{
			name:   "rate limited",
			status: 429,
			body: map[string]any{"error": map[string]string{
				"message": "Rate limit reached",
				"type":    "rate_limit_error",
			}},
			wantKind: KindRateLimit,
		},
		{
			name:   "bad key",
			status: 401,
			body: map[string]any{"error": map[string]string{
				"message": "Incorrect API key provided",
				"type":    "authentication_error",
			}},
			wantKind: KindAuth,
		},
		{
			name:   "invalid request",
			status: 400,
			body: map[string]any{"error": map[string]string{
				"message": "model parameter is missing",
				"type":    "invalid_request_error",
			}},
			wantKind: KindInvalidRequest,
		},
		{
			name:     "server error",
			status:   500,
			body:     map[string]any{"error": map[string]string{"message": "internal"}},
			wantKind: KindTransient,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter, _ := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_ = json.NewEncoder(w).Encode(tt.body)
			})

			_, err := adapter.ChatCompletion(context.Background(), ChatRequest{
				Messages: []Message{{Role: RoleUser, Content: "hi"}},
			})
			if err == nil {
				t.Fatal("expected error")
			}

			var perr *ProviderError
			if !errors.As(err, &perr) {
				t.Fatalf("expected ProviderError, got %T", err)
			}
			if perr.Kind != tt.wantKind {
				t.Errorf("expected kind %s, got %s", tt.wantKind, perr.Kind)
			}
			if perr.StatusCode != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, perr.StatusCode)
			}
		})
	}
}

func TestOpenAIValidateKey(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		adapter, _ := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/v1/models" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			w.WriteHeader(http.StatusOK)
		})
		if !adapter.ValidateKey(context.Background()) {
			t.Error("expected key to validate")
		}
	})

	t.Run("rejected", func(t *testing.T) {
		adapter, _ := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})
		if adapter.ValidateKey(context.Background()) {
			t.Error("expected key to be rejected")
		}
	})

	t.Run("unreachable", func(t *testing.T) {
		adapter, srv := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {})
		srv.Close()
		if adapter.ValidateKey(context.Background()) {
			t.Error("expected validation to fail on network error")
		}
	})
}

func TestOpenAIRequiresKey(t *testing.T) {
	if _, err := NewOpenAI(AdapterConfig{}); err == nil {
		t.Error("expected error for missing key")
	}
}
