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

func newAnthropicTestServer(t *testing.T, handler http.HandlerFunc) *Anthropic {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	adapter, err := NewAnthropic(AdapterConfig{APIKey: "test-key", Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("NewAnthropic: %v", err)
	}
	return adapter
}

func TestAnthropicLiftsSystemMessage(t *testing.T) {
	adapter := newAnthropicTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-api-key"); got != "test-key" {
			t.Errorf("unexpected api key header %q", got)
		}
		if got := r.Header.Get("anthropic-version"); got != AnthropicAPIVersion {
			t.Errorf("unexpected version header %q", got)
		}

		var req struct {
			System   string `json:"system"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.System != "be helpful" {
			t.Errorf("expected system message lifted, got %q", req.System)
		}
		if len(req.Messages) != 1 || req.Messages[0].Role != "user" {
			t.Errorf("unexpected messages %+v", req.Messages)
		}

		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":          "msg_123",
			"model":       "claude-3-5-sonnet-20241022",
			"stop_reason": "end_turn",
			"content":     []map[string]string{{"type": "text", "text": "hi there"}},
			"usage":       map[string]int{"input_tokens": 12, "output_tokens": 8},
		})
	})

	resp, err := adapter.ChatCompletion(context.Background(), ChatRequest{
		Messages: []Message{
			{Role: RoleSystem, Content: "be helpful"},
			{Role: RoleUser, Content: "hello"},
		},
	})
	if err != nil {
		t.Fatalf("ChatCompletion: %v", err)
	}

	if resp.Content != "hi there" {
		t.Errorf("expected content, got %q", resp.Content)
	}
	if resp.TokensUsed != 20 {
		t.Errorf("expected 20 tokens, got %d", resp.TokensUsed)
	}
	if resp.Provider != "anthropic" {
		t.Errorf("expected provider anthropic, got %q", resp.Provider)
	}
}

func TestAnthropicErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		errType  string
		wantKind ErrorKind
	}{
		{"auth", 401, "authentication_error", KindAuth},
		{"permission", 403, "permission_error", KindAuth},
		{"rate limit", 429, "rate_limit_error", KindRateLimit},
		{"invalid request", 400, "invalid_request_error", KindInvalidRequest},
		{"overloaded", 529, "overloaded_error", KindTransient},
		{"api error", 500, "api_error", KindTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter := newAnthropicTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"error": map[string]string{"type": tt.errType, "message": "nope"},
				})
			})

			_, err := adapter.ChatCompletion(context.Background(), ChatRequest{
				Messages: []Message{{Role: RoleUser, Content: "hi"}},
			})

			var perr *ProviderError
			if !errors.As(err, &perr) {
				t.Fatalf("expected ProviderError, got %v", err)
			}
			if perr.Kind != tt.wantKind {
				t.Errorf("expected kind %s, got %s", tt.wantKind, perr.Kind)
			}
		})
	}
}
