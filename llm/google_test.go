// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newGoogleTestServer(t *testing.T, handler http.HandlerFunc) *Google {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	adapter, err := NewGoogle(AdapterConfig{APIKey: "test-key", Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("NewGoogle: %v", err)
	}
	return adapter
}

func TestGoogleChatCompletion(t *testing.T) {
	adapter := newGoogleTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "gemini-1.5-pro:generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "test-key" {
			t.Error("expected key query parameter")
		}

		var req struct {
			Contents []struct {
				Role string `json:"role"`
			} `json:"contents"`
			SystemInstruction *googleContent `json:"systemInstruction"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.SystemInstruction == nil {
			t.Error("expected system message to travel as systemInstruction")
		}
		// Assistant messages must map to the "model" role.
		if len(req.Contents) != 2 || req.Contents[1].Role != "model" {
			t.Errorf("unexpected contents %+v", req.Contents)
		}

		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{{
				"content":      map[string]any{"parts": []map[string]string{{"text": "answer"}}},
				"finishReason": "STOP",
			}},
			"usageMetadata": map[string]int{
				"promptTokenCount":     20,
				"candidatesTokenCount": 10,
				"totalTokenCount":      30,
			},
		})
	})

	resp, err := adapter.ChatCompletion(context.Background(), ChatRequest{
		Messages: []Message{
			{Role: RoleSystem, Content: "be brief"},
			{Role: RoleUser, Content: "question"},
			{Role: RoleAssistant, Content: "earlier answer"},
		},
		Model: "gemini-1.5-pro",
	})
	if err != nil {
		t.Fatalf("ChatCompletion: %v", err)
	}

	if resp.Content != "answer" {
		t.Errorf("expected content, got %q", resp.Content)
	}
	if resp.TokensUsed != 30 {
		t.Errorf("expected 30 tokens, got %d", resp.TokensUsed)
	}
	if resp.FinishReason != "stop" {
		t.Errorf("expected lowercased finish reason, got %q", resp.FinishReason)
	}
}

func TestGoogleErrorClassification(t *testing.T) {
	tests := []struct {
		name       string
		httpStatus int
		rpcStatus  string
		message    string
		wantKind   ErrorKind
	}{
		{"unauthenticated", 401, "UNAUTHENTICATED", "API key not valid", KindAuth},
		{"permission denied", 403, "PERMISSION_DENIED", "no access", KindAuth},
		{"quota exhausted", 429, "RESOURCE_EXHAUSTED", "Quota exceeded for requests per day", KindQuota},
		{"throttled", 429, "RESOURCE_EXHAUSTED", "Resource has been exhausted (e.g. check rate limit)", KindRateLimit},
		{"invalid argument", 400, "INVALID_ARGUMENT", "bad request", KindInvalidRequest},
		{"unavailable", 503, "UNAVAILABLE", "try again later", KindTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter := newGoogleTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.httpStatus)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"error": map[string]any{
						"code":    tt.httpStatus,
						"status":  tt.rpcStatus,
						"message": tt.message,
					},
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
