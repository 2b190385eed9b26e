// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package llm provides the multi-provider LLM invocation layer: a unified
// provider contract, per-vendor adapters, and a fallback orchestrator that
// selects among a tenant's prioritized credentials.
package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single normalized chat message. Messages are ephemeral:
// constructed per call and never persisted.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatRequest encapsulates the parameters of one chat completion call.
type ChatRequest struct {
	// Messages is the ordered conversation context, system message first.
	Messages []Message `json:"messages"`

	// Model overrides the adapter's default model. The orchestrator replaces
	// it when the requested model is not in the target adapter's catalog.
	Model string `json:"model,omitempty"`

	// Temperature controls randomness. Negative means "use the default".
	Temperature float64 `json:"temperature,omitempty"`

	// MaxTokens limits the completion length. Zero means provider default.
	MaxTokens int `json:"max_tokens,omitempty"`

	// Extra carries provider-specific options not covered by standard fields.
	Extra map[string]any `json:"extra,omitempty"`
}

// Response is the normalized result of a successful completion.
type Response struct {
	Content string `json:"content"`

	// TokensUsed is the total (prompt + completion) token count.
	TokensUsed int `json:"tokens_used"`

	// Cost is the exact USD cost of this call, rounded to 6 decimal places.
	Cost float64 `json:"cost"`

	Model    string `json:"model"`
	Provider string `json:"provider"`

	// FinishReason indicates why generation stopped ("stop", "max_tokens", ...).
	FinishReason string `json:"finish_reason,omitempty"`

	// Metadata contains provider-specific response data (token split, ids).
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ErrorKind classifies a provider failure so the orchestrator can react.
type ErrorKind string

const (
	// KindAuth indicates the credential was rejected by the vendor.
	KindAuth ErrorKind = "auth"

	// KindQuota indicates the credential's quota or billing allowance is
	// exhausted. Quota failures demote the credential persistently.
	KindQuota ErrorKind = "quota"

	// KindRateLimit indicates the vendor throttled the request. Treated like
	// quota for demotion purposes.
	KindRateLimit ErrorKind = "rate_limit"

	// KindInvalidRequest indicates a malformed or rejected request.
	KindInvalidRequest ErrorKind = "invalid_request"

	// KindTransient indicates a server-side or network failure that may
	// succeed on retry with a different credential.
	KindTransient ErrorKind = "transient"

	// KindUnknown is the fallback for unclassifiable failures.
	KindUnknown ErrorKind = "unknown"
)

// ProviderError is a classified failure from a provider adapter.
type ProviderError struct {
	Provider   string
	Kind       ErrorKind
	StatusCode int
	Message    string
	Cause      error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s error (%s, status %d): %s", e.Provider, e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s error (%s): %s", e.Provider, e.Kind, e.Message)
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// Demotes reports whether this failure should mark the credential
// quota_exceeded. Only quota and rate-limit signatures demote; everything
// else may be request-specific and leaves the credential untouched.
func (e *ProviderError) Demotes() bool {
	return e.Kind == KindQuota || e.Kind == KindRateLimit
}

// classifyStatus maps an HTTP status code to an error kind. This is the
// shared fallback; adapters refine it with vendor error codes first.
func classifyStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusTooManyRequests:
		return KindRateLimit
	case status == http.StatusPaymentRequired:
		return KindQuota
	case status >= 400 && status < 500:
		return KindInvalidRequest
	case status >= 500:
		return KindTransient
	default:
		return KindUnknown
	}
}

// classifyText is the last-resort substring fallback for vendors that return
// no structured code. Structured classification always runs first.
func classifyText(message string, fallback ErrorKind) ErrorKind {
	lower := strings.ToLower(message)
	if strings.Contains(lower, "quota") || strings.Contains(lower, "billing") {
		return KindQuota
	}
	if strings.Contains(lower, "rate limit") || strings.Contains(lower, "limit") {
		return KindRateLimit
	}
	return fallback
}

// ExhaustedError is returned when every candidate credential failed.
type ExhaustedError struct {
	TenantID string
	Attempts int
	LastErr  error
}

// Error implements the error interface.
func (e *ExhaustedError) Error() string {
	msg := fmt.Sprintf("all configured provider keys and quotas were checked and failed (%d credential(s) tried)", e.Attempts)
	if e.LastErr != nil {
		msg += fmt.Sprintf(": last error: %v", e.LastErr)
	}
	return msg
}

// Unwrap returns the last provider error seen.
func (e *ExhaustedError) Unwrap() error {
	return e.LastErr
}

// IsExhausted reports whether err is an ExhaustedError.
func IsExhausted(err error) bool {
	var exhausted *ExhaustedError
	return errors.As(err, &exhausted)
}
