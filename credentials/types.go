// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package credentials manages tenant-owned, encrypted LLM provider API keys:
// the credential model, its Postgres store, and the symmetric cipher that
// guards key material at rest.
package credentials

import (
	"fmt"
	"strings"
	"time"
)

// Provider identifies an LLM vendor a credential belongs to.
type Provider string

// Supported providers.
const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGoogle    Provider = "google"
	ProviderGroq      Provider = "groq"
	ProviderCohere    Provider = "cohere"
	ProviderMistral   Provider = "mistral"
	ProviderTogether  Provider = "together"
	ProviderOllama    Provider = "ollama"
)

// Valid reports whether p is a known provider.
func (p Provider) Valid() bool {
	switch p {
	case ProviderOpenAI, ProviderAnthropic, ProviderGoogle, ProviderGroq,
		ProviderCohere, ProviderMistral, ProviderTogether, ProviderOllama:
		return true
	}
	return false
}

// Status is the lifecycle state of a credential. Transitions are
// one-directional toward terminal failure states; only an explicit
// reactivation request moves a credential back to active.
type Status string

const (
	StatusActive        Status = "active"
	StatusInactive      Status = "inactive"
	StatusQuotaExceeded Status = "quota_exceeded"
	StatusInvalid       Status = "invalid"
	StatusExpired       Status = "expired"
)

// Credential is one tenant-owned key for one provider.
type Credential struct {
	ID       string   `json:"id"`
	TenantID string   `json:"tenant_id"`
	Name     string   `json:"name"`
	Provider Provider `json:"provider"`

	// EncryptedKey is the AES-GCM sealed API key. It is never exposed in
	// full through any API surface; use Redacted for display.
	EncryptedKey string `json:"-"`

	Status Status `json:"status"`

	// Priority orders fallback attempts; lower is tried first. Always >= 1.
	Priority int `json:"priority"`

	// MonthlyCapUSD is an optional advisory spend cap. Zero means no cap.
	MonthlyCapUSD float64 `json:"monthly_cap_usd,omitempty"`

	// UsageUSD is the cumulative cost of successful calls through this key.
	UsageUSD float64 `json:"usage_usd"`

	LastUsed      *time.Time `json:"last_used,omitempty"`
	LastValidated *time.Time `json:"last_validated,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Available reports whether the credential may be selected for a call.
func (c *Credential) Available() bool {
	return c.Status == StatusActive
}

// OverCap reports whether the advisory monthly spend cap is exhausted.
func (c *Credential) OverCap() bool {
	return c.MonthlyCapUSD > 0 && c.UsageUSD >= c.MonthlyCapUSD
}

// Redacted returns a preview of the plaintext key suitable for listings:
// the first four and last four characters with the middle elided.
func Redacted(plaintext string) string {
	if len(plaintext) <= 8 {
		return strings.Repeat("*", len(plaintext))
	}
	return fmt.Sprintf("%s...%s", plaintext[:4], plaintext[len(plaintext)-4:])
}
