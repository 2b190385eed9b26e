// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package llm

import (
	"context"
	"net/http"
	"time"

	"axonflow/agentline/credentials"
)

// Provider is the unified interface every vendor adapter implements.
// Implementations must be safe for concurrent use. Adapters perform network
// I/O only; they never touch persistence.
type Provider interface {
	// Name returns the constant provider identifier ("openai", "anthropic").
	Name() string

	// Models returns the static, ordered model catalog for this provider.
	// The first entry is the default used for cross-vendor fallback.
	Models() []string

	// ChatCompletion turns a normalized request into a normalized response.
	// Failures are returned as *ProviderError with a classified kind.
	ChatCompletion(ctx context.Context, req ChatRequest) (*Response, error)

	// ValidateKey performs a minimal live call against the vendor to check
	// the adapter's key. It never returns an error: any failure is false.
	ValidateKey(ctx context.Context) bool

	// EstimateCost returns the advisory USD cost for a token count against
	// a model, using the provider's price table. Unknown models fall back
	// to the table's default entry; the function never fails.
	EstimateCost(tokens int, model string) float64
}

// HTTPClient abstracts the HTTP transport so tests can inject fakes.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// AdapterConfig contains everything needed to construct an adapter for one
// decrypted credential.
type AdapterConfig struct {
	// APIKey is the decrypted vendor key. Required.
	APIKey string

	// Endpoint overrides the vendor's default API base URL.
	Endpoint string

	// Timeout bounds each HTTP call. Zero means the adapter default.
	Timeout time.Duration

	// Client overrides the HTTP client (testing). Nil means a default
	// client honoring Timeout.
	Client HTTPClient
}

func (c AdapterConfig) httpClient(defaultTimeout time.Duration) HTTPClient {
	if c.Client != nil {
		return c.Client
	}
	timeout := c.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// Factory constructs a Provider for one decrypted credential.
type Factory func(cfg AdapterConfig) (Provider, error)

// defaultFactories returns the built-in adapter factories.
func defaultFactories() map[credentials.Provider]Factory {
	return map[credentials.Provider]Factory{
		credentials.ProviderOpenAI: func(cfg AdapterConfig) (Provider, error) {
			return NewOpenAI(cfg)
		},
		credentials.ProviderAnthropic: func(cfg AdapterConfig) (Provider, error) {
			return NewAnthropic(cfg)
		},
		credentials.ProviderGoogle: func(cfg AdapterConfig) (Provider, error) {
			return NewGoogle(cfg)
		},
	}
}
