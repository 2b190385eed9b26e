// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package llm

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"axonflow/agentline/credentials"
)

// DefaultAttemptTimeout bounds each individual provider call so one
// unresponsive vendor cannot stall the whole fallback chain.
const DefaultAttemptTimeout = 45 * time.Second

// CredentialSource is the slice of credential persistence the orchestrator
// needs: an ordered active listing plus the mutations it performs around
// each attempt. credentials.Store satisfies it.
type CredentialSource interface {
	ListActive(ctx context.Context, tenantID string, provider credentials.Provider) ([]credentials.Credential, error)
	MarkQuotaExceeded(ctx context.Context, id string) error
	TouchLastUsed(ctx context.Context, id string) error
	AddUsage(ctx context.Context, id string, costUSD float64) error
}

// Decrypter opens encrypted credential blobs. credentials.Cipher satisfies it.
type Decrypter interface {
	Decrypt(blob string) (string, error)
}

// Recorder receives orchestrator metrics. The metrics package provides a
// Prometheus-backed implementation; the default is a no-op.
type Recorder interface {
	// ObserveAttempt records one credential attempt and its outcome
	// ("success", or the failed attempt's error kind).
	ObserveAttempt(provider string, outcome string, seconds float64)

	// ObserveUsage records tokens and cost of a successful completion.
	ObserveUsage(provider, model string, tokens int, costUSD float64)
}

type nopRecorder struct{}

func (nopRecorder) ObserveAttempt(string, string, float64)  {}
func (nopRecorder) ObserveUsage(string, string, int, float64) {}

// Orchestrator selects among a tenant's prioritized credentials, invokes the
// matching adapter, and falls back across the remaining credentials on
// failure. It is safe for concurrent use.
type Orchestrator struct {
	creds          CredentialSource
	secrets        Decrypter
	factories      map[credentials.Provider]Factory
	cache          *adapterCache
	attemptTimeout time.Duration
	recorder       Recorder
	logger         *log.Logger
}

// OrchestratorOption configures the orchestrator during creation.
type OrchestratorOption func(*Orchestrator)

// WithAttemptTimeout bounds each individual provider call.
func WithAttemptTimeout(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if d > 0 {
			o.attemptTimeout = d
		}
	}
}

// WithCacheSize bounds the adapter cache.
func WithCacheSize(size int) OrchestratorOption {
	return func(o *Orchestrator) {
		cache, err := newAdapterCache(size)
		if err == nil {
			o.cache = cache
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) OrchestratorOption {
	return func(o *Orchestrator) {
		if r != nil {
			o.recorder = r
		}
	}
}

// WithOrchestratorLogger sets a custom logger.
func WithOrchestratorLogger(l *log.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithFactories replaces the adapter factories. Tests use this to inject
// fake providers.
func WithFactories(factories map[credentials.Provider]Factory) OrchestratorOption {
	return func(o *Orchestrator) {
		if factories != nil {
			o.factories = factories
		}
	}
}

// NewOrchestrator creates an orchestrator over the given credential source
// and decrypter. One instance per process, constructed at startup and
// passed to its consumers.
func NewOrchestrator(creds CredentialSource, secrets Decrypter, opts ...OrchestratorOption) (*Orchestrator, error) {
	if creds == nil {
		return nil, errors.New("credential source is required")
	}
	if secrets == nil {
		return nil, errors.New("decrypter is required")
	}

	cache, err := newAdapterCache(DefaultAdapterCacheSize)
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		creds:          creds,
		secrets:        secrets,
		factories:      defaultFactories(),
		cache:          cache,
		attemptTimeout: DefaultAttemptTimeout,
		recorder:       nopRecorder{},
		logger:         log.New(os.Stdout, "[ORCHESTRATOR] ", log.LstdFlags),
	}

	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// ChatCompletion executes one completion with automatic fallback:
//
//  1. Load the tenant's active credentials sorted ascending by priority.
//  2. Partition into preferred-provider credentials and the rest, keeping
//     relative priority order within each partition.
//  3. Attempt each candidate strictly in sequence. Quota and rate-limit
//     failures demote the credential persistently before moving on; other
//     failures move on without touching the credential.
//  4. Return the first success, or ExhaustedError once every candidate has
//     been tried.
func (o *Orchestrator) ChatCompletion(
	ctx context.Context,
	tenantID string,
	req ChatRequest,
	preferredProvider credentials.Provider,
	preferredModel string,
) (*Response, error) {
	active, err := o.creds.ListActive(ctx, tenantID, "")
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}

	// The store orders by priority already; keep the guarantee even for
	// sources that do not.
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].Priority < active[j].Priority
	})

	var preferred, others []credentials.Credential
	for _, cred := range active {
		if cred.OverCap() {
			o.logger.Printf("Skipping credential %s: monthly cap reached ($%.2f)", cred.ID, cred.UsageUSD)
			continue
		}
		if cred.Provider == preferredProvider {
			preferred = append(preferred, cred)
		} else {
			others = append(others, cred)
		}
	}

	attempts := 0
	var lastErr error

	for _, cred := range preferred {
		resp, err := o.attempt(ctx, cred, req, preferredModel)
		if err == nil {
			return resp, nil
		}
		attempts++
		lastErr = err
	}

	if len(preferred) > 0 {
		o.logger.Printf("Fallback: preferred provider %s exhausted for tenant %s, trying other providers", preferredProvider, tenantID)
	}

	for _, cred := range others {
		// Carrying a model name across vendors is meaningless; fallback
		// credentials always use their own catalog default.
		resp, err := o.attempt(ctx, cred, req, "")
		if err == nil {
			return resp, nil
		}
		attempts++
		lastErr = err
	}

	return nil, &ExhaustedError{TenantID: tenantID, Attempts: attempts, LastErr: lastErr}
}

// attempt decrypts one credential, resolves its adapter and model, and
// performs a single bounded provider call, updating credential state on
// both outcomes.
func (o *Orchestrator) attempt(ctx context.Context, cred credentials.Credential, req ChatRequest, wantModel string) (*Response, error) {
	adapter, err := o.adapterFor(cred)
	if err != nil {
		o.logger.Printf("Failed to build adapter for credential %s (%s): %v", cred.ID, cred.Provider, err)
		return nil, err
	}

	attemptReq := req
	attemptReq.Model = resolveModel(adapter, wantModel)

	attemptCtx, cancel := context.WithTimeout(ctx, o.attemptTimeout)
	defer cancel()

	start := time.Now()
	resp, err := adapter.ChatCompletion(attemptCtx, attemptReq)
	elapsed := time.Since(start)

	if err != nil {
		o.logger.Printf("Credential %s (%s) failed: %v", cred.ID, cred.Provider, err)
		o.recorder.ObserveAttempt(string(cred.Provider), attemptOutcome(err), elapsed.Seconds())

		var perr *ProviderError
		if errors.As(err, &perr) && perr.Demotes() {
			// Sticky demotion, persisted immediately so subsequent calls
			// skip this credential without paying the latency again.
			if markErr := o.creds.MarkQuotaExceeded(ctx, cred.ID); markErr != nil {
				o.logger.Printf("Failed to persist quota demotion for credential %s: %v", cred.ID, markErr)
			} else {
				o.logger.Printf("Marked credential %s as quota exceeded", cred.ID)
			}
		}
		return nil, err
	}

	o.recorder.ObserveAttempt(string(cred.Provider), "success", elapsed.Seconds())
	o.recorder.ObserveUsage(resp.Provider, resp.Model, resp.TokensUsed, resp.Cost)

	// Credential bookkeeping is best-effort; a bookkeeping failure never
	// fails a completed call.
	if err := o.creds.TouchLastUsed(ctx, cred.ID); err != nil {
		o.logger.Printf("Failed to update last used for credential %s: %v", cred.ID, err)
	}
	if resp.Cost > 0 {
		if err := o.creds.AddUsage(ctx, cred.ID, resp.Cost); err != nil {
			o.logger.Printf("Failed to record usage for credential %s: %v", cred.ID, err)
		}
	}

	return resp, nil
}

// adapterFor returns a cached adapter for the credential, constructing and
// caching one when absent.
func (o *Orchestrator) adapterFor(cred credentials.Credential) (Provider, error) {
	factory, ok := o.factories[cred.Provider]
	if !ok {
		return nil, fmt.Errorf("unsupported provider %q", cred.Provider)
	}

	plaintext, err := o.secrets.Decrypt(cred.EncryptedKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt credential %s: %w", cred.ID, err)
	}

	if adapter, ok := o.cache.get(cred.Provider, plaintext); ok {
		return adapter, nil
	}

	adapter, err := factory(AdapterConfig{APIKey: plaintext, Timeout: o.attemptTimeout})
	if err != nil {
		return nil, err
	}
	o.cache.put(cred.Provider, plaintext, adapter)
	return adapter, nil
}

// resolveModel picks the model to request: the preferred model when the
// adapter's catalog carries it, else the catalog default.
func resolveModel(adapter Provider, wantModel string) string {
	models := adapter.Models()
	if len(models) == 0 {
		return wantModel
	}
	for _, m := range models {
		if m == wantModel {
			return wantModel
		}
	}
	return models[0]
}

func attemptOutcome(err error) string {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return string(perr.Kind)
	}
	return string(KindUnknown)
}

// ValidateAPIKey checks a raw key against a provider with a minimal live
// call. It never returns an error: any failure, including an unsupported
// provider, reads as false.
func (o *Orchestrator) ValidateAPIKey(ctx context.Context, provider credentials.Provider, key string) bool {
	factory, ok := o.factories[provider]
	if !ok {
		return false
	}

	adapter, err := factory(AdapterConfig{APIKey: key, Timeout: o.attemptTimeout})
	if err != nil {
		return false
	}
	return adapter.ValidateKey(ctx)
}

// AvailableProviders returns the providers this orchestrator can dispatch
// to, sorted for stable output.
func (o *Orchestrator) AvailableProviders() []credentials.Provider {
	providers := make([]credentials.Provider, 0, len(o.factories))
	for p := range o.factories {
		providers = append(providers, p)
	}
	sort.Slice(providers, func(i, j int) bool { return providers[i] < providers[j] })
	return providers
}

// AvailableModels returns the static model catalog for a provider, or nil
// for an unsupported provider.
func (o *Orchestrator) AvailableModels(provider credentials.Provider) []string {
	factory, ok := o.factories[provider]
	if !ok {
		return nil
	}

	// Catalogs are static data; a throwaway instance serves the lookup.
	adapter, err := factory(AdapterConfig{APIKey: "catalog-probe"})
	if err != nil {
		return nil
	}
	return adapter.Models()
}

// EstimateCost returns the advisory USD cost for a token count, or 0 for an
// unknown provider. Display-only, never billing-critical.
func (o *Orchestrator) EstimateCost(provider credentials.Provider, tokens int, model string) float64 {
	factory, ok := o.factories[provider]
	if !ok {
		return 0
	}

	adapter, err := factory(AdapterConfig{APIKey: "catalog-probe"})
	if err != nil {
		return 0
	}
	return adapter.EstimateCost(tokens, model)
}
