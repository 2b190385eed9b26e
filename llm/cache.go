// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package llm

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"axonflow/agentline/credentials"
)

// adapterCache holds constructed adapters keyed by (provider, key prefix)
// so identical keys are not re-authenticated within a process lifetime.
// The cache is bounded with LRU eviction and owned by one Orchestrator
// instance; there is no global state.
type adapterCache struct {
	cache *lru.Cache[string, Provider]
}

// DefaultAdapterCacheSize bounds the number of live adapter instances.
const DefaultAdapterCacheSize = 64

func newAdapterCache(size int) (*adapterCache, error) {
	if size <= 0 {
		size = DefaultAdapterCacheSize
	}
	cache, err := lru.New[string, Provider](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create adapter cache: %w", err)
	}
	return &adapterCache{cache: cache}, nil
}

// cacheKey derives the lookup key from the provider and a key prefix.
// Only a prefix of the plaintext participates so the full secret never
// lives in the cache key.
func cacheKey(provider credentials.Provider, apiKey string) string {
	prefix := apiKey
	if len(prefix) > 10 {
		prefix = prefix[:10]
	}
	return fmt.Sprintf("%s:%s", provider, prefix)
}

func (c *adapterCache) get(provider credentials.Provider, apiKey string) (Provider, bool) {
	return c.cache.Get(cacheKey(provider, apiKey))
}

func (c *adapterCache) put(provider credentials.Provider, apiKey string, adapter Provider) {
	c.cache.Add(cacheKey(provider, apiKey), adapter)
}

func (c *adapterCache) len() int {
	return c.cache.Len()
}
