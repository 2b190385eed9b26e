// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

/*
Command server runs the Agentline backend.

Agentline is a multi-tenant service for AI agents: tenants register
encrypted, prioritized credentials for LLM providers; agents execute tasks
and crews through a fallback-capable orchestrator; and a WhatsApp
auto-responder answers customer conversations, escalating to humans when
it cannot.

# Usage

	server

# Environment Variables

Required outside development:
  - DATABASE_URL: PostgreSQL connection string
  - ENCRYPTION_KEY: base64-encoded 32-byte AES key for credential secrets
  - JWT_SECRET: HS256 signing secret for tenant bearer tokens

Optional:
  - PORT: HTTP server port (default: 8080)
  - ENVIRONMENT: deployment environment name (default: development)
  - REDIS_URL: Redis address for inbound deduplication (default: localhost:6379)
  - CONFIG_FILE: YAML file overlaying unset configuration values
  - LLM_ATTEMPT_TIMEOUT_SECONDS: per-provider-call timeout (default: 45)
  - WHATSAPP_ACCESS_TOKEN: Meta Cloud API token
  - WHATSAPP_PHONE_NUMBER_ID: Meta Cloud API phone number id

# Endpoints

The API is served under /api/v1 with JWT bearer auth; /health, /metrics
(Prometheus), and /webhooks/whatsapp/{tenant_id} are unauthenticated.
*/
package main
