// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package main is the entry point for the Agentline server.
//
// The server is a multi-tenant backend for AI agents that:
// - Manages encrypted, prioritized LLM provider credentials per tenant
// - Routes completions across providers with automatic fallback
// - Executes agent tasks and crews with cost and token accounting
// - Auto-responds to WhatsApp conversations with escalation to humans
//
// Usage:
//
//	./server
//
// Environment Variables:
//
//	PORT - HTTP server port (default: 8080)
//	DATABASE_URL - PostgreSQL connection string
//	REDIS_URL - Redis address for inbound deduplication
//	ENCRYPTION_KEY - base64 32-byte AES key for credential secrets
//	JWT_SECRET - HS256 signing secret for tenant tokens
//	WHATSAPP_ACCESS_TOKEN - Meta Cloud API token (optional in development)
//	WHATSAPP_PHONE_NUMBER_ID - Meta Cloud API phone number id
package main

import (
	"axonflow/agentline/server"
)

func main() {
	server.Run()
}
