// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package server wires the Agentline HTTP API: configuration, storage,
// the LLM orchestrator, the task executor, and the WhatsApp responder.
package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"fmt"
	"log"
	"net/http"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"axonflow/agentline/agents"
	"axonflow/agentline/config"
	"axonflow/agentline/conversations"
	"axonflow/agentline/credentials"
	"axonflow/agentline/llm"
	"axonflow/agentline/metrics"
	"axonflow/agentline/shared/logger"
)

// Server holds the wired components behind the HTTP API.
type Server struct {
	creds     credentials.Store
	cipher    *credentials.Cipher
	orch      *llm.Orchestrator
	executor  *agents.Executor
	agents    agents.AgentStore
	tasks     agents.TaskStore
	crews     agents.CrewStore
	convs     conversations.Store
	responder *conversations.Responder

	jwtSecret   string
	corsOrigins []string
	log         *logger.Logger
}

// Run loads configuration, wires every component, and serves the API
// until the process exits. Fatal on misconfiguration.
func Run() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	cipher, err := buildCipher(cfg)
	if err != nil {
		log.Fatalf("Encryption key error: %v", err)
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to reach database: %v", err)
	}

	ctx := context.Background()
	for _, ensure := range []func(context.Context, *sql.DB) error{
		credentials.EnsureSchema,
		agents.EnsureSchema,
		conversations.EnsureSchema,
	} {
		if err := ensure(ctx, db); err != nil {
			log.Fatalf("Schema error: %v", err)
		}
	}

	credStore := credentials.NewPostgresStore(db)

	orch, err := llm.NewOrchestrator(credStore, cipher,
		llm.WithAttemptTimeout(cfg.AttemptTimeout),
		llm.WithRecorder(metrics.NewLLMRecorder()),
	)
	if err != nil {
		log.Fatalf("Failed to build orchestrator: %v", err)
	}

	agentStore := agents.NewPostgresAgentStore(db)
	taskStore := agents.NewPostgresTaskStore(db)
	crewStore := agents.NewPostgresCrewStore(db)
	executor := agents.NewExecutor(agentStore, taskStore, crewStore, orch)

	convStore := conversations.NewPostgresStore(db)

	channel, err := buildChannel(cfg)
	if err != nil {
		log.Fatalf("WhatsApp configuration error: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisURL})
	dedup := conversations.NewRedisDeduper(redisClient, 0)

	responder := conversations.NewResponder(convStore, agentStore, orch, channel,
		conversations.WithDeduper(dedup))

	srv := &Server{
		creds:       credStore,
		cipher:      cipher,
		orch:        orch,
		executor:    executor,
		agents:      agentStore,
		tasks:       taskStore,
		crews:       crewStore,
		convs:       convStore,
		responder:   responder,
		jwtSecret:   cfg.JWTSecret,
		corsOrigins: cfg.CORSAllowedOrigins,
		log:         logger.New("server"),
	}

	log.Printf("Agentline server listening on port %s", cfg.Port)
	log.Fatal(http.ListenAndServe(":"+cfg.Port, srv.Handler()))
}

// buildCipher resolves the credential cipher from configuration. A
// development process without a key gets an ephemeral one, with a loud
// warning, so locally stored credentials do not survive restarts.
func buildCipher(cfg *config.Config) (*credentials.Cipher, error) {
	if cfg.EncryptionKey != "" {
		return credentials.NewCipherFromBase64(cfg.EncryptionKey)
	}
	if !cfg.Development() {
		return nil, fmt.Errorf("ENCRYPTION_KEY is required in %s environment", cfg.Environment)
	}

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate ephemeral key: %w", err)
	}
	log.Printf("WARNING: ENCRYPTION_KEY not set; using ephemeral key %s... (development only)",
		base64.StdEncoding.EncodeToString(key)[:8])
	return credentials.NewCipher(key)
}

// buildChannel resolves the outbound WhatsApp channel. Development runs
// without Meta credentials log outbound messages instead of sending them.
func buildChannel(cfg *config.Config) (conversations.OutboundChannel, error) {
	if cfg.WhatsAppAccessToken != "" && cfg.WhatsAppPhoneNumberID != "" {
		return conversations.NewWhatsAppClient(conversations.WhatsAppConfig{
			AccessToken:   cfg.WhatsAppAccessToken,
			PhoneNumberID: cfg.WhatsAppPhoneNumberID,
		})
	}
	if !cfg.Development() {
		return nil, fmt.Errorf("WhatsApp credentials are required in %s environment", cfg.Environment)
	}
	log.Printf("WARNING: WhatsApp credentials not set; outbound messages will only be logged")
	return logChannel{}, nil
}

// logChannel is the development stand-in for the Meta Cloud API.
type logChannel struct{}

func (logChannel) SendMessage(_ context.Context, to, content string) (string, error) {
	log.Printf("[WHATSAPP-DEV] To %s: %s", to, content)
	return "dev-message-id", nil
}

// Handler builds the routed, middleware-wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(mux.MiddlewareFunc(requestIDMiddleware))
	r.Use(mux.MiddlewareFunc(metricsMiddleware))

	// Unauthenticated surface.
	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	r.HandleFunc("/webhooks/whatsapp/{tenant_id}", s.handleWhatsAppWebhook).Methods("POST")

	// Authenticated API.
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(mux.MiddlewareFunc(s.authMiddleware))

	api.HandleFunc("/credentials", s.handleCreateCredential).Methods("POST")
	api.HandleFunc("/credentials", s.handleListCredentials).Methods("GET")
	api.HandleFunc("/credentials/{id}", s.handleDeleteCredential).Methods("DELETE")
	api.HandleFunc("/credentials/{id}/test", s.handleTestCredential).Methods("POST")
	api.HandleFunc("/credentials/{id}/reactivate", s.handleReactivateCredential).Methods("POST")

	api.HandleFunc("/providers", s.handleListProviders).Methods("GET")
	api.HandleFunc("/providers/{provider}/models", s.handleListModels).Methods("GET")
	api.HandleFunc("/providers/{provider}/estimate", s.handleEstimateCost).Methods("GET")

	api.HandleFunc("/agents", s.handleCreateAgent).Methods("POST")
	api.HandleFunc("/agents", s.handleListAgents).Methods("GET")
	api.HandleFunc("/agents/{id}", s.handleGetAgent).Methods("GET")
	api.HandleFunc("/agents/{id}", s.handleUpdateAgent).Methods("PUT")
	api.HandleFunc("/agents/{id}", s.handleDeleteAgent).Methods("DELETE")

	api.HandleFunc("/tasks", s.handleCreateTask).Methods("POST")
	api.HandleFunc("/tasks/{id}", s.handleGetTask).Methods("GET")
	api.HandleFunc("/tasks/{id}/execute", s.handleExecuteTask).Methods("POST")
	api.HandleFunc("/tasks/{id}/cancel", s.handleCancelTask).Methods("POST")

	api.HandleFunc("/crews", s.handleCreateCrew).Methods("POST")
	api.HandleFunc("/crews/{id}", s.handleGetCrew).Methods("GET")
	api.HandleFunc("/crews/{id}/execute", s.handleExecuteCrew).Methods("POST")

	api.HandleFunc("/conversations", s.handleListConversations).Methods("GET")
	api.HandleFunc("/conversations/send", s.handleSendProactive).Methods("POST")
	api.HandleFunc("/conversations/{id}/messages", s.handleListMessages).Methods("GET")
	api.HandleFunc("/conversations/{id}/escalate", s.handleEscalate).Methods("POST")

	c := cors.New(cors.Options{
		AllowedOrigins:   s.allowedOrigins(),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	return c.Handler(r)
}

func (s *Server) allowedOrigins() []string {
	if len(s.corsOrigins) == 0 {
		return []string{"*"}
	}
	return s.corsOrigins
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}
