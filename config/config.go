// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package config loads the server configuration from the environment,
// with an optional YAML overlay for deployments that prefer files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the complete server configuration, resolved once at startup.
type Config struct {
	Environment string `yaml:"environment"`
	Port        string `yaml:"port"`

	DatabaseURL string `yaml:"database_url"`
	RedisURL    string `yaml:"redis_url"`

	// EncryptionKey is the base64-encoded 32-byte AES key guarding
	// credential secrets. Required outside development.
	EncryptionKey string `yaml:"encryption_key"`

	// JWTSecret signs and verifies tenant bearer tokens.
	JWTSecret string `yaml:"jwt_secret"`

	// AttemptTimeout bounds each LLM provider call.
	AttemptTimeout time.Duration `yaml:"-"`

	WhatsAppAccessToken   string `yaml:"whatsapp_access_token"`
	WhatsAppPhoneNumberID string `yaml:"whatsapp_phone_number_id"`

	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
}

// Development reports whether the process runs in a development
// environment, where missing secrets warn instead of failing.
func (c *Config) Development() bool {
	return c.Environment == "development" || c.Environment == ""
}

// Load resolves the configuration: .env file (development convenience),
// then environment variables, then an optional YAML overlay named by
// CONFIG_FILE. Environment variables win over the file.
func Load() (*Config, error) {
	// Missing .env is the normal case in deployed environments.
	_ = godotenv.Load()

	cfg := &Config{
		Environment:           os.Getenv("ENVIRONMENT"),
		Port:                  envOr("PORT", "8080"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RedisURL:              envOr("REDIS_URL", "localhost:6379"),
		EncryptionKey:         os.Getenv("ENCRYPTION_KEY"),
		JWTSecret:             os.Getenv("JWT_SECRET"),
		WhatsAppAccessToken:   os.Getenv("WHATSAPP_ACCESS_TOKEN"),
		WhatsAppPhoneNumberID: os.Getenv("WHATSAPP_PHONE_NUMBER_ID"),
		AttemptTimeout:        45 * time.Second,
	}

	if file := os.Getenv("CONFIG_FILE"); file != "" {
		if err := cfg.overlayFile(file); err != nil {
			return nil, err
		}
	}

	if raw := os.Getenv("LLM_ATTEMPT_TIMEOUT_SECONDS"); raw != "" {
		secs, err := strconv.Atoi(raw)
		if err != nil || secs <= 0 {
			return nil, fmt.Errorf("invalid LLM_ATTEMPT_TIMEOUT_SECONDS %q", raw)
		}
		cfg.AttemptTimeout = time.Duration(secs) * time.Second
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// overlayFile fills unset fields from a YAML file. Values already present
// from the environment are kept.
func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if c.Environment == "" {
		c.Environment = file.Environment
	}
	if c.Port == "8080" && file.Port != "" {
		c.Port = file.Port
	}
	if c.DatabaseURL == "" {
		c.DatabaseURL = file.DatabaseURL
	}
	if c.RedisURL == "localhost:6379" && file.RedisURL != "" {
		c.RedisURL = file.RedisURL
	}
	if c.EncryptionKey == "" {
		c.EncryptionKey = file.EncryptionKey
	}
	if c.JWTSecret == "" {
		c.JWTSecret = file.JWTSecret
	}
	if c.WhatsAppAccessToken == "" {
		c.WhatsAppAccessToken = file.WhatsAppAccessToken
	}
	if c.WhatsAppPhoneNumberID == "" {
		c.WhatsAppPhoneNumberID = file.WhatsAppPhoneNumberID
	}
	if len(c.CORSAllowedOrigins) == 0 {
		c.CORSAllowedOrigins = file.CORSAllowedOrigins
	}
	return nil
}

// validate enforces the secrets a non-development deployment cannot run
// without.
func (c *Config) validate() error {
	if c.Development() {
		return nil
	}
	if c.EncryptionKey == "" {
		return fmt.Errorf("ENCRYPTION_KEY is required in %s environment", c.Environment)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required in %s environment", c.Environment)
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required in %s environment", c.Environment)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
