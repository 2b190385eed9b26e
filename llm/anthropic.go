// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Anthropic adapter constants.
const (
	AnthropicDefaultEndpoint = "https://api.anthropic.com"
	AnthropicAPIVersion      = "2023-06-01"
	AnthropicDefaultTimeout  = 60 * time.Second
)

var anthropicModels = []string{
	"claude-3-5-sonnet-20241022",
	"claude-3-5-haiku-20241022",
	"claude-3-opus-20240229",
	"claude-3-sonnet-20240229",
	"claude-3-haiku-20240307",
}

// Anthropic implements Provider for Anthropic's messages API.
type Anthropic struct {
	apiKey   string
	endpoint string
	client   HTTPClient
}

// NewAnthropic creates an Anthropic adapter for one decrypted key.
func NewAnthropic(cfg AdapterConfig) (*Anthropic, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic API key is required")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = AnthropicDefaultEndpoint
	}

	return &Anthropic{
		apiKey:   cfg.APIKey,
		endpoint: endpoint,
		client:   cfg.httpClient(AnthropicDefaultTimeout),
	}, nil
}

// Name returns the constant provider identifier.
func (p *Anthropic) Name() string {
	return "anthropic"
}

// Models returns the static model catalog.
func (p *Anthropic) Models() []string {
	models := make([]string, len(anthropicModels))
	copy(models, anthropicModels)
	return models
}

// EstimateCost returns the advisory USD cost for a token count.
func (p *Anthropic) EstimateCost(tokens int, model string) float64 {
	return estimateCost("anthropic", model, tokens)
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletion generates a completion via /v1/messages. The system
// message is lifted out of the message list, as the API requires.
func (p *Anthropic) ChatCompletion(ctx context.Context, req ChatRequest) (*Response, error) {
	model := req.Model
	if model == "" {
		model = anthropicModels[0]
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2000
	}

	temperature := req.Temperature
	if temperature < 0 {
		temperature = 0.7
	}

	system := ""
	chatMessages := make([]anthropicMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == RoleSystem {
			system = m.Content
			continue
		}
		chatMessages = append(chatMessages, anthropicMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	apiReq := map[string]any{
		"model":       model,
		"messages":    chatMessages,
		"max_tokens":  maxTokens,
		"temperature": temperature,
	}
	if system != "" {
		apiReq["system"] = system
	}
	for k, v := range req.Extra {
		apiReq[k] = v
	}

	reqBody, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.endpoint+"/v1/messages", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", AnthropicAPIVersion)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, &ProviderError{Provider: "anthropic", Kind: KindTransient, Message: err.Error(), Cause: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, p.classifyError(resp.StatusCode, body)
	}

	var apiResp struct {
		ID         string `json:"id"`
		Model      string `json:"model"`
		StopReason string `json:"stop_reason"`
		Content    []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		Usage struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	var contentBuilder strings.Builder
	for _, block := range apiResp.Content {
		if block.Type == "text" {
			contentBuilder.WriteString(block.Text)
		}
	}

	responseModel := apiResp.Model
	if responseModel == "" {
		responseModel = model
	}

	totalTokens := apiResp.Usage.InputTokens + apiResp.Usage.OutputTokens

	return &Response{
		Content:      contentBuilder.String(),
		TokensUsed:   totalTokens,
		Cost:         exactCost("anthropic", model, apiResp.Usage.InputTokens, apiResp.Usage.OutputTokens),
		Model:        responseModel,
		Provider:     "anthropic",
		FinishReason: apiResp.StopReason,
		Metadata: map[string]any{
			"input_tokens":  apiResp.Usage.InputTokens,
			"output_tokens": apiResp.Usage.OutputTokens,
			"response_id":   apiResp.ID,
		},
	}, nil
}

// ValidateKey performs a minimal one-token completion against the cheapest
// model to check the key.
func (p *Anthropic) ValidateKey(ctx context.Context) bool {
	_, err := p.ChatCompletion(ctx, ChatRequest{
		Messages:  []Message{{Role: RoleUser, Content: "Hi"}},
		Model:     "claude-3-haiku-20240307",
		MaxTokens: 1,
	})
	return err == nil
}

// classifyError maps an Anthropic error response to a ProviderError kind
// using the structured error type first.
func (p *Anthropic) classifyError(status int, body []byte) *ProviderError {
	var errResp struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	_ = json.Unmarshal(body, &errResp)

	message := errResp.Error.Message
	if message == "" {
		message = string(body)
	}

	kind := KindUnknown
	switch errResp.Error.Type {
	case "authentication_error", "permission_error":
		kind = KindAuth
	case "rate_limit_error":
		kind = KindRateLimit
	case "invalid_request_error", "not_found_error":
		kind = KindInvalidRequest
	case "overloaded_error", "api_error":
		kind = KindTransient
	default:
		kind = classifyStatus(status)
	}
	if kind == KindUnknown {
		kind = classifyText(message, KindUnknown)
	}

	return &ProviderError{
		Provider:   "anthropic",
		Kind:       kind,
		StatusCode: status,
		Message:    message,
	}
}

// Verify interface compliance at compile time.
var _ Provider = (*Anthropic)(nil)
