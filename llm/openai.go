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
	"time"
)

// OpenAI adapter constants.
const (
	OpenAIDefaultEndpoint = "https://api.openai.com"
	OpenAIDefaultTimeout  = 60 * time.Second
)

// openAIModels is the static catalog; the first entry is the fallback
// default when the requested model is unavailable.
var openAIModels = []string{
	"gpt-4o",
	"gpt-4o-mini",
	"gpt-4-turbo",
	"gpt-4",
	"gpt-3.5-turbo",
}

// OpenAI implements Provider for OpenAI's chat completion API.
type OpenAI struct {
	apiKey   string
	endpoint string
	client   HTTPClient
}

// NewOpenAI creates an OpenAI adapter for one decrypted key.
func NewOpenAI(cfg AdapterConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai API key is required")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = OpenAIDefaultEndpoint
	}

	return &OpenAI{
		apiKey:   cfg.APIKey,
		endpoint: endpoint,
		client:   cfg.httpClient(OpenAIDefaultTimeout),
	}, nil
}

// Name returns the constant provider identifier.
func (p *OpenAI) Name() string {
	return "openai"
}

// Models returns the static model catalog.
func (p *OpenAI) Models() []string {
	models := make([]string, len(openAIModels))
	copy(models, openAIModels)
	return models
}

// EstimateCost returns the advisory USD cost for a token count.
func (p *OpenAI) EstimateCost(tokens int, model string) float64 {
	return estimateCost("openai", model, tokens)
}

// ChatCompletion generates a completion via /v1/chat/completions.
func (p *OpenAI) ChatCompletion(ctx context.Context, req ChatRequest) (*Response, error) {
	model := req.Model
	if model == "" {
		model = openAIModels[0]
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2000
	}

	temperature := req.Temperature
	if temperature < 0 {
		temperature = 0.7
	}

	messages := make([]map[string]string, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, map[string]string{
			"role":    string(m.Role),
			"content": m.Content,
		})
	}

	apiReq := map[string]any{
		"model":       model,
		"messages":    messages,
		"max_tokens":  maxTokens,
		"temperature": temperature,
	}
	for k, v := range req.Extra {
		apiReq[k] = v
	}

	reqBody, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.endpoint+"/v1/chat/completions", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, &ProviderError{Provider: "openai", Kind: KindTransient, Message: err.Error(), Cause: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, p.classifyError(resp.StatusCode, body)
	}

	var apiResp struct {
		ID      string `json:"id"`
		Model   string `json:"model"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
			TotalTokens      int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	content := ""
	finishReason := ""
	if len(apiResp.Choices) > 0 {
		content = apiResp.Choices[0].Message.Content
		finishReason = apiResp.Choices[0].FinishReason
	}

	responseModel := apiResp.Model
	if responseModel == "" {
		responseModel = model
	}

	return &Response{
		Content:      content,
		TokensUsed:   apiResp.Usage.TotalTokens,
		Cost:         exactCost("openai", model, apiResp.Usage.PromptTokens, apiResp.Usage.CompletionTokens),
		Model:        responseModel,
		Provider:     "openai",
		FinishReason: finishReason,
		Metadata: map[string]any{
			"prompt_tokens":     apiResp.Usage.PromptTokens,
			"completion_tokens": apiResp.Usage.CompletionTokens,
			"response_id":       apiResp.ID,
		},
	}, nil
}

// ValidateKey performs a minimal live call (model listing) to check the key.
func (p *OpenAI) ValidateKey(ctx context.Context) bool {
	httpReq, err := http.NewRequestWithContext(ctx, "GET", p.endpoint+"/v1/models", nil)
	if err != nil {
		return false
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return false
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	return resp.StatusCode == http.StatusOK
}

// classifyError maps an OpenAI error response to a ProviderError kind.
// The structured error code and type are consulted first; substring
// matching on the message is the last resort.
func (p *OpenAI) classifyError(status int, body []byte) *ProviderError {
	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    string `json:"code"`
		} `json:"error"`
	}
	_ = json.Unmarshal(body, &errResp)

	message := errResp.Error.Message
	if message == "" {
		message = string(body)
	}

	kind := KindUnknown
	switch {
	case errResp.Error.Code == "insufficient_quota" || errResp.Error.Type == "insufficient_quota":
		kind = KindQuota
	case errResp.Error.Type == "authentication_error" || errResp.Error.Code == "invalid_api_key":
		kind = KindAuth
	case errResp.Error.Type == "rate_limit_error" || status == http.StatusTooManyRequests:
		kind = KindRateLimit
	case errResp.Error.Type == "invalid_request_error":
		kind = KindInvalidRequest
	default:
		kind = classifyStatus(status)
	}
	if kind == KindUnknown {
		kind = classifyText(message, KindUnknown)
	}

	return &ProviderError{
		Provider:   "openai",
		Kind:       kind,
		StatusCode: status,
		Message:    message,
	}
}

// Verify interface compliance at compile time.
var _ Provider = (*OpenAI)(nil)
