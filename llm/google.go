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

// Google adapter constants.
const (
	GoogleDefaultEndpoint = "https://generativelanguage.googleapis.com"
	GoogleDefaultTimeout  = 60 * time.Second
)

var googleModels = []string{
	"gemini-1.5-pro",
	"gemini-1.5-flash",
	"gemini-pro",
}

// Google implements Provider for Google's Gemini generateContent API.
type Google struct {
	apiKey   string
	endpoint string
	client   HTTPClient
}

// NewGoogle creates a Google adapter for one decrypted key.
func NewGoogle(cfg AdapterConfig) (*Google, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("google API key is required")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = GoogleDefaultEndpoint
	}

	return &Google{
		apiKey:   cfg.APIKey,
		endpoint: endpoint,
		client:   cfg.httpClient(GoogleDefaultTimeout),
	}, nil
}

// Name returns the constant provider identifier.
func (p *Google) Name() string {
	return "google"
}

// Models returns the static model catalog.
func (p *Google) Models() []string {
	models := make([]string, len(googleModels))
	copy(models, googleModels)
	return models
}

// EstimateCost returns the advisory USD cost for a token count.
func (p *Google) EstimateCost(tokens int, model string) float64 {
	return estimateCost("google", model, tokens)
}

type googleContent struct {
	Role  string `json:"role,omitempty"`
	Parts []struct {
		Text string `json:"text"`
	} `json:"parts"`
}

func googleText(role, text string) googleContent {
	c := googleContent{Role: role}
	c.Parts = []struct {
		Text string `json:"text"`
	}{{Text: text}}
	return c
}

// ChatCompletion generates a completion via models/{model}:generateContent.
// Gemini has no assistant role; assistant messages map to "model", and the
// system message travels as systemInstruction.
func (p *Google) ChatCompletion(ctx context.Context, req ChatRequest) (*Response, error) {
	model := req.Model
	if model == "" {
		model = googleModels[0]
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2000
	}

	temperature := req.Temperature
	if temperature < 0 {
		temperature = 0.7
	}

	var system *googleContent
	contents := make([]googleContent, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			c := googleText("", m.Content)
			system = &c
		case RoleAssistant:
			contents = append(contents, googleText("model", m.Content))
		default:
			contents = append(contents, googleText("user", m.Content))
		}
	}

	apiReq := map[string]any{
		"contents": contents,
		"generationConfig": map[string]any{
			"temperature":     temperature,
			"maxOutputTokens": maxTokens,
		},
	}
	if system != nil {
		apiReq["systemInstruction"] = system
	}

	reqBody, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", p.endpoint, model, p.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, &ProviderError{Provider: "google", Kind: KindTransient, Message: err.Error(), Cause: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, p.classifyError(resp.StatusCode, body)
	}

	var apiResp struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
			FinishReason string `json:"finishReason"`
		} `json:"candidates"`
		UsageMetadata struct {
			PromptTokenCount     int `json:"promptTokenCount"`
			CandidatesTokenCount int `json:"candidatesTokenCount"`
			TotalTokenCount      int `json:"totalTokenCount"`
		} `json:"usageMetadata"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	var contentBuilder strings.Builder
	finishReason := ""
	if len(apiResp.Candidates) > 0 {
		for _, part := range apiResp.Candidates[0].Content.Parts {
			contentBuilder.WriteString(part.Text)
		}
		finishReason = strings.ToLower(apiResp.Candidates[0].FinishReason)
	}

	usage := apiResp.UsageMetadata

	return &Response{
		Content:      contentBuilder.String(),
		TokensUsed:   usage.TotalTokenCount,
		Cost:         exactCost("google", model, usage.PromptTokenCount, usage.CandidatesTokenCount),
		Model:        model,
		Provider:     "google",
		FinishReason: finishReason,
		Metadata: map[string]any{
			"prompt_tokens":     usage.PromptTokenCount,
			"completion_tokens": usage.CandidatesTokenCount,
		},
	}, nil
}

// ValidateKey performs a minimal live call (model listing) to check the key.
func (p *Google) ValidateKey(ctx context.Context) bool {
	url := fmt.Sprintf("%s/v1beta/models?key=%s", p.endpoint, p.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return false
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return false
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	return resp.StatusCode == http.StatusOK
}

// classifyError maps a Google API error to a ProviderError kind using the
// canonical gRPC status string first.
func (p *Google) classifyError(status int, body []byte) *ProviderError {
	var errResp struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	_ = json.Unmarshal(body, &errResp)

	message := errResp.Error.Message
	if message == "" {
		message = string(body)
	}

	kind := KindUnknown
	switch errResp.Error.Status {
	case "UNAUTHENTICATED", "PERMISSION_DENIED":
		kind = KindAuth
	case "RESOURCE_EXHAUSTED":
		// Gemini reports both quota exhaustion and throttling under this
		// status; the message distinguishes them, so the substring fallback
		// decides between quota and rate limit.
		kind = classifyText(message, KindRateLimit)
	case "INVALID_ARGUMENT", "NOT_FOUND", "FAILED_PRECONDITION":
		kind = KindInvalidRequest
	case "UNAVAILABLE", "INTERNAL", "DEADLINE_EXCEEDED":
		kind = KindTransient
	default:
		kind = classifyStatus(status)
	}
	if kind == KindUnknown {
		kind = classifyText(message, KindUnknown)
	}

	return &ProviderError{
		Provider:   "google",
		Kind:       kind,
		StatusCode: status,
		Message:    message,
	}
}

// Verify interface compliance at compile time.
var _ Provider = (*Google)(nil)
