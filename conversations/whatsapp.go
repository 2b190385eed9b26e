// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package conversations

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// OutboundChannel dispatches replies to the customer's messaging
// transport. Webhook signature validation is the caller's concern.
type OutboundChannel interface {
	// SendMessage delivers a text message and returns the channel-side
	// message identifier.
	SendMessage(ctx context.Context, to, content string) (string, error)
}

// WhatsApp adapter constants.
const (
	WhatsAppDefaultEndpoint = "https://graph.facebook.com/v18.0"
	WhatsAppDefaultTimeout  = 30 * time.Second
)

// HTTPClient is the minimal HTTP client surface the channel needs.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// WhatsAppClient implements OutboundChannel against the Meta Cloud API.
type WhatsAppClient struct {
	accessToken   string
	phoneNumberID string
	endpoint      string
	client        HTTPClient
}

// WhatsAppConfig configures the Cloud API client.
type WhatsAppConfig struct {
	AccessToken   string
	PhoneNumberID string

	// Endpoint overrides the Graph API base URL, for tests.
	Endpoint string
	Client   HTTPClient
}

// NewWhatsAppClient creates a Meta Cloud API client.
func NewWhatsAppClient(cfg WhatsAppConfig) (*WhatsAppClient, error) {
	if cfg.AccessToken == "" {
		return nil, errors.New("whatsapp access token is required")
	}
	if cfg.PhoneNumberID == "" {
		return nil, errors.New("whatsapp phone number id is required")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = WhatsAppDefaultEndpoint
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: WhatsAppDefaultTimeout}
	}

	return &WhatsAppClient{
		accessToken:   cfg.AccessToken,
		phoneNumberID: cfg.PhoneNumberID,
		endpoint:      endpoint,
		client:        client,
	}, nil
}

// SendMessage delivers a text message via POST /{phone-number-id}/messages.
func (c *WhatsAppClient) SendMessage(ctx context.Context, to, content string) (string, error) {
	apiReq := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "text",
		"text": map[string]string{
			"body": content,
		},
	}

	reqBody, err := json.Marshal(apiReq)
	if err != nil {
		return "", fmt.Errorf("failed to marshal message: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.endpoint, c.phoneNumberID)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.accessToken)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to send whatsapp message: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("whatsapp send failed with status %d: %s", resp.StatusCode, string(body))
	}

	var apiResp struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return "", fmt.Errorf("failed to decode whatsapp response: %w", err)
	}
	if len(apiResp.Messages) == 0 {
		return "", errors.New("whatsapp response carried no message id")
	}
	return apiResp.Messages[0].ID, nil
}

// ParseWebhook normalizes a Cloud API webhook payload into inbound text
// messages. Non-text entries (statuses, media) are skipped; callers only
// get messages the auto-responder can answer.
func ParseWebhook(payload []byte) ([]InboundMessage, error) {
	var webhook struct {
		Entry []struct {
			Changes []struct {
				Value struct {
					Messages []struct {
						ID        string `json:"id"`
						From      string `json:"from"`
						Timestamp string `json:"timestamp"`
						Type      string `json:"type"`
						Text      struct {
							Body string `json:"body"`
						} `json:"text"`
					} `json:"messages"`
				} `json:"value"`
			} `json:"changes"`
		} `json:"entry"`
	}

	if err := json.Unmarshal(payload, &webhook); err != nil {
		return nil, fmt.Errorf("failed to parse webhook payload: %w", err)
	}

	var inbound []InboundMessage
	for _, entry := range webhook.Entry {
		for _, change := range entry.Changes {
			for _, msg := range change.Value.Messages {
				if msg.Type != "text" || msg.Text.Body == "" {
					continue
				}

				ts := time.Now()
				if unix, err := strconv.ParseInt(msg.Timestamp, 10, 64); err == nil {
					ts = time.Unix(unix, 0)
				}

				inbound = append(inbound, InboundMessage{
					ExternalID: msg.ID,
					From:       msg.From,
					Content:    msg.Text.Body,
					Timestamp:  ts,
				})
			}
		}
	}
	return inbound, nil
}

// Ensure WhatsAppClient implements OutboundChannel.
var _ OutboundChannel = (*WhatsAppClient)(nil)
