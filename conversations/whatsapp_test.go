// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package conversations

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWhatsAppTestClient(t *testing.T, handler http.HandlerFunc) *WhatsAppClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewWhatsAppClient(WhatsAppConfig{
		AccessToken:   "test-token",
		PhoneNumberID: "12345",
		Endpoint:      srv.URL,
	})
	require.NoError(t, err)
	return client
}

func TestWhatsAppSendMessage(t *testing.T) {
	client := newWhatsAppTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/12345/messages", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		var body struct {
			MessagingProduct string `json:"messaging_product"`
			To               string `json:"to"`
			Type             string `json:"type"`
			Text             struct {
				Body string `json:"body"`
			} `json:"text"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "whatsapp", body.MessagingProduct)
		assert.Equal(t, "+15550001111", body.To)
		assert.Equal(t, "text", body.Type)
		assert.Equal(t, "hello there", body.Text.Body)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"messages": []map[string]string{{"id": "wamid.ABC"}},
		})
	})

	id, err := client.SendMessage(context.Background(), "+15550001111", "hello there")
	require.NoError(t, err)
	assert.Equal(t, "wamid.ABC", id)
}

func TestWhatsAppSendMessageAPIError(t *testing.T) {
	client := newWhatsAppTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid token"}}`))
	})

	_, err := client.SendMessage(context.Background(), "+15550001111", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}

func TestWhatsAppClientRequiresConfig(t *testing.T) {
	_, err := NewWhatsAppClient(WhatsAppConfig{PhoneNumberID: "12345"})
	assert.Error(t, err)

	_, err = NewWhatsAppClient(WhatsAppConfig{AccessToken: "token"})
	assert.Error(t, err)
}

func TestParseWebhook(t *testing.T) {
	payload := []byte(`{
		"entry": [{
			"changes": [{
				"value": {
					"messages": [
						{"id": "wamid.1", "from": "15550001111", "timestamp": "1756300000", "type": "text", "text": {"body": "first"}},
						{"id": "wamid.2", "from": "15550001111", "type": "image"},
						{"id": "wamid.3", "from": "15550002222", "timestamp": "not-a-number", "type": "text", "text": {"body": "second"}}
					]
				}
			}]
		}]
	}`)

	msgs, err := ParseWebhook(payload)
	require.NoError(t, err)
	require.Len(t, msgs, 2, "non-text entries are skipped")

	assert.Equal(t, "wamid.1", msgs[0].ExternalID)
	assert.Equal(t, "15550001111", msgs[0].From)
	assert.Equal(t, "first", msgs[0].Content)
	assert.Equal(t, time.Unix(1756300000, 0), msgs[0].Timestamp)

	assert.Equal(t, "second", msgs[1].Content)
	assert.False(t, msgs[1].Timestamp.IsZero(), "unparseable timestamps fall back to now")
}

func TestParseWebhookStatusOnlyPayload(t *testing.T) {
	// Delivery receipts carry no messages array.
	msgs, err := ParseWebhook([]byte(`{"entry":[{"changes":[{"value":{"statuses":[{"id":"wamid.1"}]}}]}]}`))
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestParseWebhookRejectsGarbage(t *testing.T) {
	_, err := ParseWebhook([]byte(`not json`))
	assert.Error(t, err)
}
