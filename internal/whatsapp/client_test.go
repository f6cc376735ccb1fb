package whatsapp

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(baseURL string) *Client {
	return NewClient(&Config{
		BaseURL:       baseURL,
		Token:         "test-token",
		PhoneNumberID: "12345",
		CountryPrefix: "34",
		MinDigits:     11,
	}, slog.New(slog.DiscardHandler))
}

func TestClient_SendText(t *testing.T) {
	t.Run("sends normalized recipient with bearer auth", func(t *testing.T) {
		var got textMessage
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/12345/messages", r.URL.Path)
			assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			w.Write([]byte(`{"messages":[{"id":"wamid.x"}]}`))
		}))
		defer server.Close()

		client := newTestClient(server.URL)
		err := client.SendText(context.Background(), "+34 600 111 222", "hola")
		require.NoError(t, err)

		assert.Equal(t, "whatsapp", got.MessagingProduct)
		assert.Equal(t, "34600111222", got.To)
		assert.Equal(t, "hola", got.Text.Body)
	})

	t.Run("short national number gets country prefix", func(t *testing.T) {
		var got textMessage
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			w.Write([]byte(`{}`))
		}))
		defer server.Close()

		client := newTestClient(server.URL)
		require.NoError(t, client.SendText(context.Background(), "600 111 222", "hola"))
		assert.Equal(t, "34600111222", got.To)
	})

	t.Run("API error is surfaced", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":{"message":"Invalid OAuth access token"}}`))
		}))
		defer server.Close()

		client := newTestClient(server.URL)
		err := client.SendText(context.Background(), "34600111222", "hola")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "whatsapp API error")
	})

	t.Run("recipient without digits rejected", func(t *testing.T) {
		client := newTestClient("http://unused")
		err := client.SendText(context.Background(), "---", "hola")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no digits")
	})
}

func TestNewClient_DoesNotMutateConfig(t *testing.T) {
	cfg := &Config{Token: "test-token", PhoneNumberID: "12345"}
	client := NewClient(cfg, slog.New(slog.DiscardHandler))

	// Defaults land on the client's copy only
	assert.Empty(t, cfg.BaseURL)
	assert.Zero(t, cfg.MinDigits)
	assert.Equal(t, defaultBaseURL, client.cfg.BaseURL)
	assert.Equal(t, 11, client.cfg.MinDigits)
}
