// Package whatsapp is the outbound send primitive against the WhatsApp Cloud
// API messages endpoint.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/comiendoalmundo/followup-service/internal/phone"
)

const defaultBaseURL = "https://graph.facebook.com/v19.0"

// Config holds the Cloud API settings.
type Config struct {
	BaseURL       string
	Token         string
	PhoneNumberID string
	// CountryPrefix is prepended to numbers shorter than MinDigits, matching
	// how the sheet stores national numbers without a country code.
	CountryPrefix string
	MinDigits     int
	Timeout       time.Duration
}

// Client sends text messages through the Cloud API.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

// NewClient creates a WhatsApp Cloud API client. Defaults are applied to a
// copy; the caller's config is left untouched.
func NewClient(cfg *Config, logger *slog.Logger) *Client {
	c := &Client{
		cfg:    *cfg,
		logger: logger,
	}
	if c.cfg.BaseURL == "" {
		c.cfg.BaseURL = defaultBaseURL
	}
	if c.cfg.MinDigits <= 0 {
		c.cfg.MinDigits = 11
	}
	timeout := c.cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c.http = &http.Client{Timeout: timeout}
	return c
}

type textMessage struct {
	MessagingProduct string  `json:"messaging_product"`
	To               string  `json:"to"`
	Type             string  `json:"type"`
	Text             textObj `json:"text"`
}

type textObj struct {
	Body string `json:"body"`
}

// SendText sends one text message. The recipient is normalized to digits and
// given the configured country prefix when too short to carry one.
func (c *Client) SendText(ctx context.Context, rawPhone, body string) error {
	digits := phone.Normalize(rawPhone)
	if digits == "" {
		return fmt.Errorf("recipient %q has no digits", rawPhone)
	}
	if len(digits) < c.cfg.MinDigits {
		digits = c.cfg.CountryPrefix + digits
	}

	msg := textMessage{
		MessagingProduct: "whatsapp",
		To:               digits,
		Type:             "text",
		Text:             textObj{Body: body},
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s/messages", c.cfg.BaseURL, c.cfg.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build send request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp send failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read send response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("whatsapp API error: %s - %s", resp.Status, string(respBody))
	}

	c.logger.Debug("Message sent via WhatsApp",
		slog.String("to", digits),
		slog.Int("body_size", len(body)),
	)

	return nil
}
