// Package backend forwards gated inbound messages to the CRM backend.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// InboundMessage is the payload forwarded for each allowed inbound message.
type InboundMessage struct {
	From      string `json:"from"`
	Name      string `json:"name,omitempty"`
	Body      string `json:"body"`
	Timestamp string `json:"timestamp"`
}

// Config holds the forwarding settings.
type Config struct {
	ForwardURL string
	Timeout    time.Duration
}

// Client posts inbound messages to the backend endpoint.
type Client struct {
	forwardURL string
	http       *http.Client
	logger     *slog.Logger
}

// NewClient creates a backend forwarding client.
func NewClient(cfg *Config, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		forwardURL: cfg.ForwardURL,
		http:       &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// ForwardInbound posts one inbound message. Non-2xx responses are errors so
// the caller's supervisor logs them.
func (c *Client) ForwardInbound(ctx context.Context, msg *InboundMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode inbound message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.forwardURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build forward request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("backend forward failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("backend rejected inbound message: %s - %s", resp.Status, string(body))
	}

	c.logger.Debug("Inbound message forwarded to backend",
		slog.String("from", msg.From),
	)

	return nil
}
