package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/comiendoalmundo/followup-service/internal/api/dto"
	"github.com/comiendoalmundo/followup-service/internal/backend"
	"github.com/comiendoalmundo/followup-service/internal/phone"
)

// VerifyWebhook handles GET /webhook, the Cloud API subscription handshake
func (h *MessageHandler) VerifyWebhook(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "" || token == "" {
		c.Status(http.StatusBadRequest)
		return
	}

	if mode == "subscribe" && token == h.verifyToken {
		h.logger.Info("Webhook verified")
		c.String(http.StatusOK, challenge)
		return
	}

	c.Status(http.StatusForbidden)
}

// ReceiveMessage handles POST /webhook. Inbound messages from numbers on the
// allow-list are forwarded to the backend; everything else is ignored. The
// platform always gets a 200 so it does not retry deliveries we chose to
// drop.
func (h *MessageHandler) ReceiveMessage(c *gin.Context) {
	var payload dto.WebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.logger.Error("Invalid webhook payload", slog.String("error", err.Error()))
		c.Status(http.StatusBadRequest)
		return
	}

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			h.handleInbound(&change.Value)
		}
	}

	c.Status(http.StatusOK)
}

func (h *MessageHandler) handleInbound(value *dto.WebhookValue) {
	names := make(map[string]string, len(value.Contacts))
	for _, contact := range value.Contacts {
		names[phone.Normalize(contact.WaID)] = contact.Profile.Name
	}

	for _, msg := range value.Messages {
		from := phone.Normalize(msg.From)

		if !h.cache.IsAllowed(from) {
			h.logger.Info("Ignoring message from number outside the allow-list",
				slog.String("from", from),
			)
			continue
		}

		body := ""
		if msg.Text != nil {
			body = msg.Text.Body
		}

		inbound := &backend.InboundMessage{
			From:      from,
			Name:      names[from],
			Body:      body,
			Timestamp: webhookTimestamp(msg.Timestamp),
		}

		h.runner.Go("forward-inbound", func(ctx context.Context) error {
			return h.backend.ForwardInbound(ctx, inbound)
		})
	}
}

// webhookTimestamp converts the Cloud API epoch-seconds string to RFC 3339,
// falling back to the receive time when it does not parse.
func webhookTimestamp(raw string) string {
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Now().UTC().Format(time.RFC3339)
	}
	return time.Unix(secs, 0).UTC().Format(time.RFC3339)
}
