package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/comiendoalmundo/followup-service/internal/api/dto"
	"github.com/comiendoalmundo/followup-service/internal/phone"
)

// SendMessage handles POST /api/v1/messages/send.
// The operator sends a message to a lead; depending on source_id the call
// either arms the follow-up campaign (and reloads that source's allow-list)
// or cancels it. The campaign and send work run in the background so the
// response never waits on the job store or the transport.
func (h *MessageHandler) SendMessage(c *gin.Context) {
	var req dto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	digits := phone.Normalize(req.Phone)
	if digits == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "phone must contain digits",
		})
		return
	}

	if req.SourceID == "" {
		// The lead replied through the operator flow: stop reminding them
		h.runner.Go("cancel-followups", func(ctx context.Context) error {
			_, err := h.scheduler.Cancel(ctx, digits)
			return err
		})
	} else {
		if !h.hasSource(req.SourceID) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "unknown source_id",
			})
			return
		}
		if !h.profile.ValidVariant(req.TemplateVariant) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "template_variant out of range",
			})
			return
		}

		sourceID := req.SourceID
		name := req.Name
		variant := req.TemplateVariant
		h.runner.Go("schedule-followups", func(ctx context.Context) error {
			if err := h.scheduler.Schedule(ctx, digits, name, variant); err != nil {
				return err
			}
			_, err := h.cache.RefreshSource(ctx, sourceID)
			return err
		})
	}

	message := req.Message
	h.runner.Go("send-message", func(ctx context.Context) error {
		return h.sender.SendText(ctx, digits, message)
	})

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Message accepted for delivery",
	})
}

// ReloadContact handles POST /api/v1/contacts/reload.
// Cancels every outstanding follow-up for the contact and then refreshes the
// source, in that order: a stale allow-list read racing the cancellation must
// never re-arm a job that was just removed.
func (h *MessageHandler) ReloadContact(c *gin.Context) {
	var req dto.ReloadContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "source_id and phone are required",
		})
		return
	}

	digits := phone.Normalize(req.Phone)
	if digits == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "phone must contain digits",
		})
		return
	}

	if !h.hasSource(req.SourceID) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "unknown source_id",
		})
		return
	}

	canceled, err := h.scheduler.Cancel(c.Request.Context(), digits)
	if err != nil {
		h.logger.Error("Failed to cancel follow-ups",
			slog.String("phone", digits),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to cancel follow-ups",
		})
		return
	}

	allowed, err := h.cache.RefreshSource(c.Request.Context(), req.SourceID)
	if err != nil {
		h.logger.Error("Failed to refresh allow-list source",
			slog.String("source_id", req.SourceID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusBadGateway, gin.H{
			"error": "Failed to refresh allow-list source",
		})
		return
	}

	c.JSON(http.StatusOK, dto.ReloadContactResponse{
		Success:  true,
		Canceled: canceled,
		Allowed:  allowed,
	})
}

func (h *MessageHandler) hasSource(sourceID string) bool {
	for _, id := range h.cache.SourceIDs() {
		if id == sourceID {
			return true
		}
	}
	return false
}
