package handler

import (
	"context"
	"log/slog"

	"github.com/comiendoalmundo/followup-service/internal/allowlist"
	"github.com/comiendoalmundo/followup-service/internal/async"
	"github.com/comiendoalmundo/followup-service/internal/backend"
	"github.com/comiendoalmundo/followup-service/internal/followup"
)

// Sender is the outbound send primitive used by the message handler
type Sender interface {
	SendText(ctx context.Context, phone, body string) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger      *slog.Logger
	Scheduler   *followup.Scheduler
	Profile     *followup.Profile
	Cache       *allowlist.Cache
	Sender      Sender
	Backend     *backend.Client
	Runner      *async.Runner
	VerifyToken string
}

// MessageHandler handles the send/reload/webhook HTTP surface
type MessageHandler struct {
	logger      *slog.Logger
	scheduler   *followup.Scheduler
	profile     *followup.Profile
	cache       *allowlist.Cache
	sender      Sender
	backend     *backend.Client
	runner      *async.Runner
	verifyToken string
}

// NewMessageHandler creates a new MessageHandler instance
func NewMessageHandler(deps *Dependencies) *MessageHandler {
	return &MessageHandler{
		logger:      deps.Logger,
		scheduler:   deps.Scheduler,
		profile:     deps.Profile,
		cache:       deps.Cache,
		sender:      deps.Sender,
		backend:     deps.Backend,
		runner:      deps.Runner,
		verifyToken: deps.VerifyToken,
	}
}
