package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/comiendoalmundo/followup-service/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "followup-gateway",
		})
	})

	messageHandler := handler.NewMessageHandler(deps)

	// Cloud API webhook
	r.GET("/webhook", messageHandler.VerifyWebhook)
	r.POST("/webhook", messageHandler.ReceiveMessage)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// POST /api/v1/messages/send - send a message, arm or cancel follow-ups
		v1.POST("/messages/send", messageHandler.SendMessage)

		// POST /api/v1/contacts/reload - cancel follow-ups and refresh one source
		v1.POST("/contacts/reload", messageHandler.ReloadContact)
	}

	return r
}
