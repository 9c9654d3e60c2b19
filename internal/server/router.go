package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/bookline/backend/internal/handlers"
	"github.com/bookline/backend/internal/middleware"
)

type RouterConfig struct {
	ServiceName     string
	AllowedOrigins  []string
	AuthMiddleware  *middleware.AuthMiddleware
	MessageHandler  *handlers.MessageHandler
	RealtimeHandler *handlers.RealtimeHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	router.Use(otelgin.Middleware(cfg.ServiceName))

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	// ===============
	// || Public    ||
	// ===============
	router.GET("/healthcheck", handlers.HealthCheck)
	router.GET("/healthz/relay", cfg.RealtimeHandler.RelayHealth)

	// ===============
	// || Protected ||
	// ===============
	protected := router.Group("/")
	protected.Use(cfg.AuthMiddleware.RequireAuth())
	// SSE
	protected.GET("/sse/stream", cfg.RealtimeHandler.SSEStream)
	protected.POST("/sse/subscribe", cfg.RealtimeHandler.SSESubscribe)
	protected.POST("/sse/unsubscribe", cfg.RealtimeHandler.SSEUnsubscribe)
	// Conversations
	protected.POST("/conversations", cfg.MessageHandler.CreateConversation)
	protected.GET("/conversations/:id/messages", cfg.MessageHandler.ListMessages)
	protected.POST("/conversations/:id/messages", cfg.MessageHandler.SendMessage)
	// Messages
	protected.PATCH("/messages/:id", cfg.MessageHandler.EditMessage)
	protected.POST("/messages/:id/reactions", cfg.MessageHandler.React)
	protected.DELETE("/messages/:id/reactions/:emoji", cfg.MessageHandler.Unreact)

	return router
}
