package app

import (
	"github.com/gin-gonic/gin"

	"github.com/bookline/backend/internal/server"
)

func wireRouter(cfg Config, handlerset Handlers, middlewareset Middleware) *gin.Engine {
	return server.NewRouter(server.RouterConfig{
		ServiceName:     "bookline-backend",
		AllowedOrigins:  cfg.CORSOrigins,
		AuthMiddleware:  middlewareset.Auth,
		MessageHandler:  handlerset.Message,
		RealtimeHandler: handlerset.Realtime,
	})
}
