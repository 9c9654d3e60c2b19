package app

import (
	"github.com/bookline/backend/internal/handlers"
	"github.com/bookline/backend/internal/platform/logger"
	"github.com/bookline/backend/internal/relay"
)

type Handlers struct {
	Message  *handlers.MessageHandler
	Realtime *handlers.RealtimeHandler
}

func wireHandlers(log *logger.Logger, rl *relay.Relay, serviceset Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Message:  handlers.NewMessageHandler(serviceset.Message, serviceset.Reaction, serviceset.Conversation),
		Realtime: handlers.NewRealtimeHandler(log, rl, serviceset.Conversation),
	}
}
