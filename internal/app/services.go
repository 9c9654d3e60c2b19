package app

import (
	"gorm.io/gorm"

	"github.com/bookline/backend/internal/platform/logger"
	"github.com/bookline/backend/internal/relay"
	"github.com/bookline/backend/internal/services"
)

type Services struct {
	Conversation services.ConversationService
	Message      services.MessageService
	Reaction     services.ReactionService
}

func wireServices(db *gorm.DB, log *logger.Logger, rl *relay.Relay, reposet Repos) Services {
	log.Info("Wiring services...")
	return Services{
		Conversation: services.NewConversationService(db, log, reposet.Conversation),
		Message:      services.NewMessageService(db, log, rl, reposet.Conversation, reposet.Message),
		Reaction:     services.NewReactionService(db, log, rl, reposet.Conversation, reposet.Message, reposet.Reaction),
	}
}
