package app

import (
	"gorm.io/gorm"

	"github.com/bookline/backend/internal/platform/logger"
	"github.com/bookline/backend/internal/repos"
)

type Repos struct {
	Conversation repos.ConversationRepo
	Message      repos.MessageRepo
	Reaction     repos.ReactionRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Conversation: repos.NewConversationRepo(db, log),
		Message:      repos.NewMessageRepo(db, log),
		Reaction:     repos.NewReactionRepo(db, log),
	}
}
