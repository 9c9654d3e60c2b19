package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bookline/backend/internal/platform/logger"
	"github.com/bookline/backend/internal/types"
)

type ConversationRepo interface {
	Create(ctx context.Context, tx *gorm.DB, conv *types.Conversation) (*types.Conversation, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Conversation, error)
}

type conversationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewConversationRepo(db *gorm.DB, baseLog *logger.Logger) ConversationRepo {
	return &conversationRepo{db: db, log: baseLog.With("repo", "ConversationRepo")}
}

func (r *conversationRepo) Create(ctx context.Context, tx *gorm.DB, conv *types.Conversation) (*types.Conversation, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(ctx).Create(conv).Error; err != nil {
		return nil, err
	}
	return conv, nil
}

func (r *conversationRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Conversation, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var conv types.Conversation
	if err := transaction.WithContext(ctx).First(&conv, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &conv, nil
}
