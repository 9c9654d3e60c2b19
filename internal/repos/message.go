package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bookline/backend/internal/platform/logger"
	"github.com/bookline/backend/internal/types"
)

type MessageRepo interface {
	Create(ctx context.Context, tx *gorm.DB, msg *types.Message) (*types.Message, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Message, error)
	ListByConversation(ctx context.Context, tx *gorm.DB, conversationID uuid.UUID, limit int) ([]*types.Message, error)
	UpdateBody(ctx context.Context, tx *gorm.DB, id uuid.UUID, body string) (*types.Message, error)
}

type messageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMessageRepo(db *gorm.DB, baseLog *logger.Logger) MessageRepo {
	return &messageRepo{db: db, log: baseLog.With("repo", "MessageRepo")}
}

func (r *messageRepo) Create(ctx context.Context, tx *gorm.DB, msg *types.Message) (*types.Message, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(ctx).Create(msg).Error; err != nil {
		return nil, err
	}
	return msg, nil
}

func (r *messageRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Message, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var msg types.Message
	if err := transaction.WithContext(ctx).First(&msg, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *messageRepo) ListByConversation(ctx context.Context, tx *gorm.DB, conversationID uuid.UUID, limit int) ([]*types.Message, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 {
		limit = 50
	}
	var msgs []*types.Message
	err := transaction.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

func (r *messageRepo) UpdateBody(ctx context.Context, tx *gorm.DB, id uuid.UUID, body string) (*types.Message, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	now := time.Now().UTC()
	err := transaction.WithContext(ctx).
		Model(&types.Message{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"body": body, "edited_at": now}).Error
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, tx, id)
}
