package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bookline/backend/internal/platform/logger"
	"github.com/bookline/backend/internal/types"
)

type ReactionRepo interface {
	Upsert(ctx context.Context, tx *gorm.DB, reaction *types.MessageReaction) (*types.MessageReaction, error)
	Delete(ctx context.Context, tx *gorm.DB, messageID, userID uuid.UUID, emoji string) error
	ListByMessage(ctx context.Context, tx *gorm.DB, messageID uuid.UUID) ([]*types.MessageReaction, error)
}

type reactionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewReactionRepo(db *gorm.DB, baseLog *logger.Logger) ReactionRepo {
	return &reactionRepo{db: db, log: baseLog.With("repo", "ReactionRepo")}
}

func (r *reactionRepo) Upsert(ctx context.Context, tx *gorm.DB, reaction *types.MessageReaction) (*types.MessageReaction, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	err := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "message_id"}, {Name: "user_id"}, {Name: "emoji"}},
			DoNothing: true,
		}).
		Create(reaction).Error
	if err != nil {
		return nil, err
	}
	return reaction, nil
}

func (r *reactionRepo) Delete(ctx context.Context, tx *gorm.DB, messageID, userID uuid.UUID, emoji string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Where("message_id = ? AND user_id = ? AND emoji = ?", messageID, userID, emoji).
		Delete(&types.MessageReaction{}).Error
}

func (r *reactionRepo) ListByMessage(ctx context.Context, tx *gorm.DB, messageID uuid.UUID) ([]*types.MessageReaction, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var reactions []*types.MessageReaction
	err := transaction.WithContext(ctx).
		Where("message_id = ?", messageID).
		Order("created_at ASC").
		Find(&reactions).Error
	if err != nil {
		return nil, err
	}
	return reactions, nil
}
