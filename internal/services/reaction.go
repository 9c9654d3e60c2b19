package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bookline/backend/internal/platform/logger"
	"github.com/bookline/backend/internal/realtime"
	"github.com/bookline/backend/internal/relay"
	"github.com/bookline/backend/internal/repos"
	"github.com/bookline/backend/internal/types"
)

type ReactionService interface {
	React(ctx context.Context, messageID, userID uuid.UUID, emoji string) (*types.MessageReaction, error)
	Remove(ctx context.Context, messageID, userID uuid.UUID, emoji string) error
}

type reactionService struct {
	db           *gorm.DB
	log          *logger.Logger
	publisher    Publisher
	convRepo     repos.ConversationRepo
	msgRepo      repos.MessageRepo
	reactionRepo repos.ReactionRepo
}

func NewReactionService(db *gorm.DB, log *logger.Logger, publisher Publisher, convRepo repos.ConversationRepo, msgRepo repos.MessageRepo, reactionRepo repos.ReactionRepo) ReactionService {
	return &reactionService{
		db:           db,
		log:          log.With("service", "ReactionService"),
		publisher:    publisher,
		convRepo:     convRepo,
		msgRepo:      msgRepo,
		reactionRepo: reactionRepo,
	}
}

func (s *reactionService) React(ctx context.Context, messageID, userID uuid.UUID, emoji string) (*types.MessageReaction, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return nil, fmt.Errorf("emoji required")
	}
	msg, conv, err := s.resolve(ctx, messageID, userID)
	if err != nil {
		return nil, err
	}

	reaction, err := s.reactionRepo.Upsert(ctx, nil, &types.MessageReaction{
		MessageID: messageID,
		UserID:    userID,
		Emoji:     emoji,
	})
	if err != nil {
		return nil, fmt.Errorf("persist reaction: %w", err)
	}

	s.notify(ctx, conv, userID, msg, emoji, false)
	return reaction, nil
}

func (s *reactionService) Remove(ctx context.Context, messageID, userID uuid.UUID, emoji string) error {
	msg, conv, err := s.resolve(ctx, messageID, userID)
	if err != nil {
		return err
	}
	if err := s.reactionRepo.Delete(ctx, nil, messageID, userID, emoji); err != nil {
		return fmt.Errorf("remove reaction: %w", err)
	}
	s.notify(ctx, conv, userID, msg, emoji, true)
	return nil
}

func (s *reactionService) resolve(ctx context.Context, messageID, userID uuid.UUID) (*types.Message, *types.Conversation, error) {
	msg, err := s.msgRepo.GetByID(ctx, nil, messageID)
	if err != nil {
		return nil, nil, fmt.Errorf("load message: %w", err)
	}
	conv, err := s.convRepo.GetByID(ctx, nil, msg.ConversationID)
	if err != nil {
		return nil, nil, fmt.Errorf("load conversation: %w", err)
	}
	if !conv.HasParticipant(userID) {
		return nil, nil, fmt.Errorf("user is not part of this conversation")
	}
	return msg, conv, nil
}

type reactionEventData struct {
	MessageID uuid.UUID `json:"message_id"`
	UserID    uuid.UUID `json:"user_id"`
	Emoji     string    `json:"emoji"`
	Removed   bool      `json:"removed,omitempty"`
}

func (s *reactionService) notify(ctx context.Context, conv *types.Conversation, actorID uuid.UUID, msg *types.Message, emoji string, removed bool) {
	ev, err := relay.NewEvent(relay.KindReactionUpdate, conv.ID.String(), reactionEventData{
		MessageID: msg.ID,
		UserID:    actorID,
		Emoji:     emoji,
		Removed:   removed,
	})
	if err != nil {
		s.log.Warn("could not encode reaction event", "error", err)
		return
	}
	channels := []string{
		realtime.UserChannel(conv.Other(actorID)),
		realtime.ConversationChannel(conv.ID),
	}
	for _, ch := range channels {
		if !s.publisher.Publish(ctx, ch, ev) {
			s.log.Debug("live update not delivered", "channel", ch, "kind", relay.KindReactionUpdate)
		}
	}
}
