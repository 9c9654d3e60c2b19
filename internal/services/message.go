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

type MessageService interface {
	Send(ctx context.Context, conversationID, senderID uuid.UUID, body string) (*types.Message, error)
	Edit(ctx context.Context, messageID, editorID uuid.UUID, body string) (*types.Message, error)
	List(ctx context.Context, conversationID, requesterID uuid.UUID, limit int) ([]*types.Message, error)
}

type messageService struct {
	db        *gorm.DB
	log       *logger.Logger
	publisher Publisher
	convRepo  repos.ConversationRepo
	msgRepo   repos.MessageRepo
}

func NewMessageService(db *gorm.DB, log *logger.Logger, publisher Publisher, convRepo repos.ConversationRepo, msgRepo repos.MessageRepo) MessageService {
	return &messageService{
		db:        db,
		log:       log.With("service", "MessageService"),
		publisher: publisher,
		convRepo:  convRepo,
		msgRepo:   msgRepo,
	}
}

// Send persists the message first; only after the write is durably committed
// is the live-update hint published. A failed publish is logged and ignored:
// the recipient still sees the message on next load.
func (s *messageService) Send(ctx context.Context, conversationID, senderID uuid.UUID, body string) (*types.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, fmt.Errorf("message body required")
	}
	conv, err := s.convRepo.GetByID(ctx, nil, conversationID)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	if !conv.HasParticipant(senderID) {
		return nil, fmt.Errorf("sender is not part of this conversation")
	}

	msg, err := s.msgRepo.Create(ctx, nil, &types.Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		Body:           body,
	})
	if err != nil {
		return nil, fmt.Errorf("persist message: %w", err)
	}

	s.notify(ctx, relay.KindNewMessage, conv, senderID, msg)
	return msg, nil
}

// Edit updates the message body and marks it edited; only the sender may
// edit.
func (s *messageService) Edit(ctx context.Context, messageID, editorID uuid.UUID, body string) (*types.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, fmt.Errorf("message body required")
	}
	msg, err := s.msgRepo.GetByID(ctx, nil, messageID)
	if err != nil {
		return nil, fmt.Errorf("load message: %w", err)
	}
	if msg.SenderID != editorID {
		return nil, fmt.Errorf("only the sender can edit a message")
	}
	conv, err := s.convRepo.GetByID(ctx, nil, msg.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}

	updated, err := s.msgRepo.UpdateBody(ctx, nil, messageID, body)
	if err != nil {
		return nil, fmt.Errorf("persist edit: %w", err)
	}

	s.notify(ctx, relay.KindMessageEdited, conv, editorID, updated)
	return updated, nil
}

func (s *messageService) List(ctx context.Context, conversationID, requesterID uuid.UUID, limit int) ([]*types.Message, error) {
	conv, err := s.convRepo.GetByID(ctx, nil, conversationID)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	if !conv.HasParticipant(requesterID) {
		return nil, fmt.Errorf("requester is not part of this conversation")
	}
	return s.msgRepo.ListByConversation(ctx, nil, conversationID, limit)
}

// notify publishes one event per target channel: the other participant's user
// channel and the legacy conversation channel. Best effort by design.
func (s *messageService) notify(ctx context.Context, kind string, conv *types.Conversation, actorID uuid.UUID, msg *types.Message) {
	ev, err := relay.NewEvent(kind, conv.ID.String(), msg)
	if err != nil {
		s.log.Warn("could not encode event", "kind", kind, "error", err)
		return
	}
	channels := []string{
		realtime.UserChannel(conv.Other(actorID)),
		realtime.ConversationChannel(conv.ID),
	}
	for _, ch := range channels {
		if !s.publisher.Publish(ctx, ch, ev) {
			s.log.Debug("live update not delivered", "channel", ch, "kind", kind)
		}
	}
}
