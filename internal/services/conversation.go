package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bookline/backend/internal/platform/logger"
	"github.com/bookline/backend/internal/repos"
	"github.com/bookline/backend/internal/types"
)

type ConversationService interface {
	Create(ctx context.Context, clientID, providerID uuid.UUID, bookingID *uuid.UUID) (*types.Conversation, error)
	Get(ctx context.Context, conversationID, requesterID uuid.UUID) (*types.Conversation, error)
}

type conversationService struct {
	db       *gorm.DB
	log      *logger.Logger
	convRepo repos.ConversationRepo
}

func NewConversationService(db *gorm.DB, log *logger.Logger, convRepo repos.ConversationRepo) ConversationService {
	return &conversationService{
		db:       db,
		log:      log.With("service", "ConversationService"),
		convRepo: convRepo,
	}
}

func (s *conversationService) Create(ctx context.Context, clientID, providerID uuid.UUID, bookingID *uuid.UUID) (*types.Conversation, error) {
	if clientID == uuid.Nil || providerID == uuid.Nil {
		return nil, fmt.Errorf("both participants required")
	}
	if clientID == providerID {
		return nil, fmt.Errorf("a conversation needs two distinct participants")
	}
	conv, err := s.convRepo.Create(ctx, nil, &types.Conversation{
		ClientID:   clientID,
		ProviderID: providerID,
		BookingID:  bookingID,
	})
	if err != nil {
		return nil, fmt.Errorf("persist conversation: %w", err)
	}
	return conv, nil
}

// Get loads a conversation and enforces that the requester is a participant.
func (s *conversationService) Get(ctx context.Context, conversationID, requesterID uuid.UUID) (*types.Conversation, error) {
	conv, err := s.convRepo.GetByID(ctx, nil, conversationID)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	if !conv.HasParticipant(requesterID) {
		return nil, fmt.Errorf("requester is not part of this conversation")
	}
	return conv, nil
}
