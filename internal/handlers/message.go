package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/bookline/backend/internal/requestdata"
	"github.com/bookline/backend/internal/services"
)

type MessageHandler struct {
	msgSvc      services.MessageService
	reactionSvc services.ReactionService
	convSvc     services.ConversationService
}

func NewMessageHandler(msgSvc services.MessageService, reactionSvc services.ReactionService, convSvc services.ConversationService) *MessageHandler {
	return &MessageHandler{
		msgSvc:      msgSvc,
		reactionSvc: reactionSvc,
		convSvc:     convSvc,
	}
}

type createConversationRequest struct {
	ProviderID uuid.UUID  `json:"provider_id" binding:"required"`
	BookingID  *uuid.UUID `json:"booking_id"`
}

func (h *MessageHandler) CreateConversation(c *gin.Context) {
	rd, ok := identity(c)
	if !ok {
		return
	}
	var req createConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	conv, err := h.convSvc.Create(c.Request.Context(), rd.UserID, req.ProviderID, req.BookingID)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "create_failed", err)
		return
	}
	RespondOK(c, conv)
}

type sendMessageRequest struct {
	Body string `json:"body" binding:"required"`
}

func (h *MessageHandler) SendMessage(c *gin.Context) {
	rd, ok := identity(c)
	if !ok {
		return
	}
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", fmt.Errorf("invalid conversation id"))
		return
	}
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	msg, err := h.msgSvc.Send(c.Request.Context(), conversationID, rd.UserID, req.Body)
	if err != nil {
		RespondError(c, http.StatusForbidden, "send_failed", err)
		return
	}
	RespondOK(c, msg)
}

func (h *MessageHandler) ListMessages(c *gin.Context) {
	rd, ok := identity(c)
	if !ok {
		return
	}
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", fmt.Errorf("invalid conversation id"))
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}
	msgs, err := h.msgSvc.List(c.Request.Context(), conversationID, rd.UserID, limit)
	if err != nil {
		RespondError(c, http.StatusForbidden, "list_failed", err)
		return
	}
	RespondOK(c, gin.H{"messages": msgs})
}

type editMessageRequest struct {
	Body string `json:"body" binding:"required"`
}

func (h *MessageHandler) EditMessage(c *gin.Context) {
	rd, ok := identity(c)
	if !ok {
		return
	}
	messageID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", fmt.Errorf("invalid message id"))
		return
	}
	var req editMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	msg, err := h.msgSvc.Edit(c.Request.Context(), messageID, rd.UserID, req.Body)
	if err != nil {
		RespondError(c, http.StatusForbidden, "edit_failed", err)
		return
	}
	RespondOK(c, msg)
}

type reactRequest struct {
	Emoji string `json:"emoji" binding:"required"`
}

func (h *MessageHandler) React(c *gin.Context) {
	rd, ok := identity(c)
	if !ok {
		return
	}
	messageID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", fmt.Errorf("invalid message id"))
		return
	}
	var req reactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	reaction, err := h.reactionSvc.React(c.Request.Context(), messageID, rd.UserID, req.Emoji)
	if err != nil {
		RespondError(c, http.StatusForbidden, "react_failed", err)
		return
	}
	RespondOK(c, reaction)
}

func (h *MessageHandler) Unreact(c *gin.Context) {
	rd, ok := identity(c)
	if !ok {
		return
	}
	messageID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", fmt.Errorf("invalid message id"))
		return
	}
	emoji := c.Param("emoji")
	if err := h.reactionSvc.Remove(c.Request.Context(), messageID, rd.UserID, emoji); err != nil {
		RespondError(c, http.StatusForbidden, "unreact_failed", err)
		return
	}
	RespondOK(c, gin.H{"removed": true})
}

func identity(c *gin.Context) (*requestdata.RequestData, bool) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		RespondError(c, http.StatusUnauthorized, "unauthorized", fmt.Errorf("no request identity"))
		return nil, false
	}
	return rd, true
}
