package handlers

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/bookline/backend/internal/platform/logger"
	"github.com/bookline/backend/internal/realtime"
	"github.com/bookline/backend/internal/relay"
	"github.com/bookline/backend/internal/requestdata"
	"github.com/bookline/backend/internal/services"
	"github.com/bookline/backend/internal/sse"
)

// RealtimeHandler owns the live streams, one per authenticated session. A
// reconnecting client replaces its previous stream rather than stacking a
// second one.
type RealtimeHandler struct {
	log     *logger.Logger
	relay   *relay.Relay
	convSvc services.ConversationService

	mu      sync.Mutex
	streams map[uuid.UUID]*sse.Stream
}

func NewRealtimeHandler(log *logger.Logger, rl *relay.Relay, convSvc services.ConversationService) *RealtimeHandler {
	return &RealtimeHandler{
		log:     log.With("handler", "RealtimeHandler"),
		relay:   rl,
		convSvc: convSvc,
		streams: make(map[uuid.UUID]*sse.Stream),
	}
}

// SSEStream opens the event stream for the calling session and blocks until
// the client disconnects.
func (h *RealtimeHandler) SSEStream(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		RespondError(c, http.StatusUnauthorized, "unauthorized", fmt.Errorf("no request identity"))
		return
	}
	sessionKey := rd.SessionID
	if sessionKey == uuid.Nil {
		sessionKey = rd.UserID
	}

	stream := sse.NewStream(h.relay, h.log, rd.UserID)

	h.mu.Lock()
	if prev, ok := h.streams[sessionKey]; ok {
		prev.Close()
	}
	h.streams[sessionKey] = stream
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		if h.streams[sessionKey] == stream {
			delete(h.streams, sessionKey)
		}
		h.mu.Unlock()
		stream.Close()
	}()

	stream.Serve(c.Writer, c.Request)
}

type subscribeRequest struct {
	ConversationID uuid.UUID `json:"conversation_id" binding:"required"`
}

// SSESubscribe joins the session's stream to a conversation channel. The
// caller must be a participant of the conversation.
func (h *RealtimeHandler) SSESubscribe(c *gin.Context) {
	stream, rd, ok := h.sessionStream(c)
	if !ok {
		return
	}
	var req subscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	conv, err := h.convSvc.Get(c.Request.Context(), req.ConversationID, rd.UserID)
	if err != nil {
		RespondError(c, http.StatusForbidden, "forbidden", err)
		return
	}
	stream.Join(realtime.ConversationChannel(conv.ID))
	RespondOK(c, gin.H{"subscribed": true, "channels": stream.Channels()})
}

func (h *RealtimeHandler) SSEUnsubscribe(c *gin.Context) {
	stream, _, ok := h.sessionStream(c)
	if !ok {
		return
	}
	var req subscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	stream.Leave(realtime.ConversationChannel(req.ConversationID))
	RespondOK(c, gin.H{"subscribed": false, "channels": stream.Channels()})
}

// RelayHealth reports the relay's live counters; 503 while the backbone is
// down so load balancers can steer SSE traffic away.
func (h *RealtimeHandler) RelayHealth(c *gin.Context) {
	stats := h.relay.Stats()
	status := http.StatusOK
	if !stats.Healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, stats)
}

func (h *RealtimeHandler) sessionStream(c *gin.Context) (*sse.Stream, *requestdata.RequestData, bool) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		RespondError(c, http.StatusUnauthorized, "unauthorized", fmt.Errorf("no request identity"))
		return nil, nil, false
	}
	sessionKey := rd.SessionID
	if sessionKey == uuid.Nil {
		sessionKey = rd.UserID
	}
	h.mu.Lock()
	stream := h.streams[sessionKey]
	h.mu.Unlock()
	if stream == nil {
		RespondError(c, http.StatusConflict, "no_stream", fmt.Errorf("no open event stream for this session"))
		return nil, nil, false
	}
	return stream, rd, true
}
