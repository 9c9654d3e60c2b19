package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bookline/backend/internal/platform/logger"
	"github.com/bookline/backend/internal/realtime"
	"github.com/bookline/backend/internal/relay"
)

const pingInterval = 15 * time.Second

// Stream is one live SSE connection: a single relay queue, possibly following
// several channels, drained into the HTTP response by Serve. The stream owns
// the queue; the relay only writes into it.
type Stream struct {
	ID     uuid.UUID
	UserID uuid.UUID

	relay *relay.Relay
	queue *relay.Queue
	log   *logger.Logger
	done  chan struct{}

	mu       sync.Mutex
	channels map[string]bool
	closed   bool
}

// NewStream subscribes a fresh stream to the user's own channel.
func NewStream(rl *relay.Relay, log *logger.Logger, userID uuid.UUID) *Stream {
	id := uuid.New()
	userChannel := realtime.UserChannel(userID)
	s := &Stream{
		ID:       id,
		UserID:   userID,
		relay:    rl,
		queue:    rl.Subscribe(userChannel),
		log:      log.With("component", "SSEStream", "stream_id", id),
		done:     make(chan struct{}),
		channels: map[string]bool{userChannel: true},
	}
	return s
}

// Join follows an additional channel through this stream's queue.
func (s *Stream) Join(channel string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || channel == "" || s.channels[channel] {
		return
	}
	s.channels[channel] = true
	s.relay.Join(channel, s.queue)
	s.log.Debug("stream joined channel", "channel", channel)
}

// Leave stops following a channel.
func (s *Stream) Leave(channel string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.channels[channel] {
		return
	}
	delete(s.channels, channel)
	s.relay.Unsubscribe(channel, s.queue)
	s.log.Debug("stream left channel", "channel", channel)
}

// Channels lists the channels the stream currently follows.
func (s *Stream) Channels() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.channels))
	for ch := range s.channels {
		out = append(out, ch)
	}
	return out
}

// Close detaches the stream from every channel and wakes Serve. Safe to call
// more than once.
func (s *Stream) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	channels := make([]string, 0, len(s.channels))
	for ch := range s.channels {
		channels = append(channels, ch)
	}
	s.channels = make(map[string]bool)
	close(s.done)
	s.mu.Unlock()

	for _, ch := range channels {
		s.relay.Unsubscribe(ch, s.queue)
	}
}

// Serve writes the stream as server-sent events until the client disconnects
// or the stream is closed.
func (s *Stream) Serve(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	ctx := r.Context()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Debug("stream client gone", "err", ctx.Err())
			return
		case <-s.done:
			return
		case <-ping.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case ev := <-s.queue.Events():
			payload, err := json.Marshal(ev)
			if err != nil {
				s.log.Warn("failed to marshal SSE event", "error", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, payload)
			flusher.Flush()
		}
	}
}
