package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/bookline/backend/internal/platform/logger"
	"github.com/bookline/backend/internal/realtime"
	"github.com/bookline/backend/internal/relay"
)

// loopbackConn echoes every NOTIFY back as a notification when the channel is
// being listened to, standing in for a real Postgres session.
type loopbackConn struct {
	mu        sync.Mutex
	listening map[string]bool
	notifs    chan *pgconn.Notification
}

func newLoopbackConn() *loopbackConn {
	return &loopbackConn{
		listening: make(map[string]bool),
		notifs:    make(chan *pgconn.Notification, 256),
	}
}

func (c *loopbackConn) Listen(ctx context.Context, channel string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listening[channel] = true
	return nil
}

func (c *loopbackConn) Unlisten(ctx context.Context, channel string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.listening, channel)
	return nil
}

func (c *loopbackConn) Notify(ctx context.Context, channel, payload string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listening[channel] {
		c.notifs <- &pgconn.Notification{Channel: channel, Payload: payload}
	}
	return nil
}

func (c *loopbackConn) WaitForNotification(ctx context.Context) (*pgconn.Notification, error) {
	select {
	case n := <-c.notifs:
		return n, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *loopbackConn) Close(ctx context.Context) error { return nil }

func startRelay(t *testing.T) *relay.Relay {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(log.Sync)

	rl := relay.New(log, func(ctx context.Context) (relay.Conn, error) {
		return newLoopbackConn(), nil
	}, relay.Config{
		QueueSize:         16,
		HeartbeatInterval: 20 * time.Millisecond,
		HeartbeatTimeout:  200 * time.Millisecond,
		WatchdogInterval:  10 * time.Millisecond,
		ReconnectBackoff:  10 * time.Millisecond,
		WaitSlice:         5 * time.Millisecond,
	})
	rl.Start(context.Background())
	t.Cleanup(rl.Stop)

	deadline := time.Now().Add(2 * time.Second)
	for !rl.IsHealthy() {
		if time.Now().After(deadline) {
			t.Fatalf("relay never became healthy")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return rl
}

func mustEvent(t *testing.T, kind string, data string) relay.Event {
	t.Helper()
	ev, err := relay.NewEvent(kind, "rk", map[string]string{"v": data})
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	return ev
}

func serveStream(t *testing.T, s *Stream, timeout time.Duration) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/sse/stream", nil)
	ctx, cancel := context.WithTimeout(req.Context(), timeout)
	defer cancel()
	s.Serve(rec, req.WithContext(ctx))
	return rec
}

func TestStreamReceivesOwnUserChannel(t *testing.T) {
	rl := startRelay(t)
	log, _ := logger.New("development")
	userID := uuid.New()

	s := NewStream(rl, log, userID)
	defer s.Close()

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() { done <- serveStream(t, s, 300*time.Millisecond) }()

	time.Sleep(20 * time.Millisecond)
	if !rl.Publish(context.Background(), realtime.UserChannel(userID), mustEvent(t, relay.KindNewMessage, "hello")) {
		t.Fatalf("publish failed")
	}

	rec := <-done
	body := rec.Body.String()
	if !strings.Contains(body, "event: "+relay.KindNewMessage) {
		t.Fatalf("stream body missing event frame: %q", body)
	}
	if !strings.Contains(body, "hello") {
		t.Fatalf("stream body missing payload: %q", body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}
}

func TestJoinAndLeaveConversationChannel(t *testing.T) {
	rl := startRelay(t)
	log, _ := logger.New("development")
	userID := uuid.New()
	convID := uuid.New()
	convChannel := realtime.ConversationChannel(convID)

	s := NewStream(rl, log, userID)
	defer s.Close()

	s.Join(convChannel)
	if got := len(s.Channels()); got != 2 {
		t.Fatalf("want 2 channels after join, got %d", got)
	}

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() { done <- serveStream(t, s, 300*time.Millisecond) }()

	time.Sleep(20 * time.Millisecond)
	rl.Publish(context.Background(), convChannel, mustEvent(t, relay.KindReactionUpdate, "joined"))

	body := (<-done).Body.String()
	if !strings.Contains(body, "joined") {
		t.Fatalf("conversation event not delivered: %q", body)
	}

	s.Leave(convChannel)
	if got := len(s.Channels()); got != 1 {
		t.Fatalf("want 1 channel after leave, got %d", got)
	}

	done = make(chan *httptest.ResponseRecorder, 1)
	go func() { done <- serveStream(t, s, 200*time.Millisecond) }()
	time.Sleep(20 * time.Millisecond)
	rl.Publish(context.Background(), convChannel, mustEvent(t, relay.KindReactionUpdate, "after-leave"))

	body = (<-done).Body.String()
	if strings.Contains(body, "after-leave") {
		t.Fatalf("event delivered after leave: %q", body)
	}
}

func TestCloseDetachesAllChannels(t *testing.T) {
	rl := startRelay(t)
	log, _ := logger.New("development")
	userID := uuid.New()

	s := NewStream(rl, log, userID)
	s.Join(realtime.ConversationChannel(uuid.New()))

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() { done <- serveStream(t, s, 2*time.Second) }()
	time.Sleep(20 * time.Millisecond)

	s.Close()
	s.Close() // second close must be a no-op

	select {
	case <-time.After(time.Second):
		t.Fatalf("Serve did not return after Close")
	case <-done:
	}
	if got := len(s.Channels()); got != 0 {
		t.Fatalf("want 0 channels after close, got %d", got)
	}
}
