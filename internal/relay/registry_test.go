package relay

import (
	"context"
	"testing"
	"time"
)

func TestFirstSubscribeIssuesListenOnce(t *testing.T) {
	r, d := startRelay(t)
	conn := d.latest()

	qa := r.Subscribe("U")
	qb := r.Subscribe("U")

	waitFor(t, time.Second, func() bool { return conn.listensTo("U") })
	if got := conn.listenCount("U"); got != 1 {
		t.Fatalf("duplicate connection-level interest: %d LISTENs", got)
	}

	// Dropping one of two subscribers keeps the interest.
	r.Unsubscribe("U", qa)
	time.Sleep(20 * time.Millisecond)
	if got := conn.unlistenCount("U"); got != 0 {
		t.Fatalf("interest retracted while a subscriber remains")
	}

	r.Unsubscribe("U", qb)
	waitFor(t, time.Second, func() bool { return conn.unlistenCount("U") == 1 })
	if r.Stats().Channels != 0 {
		t.Fatalf("registry entry survived last unsubscribe")
	}
}

func TestSubscribeThenImmediateUnsubscribe(t *testing.T) {
	r, d := startRelay(t)
	conn := d.latest()

	q := r.Subscribe("U")
	r.Unsubscribe("U", q)

	if r.Stats().Channels != 0 {
		t.Fatalf("registry should be empty")
	}
	waitFor(t, time.Second, func() bool { return conn.unlistenCount("U") == 1 })
	if got := conn.unlistenCount("U"); got != 1 {
		t.Fatalf("interest retracted %d times, want exactly once", got)
	}
}

func TestUnsubscribeUnknownQueueIsNoOp(t *testing.T) {
	r, _ := startRelay(t)
	q := r.Subscribe("U")
	stray := newQueue(4)

	r.Unsubscribe("U", stray)
	if r.Stats().Channels != 1 {
		t.Fatalf("unknown queue removal must not disturb the entry")
	}

	// Double-cleanup from a consumer error path.
	r.Unsubscribe("U", q)
	r.Unsubscribe("U", q)
	if r.Stats().Channels != 0 {
		t.Fatalf("registry should be empty after double unsubscribe")
	}
}

func TestJoinSharesOneQueueAcrossChannels(t *testing.T) {
	r, _ := startRelay(t)
	q := r.Subscribe("user:a")
	r.Join("conversation:b", q)

	if r.Stats().Channels != 2 {
		t.Fatalf("expected two registry entries, got %d", r.Stats().Channels)
	}

	ev, _ := NewEvent(KindReactionUpdate, "conv-b", nil)
	if !r.Publish(context.Background(), "conversation:b", ev) {
		t.Fatalf("publish failed")
	}
	got := recvEvent(t, q, time.Second)
	if got.Channel != "conversation:b" || got.Kind != KindReactionUpdate {
		t.Fatalf("unexpected event: %+v", got)
	}

	r.Unsubscribe("conversation:b", q)
	r.Unsubscribe("user:a", q)
	if r.Stats().Channels != 0 {
		t.Fatalf("registry should be empty after detaching both channels")
	}
}
