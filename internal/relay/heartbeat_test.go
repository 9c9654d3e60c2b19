package relay

import (
	"context"
	"reflect"
	"testing"
	"time"
)

func TestConfirmedHeartbeatsNeverReconnect(t *testing.T) {
	r, d := startRelay(t)
	r.Subscribe("user:a")
	r.Subscribe("conversation:b")
	before := sortedChannels(r)

	// Several full heartbeat cycles with confirmations flowing back.
	time.Sleep(8 * testConfig().HeartbeatInterval)

	if d.count() != 1 {
		t.Fatalf("connection identity changed: %d connections", d.count())
	}
	if !r.IsHealthy() {
		t.Fatalf("relay should stay healthy while heartbeats confirm")
	}
	if got := sortedChannels(r); !reflect.DeepEqual(got, before) {
		t.Fatalf("registry changed across heartbeat cycles: %v != %v", got, before)
	}
	if got := r.Stats().Reconnects; got != 0 {
		t.Fatalf("reconnects: want 0 got %d", got)
	}
}

func TestUnconfirmedHeartbeatForcesExactlyOneReconnect(t *testing.T) {
	r, d := startRelay(t)
	qa := r.Subscribe("user:a")
	r.Subscribe("conversation:b")
	before := sortedChannels(r)

	d.latest().setDropHeartbeats(true)

	waitFor(t, 2*time.Second, func() bool { return d.count() == 2 })
	waitFor(t, 2*time.Second, r.IsHealthy)

	if got := sortedChannels(r); !reflect.DeepEqual(got, before) {
		t.Fatalf("registry changed across reconnect: %v != %v", got, before)
	}
	if got := r.Stats().Reconnects; got != 1 {
		t.Fatalf("reconnects: want 1 got %d", got)
	}

	// The replacement connection replayed every subscription.
	conn := d.latest()
	for _, ch := range before {
		if !conn.listensTo(ch) {
			t.Fatalf("channel %q not replayed on new connection", ch)
		}
	}
	if !conn.listensTo(heartbeatChannel) {
		t.Fatalf("heartbeat channel not replayed on new connection")
	}

	// A healthy replacement does not keep reconnecting.
	time.Sleep(8 * testConfig().HeartbeatInterval)
	if d.count() != 2 {
		t.Fatalf("extra reconnects after recovery: %d connections", d.count())
	}

	// Delivery still works for interest registered before the reconnect.
	ev, _ := NewEvent(KindNewMessage, "conv-b", map[string]int{"seq": 1})
	if !r.Publish(context.Background(), "user:a", ev) {
		t.Fatalf("publish after reconnect failed")
	}
	got := recvEvent(t, qa, time.Second)
	if got.Kind != KindNewMessage || got.Channel != "user:a" {
		t.Fatalf("unexpected event after reconnect: %+v", got)
	}
}

func TestHeartbeatsNeverReachSubscribers(t *testing.T) {
	r, _ := startRelay(t)
	q := r.Subscribe(heartbeatChannel)

	// Let a few heartbeats round-trip through the shared channel.
	time.Sleep(5 * testConfig().HeartbeatInterval)

	select {
	case ev := <-q.Events():
		t.Fatalf("heartbeat leaked into a subscriber queue: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHeartbeatStateResetOnStop(t *testing.T) {
	r, _ := startRelay(t)
	time.Sleep(3 * testConfig().HeartbeatInterval)
	r.Stop()

	r.mu.Lock()
	hb := r.hb
	r.mu.Unlock()
	if !hb.lastSentAt.IsZero() || !hb.lastConfirmedAt.IsZero() {
		t.Fatalf("heartbeat state not cleared on stop: %+v", hb)
	}
}
