package relay

import (
	"context"
	"encoding/json"
	"time"
)

// heartbeatState tracks the in-flight heartbeat for the current connection.
// lastSentAt marks the oldest unconfirmed send and is cleared on
// confirmation; the watchdog measures elapsed time against it. Reset on every
// reconnect.
type heartbeatState struct {
	lastSentAt      time.Time
	lastConfirmedAt time.Time
}

// heartbeatLoop periodically pushes a synthetic heartbeat through the exact
// channel and connection real events travel on; probing any other path would
// certify health the real path does not have. lastSentAt is committed before
// the send so the watchdog never measures against a timestamp that has not
// been recorded yet.
func (r *Relay) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		now := time.Now().UTC()
		payload, _ := json.Marshal(envelope{Kind: KindHeartbeat, SentAt: now})

		r.mu.Lock()
		if r.hb.lastSentAt.IsZero() {
			r.hb.lastSentAt = now
		}
		r.mu.Unlock()

		req := ioRequest{op: opNotify, channel: heartbeatChannel, payload: string(payload), reply: make(chan error, 1)}
		if err := r.submit(ctx, req); err != nil && ctx.Err() == nil {
			// The watchdog converts a persistent failure into a
			// reconnect; nothing to do here.
			r.log.Debug("heartbeat send failed", "error", err)
		}
	}
}

// confirmHeartbeat handles a heartbeat observed back on the listen path. A
// confirmation at least as new as the oldest unconfirmed send clears the
// pending state.
func (r *Relay) confirmHeartbeat(sentAt time.Time) {
	r.mu.Lock()
	r.hb.lastConfirmedAt = time.Now().UTC()
	if !r.hb.lastSentAt.IsZero() && !sentAt.Before(r.hb.lastSentAt) {
		r.hb.lastSentAt = time.Time{}
	}
	r.mu.Unlock()
	r.healthy.Store(true)
}

// watchdogLoop polls for a heartbeat that was sent but never came back: the
// signature of a connection killed silently by intermediary infrastructure.
// One overdue confirmation aborts the session it belongs to, which forces
// exactly one reconnect; the replacement session starts fresh loops.
func (r *Relay) watchdogLoop(ctx context.Context, abort context.CancelFunc) {
	ticker := time.NewTicker(r.cfg.WatchdogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		r.mu.Lock()
		sent := r.hb.lastSentAt
		r.mu.Unlock()
		if sent.IsZero() || time.Since(sent) <= r.cfg.HeartbeatTimeout {
			continue
		}

		r.log.Error("heartbeat unconfirmed, forcing reconnect",
			"sent_at", sent, "timeout", r.cfg.HeartbeatTimeout)
		r.healthy.Store(false)
		abort()
		return
	}
}
