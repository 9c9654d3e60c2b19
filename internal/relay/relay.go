package relay

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/bookline/backend/internal/platform/logger"
)

// heartbeatChannel carries only heartbeat envelopes. It travels over the same
// connection and the same NOTIFY path as every real event, so a heartbeat
// round-trip proves the production delivery path, not a side channel.
const heartbeatChannel = "relay_heartbeat"

// Postgres rejects NOTIFY payloads of 8000 bytes or more.
const maxPayloadBytes = 7999

var errNotConnected = errors.New("relay: no live connection")

// Config tunes the relay. Zero values fall back to production defaults.
type Config struct {
	// QueueSize bounds each subscriber queue.
	QueueSize int
	// HeartbeatInterval is the tick between synthetic heartbeat sends.
	HeartbeatInterval time.Duration
	// HeartbeatTimeout is how long an unconfirmed heartbeat may age before
	// the watchdog declares the connection silently dead.
	HeartbeatTimeout time.Duration
	// WatchdogInterval is the watchdog poll period, finer than the
	// heartbeat interval.
	WatchdogInterval time.Duration
	// ReconnectBackoff is the fixed delay between reconnect attempts.
	ReconnectBackoff time.Duration
	// SelfTestTimeout bounds the startup probe round-trip.
	SelfTestTimeout time.Duration
	// OpTimeout bounds a single outbound command (LISTEN/UNLISTEN/NOTIFY).
	OpTimeout time.Duration
	// WaitSlice is how long the serve loop blocks on inbound delivery
	// before checking for pending outbound commands.
	WaitSlice time.Duration
}

func (c Config) withDefaults() Config {
	if c.QueueSize <= 0 {
		c.QueueSize = 32
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = 10 * time.Second
	}
	if c.WatchdogInterval <= 0 {
		c.WatchdogInterval = 5 * time.Second
	}
	if c.ReconnectBackoff <= 0 {
		c.ReconnectBackoff = 3 * time.Second
	}
	if c.SelfTestTimeout <= 0 {
		c.SelfTestTimeout = 2 * time.Second
	}
	if c.OpTimeout <= 0 {
		c.OpTimeout = 5 * time.Second
	}
	if c.WaitSlice <= 0 {
		c.WaitSlice = 250 * time.Millisecond
	}
	return c
}

type ioOp int

const (
	opListen ioOp = iota
	opUnlisten
	opNotify
)

// ioRequest is one outbound command for the goroutine that owns the
// connection. All writes to the connection go through this queue because a
// pgx connection cannot be used concurrently with WaitForNotification, and
// publishing on any other connection would break same-session delivery.
type ioRequest struct {
	op      ioOp
	channel string
	payload string
	reply   chan error
}

// Relay is the process-wide notification relay: it owns the single
// session-scoped pub/sub connection, fans inbound notifications out to
// subscriber queues, and self-heals via heartbeat-driven reconnects.
//
// One Relay per process. Collaborators receive it by reference; there is no
// package-level instance.
type Relay struct {
	log  *logger.Logger
	dial DialFunc
	cfg  Config

	registry     *registry
	io           chan ioRequest
	probeChannel string

	mu          sync.Mutex
	started     bool
	everStarted bool
	cancel      context.CancelFunc
	done        chan struct{}
	hb          heartbeatState

	connected  atomic.Bool
	healthy    atomic.Bool
	dropped    atomic.Uint64
	reconnects atomic.Uint64
}

// Stats is a point-in-time snapshot of relay counters for health endpoints.
type Stats struct {
	Healthy    bool   `json:"healthy"`
	Connected  bool   `json:"connected"`
	Channels   int    `json:"channels"`
	Dropped    uint64 `json:"dropped"`
	Reconnects uint64 `json:"reconnects"`
}

func New(log *logger.Logger, dial DialFunc, cfg Config) *Relay {
	return &Relay{
		log:          log.With("component", "Relay"),
		dial:         dial,
		cfg:          cfg.withDefaults(),
		registry:     newRegistry(),
		io:           make(chan ioRequest, 64),
		probeChannel: "relay_selftest_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8],
	}
}

// Start brings the relay up and returns immediately; dialing, the self-test
// and the heartbeat loops run in the background and keep retrying for as long
// as ctx lives. Calling Start on a running relay is a no-op.
func (r *Relay) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	r.cancel = cancel
	r.done = done
	r.started = true
	r.everStarted = true
	go r.run(runCtx, done)
}

// Stop tears the relay down: heartbeat and watchdog first, then the listen
// loop, then the connection, and finally all recorded interest. Safe to call
// more than once.
func (r *Relay) Stop() {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	r.started = false
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()

	cancel()
	<-done

	r.registry.clear()
	r.mu.Lock()
	r.hb = heartbeatState{}
	r.mu.Unlock()
	r.healthy.Store(false)
}

// IsHealthy reports whether the last self-test or heartbeat round-trip
// succeeded on the current connection.
func (r *Relay) IsHealthy() bool { return r.healthy.Load() }

func (r *Relay) Stats() Stats {
	return Stats{
		Healthy:    r.healthy.Load(),
		Connected:  r.connected.Load(),
		Channels:   r.registry.size(),
		Dropped:    r.dropped.Load(),
		Reconnects: r.reconnects.Load(),
	}
}

// Subscribe registers a fresh bounded queue for channel. Interest is recorded
// even while no connection is open; the next (re)connect replays it.
func (r *Relay) Subscribe(channel string) *Queue {
	r.requireStarted("Subscribe")
	q := newQueue(r.cfg.QueueSize)
	r.join(channel, q)
	return q
}

// Join adds an existing queue to an additional channel, so one consumer can
// follow several channels through a single queue.
func (r *Relay) Join(channel string, q *Queue) {
	r.requireStarted("Join")
	r.join(channel, q)
}

func (r *Relay) join(channel string, q *Queue) {
	if !r.registry.add(channel, q) {
		return
	}
	req := ioRequest{op: opListen, channel: channel, reply: make(chan error, 1)}
	if err := r.submit(context.Background(), req); err != nil {
		// Interest stays recorded; the session's install catch-up or the
		// next connect replays the LISTEN.
		r.log.Debug("listen deferred to replay", "channel", channel, "error", err)
	}
}

// Unsubscribe detaches q from channel; retracting the last queue drops
// connection-level interest and the registry entry. Unknown queues are
// ignored.
func (r *Relay) Unsubscribe(channel string, q *Queue) {
	r.requireStarted("Unsubscribe")
	if !r.registry.remove(channel, q) {
		return
	}
	req := ioRequest{op: opUnlisten, channel: channel, reply: make(chan error, 1)}
	if err := r.submit(context.Background(), req); err != nil {
		// A replacement connection only LISTENs registered channels, so
		// the stale interest dies with this one.
		r.log.Debug("unlisten skipped", "channel", channel, "error", err)
	}
}

// Publish sends ev on channel over the same connection the relay listens on.
// Best effort: false means the live-update hint was not delivered and nothing
// more; the caller's durable write must already be committed and is never
// rolled back or retried on account of this result.
func (r *Relay) Publish(ctx context.Context, channel string, ev Event) bool {
	r.requireStarted("Publish")
	payload, err := json.Marshal(envelope{Kind: ev.Kind, RoutingKey: ev.RoutingKey, SentAt: time.Now().UTC(), Data: ev.Data})
	if err != nil {
		r.log.Warn("event payload not serializable", "channel", channel, "kind", ev.Kind, "error", err)
		return false
	}
	if len(payload) > maxPayloadBytes {
		r.log.Warn("event payload exceeds NOTIFY limit", "channel", channel, "kind", ev.Kind, "bytes", len(payload))
		return false
	}
	req := ioRequest{op: opNotify, channel: channel, payload: string(payload), reply: make(chan error, 1)}
	if err := r.submit(ctx, req); err != nil {
		r.log.Warn("publish not delivered", "channel", channel, "kind", ev.Kind, "error", err)
		return false
	}
	return true
}

// requireStarted panics when the relay was never started: calling the
// pub/sub surface before Start is a programming error, not an operational
// fault.
func (r *Relay) requireStarted(op string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.everStarted {
		panic("relay: " + op + " called before Start")
	}
}

// submit hands one outbound command to the serve loop and waits for the
// result. While no connection is live it fails fast instead of blocking the
// caller.
func (r *Relay) submit(ctx context.Context, req ioRequest) error {
	if !r.connected.Load() {
		return errNotConnected
	}
	timer := time.NewTimer(r.cfg.OpTimeout)
	defer timer.Stop()
	select {
	case r.io <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return errNotConnected
	}
	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return errors.New("relay: outbound command timed out")
	}
}

// run owns the connection lifecycle: dial, session, teardown, fixed backoff,
// repeat until the relay stops. There is no retry cap; the relay must
// self-heal for as long as the process lives. Because this loop is the only
// place connections are replaced, concurrent reconnect requests collapse into
// a single rebuild.
func (r *Relay) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	sessions := 0
	for {
		if ctx.Err() != nil {
			return
		}
		conn, err := r.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.log.Warn("pubsub dial failed, retrying", "error", err, "backoff", r.cfg.ReconnectBackoff)
			if !sleep(ctx, r.cfg.ReconnectBackoff) {
				return
			}
			continue
		}
		if sessions > 0 {
			r.reconnects.Add(1)
		}
		sessions++

		r.session(ctx, conn)

		r.connected.Store(false)
		r.healthy.Store(false)
		if ctx.Err() != nil {
			return
		}
		if !sleep(ctx, r.cfg.ReconnectBackoff) {
			return
		}
	}
}

// session drives one connection from install to teardown. It returns when
// the transport fails, the watchdog aborts it, or the relay stops.
func (r *Relay) session(ctx context.Context, conn Conn) {
	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	replayed, err := r.install(sessionCtx, conn)
	if err != nil {
		if ctx.Err() == nil {
			r.log.Warn("subscription replay failed, reopening connection", "error", err)
		}
		r.closeConn(conn)
		return
	}
	r.connected.Store(true)

	// A Subscribe landing between the replay snapshot and the connected flag
	// records interest but cannot reach the serve loop yet; catch up here so
	// it is never stranded for the life of the session.
	for _, ch := range r.registry.channels() {
		if _, ok := replayed[ch]; ok {
			continue
		}
		if err := conn.Listen(sessionCtx, ch); err != nil {
			if ctx.Err() == nil {
				r.log.Warn("subscription catch-up failed, reopening connection", "channel", ch, "error", err)
			}
			r.connected.Store(false)
			r.closeConn(conn)
			return
		}
	}

	ok := r.selfTest(sessionCtx, conn)
	r.healthy.Store(ok)
	if !ok && sessionCtx.Err() == nil {
		r.log.Warn("pubsub self-test failed, continuing degraded")
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		r.heartbeatLoop(sessionCtx)
	}()
	go func() {
		defer wg.Done()
		r.watchdogLoop(sessionCtx, cancel)
	}()

	r.serve(sessionCtx, conn)

	r.connected.Store(false)
	cancel()
	wg.Wait()
	r.closeConn(conn)
}

// install resets heartbeat state and replays LISTEN for every registered
// channel plus the relay's own heartbeat and self-test channels. No consumer
// has to resubscribe across a reconnect. The returned set is what was actually
// replayed, so the caller can pick up interest registered mid-replay.
func (r *Relay) install(ctx context.Context, conn Conn) (map[string]struct{}, error) {
	r.mu.Lock()
	r.hb = heartbeatState{}
	r.mu.Unlock()

	channels := append(r.registry.channels(), heartbeatChannel, r.probeChannel)
	replayed := make(map[string]struct{}, len(channels))
	for _, ch := range channels {
		if err := conn.Listen(ctx, ch); err != nil {
			return nil, err
		}
		replayed[ch] = struct{}{}
	}
	return replayed, nil
}

// selfTest round-trips a unique probe over the live connection. Failure is
// not fatal: the relay keeps serving in a degraded, observable state and
// recovers health on the first confirmed heartbeat.
func (r *Relay) selfTest(ctx context.Context, conn Conn) bool {
	token := uuid.NewString()
	if err := conn.Notify(ctx, r.probeChannel, token); err != nil {
		r.log.Warn("self-test send failed", "error", err)
		return false
	}
	waitCtx, cancel := context.WithTimeout(ctx, r.cfg.SelfTestTimeout)
	defer cancel()
	for {
		n, err := conn.WaitForNotification(waitCtx)
		if err != nil {
			r.log.Warn("self-test probe not observed", "error", err)
			return false
		}
		if n != nil && n.Channel == r.probeChannel && n.Payload == token {
			return true
		}
		r.dispatch(n)
	}
}

// serve is the only goroutine touching conn while a session is live. It
// alternates between draining pending outbound commands and short waits for
// inbound notifications, and returns on transport failure or cancellation.
func (r *Relay) serve(ctx context.Context, conn Conn) {
	for {
		drained := false
		for !drained {
			select {
			case req := <-r.io:
				err := r.execIO(ctx, conn, req)
				req.reply <- err
				if err != nil && req.op == opListen && ctx.Err() == nil {
					// A LISTEN that fails on a live connection would strand
					// the registered interest; the replacement session
					// replays it.
					r.log.Warn("listen failed on live connection, reconnecting", "channel", req.channel, "error", err)
					return
				}
			default:
				drained = true
			}
		}

		waitCtx, cancel := context.WithTimeout(ctx, r.cfg.WaitSlice)
		n, err := conn.WaitForNotification(waitCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			r.log.Warn("pubsub listen failed, reconnecting", "error", err)
			return
		}
		r.dispatch(n)
	}
}

func (r *Relay) execIO(ctx context.Context, conn Conn, req ioRequest) error {
	opCtx, cancel := context.WithTimeout(ctx, r.cfg.OpTimeout)
	defer cancel()
	switch req.op {
	case opListen:
		return conn.Listen(opCtx, req.channel)
	case opUnlisten:
		return conn.Unlisten(opCtx, req.channel)
	default:
		return conn.Notify(opCtx, req.channel, req.payload)
	}
}

func (r *Relay) closeConn(conn Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.OpTimeout)
	defer cancel()
	if err := conn.Close(ctx); err != nil {
		r.log.Debug("pubsub connection close failed", "error", err)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
