package relay

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// fakeConn is an in-memory stand-in for a session-scoped LISTEN/NOTIFY
// connection: a notify loops straight back to the same session when it is
// listening on the channel, exactly like Postgres delivering to the sending
// session.
type fakeConn struct {
	mu             sync.Mutex
	listening      map[string]bool
	listens        map[string]int
	unlistens      map[string]int
	notifs         chan *pgconn.Notification
	closed         bool
	dropHeartbeats bool
	failNotify     bool
	listenDelay    time.Duration
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		listening: make(map[string]bool),
		listens:   make(map[string]int),
		unlistens: make(map[string]int),
		notifs:    make(chan *pgconn.Notification, 256),
	}
}

func (c *fakeConn) Listen(ctx context.Context, channel string) error {
	if c.listenDelay > 0 {
		time.Sleep(c.listenDelay)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("conn closed")
	}
	c.listening[channel] = true
	c.listens[channel]++
	return nil
}

func (c *fakeConn) Unlisten(ctx context.Context, channel string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("conn closed")
	}
	delete(c.listening, channel)
	c.unlistens[channel]++
	return nil
}

func (c *fakeConn) Notify(ctx context.Context, channel, payload string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("conn closed")
	}
	if c.failNotify {
		return errors.New("notify refused")
	}
	if c.dropHeartbeats && channel == heartbeatChannel {
		// Silent death: the send "succeeds" but delivery never happens.
		return nil
	}
	if !c.listening[channel] {
		return nil
	}
	select {
	case c.notifs <- &pgconn.Notification{Channel: channel, Payload: payload}:
	default:
	}
	return nil
}

func (c *fakeConn) WaitForNotification(ctx context.Context) (*pgconn.Notification, error) {
	select {
	case n := <-c.notifs:
		return n, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeConn) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// inject delivers a raw notification as if it arrived from the server.
func (c *fakeConn) inject(channel, payload string) {
	c.notifs <- &pgconn.Notification{Channel: channel, Payload: payload}
}

func (c *fakeConn) setDropHeartbeats(v bool) {
	c.mu.Lock()
	c.dropHeartbeats = v
	c.mu.Unlock()
}

func (c *fakeConn) listensTo(channel string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listening[channel]
}

func (c *fakeConn) listenCount(channel string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listens[channel]
}

func (c *fakeConn) unlistenCount(channel string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unlistens[channel]
}

// fakeDialer hands out fakeConns and records every connection it opened, so
// tests can count reconnects and reach the live connection.
type fakeDialer struct {
	mu          sync.Mutex
	conns       []*fakeConn
	dialErr     error
	failNotify  bool
	listenDelay time.Duration
}

func newFakeDialer() *fakeDialer { return &fakeDialer{} }

func (d *fakeDialer) dial(ctx context.Context) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	c := newFakeConn()
	c.failNotify = d.failNotify
	c.listenDelay = d.listenDelay
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) setDialErr(err error) {
	d.mu.Lock()
	d.dialErr = err
	d.mu.Unlock()
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

func (d *fakeDialer) latest() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}
