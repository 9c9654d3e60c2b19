package relay

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Conn is the session-scoped pub/sub transport the relay drives. At most one
// Conn is live at a time and it is owned exclusively by the relay's serve
// loop; nothing else may hold a reference across a reconnect.
type Conn interface {
	Listen(ctx context.Context, channel string) error
	Unlisten(ctx context.Context, channel string) error
	Notify(ctx context.Context, channel, payload string) error
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	Close(ctx context.Context) error
}

// DialFunc opens a fresh Conn. The DSN must point at a session-mode endpoint:
// statement- or transaction-pooled endpoints recycle backend sessions between
// commands, which silently breaks LISTEN delivery.
type DialFunc func(ctx context.Context) (Conn, error)

// Dial returns a DialFunc for a Postgres session at dsn.
func Dial(dsn string) DialFunc {
	return func(ctx context.Context) (Conn, error) {
		conn, err := pgx.Connect(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return &pgxConn{conn: conn}, nil
	}
}

type pgxConn struct {
	conn *pgx.Conn
}

func (c *pgxConn) Listen(ctx context.Context, channel string) error {
	_, err := c.conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize())
	return err
}

func (c *pgxConn) Unlisten(ctx context.Context, channel string) error {
	_, err := c.conn.Exec(ctx, "UNLISTEN "+pgx.Identifier{channel}.Sanitize())
	return err
}

func (c *pgxConn) Notify(ctx context.Context, channel, payload string) error {
	_, err := c.conn.Exec(ctx, "SELECT pg_notify($1, $2)", channel, payload)
	return err
}

func (c *pgxConn) WaitForNotification(ctx context.Context) (*pgconn.Notification, error) {
	return c.conn.WaitForNotification(ctx)
}

func (c *pgxConn) Close(ctx context.Context) error {
	return c.conn.Close(ctx)
}
