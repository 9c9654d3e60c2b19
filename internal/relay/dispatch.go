package relay

import (
	"encoding/json"

	"github.com/jackc/pgx/v5/pgconn"
)

// dispatch classifies one inbound notification and fans it out. It runs on
// the goroutine that owns the connection, so it only does cheap routing and
// non-blocking enqueues; slow consumers lose events instead of stalling
// everyone else.
func (r *Relay) dispatch(n *pgconn.Notification) {
	if n == nil {
		return
	}
	if n.Channel == r.probeChannel {
		// A probe answered after its self-test window closed.
		return
	}

	var env envelope
	if err := json.Unmarshal([]byte(n.Payload), &env); err != nil {
		r.log.Warn("dropping malformed notification", "channel", n.Channel, "error", err)
		return
	}

	if env.Kind == KindHeartbeat {
		r.confirmHeartbeat(env.SentAt)
		return
	}

	queues := r.registry.snapshot(n.Channel)
	if len(queues) == 0 {
		// Interest can churn faster than a notification round-trip;
		// nobody listening is expected, not an error.
		return
	}

	ev := Event{Channel: n.Channel, Kind: env.Kind, RoutingKey: env.RoutingKey, Data: env.Data}
	for _, q := range queues {
		if !q.offer(ev) {
			r.dropped.Add(1)
			r.log.Warn("subscriber queue full, dropping event", "channel", n.Channel, "kind", env.Kind)
		}
	}
}
