package services

import (
	"context"

	"github.com/bookline/backend/internal/relay"
)

// Publisher is the write-side contract producers use to raise live-update
// hints. *relay.Relay satisfies it; tests substitute a recorder.
type Publisher interface {
	Publish(ctx context.Context, channel string, ev relay.Event) bool
}
