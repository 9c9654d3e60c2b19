package relay

import (
	"encoding/json"
	"time"
)

// Event kinds carried in the notify envelope. Heartbeats are internal to the
// relay and never reach a subscriber queue.
const (
	KindHeartbeat      = "heartbeat"
	KindNewMessage     = "new_message"
	KindMessageEdited  = "message_edited"
	KindReactionUpdate = "reaction_update"
)

// envelope is the wire format of a NOTIFY payload.
type envelope struct {
	Kind       string          `json:"kind"`
	RoutingKey string          `json:"routing_key,omitempty"`
	SentAt     time.Time       `json:"sent_at,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// Event is one delivered notification. Data is opaque to the relay; it is
// meaningful only to the producer/consumer pair.
type Event struct {
	Channel    string          `json:"channel"`
	Kind       string          `json:"kind"`
	RoutingKey string          `json:"routing_key,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// NewEvent builds a publishable event, marshaling data into the payload.
func NewEvent(kind, routingKey string, data any) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, err
	}
	return Event{Kind: kind, RoutingKey: routingKey, Data: raw}, nil
}
