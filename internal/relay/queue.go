package relay

import "sync/atomic"

// Queue is a bounded FIFO queue of events for a single consumer. The relay
// only ever writes to it; only the owning consumer drains it. One queue may
// be joined to several channels.
type Queue struct {
	events  chan Event
	dropped atomic.Uint64
}

func newQueue(size int) *Queue {
	return &Queue{events: make(chan Event, size)}
}

// Events is the consumer side of the queue.
func (q *Queue) Events() <-chan Event { return q.events }

// Len reports how many events are buffered right now.
func (q *Queue) Len() int { return len(q.events) }

// Dropped reports how many events were discarded because the queue was full.
func (q *Queue) Dropped() uint64 { return q.dropped.Load() }

// offer enqueues without blocking; a full queue drops the event so one slow
// consumer never stalls delivery to anyone else.
func (q *Queue) offer(ev Event) bool {
	select {
	case q.events <- ev:
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}
