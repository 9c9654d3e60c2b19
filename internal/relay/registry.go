package relay

import "sync"

// registry maps channel names to subscriber queues. An entry exists exactly
// while at least one queue holds interest; the relay reacts to first/last
// transitions by issuing LISTEN/UNLISTEN on the live connection.
type registry struct {
	mu   sync.Mutex
	subs map[string]map[*Queue]struct{}
}

func newRegistry() *registry {
	return &registry{subs: make(map[string]map[*Queue]struct{})}
}

// add registers q under channel and reports whether this created the entry.
func (r *registry) add(channel string, q *Queue) (first bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.subs[channel]
	if !ok {
		set = make(map[*Queue]struct{})
		r.subs[channel] = set
	}
	set[q] = struct{}{}
	return !ok
}

// remove drops q from channel and reports whether the entry emptied. Removing
// a queue that was never added is a no-op, so double-cleanup on consumer
// error paths is harmless.
func (r *registry) remove(channel string, q *Queue) (last bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.subs[channel]
	if !ok {
		return false
	}
	if _, ok := set[q]; !ok {
		return false
	}
	delete(set, q)
	if len(set) == 0 {
		delete(r.subs, channel)
		return true
	}
	return false
}

// snapshot returns a copy of the queues subscribed to channel. Dispatch
// iterates the copy so subscribe/unsubscribe may interleave with delivery.
func (r *registry) snapshot(channel string) []*Queue {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.subs[channel]
	if !ok {
		return nil
	}
	out := make([]*Queue, 0, len(set))
	for q := range set {
		out = append(out, q)
	}
	return out
}

// channels lists every channel with at least one subscriber.
func (r *registry) channels() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.subs))
	for ch := range r.subs {
		out = append(out, ch)
	}
	return out
}

func (r *registry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

func (r *registry) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = make(map[string]map[*Queue]struct{})
}
