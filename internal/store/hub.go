package store

import "sync"

// Event is a single watch delivery: the full collection snapshot, or an
// error if building the snapshot failed. An error event never implies the
// previous snapshot is invalid; consumers keep what they have.
type Event struct {
	Value any
	Err   error
}

// Subscription is a handle on a collection watch. Events arrive on C until
// Close is called. Delivery is latest-wins: if the consumer lags, pending
// snapshots are replaced rather than queued, so C always yields the most
// recent state.
type Subscription struct {
	C <-chan Event

	ch         chan Event
	hub        *watchHub
	collection string
	closeOnce  sync.Once
}

// Close releases the subscription. After Close returns no further events are
// delivered and C is closed. Close is idempotent.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.hub.remove(s)
		close(s.ch)
	})
}

// watchHub fans collection change events out to subscribers.
type watchHub struct {
	mu   sync.Mutex
	subs map[string]map[*Subscription]struct{}
}

func newWatchHub() *watchHub {
	return &watchHub{
		subs: make(map[string]map[*Subscription]struct{}),
	}
}

// subscribe registers a new subscription for a collection.
func (h *watchHub) subscribe(collection string) *Subscription {
	sub := &Subscription{
		ch:         make(chan Event, 1),
		hub:        h,
		collection: collection,
	}
	sub.C = sub.ch

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.subs[collection] == nil {
		h.subs[collection] = make(map[*Subscription]struct{})
	}
	h.subs[collection][sub] = struct{}{}

	return sub
}

// remove deregisters a subscription. Safe to call for an already-removed
// subscription.
func (h *watchHub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if set, ok := h.subs[sub.collection]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.subs, sub.collection)
		}
	}
}

// publish delivers an event to every subscriber of a collection.
// If a subscriber's buffer is full the pending event is dropped in favour of
// the new one (latest-wins).
func (h *watchHub) publish(collection string, ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subs[collection] {
		select {
		case sub.ch <- ev:
		default:
			// Drop the stale pending event, then offer the new one.
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- ev:
			default:
			}
		}
	}
}

// offerInitial delivers a subscription's first snapshot without blocking.
// Taking the hub lock keeps the send ordered against concurrent publishes;
// if a publish already queued a newer snapshot, the initial one is
// redundant and dropped rather than displacing it.
func (h *watchHub) offerInitial(sub *Subscription, ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	select {
	case sub.ch <- ev:
	default:
	}
}

// closeAll closes every subscription. Used on store shutdown.
func (h *watchHub) closeAll() {
	h.mu.Lock()
	all := make([]*Subscription, 0)
	for _, set := range h.subs {
		for sub := range set {
			all = append(all, sub)
		}
	}
	h.subs = make(map[string]map[*Subscription]struct{})
	h.mu.Unlock()

	// Close outside the hub lock; Subscription.Close re-enters remove().
	for _, sub := range all {
		sub.Close()
	}
}
