package dispatch

import "sync"

// feedBuffer bounds each subscription; delivery is at-most-once so a slow
// consumer loses events rather than blocking the publisher.
const feedBuffer = 16

// Subscription is a cancellable stream of feed events. Cancel synchronously
// detaches it from the registry and closes C, so no event is delivered after
// Cancel returns.
type Subscription struct {
	C      chan Event
	cancel func(*Subscription)
	once   sync.Once
}

func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.cancel(s)
		close(s.C)
	})
}

// Registry tracks live driver feeds and per-ride watchers. It is the
// in-process half of the notifier; WebSocket sessions pump from a
// Subscription, and tests subscribe directly.
type Registry struct {
	mu          sync.RWMutex
	driverFeeds map[string]map[*Subscription]struct{}
	rideWatches map[string]map[*Subscription]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		driverFeeds: make(map[string]map[*Subscription]struct{}),
		rideWatches: make(map[string]map[*Subscription]struct{}),
	}
}

// SubscribeFeed attaches a driver session to the dispatch fan-out.
func (r *Registry) SubscribeFeed(driverID string) *Subscription {
	sub := &Subscription{C: make(chan Event, feedBuffer)}
	sub.cancel = func(s *Subscription) {
		r.mu.Lock()
		defer r.mu.Unlock()
		if subs, ok := r.driverFeeds[driverID]; ok {
			delete(subs, s)
			if len(subs) == 0 {
				delete(r.driverFeeds, driverID)
			}
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.driverFeeds[driverID] == nil {
		r.driverFeeds[driverID] = make(map[*Subscription]struct{})
	}
	r.driverFeeds[driverID][sub] = struct{}{}
	return sub
}

// SubscribeRide attaches a watcher for a single ride's status updates.
func (r *Registry) SubscribeRide(rideID string) *Subscription {
	sub := &Subscription{C: make(chan Event, feedBuffer)}
	sub.cancel = func(s *Subscription) {
		r.mu.Lock()
		defer r.mu.Unlock()
		if subs, ok := r.rideWatches[rideID]; ok {
			delete(subs, s)
			if len(subs) == 0 {
				delete(r.rideWatches, rideID)
			}
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rideWatches[rideID] == nil {
		r.rideWatches[rideID] = make(map[*Subscription]struct{})
	}
	r.rideWatches[rideID][sub] = struct{}{}
	return sub
}

// OnlineDrivers lists driver ids with at least one live feed.
func (r *Registry) OnlineDrivers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.driverFeeds))
	for id := range r.driverFeeds {
		out = append(out, id)
	}
	return out
}

// SendToDriver delivers ev to every live feed of one driver. Returns false
// when the driver has no feed at all.
func (r *Registry) SendToDriver(driverID string, ev Event) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	subs, ok := r.driverFeeds[driverID]
	if !ok || len(subs) == 0 {
		return false
	}
	for s := range subs {
		send(s, ev)
	}
	return true
}

// ReplayFeed delivers ev to one specific feed subscription, used to hand a
// newly connected driver the pending backlog. A subscription cancelled in the
// meantime is skipped.
func (r *Registry) ReplayFeed(driverID string, sub *Subscription, ev Event) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	subs, ok := r.driverFeeds[driverID]
	if !ok {
		return
	}
	if _, attached := subs[sub]; attached {
		send(sub, ev)
	}
}

// BroadcastDrivers delivers ev to every live driver feed.
func (r *Registry) BroadcastDrivers(ev Event) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, subs := range r.driverFeeds {
		for s := range subs {
			send(s, ev)
		}
	}
}

// NotifyRide delivers ev to every watcher of one ride.
func (r *Registry) NotifyRide(rideID string, ev Event) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for s := range r.rideWatches[rideID] {
		send(s, ev)
	}
}

// send must run under r.mu so it never races Cancel's close.
func send(s *Subscription, ev Event) {
	select {
	case s.C <- ev:
	default:
	}
}
