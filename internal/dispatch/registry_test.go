package dispatch

import (
	"fmt"
	"testing"
)

func TestSendToDriverReachesEveryFeed(t *testing.T) {
	r := NewRegistry()
	a := r.SubscribeFeed("d1")
	b := r.SubscribeFeed("d1")
	defer a.Cancel()
	defer b.Cancel()

	if !r.SendToDriver("d1", Event{Type: EventRidePublished, RideID: "r1"}) {
		t.Fatalf("send reported no feed")
	}
	for _, sub := range []*Subscription{a, b} {
		ev := <-sub.C
		if ev.RideID != "r1" {
			t.Fatalf("got ride %q", ev.RideID)
		}
	}

	if r.SendToDriver("nobody", Event{RideID: "r1"}) {
		t.Fatalf("send to unknown driver reported delivery")
	}
}

func TestCancelStopsDelivery(t *testing.T) {
	r := NewRegistry()
	sub := r.SubscribeFeed("d1")
	sub.Cancel()

	if r.SendToDriver("d1", Event{RideID: "r1"}) {
		t.Fatalf("delivery to cancelled feed")
	}
	if _, open := <-sub.C; open {
		t.Fatalf("channel still open after cancel")
	}
	// cancelling twice is safe
	sub.Cancel()

	if got := len(r.OnlineDrivers()); got != 0 {
		t.Fatalf("online drivers = %d after cancel", got)
	}
}

func TestSlowConsumerLosesEventsNotPublisher(t *testing.T) {
	r := NewRegistry()
	sub := r.SubscribeFeed("d1")
	defer sub.Cancel()

	// never read; the publisher must not block past the buffer
	for i := 0; i < feedBuffer*2; i++ {
		r.BroadcastDrivers(Event{Type: EventRidePublished, RideID: fmt.Sprintf("r%d", i)})
	}
	if got := len(sub.C); got != feedBuffer {
		t.Fatalf("buffered = %d, want %d", got, feedBuffer)
	}
}

func TestReplayFeedTargetsOneSubscription(t *testing.T) {
	r := NewRegistry()
	newcomer := r.SubscribeFeed("d1")
	veteran := r.SubscribeFeed("d1")
	defer newcomer.Cancel()
	defer veteran.Cancel()

	r.ReplayFeed("d1", newcomer, Event{Type: EventRidePublished, RideID: "backlog-1"})

	ev := <-newcomer.C
	if ev.RideID != "backlog-1" {
		t.Fatalf("got ride %q", ev.RideID)
	}
	if len(veteran.C) != 0 {
		t.Fatalf("replay leaked to another subscription")
	}
}

func TestReplayFeedSkipsCancelledSubscription(t *testing.T) {
	r := NewRegistry()
	sub := r.SubscribeFeed("d1")
	sub.Cancel()

	// must not panic or deliver
	r.ReplayFeed("d1", sub, Event{Type: EventRidePublished, RideID: "backlog-1"})
	if _, open := <-sub.C; open {
		t.Fatalf("cancelled subscription received replay")
	}
}

func TestNotifyRideOnlyReachesWatchers(t *testing.T) {
	r := NewRegistry()
	watch := r.SubscribeRide("r1")
	other := r.SubscribeRide("r2")
	defer watch.Cancel()
	defer other.Cancel()

	r.NotifyRide("r1", Event{Type: EventRideUpdated, RideID: "r1"})

	if ev := <-watch.C; ev.RideID != "r1" {
		t.Fatalf("watcher got %q", ev.RideID)
	}
	if len(other.C) != 0 {
		t.Fatalf("unrelated watcher received an event")
	}
}
