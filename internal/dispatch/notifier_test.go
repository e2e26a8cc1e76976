package dispatch

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/example/ride-hailing/internal/models"
)

type fixedSelector struct {
	cands []Candidate
}

func (s *fixedSelector) Recipients(ctx context.Context, pickup models.Coord) []Candidate {
	return s.cands
}

type recordingPush struct {
	mu     sync.Mutex
	offers []string
}

func (p *recordingPush) Offer(rideID string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.offers = append(p.offers, rideID)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPublishTargetsSelectedDriversOnly(t *testing.T) {
	reg := NewRegistry()
	sel := &fixedSelector{cands: []Candidate{{DriverID: "near", DistanceM: 120, ETASeconds: 30}}}
	n := NewNotifier(reg, sel, nil, discardLogger())

	near := reg.SubscribeFeed("near")
	far := reg.SubscribeFeed("far")
	defer near.Cancel()
	defer far.Cancel()

	ride := &models.Ride{ID: "r1", Status: models.StatusPending}
	n.PublishPending(context.Background(), ride)

	ev := <-near.C
	if ev.Type != EventRidePublished || ev.RideID != "r1" {
		t.Fatalf("near feed got %+v", ev)
	}
	if ev.DistanceM != 120 || ev.ETASeconds != 30 {
		t.Fatalf("candidate annotations missing: %+v", ev)
	}
	if len(far.C) != 0 {
		t.Fatalf("unselected driver received the publish")
	}
}

func TestPublishFallsBackToPush(t *testing.T) {
	reg := NewRegistry()
	sel := &fixedSelector{cands: []Candidate{{DriverID: "disconnected"}}}
	push := &recordingPush{}
	n := NewNotifier(reg, sel, push, discardLogger())

	n.PublishPending(context.Background(), &models.Ride{ID: "r1"})

	push.mu.Lock()
	defer push.mu.Unlock()
	if len(push.offers) != 1 || push.offers[0] != "r1" {
		t.Fatalf("push offers = %v", push.offers)
	}
}

func TestRetractReachesAllFeedsAfterPublish(t *testing.T) {
	reg := NewRegistry()
	// nil selector broadcasts the publish to everyone
	n := NewNotifier(reg, nil, nil, discardLogger())

	sub := reg.SubscribeFeed("d1")
	defer sub.Cancel()

	ride := &models.Ride{ID: "r1", Status: models.StatusPending}
	n.PublishPending(context.Background(), ride)
	n.Retract(context.Background(), "r1")

	first := <-sub.C
	second := <-sub.C
	if first.Type != EventRidePublished || second.Type != EventRideRetracted {
		t.Fatalf("order = %s, %s", first.Type, second.Type)
	}

	// retracting again is harmless for receivers
	n.Retract(context.Background(), "r1")
	if ev := <-sub.C; ev.Type != EventRideRetracted || ev.RideID != "r1" {
		t.Fatalf("repeat retract = %+v", ev)
	}
}

func TestRideUpdatedReachesWatchers(t *testing.T) {
	reg := NewRegistry()
	n := NewNotifier(reg, nil, nil, discardLogger())

	watch := reg.SubscribeRide("r1")
	defer watch.Cancel()

	n.RideUpdated(context.Background(), &models.Ride{ID: "r1", Status: models.StatusAccepted})

	ev := <-watch.C
	if ev.Type != EventRideUpdated || ev.Ride == nil || ev.Ride.Status != models.StatusAccepted {
		t.Fatalf("watch event = %+v", ev)
	}
}
