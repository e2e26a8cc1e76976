package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/ride-hailing/internal/models"
)

// fakeIndex fails the first failures calls before succeeding.
type fakeIndex struct {
	failures int
	calls    int
	last     models.DriverPresence
}

func (f *fakeIndex) Upsert(ctx context.Context, p models.DriverPresence) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("index unavailable")
	}
	f.last = p
	return nil
}

func TestUpsertWithRetry_SucceedsAfterRetries(t *testing.T) {
	f := &fakeIndex{failures: 2}
	p := models.DriverPresence{DriverID: "d1", Loc: models.Coord{Lat: 1, Lon: 2}, Online: true}

	start := time.Now()
	if err := upsertWithRetry(context.Background(), f, p, 3, 10*time.Millisecond); err != nil {
		t.Fatalf("expected success, got err=%v", err)
	}
	if f.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", f.calls)
	}
	if f.last.DriverID != "d1" {
		t.Fatalf("report not applied: %+v", f.last)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Fatalf("expected at least one backoff sleep")
	}
}

func TestUpsertWithRetry_FailsWhenExhausted(t *testing.T) {
	f := &fakeIndex{failures: 5}
	p := models.DriverPresence{DriverID: "d1", Online: true}

	if err := upsertWithRetry(context.Background(), f, p, 3, time.Millisecond); err == nil {
		t.Fatalf("expected error after exhausting retries")
	}
	if f.calls != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", f.calls)
	}
}
