package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"tradeedge/internal/errors"
	"tradeedge/internal/models"
)

// fakeStore is an in-memory AlertStore with an optional commit failure hook.
type fakeStore struct {
	mu         sync.Mutex
	alerts     map[int64]*models.Alert
	events     []models.CrossingEvent
	commitErr  error
	commitHook func()
}

func newFakeStore(alerts ...*models.Alert) *fakeStore {
	s := &fakeStore{alerts: make(map[int64]*models.Alert)}
	for _, a := range alerts {
		s.alerts[a.ID] = a
	}
	return s
}

func (s *fakeStore) GetAlert(ctx context.Context, id int64) (*models.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	alert, ok := s.alerts[id]
	if !ok {
		return nil, errors.ErrAlertNotFound
	}
	return alert.Clone(), nil
}

func (s *fakeStore) CommitTransition(ctx context.Context, alert *models.Alert, events []models.CrossingEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.commitHook != nil {
		s.commitHook()
	}
	if s.commitErr != nil {
		return s.commitErr
	}

	// Enforce the same uniqueness the real store's schema does.
	for _, e := range events {
		for _, existing := range s.events {
			if existing.AlertID == e.AlertID && existing.Threshold == e.Threshold {
				return fmt.Errorf("duplicate event %s for alert %d", e.Threshold, e.AlertID)
			}
		}
	}

	s.alerts[alert.ID] = alert.Clone()
	s.events = append(s.events, events...)
	return nil
}

func (s *fakeStore) allEvents() []models.CrossingEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.CrossingEvent, len(s.events))
	copy(out, s.events)
	return out
}

func newTestDetector(alerts ...*models.Alert) (*Detector, *fakeStore) {
	store := newFakeStore(alerts...)
	return NewDetector(store, zerolog.Nop()), store
}

func apply(t *testing.T, d *Detector, alertID int64, price float64) []models.CrossingEvent {
	t.Helper()
	events, err := d.Apply(context.Background(), models.PriceUpdate{AlertID: alertID, Price: price})
	if err != nil {
		t.Fatalf("Apply(%v) failed: %v", price, err)
	}
	return events
}

// TestDetectorLifecycle walks one alert through its full life: entry, first
// target, a harmless dip, stop-out, then a recovery the terminal state must
// ignore.
func TestDetectorLifecycle(t *testing.T) {
	detector, store := newTestDetector(newTestAlert())

	events := apply(t, detector, 1, 172)
	if len(events) != 1 || events[0].Threshold != models.ThresholdEnteredBuyZone {
		t.Fatalf("price 172: got %v, want entered_buy_zone", events)
	}

	events = apply(t, detector, 1, 186)
	if len(events) != 1 || events[0].Threshold != models.ThresholdTarget1 {
		t.Fatalf("price 186: got %v, want target1", events)
	}

	if events = apply(t, detector, 1, 183); len(events) != 0 {
		t.Fatalf("price 183 (dip): got %v, want no events", events)
	}

	events = apply(t, detector, 1, 163)
	if len(events) != 1 || events[0].Threshold != models.ThresholdStoppedOut {
		t.Fatalf("price 163: got %v, want stopped_out", events)
	}

	if events = apply(t, detector, 1, 200); len(events) != 0 {
		t.Fatalf("price 200 after stop-out: got %v, want no events", events)
	}

	alert, _ := store.GetAlert(context.Background(), 1)
	if alert.Status != models.StatusStoppedOut {
		t.Errorf("final status = %s, want stopped_out", alert.Status)
	}
	if got := len(store.allEvents()); got != 3 {
		t.Errorf("total events = %d, want 3", got)
	}
}

func TestDetectorGapFiresAllSkippedThresholds(t *testing.T) {
	detector, _ := newTestDetector(newTestAlert())

	events := apply(t, detector, 1, 250)
	want := []models.ThresholdType{
		models.ThresholdEnteredBuyZone,
		models.ThresholdTarget1,
		models.ThresholdTarget2,
		models.ThresholdTarget3,
	}
	if len(events) != len(want) {
		t.Fatalf("got %d events, want %d", len(events), len(want))
	}
	for i, th := range want {
		if events[i].Threshold != th {
			t.Errorf("events[%d] = %s, want %s", i, events[i].Threshold, th)
		}
	}
}

func TestDetectorReplayEmitsNothing(t *testing.T) {
	detector, _ := newTestDetector(newTestAlert())

	first := apply(t, detector, 1, 186)
	if len(first) != 2 {
		t.Fatalf("first apply: got %d events, want 2", len(first))
	}
	if second := apply(t, detector, 1, 186); len(second) != 0 {
		t.Fatalf("replayed update produced %d events, want 0", len(second))
	}
}

func TestDetectorRejectsMalformedUpdates(t *testing.T) {
	detector, store := newTestDetector(newTestAlert())

	for _, price := range []float64{0, -5} {
		_, err := detector.Apply(context.Background(), models.PriceUpdate{AlertID: 1, Price: price})
		if !errors.IsValidation(err) {
			t.Errorf("price %v: got %v, want validation error", price, err)
		}
	}
	if _, err := detector.Apply(context.Background(), models.PriceUpdate{AlertID: 0, Price: 100}); !errors.IsValidation(err) {
		t.Errorf("alert id 0: got %v, want validation error", err)
	}

	if len(store.allEvents()) != 0 {
		t.Error("malformed updates must not touch state")
	}
}

func TestDetectorUnknownAlert(t *testing.T) {
	detector, _ := newTestDetector()

	_, err := detector.Apply(context.Background(), models.PriceUpdate{AlertID: 99, Price: 100})
	if !errors.Is(err, errors.ErrAlertNotFound) {
		t.Errorf("got %v, want ErrAlertNotFound", err)
	}
}

func TestDetectorCommitFailureEmitsNothing(t *testing.T) {
	detector, store := newTestDetector(newTestAlert())
	store.commitErr = errors.ErrDatabaseError

	_, err := detector.Apply(context.Background(), models.PriceUpdate{AlertID: 1, Price: 186})
	if err == nil {
		t.Fatal("expected commit error")
	}

	// Failed commit leaves the alert unchanged; the retry fires everything.
	store.commitErr = nil
	events := apply(t, detector, 1, 186)
	if len(events) != 2 {
		t.Fatalf("retry after failed commit: got %d events, want 2", len(events))
	}
}

// TestDetectorConcurrentUpdates hammers one alert from many goroutines and
// verifies per-threshold uniqueness survives the race. The fake store fails
// the commit on duplicates just as the schema's unique index would.
func TestDetectorConcurrentUpdates(t *testing.T) {
	detector, store := newTestDetector(newTestAlert())

	prices := []float64{168, 172, 186, 183, 196, 211, 172, 250}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		for _, price := range prices {
			wg.Add(1)
			go func(p float64) {
				defer wg.Done()
				detector.Apply(context.Background(), models.PriceUpdate{AlertID: 1, Price: p})
			}(price)
		}
	}
	wg.Wait()

	seen := make(map[models.ThresholdType]int)
	for _, e := range store.allEvents() {
		seen[e.Threshold]++
	}
	for th, n := range seen {
		if n != 1 {
			t.Errorf("threshold %s fired %d times, want 1", th, n)
		}
	}
}
