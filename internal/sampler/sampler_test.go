package sampler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nrandal/microlab/internal/chronos"
	"github.com/nrandal/microlab/internal/model"
	"github.com/nrandal/microlab/internal/physics"
	"github.com/nrandal/microlab/internal/regime"
	"github.com/nrandal/microlab/internal/snapstore"
)

func snap(symbol, bidPx, bidSz, askPx, askSz string) model.RawSnapshot {
	return model.RawSnapshot{
		Symbol: symbol,
		Bids:   []model.Level{{Price: bidPx, Size: bidSz}},
		Asks:   []model.Level{{Price: askPx, Size: askSz}},
	}
}

func TestTickProducesQueuedObservation(t *testing.T) {
	store := snapstore.New()
	store.Put(snap("AAA", "100.0", "10", "100.2", "5"))

	ch := chronos.New([]int{5}, 1000, 5000)
	classifier := regime.New(2, 90)

	var mu sync.Mutex
	var received []model.Observation
	s := New(store, physics.New(), classifier, ch, 10*time.Millisecond, func(records []model.Observation) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, records...)
	})

	s.tick()
	if got := ch.PendingLen("AAA"); got != 1 {
		t.Fatalf("pending len = %d, want 1 after first tick", got)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 0 {
		t.Fatalf("no observation should have retired yet, got %d", len(received))
	}
}

func TestSkipOnMissNeverQueues(t *testing.T) {
	store := snapstore.New()
	store.Put(snap("AAA", "100.0", "10", "100.2", "5"))

	ch := chronos.New([]int{5}, 1000, 5000)
	classifier := regime.New(2, 90)
	s := New(store, physics.New(), classifier, ch, 5*time.Millisecond, nil)

	s.busy.Store(true) // simulate a tick already in flight
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	if s.MissedTicks() == 0 {
		t.Fatal("expected at least one skipped tick while busy")
	}
}

// TestResearchChronosQueuesIndependently guards the reduced-ladder
// research path (spec.md §3): a symbol's tick must queue one observation
// into each of the primary and research Chronos instances, and neither
// may retire anything on that first tick.
func TestResearchChronosQueuesIndependently(t *testing.T) {
	store := snapstore.New()
	store.Put(snap("AAA", "100.0", "10", "100.2", "5"))

	liveLadder := []int{5}
	researchLadder := []int{10}

	ch := chronos.New(liveLadder, 1000, 5000)
	researchCh := chronos.New(researchLadder, 1000, 5000)
	classifier := regime.New(2, 90)

	var mu sync.Mutex
	var liveReceived, researchReceived []model.Observation
	s := New(store, physics.New(), classifier, ch, 10*time.Millisecond, func(records []model.Observation) {
		mu.Lock()
		defer mu.Unlock()
		liveReceived = append(liveReceived, records...)
	})
	s.WithResearch(researchCh, func(records []model.Observation) {
		mu.Lock()
		defer mu.Unlock()
		researchReceived = append(researchReceived, records...)
	})

	s.tick()

	if got := ch.PendingLen("AAA"); got != 1 {
		t.Fatalf("primary pending len = %d, want 1 after first tick", got)
	}
	if got := researchCh.PendingLen("AAA"); got != 1 {
		t.Fatalf("research pending len = %d, want 1 after first tick", got)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(liveReceived) != 0 || len(researchReceived) != 0 {
		t.Fatalf("no observation should have retired on the first tick, got live=%d research=%d",
			len(liveReceived), len(researchReceived))
	}
}

func TestConcurrentSymbolsDoNotRace(t *testing.T) {
	store := snapstore.New()
	for _, sym := range []string{"A", "B", "C", "D"} {
		store.Put(snap(sym, "100.0", "10", "100.2", "5"))
	}

	ch := chronos.New([]int{5}, 1000, 5000)
	classifier := regime.New(2, 90)
	s := New(store, physics.New(), classifier, ch, 10*time.Millisecond, nil)

	s.tick()
	for _, sym := range []string{"A", "B", "C", "D"} {
		if got := ch.PendingLen(sym); got != 1 {
			t.Errorf("symbol %s pending len = %d, want 1", sym, got)
		}
	}
}
