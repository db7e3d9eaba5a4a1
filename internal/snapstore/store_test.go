package snapstore

import (
	"sync"
	"testing"

	"github.com/nrandal/microlab/internal/model"
)

func TestPutGetLatestWins(t *testing.T) {
	s := New()
	s.Put(model.RawSnapshot{Symbol: "BBB", VenueTime: 1})
	s.Put(model.RawSnapshot{Symbol: "BBB", VenueTime: 2})
	s.Put(model.RawSnapshot{Symbol: "BBB", VenueTime: 3})

	got, ok := s.Get("BBB")
	if !ok {
		t.Fatal("expected BBB present")
	}
	if got.VenueTime != 3 {
		t.Fatalf("VenueTime = %d, want 3 (latest write wins)", got.VenueTime)
	}
}

func TestAbsentSymbolNotOK(t *testing.T) {
	s := New()
	_, ok := s.Get("NOPE")
	if ok {
		t.Fatal("expected absent symbol to read as not-present")
	}
}

// TestS5LatestWins mirrors spec.md scenario S5: 10 writes in succession,
// the store must reflect only the last one.
func TestS5LatestWins(t *testing.T) {
	s := New()
	for i := 0; i < 10; i++ {
		s.Put(model.RawSnapshot{Symbol: "BBB", VenueTime: int64(i)})
	}
	got, ok := s.Get("BBB")
	if !ok || got.VenueTime != 9 {
		t.Fatalf("got %+v, ok=%v; want VenueTime=9", got, ok)
	}
}

func TestConcurrentWritesNoRace(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Put(model.RawSnapshot{Symbol: "X", VenueTime: int64(i)})
		}(i)
	}
	wg.Wait()
	if _, ok := s.Get("X"); !ok {
		t.Fatal("expected X present after concurrent writes")
	}
}

func TestIterLatestReturnsAllSymbols(t *testing.T) {
	s := New()
	s.Put(model.RawSnapshot{Symbol: "A"})
	s.Put(model.RawSnapshot{Symbol: "B"})
	all := s.IterLatest()
	if len(all) != 2 {
		t.Fatalf("len = %d, want 2", len(all))
	}
}
