package ingest

import (
	"testing"

	"github.com/nrandal/microlab/internal/model"
)

type fakeSink struct {
	puts []model.RawSnapshot
}

func (f *fakeSink) Put(snapshot model.RawSnapshot) {
	f.puts = append(f.puts, snapshot)
}

func TestMemoryAdapterFeedsAllWhenNoSubscription(t *testing.T) {
	sink := &fakeSink{}
	adapter := NewMemoryAdapter(sink)

	adapter.FeedAll([]model.RawSnapshot{
		{Symbol: "AAA"},
		{Symbol: "BBB"},
	})

	if len(sink.puts) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(sink.puts))
	}
}

func TestMemoryAdapterFiltersBySubscription(t *testing.T) {
	sink := &fakeSink{}
	adapter := NewMemoryAdapter(sink)
	adapter.Subscribe("AAA")

	adapter.FeedAll([]model.RawSnapshot{
		{Symbol: "AAA"},
		{Symbol: "BBB"},
	})

	if len(sink.puts) != 1 || sink.puts[0].Symbol != "AAA" {
		t.Fatalf("expected only AAA to pass through, got %+v", sink.puts)
	}
}

func TestDecodeDepthMessageDropsShortLevels(t *testing.T) {
	msg := depthMessage{
		Bids: [][]string{{"100.0", "1.5"}, {"short"}},
		Asks: [][]string{{"101.0"}},
		Time: 12345,
	}

	snap := decodeDepthMessage("AAA", msg)

	if len(snap.Bids) != 1 {
		t.Fatalf("expected 1 valid bid level, got %d", len(snap.Bids))
	}
	if len(snap.Asks) != 0 {
		t.Fatalf("expected malformed ask level to be dropped, got %d", len(snap.Asks))
	}
	if snap.VenueTime != 12345 {
		t.Fatalf("expected venue time to carry through, got %d", snap.VenueTime)
	}
}

func TestDecodeDepthMessageDefaultsVenueTimeWhenZero(t *testing.T) {
	snap := decodeDepthMessage("AAA", depthMessage{})
	if snap.VenueTime == 0 {
		t.Fatal("expected a non-zero fallback venue time")
	}
}
