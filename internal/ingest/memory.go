package ingest

import "github.com/nrandal/microlab/internal/model"

// Sink is the subset of *snapstore.Store adapters write into, kept as an
// interface so adapters never import snapstore directly and tests can
// supply a fake.
type Sink interface {
	Put(snapshot model.RawSnapshot)
}

// MemoryAdapter replays a fixed slice of snapshots into a Sink, one per
// Feed call. It exists for tests, where there is no live venue connection
// to manage; cmd/replay decodes its capture file itself and does not use
// it.
type MemoryAdapter struct {
	sink    Sink
	symbols map[string]bool
}

// NewMemoryAdapter creates a MemoryAdapter writing into sink.
func NewMemoryAdapter(sink Sink) *MemoryAdapter {
	return &MemoryAdapter{sink: sink, symbols: make(map[string]bool)}
}

// Subscribe records symbol as wanted; Feed skips snapshots for symbols
// never subscribed to once at least one Subscribe call has been made.
func (m *MemoryAdapter) Subscribe(symbol string) {
	m.symbols[symbol] = true
}

// Feed pushes snapshot into the sink, unless a subscription set exists
// and excludes this snapshot's symbol.
func (m *MemoryAdapter) Feed(snapshot model.RawSnapshot) {
	if len(m.symbols) > 0 && !m.symbols[snapshot.Symbol] {
		return
	}
	m.sink.Put(snapshot)
}

// FeedAll pushes every snapshot in order, for convenience in replay and
// table-driven tests.
func (m *MemoryAdapter) FeedAll(snapshots []model.RawSnapshot) {
	for _, s := range snapshots {
		m.Feed(s)
	}
}
