// Package ingest holds boundary adapters that turn venue-specific feeds
// into model.RawSnapshot values and push them into the Snapshot Store. The
// core pipeline (physics, regime, chronos, correlation) never imports this
// package; adapters are wired only from cmd/engine.
package ingest

import "github.com/nrandal/microlab/internal/model"

// Adapter is anything that can deliver snapshots for a set of symbols into
// a sink. Implementations own their own connection lifecycle.
type Adapter interface {
	// Subscribe registers interest in symbol. Implementations that ingest
	// a fixed full-book feed may treat this as a no-op filter hint.
	Subscribe(symbol string)
}
