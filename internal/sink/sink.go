// Package sink implements the Durable Sink (spec component G): an
// append-only, line-oriented log of retired Observations. FileSink is the
// required implementation (spec.md §4.7, §6); MongoResearchSink is a
// SPEC_FULL addition that appends the reduced research ladder into
// MongoDB, exercising the teacher's mongo-driver dependency the way
// internal/persist does for trades.
package sink

import (
	"context"

	"github.com/nrandal/microlab/internal/model"
)

// Sink is the only contract the core requires of a durable destination:
// append a batch of retired records, and flush on demand.
type Sink interface {
	Append(ctx context.Context, records []model.Observation) error
	Flush(ctx context.Context) error
	Close(ctx context.Context) error
}
