// Package model holds the value types shared by every stage of the
// snapshot-to-label pipeline, plus the line-oriented encoding used by the
// durable sink.
package model

import "time"

// Level is one price/size pair on one side of a book. Decimal strings are
// kept as received from the venue to preserve exactness; the Physicist is
// the only place they get collapsed to float64.
type Level struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// RawSnapshot is the boundary input delivered by the ingest adapter. It is
// owned transiently by the adapter and is never retained past the Snapshot
// Store write. JSON tags let cmd/replay decode captured NDJSON lines
// straight into this type without a parallel wire struct.
type RawSnapshot struct {
	Symbol    string  `json:"symbol"`
	VenueTime int64   `json:"venue_time_ms"` // milliseconds since epoch, as reported by the venue
	Bids      []Level `json:"bids"`
	Asks      []Level `json:"asks"`
}

// NrgFormula selects which energy formula the Physicist uses. The core
// fixes Product as the default; Research is a permitted variant exposed
// only via configuration, never as a per-call argument.
type NrgFormula int

const (
	NrgProduct NrgFormula = iota
	NrgResearch
)

// PhysicsState is the dense numeric feature vector derived from a single
// RawSnapshot. Field semantics are fixed by the Physicist transform.
type PhysicsState struct {
	Symbol      string
	TimestampMs int64
	MidPrice    float64
	Spread      float64
	TotalVolume float64
	BidVolume   float64
	AskVolume   float64
	Entropy     float64
	Pressure    float64
	Nrg         float64
	Temperature float64
}

// Regime is a coarse tag for recent price behaviour.
type Regime int

const (
	Compression Regime = iota
	Oscillatory
	Ballistic
)

func (r Regime) String() string {
	switch r {
	case Compression:
		return "Compression"
	case Ballistic:
		return "Ballistic"
	default:
		return "Oscillatory"
	}
}

// RegimeState is the output of the RegimeClassifier for one symbol on one
// tick.
type RegimeState struct {
	Regime          Regime
	SymmetryScore   float64
	Slope           float64
	ReversionSpeed  float64
	Confidence      float64
	NrgZScore       float64 // z-score of nrg against the same rolling window
	RegimeConsistency float64
}

// Return is one horizon's forward-return slot on an Observation. Set is
// false for the spec's "None".
type Return struct {
	HorizonSeconds int
	Value          float64
	Set            bool
}

// Observation is a pending (or, once Complete, retired) record owned by
// Chronos. The same struct doubles as spec.md's CompleteRecord: at
// retirement Complete becomes true and whatever horizons were reached are
// populated; the rest stay unset.
type Observation struct {
	ObsID    uint64
	Symbol   string
	T0Wall   time.Time
	T0Price  float64
	Physics  PhysicsState
	Regime   RegimeState
	Returns  []Return // ascending horizon order, indices aligned to the ladder
	Complete bool

	// Instrumentation, populated by the sampler/chronos at retirement time;
	// not part of the core data model invariants, only logged.
	ProcessingMicros int64
	QueueMicros      int64
	CreatedAt        time.Time
}

// CorrelationStats is the per (symbol, horizon) read model exposed by the
// CorrelationTracker.
type CorrelationStats struct {
	EWMACorrelation float64
	SampleCount     uint64
	LastUpdated     time.Time
}
