package monitor

import (
	"encoding/json"

	"github.com/nrandal/microlab/internal/model"
)

// TickUpdate is the read-only view pushed to monitor clients: one
// symbol's physics and regime state as recorded on the tick that queued
// an Observation, sent when that Observation retires, is evicted or is
// drained. Ticks whose Observation has not yet retired produce no update.
// It carries no horizon-return bookkeeping (that lives only in the
// durable sink).
type TickUpdate struct {
	Symbol      string  `json:"symbol"`
	TimestampMs int64   `json:"timestamp_ms"`
	MidPrice    float64 `json:"mid_price"`
	Spread      float64 `json:"spread"`
	Pressure    float64 `json:"pressure"`
	Entropy     float64 `json:"entropy"`
	Nrg         float64 `json:"nrg"`
	Temperature float64 `json:"temperature"`
	Regime      string  `json:"regime"`
	Symmetry    float64 `json:"symmetry"`
	Confidence  float64 `json:"confidence"`
}

// FromObservation builds the client-facing view out of a retired or
// evicted Observation.
func FromObservation(obs model.Observation) TickUpdate {
	return TickUpdate{
		Symbol:      obs.Physics.Symbol,
		TimestampMs: obs.Physics.TimestampMs,
		MidPrice:    obs.Physics.MidPrice,
		Spread:      obs.Physics.Spread,
		Pressure:    obs.Physics.Pressure,
		Entropy:     obs.Physics.Entropy,
		Nrg:         obs.Physics.Nrg,
		Temperature: obs.Physics.Temperature,
		Regime:      obs.Regime.Regime.String(),
		Symmetry:    obs.Regime.SymmetryScore,
		Confidence:  obs.Regime.Confidence,
	}
}

func encodeTickUpdate(u TickUpdate) ([]byte, error) {
	return json.Marshal(u)
}
