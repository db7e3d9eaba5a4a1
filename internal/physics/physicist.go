// Package physics implements the Physicist (spec component B): a pure,
// stateless transform from a RawSnapshot to a PhysicsState. It mirrors the
// teacher's engine.MarketEngine in shape — deterministic numeric arithmetic,
// no locks, no I/O — applied to the spec's order-book thermodynamics
// instead of a GBM price process.
package physics

import (
	"math"
	"strconv"
	"time"

	"github.com/nrandal/microlab/internal/model"
)

// Physicist derives PhysicsState from RawSnapshot. It holds no mutable
// state beyond the fixed formula selector, so a single instance is safe for
// concurrent use across every symbol.
type Physicist struct {
	Formula model.NrgFormula
}

// New returns a Physicist using the core-fixed product nrg formula. Pass
// model.NrgResearch explicitly to opt into the research variant.
func New() *Physicist {
	return &Physicist{Formula: model.NrgProduct}
}

// Transform reduces one RawSnapshot to one PhysicsState. It is pure and
// deterministic: identical inputs produce byte-identical outputs, aside
// from TimestampMs which is stamped at call time.
func (p *Physicist) Transform(s model.RawSnapshot) model.PhysicsState {
	bestBid, bidVolume, bidMass := scanLevels(s.Bids, true)
	bestAsk, askVolume, askMass := scanLevels(s.Asks, false)

	var mid float64
	if bestBid > 0 && bestAsk > 0 {
		mid = (bestBid + bestAsk) / 2
	}

	var spread float64
	if bestBid > 0 {
		spread = (bestAsk - bestBid) / bestBid
	}

	totalVolume := bidVolume + askVolume

	var pressure float64
	if totalVolume > 0 {
		pressure = (bidVolume - askVolume) / totalVolume * 100
	}

	entropy := shannonEntropy(bidMass, askMass, totalVolume)

	var nrg float64
	switch p.Formula {
	case model.NrgResearch:
		nrg = math.Pi * entropy * math.Log(1+math.Abs(pressure))
	default:
		nrg = math.Abs(pressure) * entropy
	}

	return model.PhysicsState{
		Symbol:      s.Symbol,
		TimestampMs: time.Now().UnixMilli(),
		MidPrice:    mid,
		Spread:      spread,
		TotalVolume: totalVolume,
		BidVolume:   bidVolume,
		AskVolume:   askVolume,
		Entropy:     entropy,
		Pressure:    pressure,
		Nrg:         nrg,
		Temperature: mid,
	}
}

// scanLevels parses one side of the book, returning the best quote (max
// price for bids, min price for asks), total volume, and the per-level
// sizes used for the entropy calculation. A level whose price fails to
// parse is dropped entirely; a level whose size fails to parse keeps its
// price (for the best-quote scan) but contributes zero volume.
func scanLevels(levels []model.Level, wantMax bool) (best float64, volume float64, sizes []float64) {
	sizes = make([]float64, 0, len(levels))
	for _, lvl := range levels {
		price, err := strconv.ParseFloat(lvl.Price, 64)
		if err != nil {
			continue
		}
		size, err := strconv.ParseFloat(lvl.Size, 64)
		if err != nil {
			size = 0
		}

		if price > 0 {
			if best == 0 {
				best = price
			} else if wantMax && price > best {
				best = price
			} else if !wantMax && price < best {
				best = price
			}
		}

		if size > 0 {
			volume += size
			sizes = append(sizes, size)
		}
	}
	return best, volume, sizes
}

// shannonEntropy computes entropy over the normalized size distribution
// across both sides of the book. Returns 0 when there is no volume or only
// a single level carries mass.
func shannonEntropy(bidSizes, askSizes []float64, totalVolume float64) float64 {
	if totalVolume <= 0 {
		return 0
	}
	var h float64
	for _, sz := range bidSizes {
		pi := sz / totalVolume
		h -= pi * math.Log(pi)
	}
	for _, sz := range askSizes {
		pi := sz / totalVolume
		h -= pi * math.Log(pi)
	}
	return h
}
