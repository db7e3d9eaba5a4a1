package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Header returns the fixed column header line for the given horizon ladder,
// matching the durable log schema.
func Header(ladder []int) string {
	cols := []string{
		"timestamp", "symbol", "price", "spread", "entropy", "pressure",
		"temperature", "volume_spread", "total_volume", "bid_volume",
		"ask_volume", "nrg", "sym", "slope", "zscore", "confidence",
		"regime", "regime_consistency", "liquidity_score",
	}
	for _, h := range ladder {
		cols = append(cols, fmt.Sprintf("return_h%d", h))
	}
	cols = append(cols, "complete", "processing_us", "queue_us", "created_at")
	return strings.Join(cols, ",")
}

// EncodeLine renders a retired Observation as one line of the durable log,
// in the fixed column order from spec.md §6. ladder must match the order
// Returns was populated in (ascending horizon seconds).
func EncodeLine(rec Observation, ladder []int) string {
	volumeSpread := rec.Physics.BidVolume - rec.Physics.AskVolume
	liquidityScore := rec.Physics.TotalVolume / (1 + rec.Physics.Spread)

	fields := make([]string, 0, 19+len(ladder)+4)
	fields = append(fields,
		strconv.FormatInt(rec.T0Wall.UnixMilli(), 10),
		rec.Symbol,
		formatPrice(rec.T0Price),
		formatFloat(rec.Physics.Spread),
		formatFloat(rec.Physics.Entropy),
		formatFloat(rec.Physics.Pressure),
		formatFloat(rec.Physics.Temperature),
		formatFloat(volumeSpread),
		formatFloat(rec.Physics.TotalVolume),
		formatFloat(rec.Physics.BidVolume),
		formatFloat(rec.Physics.AskVolume),
		formatFloat(rec.Physics.Nrg),
		formatFloat(rec.Regime.SymmetryScore),
		formatFloat(rec.Regime.Slope),
		formatFloat(rec.Regime.NrgZScore),
		formatFloat(rec.Regime.Confidence),
		rec.Regime.Regime.String(),
		formatFloat(rec.Regime.RegimeConsistency),
		formatFloat(liquidityScore),
	)

	byHorizon := make(map[int]Return, len(rec.Returns))
	for _, r := range rec.Returns {
		byHorizon[r.HorizonSeconds] = r
	}
	for _, h := range ladder {
		r, ok := byHorizon[h]
		if !ok || !r.Set {
			fields = append(fields, "")
			continue
		}
		fields = append(fields, formatFloat(r.Value))
	}

	fields = append(fields,
		strconv.FormatBool(rec.Complete),
		strconv.FormatInt(rec.ProcessingMicros, 10),
		strconv.FormatInt(rec.QueueMicros, 10),
		strconv.FormatInt(rec.CreatedAt.UnixMilli(), 10),
	)

	return strings.Join(fields, ",")
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', 8, 64)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
