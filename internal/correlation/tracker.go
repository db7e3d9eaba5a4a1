// Package correlation implements the CorrelationTracker (spec component E):
// per (symbol, horizon) EWMA of the sample Pearson correlation between the
// nrg feature and the realized forward return. State mutation follows the
// same lock-per-entity pattern as engine.RNG's mutex-protected numeric
// state in the teacher.
package correlation

import (
	"math"
	"sync"
	"time"

	"github.com/nrandal/microlab/internal/model"
)

// defaultAlpha is spec.md §9's fixed EWMA smoothing factor, used by New.
const defaultAlpha = 0.1

type key struct {
	symbol  string
	horizon int
}

// Tracker holds CorrelationStats for every observed (symbol, horizon) pair.
type Tracker struct {
	mu    sync.RWMutex
	stats map[key]*model.CorrelationStats
	alpha float64
}

// New creates an empty Tracker using the spec-default alpha=0.1.
func New() *Tracker {
	return NewWithAlpha(defaultAlpha)
}

// NewWithAlpha creates an empty Tracker with a caller-supplied smoothing
// factor, wired to Config.EWMAAlpha (spec.md §6 lists ewma_alpha as a
// configured option even though the default never changes in practice).
func NewWithAlpha(alpha float64) *Tracker {
	return &Tracker{stats: make(map[key]*model.CorrelationStats), alpha: alpha}
}

// Observe processes a batch of retired Observations, grouping by (symbol,
// horizon) and folding a new sample Pearson correlation into each pair's
// EWMA. A batch may span several symbols (the shutdown drain hands over
// every symbol's records at once). Observations whose return at a horizon
// is unset are excluded from that horizon's group.
func (t *Tracker) Observe(records []model.Observation) {
	if len(records) == 0 {
		return
	}

	byKey := make(map[key][]point)
	for _, rec := range records {
		for _, r := range rec.Returns {
			if !r.Set {
				continue
			}
			k := key{symbol: rec.Symbol, horizon: r.HorizonSeconds}
			byKey[k] = append(byKey[k], point{x: rec.Physics.Nrg, y: r.Value})
		}
	}

	now := time.Now()

	for k, pts := range byKey {
		corr, ok := pearson(pts)
		t.update(k.symbol, k.horizon, corr, ok, len(pts), now)
	}
}

type point struct{ x, y float64 }

func (t *Tracker) update(symbol string, horizon int, corr float64, corrOK bool, sampleCount int, now time.Time) {
	k := key{symbol: symbol, horizon: horizon}

	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.stats[k]
	if !ok {
		s = &model.CorrelationStats{}
		t.stats[k] = s
	}

	if corrOK {
		if s.SampleCount == 0 {
			s.EWMACorrelation = corr
		} else {
			s.EWMACorrelation = t.alpha*corr + (1-t.alpha)*s.EWMACorrelation
		}
	}
	s.SampleCount += uint64(sampleCount)
	s.LastUpdated = now
}

// pearson computes the sample Pearson correlation coefficient. ok is false
// when either series has zero variance (degenerate denominator), in which
// case the caller still counts the samples but skips the EWMA update.
func pearson(pts []point) (corr float64, ok bool) {
	n := len(pts)
	if n < 2 {
		return 0, false
	}

	var sumX, sumY float64
	for _, p := range pts {
		sumX += p.x
		sumY += p.y
	}
	meanX, meanY := sumX/float64(n), sumY/float64(n)

	var covXY, varX, varY float64
	for _, p := range pts {
		dx, dy := p.x-meanX, p.y-meanY
		covXY += dx * dy
		varX += dx * dx
		varY += dy * dy
	}

	denom := math.Sqrt(varX * varY)
	if denom == 0 {
		return 0, false
	}
	return covXY / denom, true
}

// Snapshot returns a point-in-time copy of every tracked (symbol, horizon)
// pair's stats, suitable for logging.
func (t *Tracker) Snapshot() map[string]map[int]model.CorrelationStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]map[int]model.CorrelationStats)
	for k, s := range t.stats {
		bySymbol, ok := out[k.symbol]
		if !ok {
			bySymbol = make(map[int]model.CorrelationStats)
			out[k.symbol] = bySymbol
		}
		bySymbol[k.horizon] = *s
	}
	return out
}
