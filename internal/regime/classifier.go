// Package regime implements the RegimeClassifier (spec component C): a
// per-symbol rolling window of PhysicsState that emits a coarse regime tag
// plus continuous statistics. Per-symbol state is serialized the way the
// teacher's orderbook.Book and session.Client serialize per-entity mutation:
// one lock per symbol, a map-level lock only for registration.
package regime

import (
	"math"
	"sync"

	"github.com/nrandal/microlab/internal/model"
)

const regimeHistoryLen = 20

// Classifier holds one rolling window per symbol.
type Classifier struct {
	mu       sync.RWMutex
	windows  map[string]*symbolWindow
	minSize  int
	maxSize  int
}

// New creates a Classifier. minSize/maxSize bound the rolling window
// (spec.md default 21/90).
func New(minSize, maxSize int) *Classifier {
	return &Classifier{
		windows: make(map[string]*symbolWindow),
		minSize: minSize,
		maxSize: maxSize,
	}
}

type symbolWindow struct {
	mu      sync.Mutex
	states  []model.PhysicsState
	regimes []model.Regime
}

func (c *Classifier) windowFor(symbol string) *symbolWindow {
	c.mu.RLock()
	w, ok := c.windows[symbol]
	c.mu.RUnlock()
	if ok {
		return w
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if w, ok = c.windows[symbol]; ok {
		return w
	}
	w = &symbolWindow{}
	c.windows[symbol] = w
	return w
}

// Classify appends ps to that symbol's window and returns the resulting
// RegimeState. Safe for concurrent use across distinct symbols; calls for
// the same symbol must be serialized by the caller (the Sampler already
// guarantees this per spec.md §4.6).
func (c *Classifier) Classify(ps model.PhysicsState) model.RegimeState {
	w := c.windowFor(ps.Symbol)

	w.mu.Lock()
	defer w.mu.Unlock()

	w.states = append(w.states, ps)
	if len(w.states) > c.maxSize {
		w.states = w.states[len(w.states)-c.maxSize:]
	}

	n := len(w.states)
	if n < c.minSize {
		rs := model.RegimeState{
			Regime:        model.Compression,
			SymmetryScore: 0.5,
		}
		w.pushRegime(rs.Regime)
		rs.RegimeConsistency = w.consistency(rs.Regime)
		return rs
	}

	mids := make([]float64, n)
	nrgs := make([]float64, n)
	for i, s := range w.states {
		mids[i] = s.MidPrice
		nrgs[i] = s.Nrg
	}

	slope := olsSlope(mids)
	symmetry := symmetryOf(mids)
	reversion := reversionSpeed(mids, symmetry)
	regime := decideRegime(symmetry)
	confidence := 1 - 1/float64(n)
	nrgZ := ZScore(ps.Nrg, nrgs)

	w.pushRegime(regime)
	consistency := w.consistency(regime)

	return model.RegimeState{
		Regime:            regime,
		SymmetryScore:     symmetry,
		Slope:             slope,
		ReversionSpeed:    reversion,
		Confidence:        confidence,
		NrgZScore:         nrgZ,
		RegimeConsistency: consistency,
	}
}

func (w *symbolWindow) pushRegime(r model.Regime) {
	w.regimes = append(w.regimes, r)
	if len(w.regimes) > regimeHistoryLen {
		w.regimes = w.regimes[len(w.regimes)-regimeHistoryLen:]
	}
}

func (w *symbolWindow) consistency(current model.Regime) float64 {
	if len(w.regimes) == 0 {
		return 1
	}
	matches := 0
	for _, r := range w.regimes {
		if r == current {
			matches++
		}
	}
	return float64(matches) / float64(len(w.regimes))
}

// olsSlope returns the ordinary-least-squares slope of series against the
// index 0..n-1. Returns 0 on a degenerate (zero-variance index, i.e. n<2)
// denominator.
func olsSlope(series []float64) float64 {
	n := len(series)
	if n < 2 {
		return 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range series {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	nf := float64(n)
	denom := nf*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (nf*sumXY - sumX*sumY) / denom
}

// symmetryOf computes ups/(ups+downs) over consecutive differences.
func symmetryOf(series []float64) float64 {
	var ups, downs float64
	for i := 1; i < len(series); i++ {
		d := series[i] - series[i-1]
		if d > 0 {
			ups += d
		} else if d < 0 {
			downs += -d
		}
	}
	total := ups + downs
	if total == 0 {
		return 0.5
	}
	return ups / total
}

func reversionSpeed(series []float64, full float64) float64 {
	n := len(series)
	if n <= 5 {
		return 0
	}
	return full - symmetryOf(series[:n-5])
}

// decideRegime applies the fixed first-match-wins decision order from
// spec.md §4.3.
func decideRegime(symmetry float64) model.Regime {
	if symmetry > 0.8 || symmetry < 0.2 {
		return model.Ballistic
	}
	if symmetry > 0.4 && symmetry < 0.6 {
		return model.Compression
	}
	return model.Oscillatory
}

// ZScore is the stateless helper from spec.md §4.3: sample mean/stddev
// (n-1 denominator) of values, with current compared against it. Returns 0
// when there are fewer than 2 samples or the sample stddev is negligible.
func ZScore(current float64, values []float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(n)

	var sumSq float64
	for _, v := range values {
		d := v - mean
		sumSq += d * d
	}
	variance := sumSq / float64(n-1)
	sigma := math.Sqrt(variance)
	if sigma < 1e-9 {
		return 0
	}
	return (current - mean) / sigma
}
