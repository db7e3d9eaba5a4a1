// Package sampler implements the Sampler/Heartbeat (spec component F): a
// 100ms skip-on-miss driver that reads a point-in-time view of the
// Snapshot Store and synchronously runs Physicist -> RegimeClassifier ->
// Chronos.QueueObservation -> Chronos.OnPrice per symbol. It is grounded on
// the teacher's cmd/feedsim symbolRunner/stressRunner goroutine-per-symbol
// + time.Ticker loops, adapted from per-symbol generation to per-symbol
// consumption, and on the teacher's non-blocking drop-rather-than-block
// idiom (enqueueTrades) for the skip-on-miss gate.
package sampler

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nrandal/microlab/internal/chronos"
	"github.com/nrandal/microlab/internal/model"
	"github.com/nrandal/microlab/internal/physics"
	"github.com/nrandal/microlab/internal/regime"
	"github.com/nrandal/microlab/internal/snapstore"
)

// RetiredHandler receives the Observations that completed on one symbol
// during one tick (normal retirement plus any cap eviction), in ascending
// t0_wall order. Implementations (sink, correlation tracker) must not
// block for long; the sampler's next tick does not wait on this call, but
// a slow handler does extend how long the current tick holds the
// skip-on-miss gate.
type RetiredHandler func(records []model.Observation)

// Sampler drives the pipeline on a fixed cadence.
type Sampler struct {
	store      *snapstore.Store
	physicist  *physics.Physicist
	classifier *regime.Classifier
	chronos    *chronos.Chronos
	interval   time.Duration
	onRetired  RetiredHandler

	researchChronos   *chronos.Chronos
	onResearchRetired RetiredHandler

	busy       atomic.Bool
	missed     atomic.Uint64
	ticksTotal atomic.Uint64
}

// New creates a Sampler. interval is the sample cadence (spec.md default
// 100ms).
func New(store *snapstore.Store, p *physics.Physicist, c *regime.Classifier, ch *chronos.Chronos, interval time.Duration, onRetired RetiredHandler) *Sampler {
	return &Sampler{
		store:      store,
		physicist:  p,
		classifier: c,
		chronos:    ch,
		interval:   interval,
		onRetired:  onRetired,
	}
}

// Run blocks, ticking at the configured interval until ctx is cancelled.
func (s *Sampler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.busy.CompareAndSwap(false, true) {
				// Previous tick's work is still in flight: skip, never queue.
				s.missed.Add(1)
				continue
			}
			s.tick()
			s.busy.Store(false)
		}
	}
}

// MissedTicks reports how many ticks were skipped because the prior tick
// was still running. Logged as a metric, not treated as an error.
func (s *Sampler) MissedTicks() uint64 {
	return s.missed.Load()
}

// WithResearch attaches a second Chronos instance, normally configured
// with the reduced research ladder (spec.md §3), that receives the exact
// same per-tick PhysicsState/RegimeState as the primary chronos but
// retires independently against its own ladder. Its retirements are
// handed to onRetired instead of the primary sink path, so the research
// sink actually observes horizons {5,10,30,60} rather than whatever the
// live ladder happens to produce.
func (s *Sampler) WithResearch(ch *chronos.Chronos, onRetired RetiredHandler) *Sampler {
	s.researchChronos = ch
	s.onResearchRetired = onRetired
	return s
}

func (s *Sampler) tick() {
	s.ticksTotal.Add(1)
	view := s.store.IterLatest()
	if len(view) == 0 {
		return
	}

	var wg sync.WaitGroup
	wg.Add(len(view))
	for _, snap := range view {
		snap := snap
		go func() {
			defer wg.Done()
			s.processSymbol(snap)
		}()
	}
	wg.Wait()
}

// processSymbol runs the synchronous per-symbol pipeline step. Work for
// distinct symbols may run concurrently (each goroutine here), but the
// rolling window and pending queue for a given symbol are only ever
// touched by this one call at a time, since the sampler holds its global
// busy gate for the whole tick.
func (s *Sampler) processSymbol(snap model.RawSnapshot) {
	start := time.Now()

	phys := s.physicist.Transform(snap)
	rs := s.classifier.Classify(phys)
	now := time.Now()

	evicted := s.chronos.QueueObservation(snap.Symbol, phys, rs)
	retired := s.chronos.OnPrice(snap.Symbol, now, phys.MidPrice)

	elapsed := time.Since(start).Microseconds()

	var batch []model.Observation
	if evicted != nil {
		evicted.ProcessingMicros = elapsed
		batch = append(batch, *evicted)
	}
	for i := range retired {
		retired[i].ProcessingMicros = elapsed
	}
	batch = append(batch, retired...)

	if len(batch) > 0 && s.onRetired != nil {
		s.onRetired(batch)
	}

	if s.researchChronos == nil {
		return
	}

	rEvicted := s.researchChronos.QueueObservation(snap.Symbol, phys, rs)
	rRetired := s.researchChronos.OnPrice(snap.Symbol, now, phys.MidPrice)

	var rBatch []model.Observation
	if rEvicted != nil {
		rEvicted.ProcessingMicros = elapsed
		rBatch = append(rBatch, *rEvicted)
	}
	for i := range rRetired {
		rRetired[i].ProcessingMicros = elapsed
	}
	rBatch = append(rBatch, rRetired...)

	if len(rBatch) > 0 && s.onResearchRetired != nil {
		s.onResearchRetired(rBatch)
	}
}

// LogMissedPeriodically is a convenience for cmd/engine to surface the
// skip-on-miss counter without adding a metrics dependency the corpus
// never reaches for.
func (s *Sampler) LogMissedPeriodically(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m := s.MissedTicks(); m > 0 {
				log.Printf("sampler: %d ticks skipped so far (total ticks %d)", m, s.ticksTotal.Load())
			}
		}
	}
}
