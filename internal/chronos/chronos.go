// Package chronos implements Chronos (spec component D), the temporal
// labeller: per-symbol pending-observation queues and bounded price
// history, attaching forward-return labels at a fixed horizon ladder and
// retiring Observations once their largest horizon is satisfied or the
// queue cap forces eviction.
//
// Per-symbol state uses the same two-level locking the teacher's
// session.Manager/session.Client use for per-client state: a map-level
// sync.RWMutex for registration, one sync.Mutex per symbol for mutation.
package chronos

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nrandal/microlab/internal/model"
)

// Chronos owns every symbol's pending queue and price history.
type Chronos struct {
	mu       sync.RWMutex
	symbols  map[string]*symbolState
	ladder   []int // ascending horizon seconds, fixed at construction
	pendingCap int
	historyCap int
	obsCounter uint64
}

type symbolState struct {
	mu      sync.Mutex
	pending *list.List // of *model.Observation, ordered by t0_wall ascending
	history *list.List // of pricePoint
}

type pricePoint struct {
	wallTime time.Time
	price    float64
}

// New creates a Chronos instance. ladder must already be sorted ascending;
// it is the fixed configuration of the core, not a per-call parameter.
func New(ladder []int, pendingCap, historyCap int) *Chronos {
	return &Chronos{
		symbols:    make(map[string]*symbolState),
		ladder:     ladder,
		pendingCap: pendingCap,
		historyCap: historyCap,
	}
}

func (c *Chronos) stateFor(symbol string) *symbolState {
	c.mu.RLock()
	s, ok := c.symbols[symbol]
	c.mu.RUnlock()
	if ok {
		return s
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok = c.symbols[symbol]; ok {
		return s
	}
	s = &symbolState{pending: list.New(), history: list.New()}
	c.symbols[symbol] = s
	return s
}

func (c *Chronos) newReturns() []model.Return {
	r := make([]model.Return, len(c.ladder))
	for i, h := range c.ladder {
		r[i] = model.Return{HorizonSeconds: h}
	}
	return r
}

// QueueObservation constructs a new Observation from physics/regime and
// appends it to symbol's pending queue. If the queue exceeds the
// configured cap, the oldest Observation is evicted, forced complete, and
// returned so the caller can flush it to the sink and correlation tracker
// exactly like a normally-retired record (spec.md §4.4).
func (c *Chronos) QueueObservation(symbol string, physics model.PhysicsState, regime model.RegimeState) (evicted *model.Observation) {
	s := c.stateFor(symbol)

	obs := &model.Observation{
		ObsID:   atomic.AddUint64(&c.obsCounter, 1),
		Symbol:  symbol,
		T0Wall:  time.Now(),
		T0Price: physics.MidPrice,
		Physics: physics,
		Regime:  regime,
		Returns: c.newReturns(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending.PushBack(obs)
	if s.pending.Len() > c.pendingCap {
		front := s.pending.Front()
		s.pending.Remove(front)
		old := front.Value.(*model.Observation)
		old.Complete = true
		old.CreatedAt = time.Now()
		old.QueueMicros = old.CreatedAt.Sub(old.T0Wall).Microseconds()
		return old
	}
	return nil
}

// OnPrice appends (wallTime, price) to the symbol's price history (evicting
// the oldest entry past the configured cap) and labels any pending
// Observations whose unmet horizons are now satisfied. It returns the
// Observations that transitioned to complete during this call, in
// ascending t0_wall order.
func (c *Chronos) OnPrice(symbol string, wallTime time.Time, price float64) []model.Observation {
	s := c.stateFor(symbol)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.history.PushBack(pricePoint{wallTime: wallTime, price: price})
	if s.history.Len() > c.historyCap {
		s.history.Remove(s.history.Front())
	}

	var retired []model.Observation

	for e := s.pending.Front(); e != nil; {
		obs := e.Value.(*model.Observation)
		next := e.Next()

		if obs.T0Price > 0 {
			elapsed := wallTime.Sub(obs.T0Wall)
			for i, h := range c.ladder {
				if obs.Returns[i].Set {
					continue
				}
				if elapsed < time.Duration(h)*time.Second {
					break // ladder is ascending; later horizons can't be reached yet either
				}
				obs.Returns[i] = model.Return{
					HorizonSeconds: h,
					Value:          (price - obs.T0Price) / obs.T0Price,
					Set:            true,
				}
			}
			if last := len(obs.Returns) - 1; last >= 0 && obs.Returns[last].Set {
				obs.Complete = true
			}
		}

		if obs.Complete {
			obs.CreatedAt = time.Now()
			obs.QueueMicros = obs.CreatedAt.Sub(obs.T0Wall).Microseconds()
			retired = append(retired, *obs)
			s.pending.Remove(e)
		}

		e = next
	}

	return retired
}

// Drain forces every pending Observation, across every symbol, to complete
// and returns them. Used for the bounded shutdown drain (spec.md §5): any
// still-pending records are flushed as partial CompleteRecords rather than
// lost.
func (c *Chronos) Drain() []model.Observation {
	c.mu.RLock()
	states := make([]*symbolState, 0, len(c.symbols))
	for _, s := range c.symbols {
		states = append(states, s)
	}
	c.mu.RUnlock()

	var out []model.Observation
	now := time.Now()
	for _, s := range states {
		s.mu.Lock()
		for e := s.pending.Front(); e != nil; e = e.Next() {
			obs := e.Value.(*model.Observation)
			obs.Complete = true
			obs.CreatedAt = now
			obs.QueueMicros = now.Sub(obs.T0Wall).Microseconds()
			out = append(out, *obs)
		}
		s.pending.Init()
		s.mu.Unlock()
	}
	return out
}

// PendingLen reports the current pending-queue length for a symbol; used
// by tests to observe the cap invariant.
func (c *Chronos) PendingLen(symbol string) int {
	s := c.stateFor(symbol)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending.Len()
}
