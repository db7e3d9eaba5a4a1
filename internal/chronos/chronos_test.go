package chronos

import (
	"math"
	"testing"
	"time"

	"github.com/nrandal/microlab/internal/model"
)

func physicsAt(mid float64) model.PhysicsState {
	return model.PhysicsState{Symbol: "AAA", MidPrice: mid}
}

// TestS1SingleHorizon mirrors spec.md scenario S1: ladder {5}, one
// observation at mid=100.1, a price update 5s later at mid=101.1 should
// retire it with return_5 ~= 0.009990.
func TestS1SingleHorizon(t *testing.T) {
	c := New([]int{5}, 1000, 5000)

	t0 := time.Now()
	evicted := c.QueueObservation("AAA", physicsAt(100.1), model.RegimeState{})
	if evicted != nil {
		t.Fatal("unexpected eviction on first queue")
	}

	// QueueObservation stamps T0Wall with its own time.Now() call, which
	// lands a hair after t0; add slack so the 5s horizon is unambiguously
	// crossed rather than racing the exact boundary.
	retired := c.OnPrice("AAA", t0.Add(5*time.Second+10*time.Millisecond), 101.1)
	if len(retired) != 1 {
		t.Fatalf("expected 1 retired observation, got %d", len(retired))
	}
	r := retired[0]
	if !r.Complete {
		t.Fatal("expected complete=true")
	}
	want := (101.1 - 100.1) / 100.1
	if math.Abs(r.Returns[0].Value-want) > 1e-6 {
		t.Fatalf("return_5 = %v, want ~%v", r.Returns[0].Value, want)
	}
}

// TestS2CapEviction mirrors spec.md scenario S2: cap=3, feed 4 observations
// with no price updates; the 4th queue call evicts the 1st as a partial.
func TestS2CapEviction(t *testing.T) {
	c := New([]int{89}, 3, 5000)

	var evictedSeen *model.Observation
	for i := 0; i < 4; i++ {
		ev := c.QueueObservation("AAA", physicsAt(100+float64(i)), model.RegimeState{})
		if i < 3 && ev != nil {
			t.Fatalf("unexpected eviction at i=%d", i)
		}
		if i == 3 {
			evictedSeen = ev
		}
	}
	if evictedSeen == nil {
		t.Fatal("expected eviction on 4th queue call")
	}
	if !evictedSeen.Complete {
		t.Fatal("evicted observation should be marked complete")
	}
	if evictedSeen.Returns[0].Set {
		t.Fatal("evicted observation's horizon was never reached, should remain unset")
	}
	if got := c.PendingLen("AAA"); got != 3 {
		t.Fatalf("pending len = %d, want 3 (cap)", got)
	}
}

func TestCapNeverExceeded(t *testing.T) {
	c := New([]int{89}, 3, 5000)
	for i := 0; i < 50; i++ {
		c.QueueObservation("AAA", physicsAt(100), model.RegimeState{})
		if got := c.PendingLen("AAA"); got > 3 {
			t.Fatalf("pending len %d exceeded cap 3 at i=%d", got, i)
		}
	}
}

func TestDrainEmitsRemainingAsPartial(t *testing.T) {
	c := New([]int{5, 10}, 1000, 5000)
	for i := 0; i < 3; i++ {
		c.QueueObservation("AAA", physicsAt(100), model.RegimeState{})
	}
	drained := c.Drain()
	if len(drained) != 3 {
		t.Fatalf("expected 3 drained observations, got %d", len(drained))
	}
	for _, d := range drained {
		if !d.Complete {
			t.Error("drained observation should be complete")
		}
	}
	if got := c.PendingLen("AAA"); got != 0 {
		t.Fatalf("pending len after drain = %d, want 0", got)
	}
}

func TestMonotoneRetirementOrder(t *testing.T) {
	c := New([]int{5}, 1000, 5000)
	t0 := time.Now()
	for i := 0; i < 5; i++ {
		c.QueueObservation("AAA", physicsAt(100+float64(i)), model.RegimeState{})
	}
	retired := c.OnPrice("AAA", t0.Add(10*time.Second), 200)
	if len(retired) != 5 {
		t.Fatalf("expected all 5 retired, got %d", len(retired))
	}
	for i := 1; i < len(retired); i++ {
		if retired[i].T0Wall.Before(retired[i-1].T0Wall) {
			t.Fatal("retirement order is not non-decreasing in t0_wall")
		}
	}
}

func TestInactiveWhenT0PriceNonPositive(t *testing.T) {
	c := New([]int{5}, 1000, 5000)
	t0 := time.Now()
	c.QueueObservation("AAA", physicsAt(0), model.RegimeState{})
	retired := c.OnPrice("AAA", t0.Add(time.Hour), 999)
	if len(retired) != 0 {
		t.Fatalf("observation with t0_price<=0 should never auto-retire, got %d retired", len(retired))
	}
}

func TestPerSymbolIsolationUnderStall(t *testing.T) {
	// Mirrors spec.md S6: X sees no price updates while Y proceeds normally.
	c := New([]int{5}, 3, 5000)
	for i := 0; i < 10; i++ {
		c.QueueObservation("X", physicsAt(100), model.RegimeState{})
	}
	if got := c.PendingLen("X"); got != 3 {
		t.Fatalf("X pending = %d, want 3 (evicting under stall)", got)
	}

	t0 := time.Now()
	c.QueueObservation("Y", physicsAt(50), model.RegimeState{})
	retired := c.OnPrice("Y", t0.Add(10*time.Second), 55)
	if len(retired) != 1 {
		t.Fatalf("Y should retire independently of X's stall, got %d", len(retired))
	}
}

func TestSecondPriceWithinSameMillisecond(t *testing.T) {
	c := New([]int{5, 10}, 1000, 5000)
	t0 := time.Now()
	c.QueueObservation("AAA", physicsAt(100), model.RegimeState{})
	// QueueObservation stamps T0Wall with its own time.Now() call, which
	// lands a hair after t0; add slack so these land unambiguously past
	// each horizon rather than racing the exact boundary.
	mark := t0.Add(5*time.Second + 10*time.Millisecond)
	c.OnPrice("AAA", mark, 101) // satisfies h=5 only
	retired := c.OnPrice("AAA", mark, 102)
	_ = retired // second call within same instant should not error or double count
	final := c.OnPrice("AAA", t0.Add(10*time.Second+10*time.Millisecond), 110)
	if len(final) != 1 {
		t.Fatalf("expected final retirement once h=10 satisfied, got %d", len(final))
	}
}
