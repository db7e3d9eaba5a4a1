package correlation

import (
	"math"
	"testing"

	"github.com/nrandal/microlab/internal/model"
)

func observationWithReturn(symbol string, nrg, ret float64) model.Observation {
	return model.Observation{
		Symbol:  symbol,
		Physics: model.PhysicsState{Nrg: nrg},
		Returns: []model.Return{{HorizonSeconds: 5, Value: ret, Set: true}},
	}
}

// TestS4EWMAConvergence mirrors spec.md scenario S4: nrg perfectly linear
// in return_5 should converge the EWMA correlation to 1.0 within ~50
// samples at alpha=0.1.
func TestS4EWMAConvergence(t *testing.T) {
	tr := New()
	for i := 0; i < 100; i += 5 {
		batch := make([]model.Observation, 0, 5)
		for j := 0; j < 5; j++ {
			x := float64(i + j)
			batch = append(batch, observationWithReturn("AAA", x, 2*x+1))
		}
		tr.Observe(batch)
	}

	snap := tr.Snapshot()
	stats, ok := snap["AAA"][5]
	if !ok {
		t.Fatal("expected stats for (AAA, 5)")
	}
	if math.Abs(stats.EWMACorrelation-1.0) > 1e-6 {
		t.Fatalf("ewma correlation = %v, want ~1.0", stats.EWMACorrelation)
	}
}

func TestDegenerateVarianceSkipsEWMAButCountsSamples(t *testing.T) {
	tr := New()
	batch := []model.Observation{
		observationWithReturn("AAA", 5, 5),
		observationWithReturn("AAA", 5, 5),
		observationWithReturn("AAA", 5, 5),
	}
	tr.Observe(batch)

	snap := tr.Snapshot()
	stats := snap["AAA"][5]
	if stats.EWMACorrelation != 0 {
		t.Errorf("ewma should stay 0 for degenerate variance, got %v", stats.EWMACorrelation)
	}
	if stats.SampleCount != 3 {
		t.Errorf("sample count = %d, want 3", stats.SampleCount)
	}
}

func TestGroupsByHorizonIndependently(t *testing.T) {
	tr := New()
	batch := []model.Observation{
		{
			Symbol:  "AAA",
			Physics: model.PhysicsState{Nrg: 1},
			Returns: []model.Return{
				{HorizonSeconds: 5, Value: 1, Set: true},
				{HorizonSeconds: 10, Set: false},
			},
		},
	}
	tr.Observe(batch)
	snap := tr.Snapshot()
	if _, ok := snap["AAA"][10]; ok {
		t.Error("unset horizon should not produce stats")
	}
	if _, ok := snap["AAA"][5]; !ok {
		t.Error("expected stats for horizon 5")
	}
}
