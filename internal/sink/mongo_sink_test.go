package sink

import (
	"testing"

	"github.com/nrandal/microlab/internal/model"
)

func TestToResearchDocOnlyIncludesSetReturns(t *testing.T) {
	rec := model.Observation{
		ObsID:   1,
		Symbol:  "AAA",
		T0Price: 100,
		Returns: []model.Return{
			{HorizonSeconds: 5, Value: 0.01, Set: true},
			{HorizonSeconds: 10, Set: false},
		},
	}
	doc := toResearchDoc(rec, []int{5, 10, 30, 60})

	if len(doc.Returns) != 1 {
		t.Fatalf("expected 1 populated return, got %d", len(doc.Returns))
	}
	if v, ok := doc.Returns["h5"]; !ok || v != 0.01 {
		t.Fatalf("expected h5=0.01, got %v ok=%v", v, ok)
	}
	if _, ok := doc.Returns["h10"]; ok {
		t.Fatal("unset horizon should not appear in the returns map")
	}
}

// TestToResearchDocFiltersHorizonsOutsideLadder guards against the research
// sink silently persisting whatever horizons happen to be set on an
// Observation (e.g. if it were ever fed records from the full live ladder
// instead of its own reduced-ladder Chronos): only horizons present in the
// configured ladder should survive into the stored document.
func TestToResearchDocFiltersHorizonsOutsideLadder(t *testing.T) {
	rec := model.Observation{
		ObsID:   1,
		Symbol:  "AAA",
		T0Price: 100,
		Returns: []model.Return{
			{HorizonSeconds: 3, Value: 0.001, Set: true},
			{HorizonSeconds: 5, Value: 0.01, Set: true},
			{HorizonSeconds: 8, Value: 0.02, Set: true},
			{HorizonSeconds: 13, Value: 0.03, Set: true},
		},
	}
	doc := toResearchDoc(rec, []int{5, 10, 30, 60})

	if len(doc.Returns) != 1 {
		t.Fatalf("expected only h5 to survive the reduced ladder filter, got %v", doc.Returns)
	}
	if v, ok := doc.Returns["h5"]; !ok || v != 0.01 {
		t.Fatalf("expected h5=0.01, got %v ok=%v", v, ok)
	}
	for _, h := range []string{"h3", "h8", "h13"} {
		if _, ok := doc.Returns[h]; ok {
			t.Fatalf("%s is outside the configured research ladder and should not appear", h)
		}
	}
}
