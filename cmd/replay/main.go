// Command replay drives a captured NDJSON file of RawSnapshot lines
// through the same Physicist -> RegimeClassifier -> Chronos ->
// CorrelationTracker pipeline cmd/engine runs live, with no sampler
// ticker and no sink flush timer: it processes the whole capture as fast
// as it can read it, then performs a final Chronos drain and writes
// whatever retired (including partial) records to the output log before
// exiting. Grounded on cmd/decoder/main.go's shape: a small single-purpose
// binary alongside the main daemon, flag-configured, no signal handling
// beyond what's needed to finish the batch.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/nrandal/microlab/internal/chronos"
	"github.com/nrandal/microlab/internal/config"
	"github.com/nrandal/microlab/internal/correlation"
	"github.com/nrandal/microlab/internal/model"
	"github.com/nrandal/microlab/internal/physics"
	"github.com/nrandal/microlab/internal/regime"
)

func main() {
	// Registered before config.Load (which calls flag.Parse internally) so
	// these end up parsed alongside the rest of Config's flags from the
	// same flag.CommandLine, the same "register everything, parse once"
	// order the teacher's own config.Load relies on.
	inPath := flag.String("in", "", "path to a newline-delimited JSON capture of RawSnapshot records (required)")
	outPath := flag.String("out", "", "output path for the durable log (default: stdout)")

	log.SetFlags(log.Ltime)

	cfg := config.Load()
	ladder := cfg.Ladder

	if *inPath == "" {
		log.Fatal("replay: -in is required")
	}

	out := os.Stdout
	if *outPath != "" {
		f, err := os.Create(*outPath)
		if err != nil {
			log.Fatalf("replay: create output: %v", err)
		}
		defer f.Close()
		out = f
	}

	physicist := physics.New()
	physicist.Formula = cfg.NrgFormula
	classifier := regime.New(cfg.RegimeWindowMin, cfg.RegimeWindowMax)
	clock := chronos.New(ladder, cfg.PendingCapPerSymbol, cfg.HistoryMaxPerSymbol)
	corrTracker := correlation.NewWithAlpha(cfg.EWMAAlpha)

	w := bufio.NewWriter(out)
	defer w.Flush()
	fmt.Fprintln(w, model.Header(ladder))

	write := func(records []model.Observation) {
		corrTracker.Observe(records)
		for _, rec := range records {
			fmt.Fprintln(w, model.EncodeLine(rec, ladder))
		}
	}

	f, err := os.Open(*inPath)
	if err != nil {
		log.Fatalf("replay: open capture: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var processed, lineNo int
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if line == "" {
			continue
		}

		var snap model.RawSnapshot
		if err := json.Unmarshal([]byte(line), &snap); err != nil {
			log.Printf("replay: line %d: skipping malformed record: %v", lineNo, err)
			continue
		}

		phys := physicist.Transform(snap)
		rs := classifier.Classify(phys)

		if evicted := clock.QueueObservation(snap.Symbol, phys, rs); evicted != nil {
			write([]model.Observation{*evicted})
		}
		retired := clock.OnPrice(snap.Symbol, time.Now(), phys.MidPrice)
		if len(retired) > 0 {
			write(retired)
		}
		processed++
	}
	if err := scanner.Err(); err != nil {
		log.Fatalf("replay: read capture: %v", err)
	}

	// No more input: force every still-pending Observation to retire as a
	// partial record rather than discarding it, the same final-drain the
	// live engine performs at shutdown (spec.md §5).
	drained := clock.Drain()
	if len(drained) > 0 {
		write(drained)
	}

	log.Printf("replay: processed %d snapshots, drained %d pending observations", processed, len(drained))

	snapshot := corrTracker.Snapshot()
	for symbol, byHorizon := range snapshot {
		for horizon, stats := range byHorizon {
			log.Printf("replay: correlation symbol=%s horizon=%ds ewma=%.6f samples=%d",
				symbol, horizon, stats.EWMACorrelation, stats.SampleCount)
		}
	}
}
