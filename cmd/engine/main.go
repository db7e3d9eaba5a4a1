// Command engine is the composition root: it wires the Snapshot Store,
// Physicist, RegimeClassifier, Chronos and CorrelationTracker behind a
// Sampler heartbeat, fans retired records out to the durable sink(s) and
// the monitor websocket, and drives an ingest adapter into the front
// door. Grounded directly on the teacher's cmd/feedsim/main.go: signal-
// based context cancellation, deferred cleanup, bounded shutdown via
// context.WithTimeout.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	archivepkg "github.com/nrandal/microlab/internal/archive"
	"github.com/nrandal/microlab/internal/chronos"
	"github.com/nrandal/microlab/internal/config"
	"github.com/nrandal/microlab/internal/correlation"
	"github.com/nrandal/microlab/internal/ingest"
	"github.com/nrandal/microlab/internal/model"
	"github.com/nrandal/microlab/internal/monitor"
	"github.com/nrandal/microlab/internal/physics"
	"github.com/nrandal/microlab/internal/regime"
	"github.com/nrandal/microlab/internal/sampler"
	"github.com/nrandal/microlab/internal/sink"
	"github.com/nrandal/microlab/internal/snapstore"
)

func main() {
	cfg := config.Load()

	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Println("microlab engine starting")
	log.Printf("ladder=%v sample_interval=%v regime_window=[%d,%d] pending_cap=%d history_cap=%d",
		cfg.Ladder, cfg.SampleInterval(), cfg.RegimeWindowMin, cfg.RegimeWindowMax,
		cfg.PendingCapPerSymbol, cfg.HistoryMaxPerSymbol)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, shutting down...", sig)
		cancel()
	}()

	// Core five, in dependency order (spec.md §2).
	store := snapstore.New()
	physicist := physics.New()
	physicist.Formula = cfg.NrgFormula
	classifier := regime.New(cfg.RegimeWindowMin, cfg.RegimeWindowMax)
	clock := chronos.New(cfg.Ladder, cfg.PendingCapPerSymbol, cfg.HistoryMaxPerSymbol)
	corrTracker := correlation.NewWithAlpha(cfg.EWMAAlpha)

	// Durable sink(s): FileSink is required, MongoResearchSink is opt-in.
	if err := os.MkdirAll(filepath.Dir(cfg.LogPath), 0o755); err != nil {
		log.Fatalf("engine: create log dir: %v", err)
	}
	fileSink, err := sink.NewFileSink(cfg.LogPath, cfg.Ladder, cfg.FlushInterval(), cfg.SinkHighWaterMark)
	if err != nil {
		log.Fatalf("engine: open durable log: %v", err)
	}

	// researchClock is a second Chronos instance, built against the reduced
	// research ladder (spec.md §3), that the sampler drives in parallel with
	// the primary full-ladder clock (see Sampler.WithResearch below). It
	// only exists when the research sink is actually enabled.
	var researchSink sink.Sink
	var researchClock *chronos.Chronos
	if cfg.MongoURI != "" {
		researchSink, err = sink.NewMongoResearchSink(ctx, cfg.MongoURI, cfg.ResearchLadder)
		if err != nil {
			log.Printf("engine: research sink disabled: %v", err)
			researchSink = nil
		} else {
			researchClock = chronos.New(cfg.ResearchLadder, cfg.PendingCapPerSymbol, cfg.HistoryMaxPerSymbol)
		}
	}

	// Ambient observability: read-only websocket fan-out.
	hub := monitor.NewHub(cfg.MonitorBufferSize)

	// onRetired fans every retirement batch from the primary (full-ladder)
	// clock out to the durable log, the correlation tracker, and the
	// monitor hub. The sampler does not wait for the sink to flush; only
	// enqueueing happens on this path.
	onRetired := func(records []model.Observation) {
		if err := fileSink.Append(ctx, records); err != nil {
			log.Printf("engine: file sink append: %v", err)
		}
		corrTracker.Observe(records)

		updates := make([]monitor.TickUpdate, len(records))
		for i, rec := range records {
			updates[i] = monitor.FromObservation(rec)
		}
		hub.Broadcast(updates)
	}

	// onResearchRetired fans the research clock's own retirements (built
	// against cfg.ResearchLadder) to the research sink only.
	onResearchRetired := func(records []model.Observation) {
		if researchSink == nil {
			return
		}
		if err := researchSink.Append(ctx, records); err != nil {
			log.Printf("engine: research sink append: %v", err)
		}
	}

	smp := sampler.New(store, physicist, classifier, clock, cfg.SampleInterval(), onRetired)
	if researchClock != nil {
		smp.WithResearch(researchClock, onResearchRetired)
	}

	// Ingest Adapter boundary: dial the reference venue feed for each
	// configured symbol.
	adapter := ingest.NewWSAdapter(store, venueURLFor(cfg.VenueWSBase), nil)
	for _, s := range cfg.Symbols {
		adapter.Subscribe(s)
	}
	go adapter.Run(ctx, cfg.Symbols)
	log.Printf("ingest: subscribing to %d symbols against %s", len(cfg.Symbols), cfg.VenueWSBase)

	// Optional archiver: rotates FileSink segments once ArchiveDir is set.
	var archiver *archivepkg.Archiver
	if cfg.ArchiveDir != "" {
		archiver, err = archivepkg.New(ctx, fileSink, cfg.ArchiveDir, cfg.ArchiveMaxGB,
			cfg.ArchiveIntervalHours, cfg.ArchiveAfterHours, cfg.S3Bucket, cfg.S3Region, cfg.S3Prefix)
		if err != nil {
			log.Fatalf("engine: archiver: %v", err)
		}
		go archiver.Run(ctx)
	}

	samplerDone := make(chan struct{})
	go func() {
		smp.Run(ctx)
		close(samplerDone)
	}()
	go smp.LogMissedPeriodically(ctx, 30*time.Second)
	log.Println("sampler running")

	// Monitor HTTP server.
	mux := http.NewServeMux()
	mux.HandleFunc("/monitor", monitor.Handler(hub))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","clients":%d,"dropped":%d}`, hub.ClientCount(), fileSink.Dropped())
	})

	addr := fmt.Sprintf("%s:%d", cfg.MonitorHost, cfg.MonitorPort)
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("monitor listening on ws://%s/monitor", addr)
	serveErr := srv.ListenAndServe()
	if serveErr != nil && serveErr != http.ErrServerClosed {
		log.Printf("engine: monitor server error: %v", serveErr)
	}

	// Cooperative shutdown (spec.md §5): cancel ctx (a no-op when a signal
	// already did) and wait for the sampler's Run to return, so no tick is
	// in flight once the drain starts. Chronos then performs a final drain
	// so any still-pending Observations are flushed as partial
	// CompleteRecords rather than lost.
	cancel()
	<-samplerDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	drained := clock.Drain()
	if len(drained) > 0 {
		log.Printf("engine: draining %d pending observations at shutdown", len(drained))
		onRetired(drained)
	}
	if researchClock != nil {
		if rdrained := researchClock.Drain(); len(rdrained) > 0 {
			log.Printf("engine: draining %d pending research observations at shutdown", len(rdrained))
			onResearchRetired(rdrained)
		}
	}

	if err := fileSink.Close(shutdownCtx); err != nil {
		log.Printf("engine: file sink close: %v", err)
	}
	if researchSink != nil {
		if err := researchSink.Close(shutdownCtx); err != nil {
			log.Printf("engine: research sink close: %v", err)
		}
	}

	log.Println("microlab engine stopped")
}

// venueURLFor builds a simple per-symbol stream URL against base, the
// shape every reference venue in the retrieved pack uses (path-suffixed
// stream name, lowercase symbol).
func venueURLFor(base string) ingest.URLForSymbol {
	return func(symbol string) string {
		return fmt.Sprintf("%s/%s@depth20@100ms", base, symbol)
	}
}
