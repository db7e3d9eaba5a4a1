// Package config loads the frozen Config struct the rest of the engine is
// built from: flag-first with environment-variable fallback, parsed once
// at startup, exactly the teacher's envStr/envInt/envInt64 helper pattern.
// There is no runtime reconfiguration (spec.md §6, §9): to change a value,
// restart the process.
package config

import (
	"strconv"
	"strings"
	"time"

	"flag"
	"os"

	"github.com/nrandal/microlab/internal/model"
)

// defaultLadder is the full Fibonacci horizon ladder spec.md §3 fixes for
// the live durable log.
var defaultLadder = []int{3, 5, 8, 13, 21, 34, 55, 89, 144, 233, 377}

// defaultResearchLadder is the reduced ladder spec.md §3 fixes for the
// research sink.
var defaultResearchLadder = []int{5, 10, 30, 60}

// Config is the single immutable struct every component is constructed
// from. cmd/engine and cmd/replay both call Load once at startup and pass *Config down; nothing downstream reads flags
// or the environment directly.
type Config struct {
	// Core pipeline (spec.md §6)
	Ladder               []int
	SampleIntervalMs     int
	RegimeWindowMin      int
	RegimeWindowMax      int
	HistoryMaxPerSymbol  int
	PendingCapPerSymbol  int
	EWMAAlpha            float64
	FlushIntervalMs      int
	LogPath              string
	SinkHighWaterMark    int
	NrgFormula           model.NrgFormula

	// Research sink (domain-stack addition)
	MongoURI       string
	ResearchLadder []int

	// Archive (domain-stack addition)
	ArchiveDir           string
	ArchiveMaxGB         int
	ArchiveIntervalHours int
	ArchiveAfterHours    int
	S3Bucket             string
	S3Region             string
	S3Prefix             string

	// Monitor (ambient observability)
	MonitorPort       int
	MonitorHost       string
	MonitorBufferSize int

	// Ingest (reference venue adapter)
	VenueWSBase string
	Symbols     []string

	// Shutdown
	ShutdownTimeout time.Duration
}

// Load parses flags (falling back to environment variables, falling back
// to the documented defaults) into a Config. Call once, at process start.
func Load() *Config {
	c := &Config{}

	ladderStr := flag.String("ladder", envStr("LADDER", joinInts(defaultLadder)), "comma-separated forward-return horizons in seconds")
	flag.IntVar(&c.SampleIntervalMs, "sample-interval-ms", envInt("SAMPLE_INTERVAL_MS", 100), "sampler heartbeat cadence")
	flag.IntVar(&c.RegimeWindowMin, "regime-window-min", envInt("REGIME_WINDOW_MIN", 21), "minimum rolling window size before regime classification activates")
	flag.IntVar(&c.RegimeWindowMax, "regime-window-max", envInt("REGIME_WINDOW_MAX", 90), "rolling window capacity per symbol")
	flag.IntVar(&c.HistoryMaxPerSymbol, "history-max-per-symbol", envInt("HISTORY_MAX_PER_SYMBOL", 5000), "Chronos price-history capacity per symbol")
	flag.IntVar(&c.PendingCapPerSymbol, "pending-cap-per-symbol", envInt("PENDING_CAP_PER_SYMBOL", 1000), "Chronos pending-observation queue cap per symbol")
	flag.Float64Var(&c.EWMAAlpha, "ewma-alpha", envFloat("EWMA_ALPHA", 0.1), "CorrelationTracker EWMA smoothing factor")
	flag.IntVar(&c.FlushIntervalMs, "flush-interval-ms", envInt("FLUSH_INTERVAL_MS", 5000), "durable sink flush period")
	flag.StringVar(&c.LogPath, "log-path", envStr("LOG_PATH", "./data/microlab.log"), "durable append-only log path")
	flag.IntVar(&c.SinkHighWaterMark, "sink-high-water-mark", envInt("SINK_HIGH_WATER_MARK", 100000), "advisory cap on queued-but-unflushed records before oldest-drop")
	nrgFormula := flag.String("nrg-formula", envStr("NRG_FORMULA", "product"), `nrg formula: "product" (default, core-fixed) or "research"`)

	flag.StringVar(&c.MongoURI, "mongo-uri", envStr("MONGO_URI", ""), "MongoDB URI for the research sink (empty = research sink disabled)")
	researchLadderStr := flag.String("research-ladder", envStr("RESEARCH_LADDER", joinInts(defaultResearchLadder)), "comma-separated research-sink horizons in seconds")

	flag.StringVar(&c.ArchiveDir, "archive-dir", envStr("ARCHIVE_DIR", ""), "local directory for rotated log segments (empty = archiving disabled)")
	flag.IntVar(&c.ArchiveMaxGB, "archive-max-gb", envInt("ARCHIVE_MAX_GB", 10), "total local archive size ceiling before oldest-first deletion")
	flag.IntVar(&c.ArchiveIntervalHours, "archive-interval-hours", envInt("ARCHIVE_INTERVAL_HOURS", 6), "hours between archive cycles")
	flag.IntVar(&c.ArchiveAfterHours, "archive-after-hours", envInt("ARCHIVE_AFTER_HOURS", 24), "rotate segments older than this many hours")
	flag.StringVar(&c.S3Bucket, "s3-bucket", envStr("S3_BUCKET", ""), "S3 bucket for archive upload (empty = upload disabled)")
	flag.StringVar(&c.S3Region, "s3-region", envStr("S3_REGION", "us-east-1"), "AWS region for S3 upload")
	flag.StringVar(&c.S3Prefix, "s3-prefix", envStr("S3_PREFIX", "microlab"), "S3 key prefix for archived segments")

	flag.IntVar(&c.MonitorPort, "monitor-port", envInt("MONITOR_PORT", 8100), "monitor websocket listen port")
	flag.StringVar(&c.MonitorHost, "monitor-host", envStr("MONITOR_HOST", "0.0.0.0"), "monitor websocket listen host")
	flag.IntVar(&c.MonitorBufferSize, "monitor-buffer-size", envInt("MONITOR_BUFFER_SIZE", 256), "per-client monitor send-channel buffer size")

	flag.StringVar(&c.VenueWSBase, "venue-ws-base", envStr("VENUE_WS_BASE", "wss://stream.binance.com:9443/ws"), "base URL the reference WSAdapter dials per symbol")
	symbolsStr := flag.String("symbols", envStr("SYMBOLS", "btcusdt,ethusdt"), "comma-separated symbols to subscribe")

	shutdownSec := flag.Int("shutdown-timeout-sec", envInt("SHUTDOWN_TIMEOUT_SEC", 10), "abort if final flush/drain exceeds this many seconds (spec.md §7)")

	flag.Parse()

	c.Ladder = parseInts(*ladderStr)
	c.ResearchLadder = parseInts(*researchLadderStr)
	c.Symbols = parseStrings(*symbolsStr)
	c.NrgFormula = model.NrgProduct
	if strings.EqualFold(*nrgFormula, "research") {
		c.NrgFormula = model.NrgResearch
	}
	c.ShutdownTimeout = time.Duration(*shutdownSec) * time.Second

	return c
}

// SampleInterval returns the sampler cadence as a time.Duration.
func (c *Config) SampleInterval() time.Duration {
	return time.Duration(c.SampleIntervalMs) * time.Millisecond
}

// FlushInterval returns the sink flush period as a time.Duration.
func (c *Config) FlushInterval() time.Duration {
	return time.Duration(c.FlushIntervalMs) * time.Millisecond
}

func parseInts(s string) []int {
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	return out
}

func parseStrings(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func joinInts(vals []int) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
