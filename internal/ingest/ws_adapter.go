package ingest

import (
	"context"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nrandal/microlab/internal/model"
)

const (
	wsReconnectDelay    = 1 * time.Second
	wsMaxReconnectDelay = 30 * time.Second
)

// depthMessage matches a generic venue partial-depth-book push: a full
// top-of-book snapshot on every message, priced/quantified as decimal
// strings. Shaped after Binance's partial depth stream, the reference
// venue format used throughout the retrieved pack.
type depthMessage struct {
	Bids [][]string `json:"bids"`
	Asks [][]string `json:"asks"`
	Time int64      `json:"E"`
}

// URLForSymbol builds the per-symbol stream URL for a venue. Adapters for
// other venues supply their own.
type URLForSymbol func(symbol string) string

// WSAdapter dials one outbound websocket connection per subscribed symbol
// and decodes each message into a RawSnapshot written into the Sink.
// Grounded on yoghaf-market-indikator's ingest.DepthIngester: a
// reconnect-with-exponential-backoff loop around websocket.DefaultDialer,
// a detail the teacher repo never needed since it only ever generated
// synthetic books locally.
type WSAdapter struct {
	sink   Sink
	urlFor URLForSymbol
	dialer *websocket.Dialer
}

// NewWSAdapter creates a WSAdapter. urlFor maps a symbol to its venue
// stream URL; dialer defaults to websocket.DefaultDialer when nil.
func NewWSAdapter(sink Sink, urlFor URLForSymbol, dialer *websocket.Dialer) *WSAdapter {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	return &WSAdapter{sink: sink, urlFor: urlFor, dialer: dialer}
}

// Subscribe starts a background reconnecting loop for symbol. Safe to call
// multiple times for distinct symbols; each gets its own connection.
func (w *WSAdapter) Subscribe(symbol string) {
	go w.loop(symbol)
}

// Run subscribes to every symbol and blocks until ctx is cancelled.
func (w *WSAdapter) Run(ctx context.Context, symbols []string) {
	for _, sym := range symbols {
		go w.loopCtx(ctx, sym)
	}
	<-ctx.Done()
}

func (w *WSAdapter) loop(symbol string) {
	w.loopCtx(context.Background(), symbol)
}

func (w *WSAdapter) loopCtx(ctx context.Context, symbol string) {
	delay := wsReconnectDelay

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := w.connectAndConsume(ctx, symbol); err != nil {
			log.Printf("ingest: %s stream error: %v, reconnecting in %v", symbol, err, delay)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay *= 2
			if delay > wsMaxReconnectDelay {
				delay = wsMaxReconnectDelay
			}
		} else {
			delay = wsReconnectDelay
		}
	}
}

func (w *WSAdapter) connectAndConsume(ctx context.Context, symbol string) error {
	conn, _, err := w.dialer.Dial(w.urlFor(symbol), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	log.Printf("ingest: connected to %s stream for %s", w.urlFor(symbol), symbol)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		var msg depthMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return err
		}

		snap := decodeDepthMessage(symbol, msg)
		w.sink.Put(snap)
	}
}

func decodeDepthMessage(symbol string, msg depthMessage) model.RawSnapshot {
	venueTime := msg.Time
	if venueTime == 0 {
		venueTime = time.Now().UnixMilli()
	}

	snap := model.RawSnapshot{
		Symbol:    symbol,
		VenueTime: venueTime,
		Bids:      decodeLevels(msg.Bids),
		Asks:      decodeLevels(msg.Asks),
	}
	return snap
}

func decodeLevels(raw [][]string) []model.Level {
	levels := make([]model.Level, 0, len(raw))
	for _, pair := range raw {
		if len(pair) < 2 {
			continue
		}
		levels = append(levels, model.Level{Price: pair[0], Size: pair[1]})
	}
	return levels
}

