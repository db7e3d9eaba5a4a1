package monitor

import (
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
)

// Client is a connected read-only monitor subscriber. Grounded on the
// teacher's session.Client: a buffered send channel drained by a single
// write pump per connection, with drops counted rather than blocking the
// broadcaster.
type Client struct {
	ID   uint64
	Conn *websocket.Conn

	mu         sync.RWMutex
	symbols    map[string]bool
	allSymbols bool

	sendCh    chan []byte
	done      chan struct{}
	closeOnce sync.Once

	Dropped uint64
}

var clientIDCounter uint64

// NewClient wraps conn in a Client with the given outbound buffer size.
func NewClient(conn *websocket.Conn, bufferSize int) *Client {
	return &Client{
		ID:      atomic.AddUint64(&clientIDCounter, 1),
		Conn:    conn,
		symbols: make(map[string]bool),
		sendCh:  make(chan []byte, bufferSize),
		done:    make(chan struct{}),
	}
}

// Subscribe adds symbols to this client's interest set.
func (c *Client) Subscribe(symbols []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range symbols {
		c.symbols[s] = true
	}
}

// SubscribeAll marks this client as interested in every symbol.
func (c *Client) SubscribeAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.allSymbols = true
}

// IsSubscribed reports whether this client wants updates for symbol.
func (c *Client) IsSubscribed(symbol string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.allSymbols {
		return true
	}
	return c.symbols[symbol]
}

// Send enqueues a pre-encoded payload, dropping it if the client is
// backed up rather than blocking the broadcaster.
func (c *Client) Send(data []byte) bool {
	select {
	case c.sendCh <- data:
		return true
	default:
		atomic.AddUint64(&c.Dropped, 1)
		return false
	}
}

// SendCh returns the channel a write pump should drain.
func (c *Client) SendCh() <-chan []byte { return c.sendCh }

// Done is closed when the client disconnects.
func (c *Client) Done() <-chan struct{} { return c.done }

// Close terminates the connection and wakes the write pump.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.Conn.Close()
	})
}
