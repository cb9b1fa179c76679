package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"nostr-relaypool/internal/nostr"
	"nostr-relaypool/internal/types"
)

// Options tunes a websocket relay connection.
type Options struct {
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	SendBuffer   int
	EventBuffer  int
	// AllowPrivate skips the destination check that blocks private networks.
	AllowPrivate bool
}

// DefaultOptions returns sensible defaults
func DefaultOptions() Options {
	return Options{
		DialTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		SendBuffer:   64,
		EventBuffer:  256,
	}
}

// Conn manages a single websocket connection to a relay.
type Conn struct {
	endpoint types.RelayEndpoint
	conn     *websocket.Conn
	opts     Options
	log      *slog.Logger

	out      chan []byte
	events   chan types.RelayEvent
	closing  chan struct{}
	readDone chan struct{}

	closeOnce sync.Once
	mu        sync.Mutex
	err       error
}

// NewDialer returns a Dialer that opens websocket connections with opts.
func NewDialer(opts Options) Dialer {
	return func(ctx context.Context, endpoint types.RelayEndpoint) (Handle, error) {
		c, err := Dial(ctx, endpoint, opts)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// Dial connects to the endpoint and starts the read and write loops.
func Dial(ctx context.Context, endpoint types.RelayEndpoint, opts Options) (*Conn, error) {
	if !opts.AllowPrivate && !nostr.IsRelayURLSafe(endpoint.URL) {
		return nil, fmt.Errorf("%w: %s: unsafe destination", ErrConnection, endpoint.URL)
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = DefaultOptions().SendBuffer
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = DefaultOptions().EventBuffer
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultOptions().WriteTimeout
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: opts.DialTimeout,
	}
	ws, _, err := dialer.DialContext(ctx, endpoint.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConnection, endpoint.URL, err)
	}

	c := &Conn{
		endpoint: endpoint,
		conn:     ws,
		opts:     opts,
		log:      slog.Default().With("relay", endpoint.URL),
		out:      make(chan []byte, opts.SendBuffer),
		events:   make(chan types.RelayEvent, opts.EventBuffer),
		closing:  make(chan struct{}),
		readDone: make(chan struct{}),
	}
	c.log.Debug("relay connected")

	go c.readLoop()
	go c.writeLoop()

	return c, nil
}

// Endpoint implements Handle.
func (c *Conn) Endpoint() types.RelayEndpoint {
	return c.endpoint
}

// Events implements Handle.
func (c *Conn) Events() <-chan types.RelayEvent {
	return c.events
}

// Err implements Handle.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Conn) setErr(err error) {
	c.mu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.mu.Unlock()
}

func (c *Conn) isClosing() bool {
	select {
	case <-c.closing:
		return true
	default:
		return false
	}
}

// Send encodes msg and hands it to the writer goroutine. It never blocks.
func (c *Conn) Send(msg types.NostrMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%w: encode: %v", ErrSend, err)
	}

	select {
	case <-c.closing:
		return fmt.Errorf("%w: %s", ErrClosed, c.endpoint.URL)
	case <-c.readDone:
		return fmt.Errorf("%w: %s", ErrClosed, c.endpoint.URL)
	default:
	}

	select {
	case c.out <- data:
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrSendBufferFull, c.endpoint.URL)
	}
}

// Close sends a close frame and waits for the relay to answer it or for ctx.
// The underlying socket is always released before Close returns.
func (c *Conn) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		close(c.closing)
	})
	defer c.conn.Close()

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.opts.WriteTimeout)); err != nil {
		// link is already gone, nothing to wait for
		return nil
	}

	select {
	case <-c.readDone:
		return nil
	case <-ctx.Done():
		c.log.Warn("relay did not acknowledge close", "error", ctx.Err())
		return fmt.Errorf("%w: %s", ErrCloseTimeout, c.endpoint.URL)
	}
}

// readLoop continuously reads from the connection and forwards decoded messages
func (c *Conn) readLoop() {
	defer close(c.events)
	defer close(c.readDone)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !c.isClosing() {
				c.log.Warn("relay read error", "error", err)
				c.setErr(fmt.Errorf("%w: %s: %v", ErrConnection, c.endpoint.URL, err))
			}
			c.conn.Close()
			return
		}

		ev, err := nostr.ParseRelayMessage(c.endpoint.URL, data)
		if err != nil {
			c.log.Debug("dropping malformed relay message", "error", err)
			ev = types.RelayEvent{
				Relay:   c.endpoint.URL,
				Type:    types.RelayEventNotice,
				Message: "dropped malformed message",
				Err:     err,
			}
		}

		select {
		case c.events <- ev:
		case <-c.closing:
			return
		}
	}
}

// writeLoop is the only goroutine writing data frames to the socket.
func (c *Conn) writeLoop() {
	for {
		select {
		case data := <-c.out:
			c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				if !c.isClosing() {
					c.log.Warn("relay write error", "error", err)
					c.setErr(fmt.Errorf("%w: %s: %v", ErrSend, c.endpoint.URL, err))
				}
				c.conn.Close()
				return
			}
		case <-c.closing:
			return
		case <-c.readDone:
			return
		}
	}
}
