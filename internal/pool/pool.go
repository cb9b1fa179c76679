// Package pool aggregates many relay connections behind one command surface.
//
// All pool state is owned by a single dispatch goroutine. Callers enqueue
// commands (Publish, Subscribe, Unsubscribe, Shutdown) without blocking and
// read results from broadcast channels (RawEvents, Payloads). Observation
// methods read snapshots that the loop swaps in atomically.
package pool

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"nostr-relaypool/internal/nostr"
	"nostr-relaypool/internal/relay"
	"nostr-relaypool/internal/types"
	"nostr-relaypool/internal/util"
)

// ErrShutdownTimeout is reported for a relay that did not finish closing in time.
var ErrShutdownTimeout = errors.New("relay did not close before shutdown timeout")

// Config holds the pool tunables.
type Config struct {
	Dialer          relay.Dialer
	DialTimeout     time.Duration
	ShutdownTimeout time.Duration
	EmitGrace       time.Duration
	SinkBuffer      int
	// LedgerSize bounds the dedup ledger to the most recent ids; 0 keeps every id.
	LedgerSize int
	Reconnect  bool
	Retry      relay.RetryConfig
	Registerer prometheus.Registerer
	Logger     *slog.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Dialer:          relay.NewDialer(relay.DefaultOptions()),
		DialTimeout:     10 * time.Second,
		ShutdownTimeout: 5 * time.Second,
		EmitGrace:       100 * time.Millisecond,
		SinkBuffer:      256,
		Retry:           relay.DefaultRetry(),
	}
}

// Option modifies the pool Config.
type Option func(*Config)

// WithDialer replaces the websocket dialer.
func WithDialer(d relay.Dialer) Option {
	return func(c *Config) { c.Dialer = d }
}

// WithDialTimeout bounds each initial connection attempt.
func WithDialTimeout(d time.Duration) Option {
	return func(c *Config) { c.DialTimeout = d }
}

// WithShutdownTimeout bounds how long Shutdown waits for relays to close.
func WithShutdownTimeout(d time.Duration) Option {
	return func(c *Config) { c.ShutdownTimeout = d }
}

// WithEmitGrace sets how long a slow listener may hold up an emission.
func WithEmitGrace(d time.Duration) Option {
	return func(c *Config) { c.EmitGrace = d }
}

// WithSinkBuffer sets the buffer of each listener channel.
func WithSinkBuffer(n int) Option {
	return func(c *Config) { c.SinkBuffer = n }
}

// WithLedgerSize bounds the dedup ledger.
func WithLedgerSize(n int) Option {
	return func(c *Config) { c.LedgerSize = n }
}

// WithReconnect redials dropped or unreachable relays using retry.
func WithReconnect(retry relay.RetryConfig) Option {
	return func(c *Config) {
		c.Reconnect = true
		c.Retry = retry
	}
}

// WithRegisterer registers the pool metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *Config) { c.Registerer = reg }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// Pool is a multi-relay event aggregator.
type Pool struct {
	cfg       Config
	endpoints []types.RelayEndpoint
	log       *slog.Logger
	metrics   *metrics

	publishQ     *queue[types.Event]
	subscribeQ   *queue[types.Subscription]
	unsubscribeQ *queue[string]
	shutdownQ    *queue[struct{}]

	inbound chan inbound
	dials   chan dialResult

	raw      *sink[types.RelayEvent]
	payloads *sink[types.Event]

	// ctx is cancelled when shutdown starts; it stops dialers and forwarders.
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	state      atomic.Pointer[snapshot]
	unique     atomic.Uint64
	duplicates atomic.Uint64
	dropped    atomic.Uint64

	// Owned by the dispatch loop.
	handles  map[string]relay.Handle
	ledger   Ledger
	registry *Registry
}

type snapshot struct {
	relays []string
	subs   map[string]types.Filter
}

// New builds a pool for endpoints and starts connecting to them in the
// background. Connection failures are reported on RawEvents; New itself
// never fails.
func New(endpoints []types.RelayEndpoint, opts ...Option) *Pool {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Registerer == nil {
		cfg.Registerer = prometheus.NewRegistry()
	}
	defaults := DefaultConfig()
	if cfg.Dialer == nil {
		cfg.Dialer = defaults.Dialer
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaults.DialTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaults.ShutdownTimeout
	}
	if cfg.SinkBuffer < 0 {
		cfg.SinkBuffer = 0
	}
	log := cfg.Logger.With("component", "relaypool")

	ledger, err := NewLedger(cfg.LedgerSize)
	if err != nil {
		log.Warn("invalid ledger size, keeping every id", "size", cfg.LedgerSize, "error", err)
		ledger, _ = NewLedger(0)
	} else if cfg.LedgerSize > 0 {
		log.Info("bounded dedup ledger enabled", "size", cfg.LedgerSize)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		cfg:          cfg,
		endpoints:    mergeEndpoints(endpoints),
		log:          log,
		metrics:      newMetrics(cfg.Registerer, log),
		publishQ:     newQueue[types.Event](),
		subscribeQ:   newQueue[types.Subscription](),
		unsubscribeQ: newQueue[string](),
		shutdownQ:    newQueue[struct{}](),
		inbound:      make(chan inbound),
		dials:        make(chan dialResult),
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
		handles:      make(map[string]relay.Handle),
		ledger:       ledger,
		registry:     NewRegistry(),
	}
	p.raw = newSink[types.RelayEvent](cfg.SinkBuffer, cfg.EmitGrace, func() {
		p.dropped.Add(1)
		p.metrics.dropped.WithLabelValues("raw").Inc()
	})
	p.payloads = newSink[types.Event](cfg.SinkBuffer, cfg.EmitGrace, func() {
		p.dropped.Add(1)
		p.metrics.dropped.WithLabelValues("payload").Inc()
	})
	p.state.Store(&snapshot{subs: map[string]types.Filter{}})

	log.Info("connecting to relay pool", "relays", len(p.endpoints))
	go p.run()
	for _, ep := range p.endpoints {
		go p.dial(ep, false)
	}
	return p
}

// mergeEndpoints normalises URLs and folds duplicates together.
func mergeEndpoints(endpoints []types.RelayEndpoint) []types.RelayEndpoint {
	byURL := make(map[string]types.RelayEndpoint, len(endpoints))
	var order []string
	for _, ep := range endpoints {
		if n := nostr.NormalizeRelayURL(ep.URL); n != "" {
			ep.URL = n
		}
		if ep.URL == "" {
			continue
		}
		prev, ok := byURL[ep.URL]
		if !ok {
			order = append(order, ep.URL)
		}
		prev.URL = ep.URL
		prev.Read = prev.Read || ep.Read
		prev.Write = prev.Write || ep.Write
		byURL[ep.URL] = prev
	}
	out := make([]types.RelayEndpoint, 0, len(order))
	for _, u := range order {
		out = append(out, byURL[u])
	}
	return out
}

// NewSubscriptionID returns a fresh random subscription id.
func NewSubscriptionID() string {
	return "sub-" + uuid.NewString()[:8]
}

// Publish broadcasts evt to every writable relay.
func (p *Pool) Publish(evt types.Event) {
	p.publishQ.Push(evt)
}

// Subscribe registers sub on every readable relay, replacing any earlier
// filter with the same id. An empty id is filled in; the id is returned.
func (p *Pool) Subscribe(sub types.Subscription) string {
	if sub.ID == "" {
		sub.ID = NewSubscriptionID()
	}
	p.subscribeQ.Push(sub)
	return sub.ID
}

// Unsubscribe cancels the subscription id. Unknown ids are ignored.
func (p *Pool) Unsubscribe(id string) {
	p.unsubscribeQ.Push(id)
}

// Shutdown closes every relay and then the output streams. It returns
// immediately; wait on Done for completion.
func (p *Pool) Shutdown() {
	p.shutdownQ.Push(struct{}{})
}

// Close shuts the pool down and waits until it has stopped or ctx is done.
func (p *Pool) Close(ctx context.Context) error {
	p.Shutdown()
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once the pool has shut down.
func (p *Pool) Done() <-chan struct{} {
	return p.done
}

// RawEvents returns a new listener for every inbound relay message and
// every locally generated notice.
func (p *Pool) RawEvents() <-chan types.RelayEvent {
	return p.raw.Listen()
}

// Payloads returns a new listener for the deduplicated event stream.
func (p *Pool) Payloads() <-chan types.Event {
	return p.payloads.Listen()
}

// Endpoints returns the configured endpoints after normalisation.
func (p *Pool) Endpoints() []types.RelayEndpoint {
	out := make([]types.RelayEndpoint, len(p.endpoints))
	copy(out, p.endpoints)
	return out
}

// ActiveRelays returns the URLs of the currently connected relays, sorted.
func (p *Pool) ActiveRelays() []string {
	s := p.state.Load()
	out := make([]string, len(s.relays))
	copy(out, s.relays)
	return out
}

// Subscriptions returns the registered subscriptions.
func (p *Pool) Subscriptions() map[string]types.Filter {
	s := p.state.Load()
	out := make(map[string]types.Filter, len(s.subs))
	for id, f := range s.subs {
		out[id] = f
	}
	return out
}

// Stats is a point-in-time summary of the pool.
type Stats struct {
	ActiveRelays  int
	Subscriptions int
	Unique        uint64
	Duplicates    uint64
	Dropped       uint64
}

// Stats returns counters accumulated since the pool was built.
func (p *Pool) Stats() Stats {
	s := p.state.Load()
	return Stats{
		ActiveRelays:  len(s.relays),
		Subscriptions: len(s.subs),
		Unique:        p.unique.Load(),
		Duplicates:    p.duplicates.Load(),
		Dropped:       p.dropped.Load(),
	}
}

// publishState swaps in a fresh snapshot. Called by the loop after every
// change to the handle set or the registry.
func (p *Pool) publishState() {
	relays := util.SortedKeys(p.handles)
	p.state.Store(&snapshot{relays: relays, subs: p.registry.Snapshot()})
	p.metrics.relaysActive.Set(float64(len(relays)))
	p.metrics.subsActive.Set(float64(p.registry.Len()))
}
