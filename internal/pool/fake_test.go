package pool

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"nostr-relaypool/internal/relay"
	"nostr-relaypool/internal/types"
)

// fakeRelay is an in-process relay.Handle.
type fakeRelay struct {
	endpoint types.RelayEndpoint
	events   chan types.RelayEvent

	mu       sync.Mutex
	sent     []types.NostrMessage
	sendErr  error
	linkErr  error
	stuck    bool
	closeErr error

	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeRelay(ep types.RelayEndpoint) *fakeRelay {
	return &fakeRelay{
		endpoint: ep,
		events:   make(chan types.RelayEvent, 16),
		closed:   make(chan struct{}),
	}
}

func (f *fakeRelay) Endpoint() types.RelayEndpoint { return f.endpoint }

func (f *fakeRelay) Events() <-chan types.RelayEvent { return f.events }

func (f *fakeRelay) Send(msg types.NostrMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeRelay) Close(ctx context.Context) error {
	f.mu.Lock()
	stuck := f.stuck
	f.mu.Unlock()
	if stuck {
		<-f.closed
		return nil
	}
	f.shut(nil)
	return f.closeErr
}

func (f *fakeRelay) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.linkErr
}

func (f *fakeRelay) shut(err error) {
	f.closeOnce.Do(func() {
		f.mu.Lock()
		f.linkErr = err
		f.mu.Unlock()
		close(f.events)
		close(f.closed)
	})
}

// drop simulates the relay going away.
func (f *fakeRelay) drop() {
	f.shut(fmt.Errorf("%w: link lost", relay.ErrConnection))
}

// deliver pushes an EVENT for subID carrying an event with id.
func (f *fakeRelay) deliver(subID, id string) {
	f.events <- types.RelayEvent{
		Relay:          f.endpoint.URL,
		Type:           types.RelayEventEvent,
		SubscriptionID: subID,
		Event:          &types.Event{ID: id, Kind: 1, Tags: [][]string{}, RelaysSeen: []string{f.endpoint.URL}},
	}
}

// messages returns the sent messages whose verb is typ.
func (f *fakeRelay) messages(typ string) []types.NostrMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.NostrMessage
	for _, m := range f.sent {
		if len(m) > 0 && m[0] == typ {
			out = append(out, m)
		}
	}
	return out
}

// fakeNet dials fakeRelays by URL. A URL without a relay fails to connect;
// a relay that has been dropped is replaced on the next dial.
type fakeNet struct {
	mu       sync.Mutex
	relays   map[string]*fakeRelay
	unusable map[string]bool
	dials    map[string]int
	// hold, when set, delays every dial until it is closed.
	hold chan struct{}
}

func newFakeNet() *fakeNet {
	return &fakeNet{
		relays:   make(map[string]*fakeRelay),
		unusable: make(map[string]bool),
		dials:    make(map[string]int),
	}
}

func (n *fakeNet) add(ep types.RelayEndpoint) *fakeRelay {
	n.mu.Lock()
	defer n.mu.Unlock()
	r := newFakeRelay(ep)
	n.relays[ep.URL] = r
	return r
}

func (n *fakeNet) get(url string) *fakeRelay {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.relays[url]
}

func (n *fakeNet) dial(ctx context.Context, ep types.RelayEndpoint) (relay.Handle, error) {
	if n.hold != nil {
		select {
		case <-n.hold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dials[ep.URL]++
	r, ok := n.relays[ep.URL]
	if !ok || n.unusable[ep.URL] {
		return nil, fmt.Errorf("%w: %s: refused", relay.ErrConnection, ep.URL)
	}
	select {
	case <-r.closed:
		r = newFakeRelay(ep)
		n.relays[ep.URL] = r
	default:
	}
	return r, nil
}

func endpoint(url string, read, write bool) types.RelayEndpoint {
	return types.RelayEndpoint{URL: url, Read: read, Write: write}
}

const (
	relayA = "wss://relay-a.example.com"
	relayB = "wss://relay-b.example.com"
	relayC = "wss://relay-c.example.com"
	relayD = "wss://relay-d.example.com"
)

func newTestPool(t *testing.T, n *fakeNet, endpoints []types.RelayEndpoint, opts ...Option) *Pool {
	t.Helper()
	opts = append([]Option{
		WithDialer(n.dial),
		WithShutdownTimeout(200 * time.Millisecond),
		WithEmitGrace(50 * time.Millisecond),
	}, opts...)
	p := New(endpoints, opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = p.Close(ctx)
	})
	return p
}

func waitActive(t *testing.T, p *Pool, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return len(p.ActiveRelays()) == n },
		time.Second, 5*time.Millisecond, "expected %d active relays", n)
}

func waitSent(t *testing.T, r *fakeRelay, typ string, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return len(r.messages(typ)) >= n },
		time.Second, 5*time.Millisecond, "expected %d %s messages on %s", n, typ, r.endpoint.URL)
}

func nextPayload(t *testing.T, ch <-chan types.Event) types.Event {
	t.Helper()
	select {
	case evt, ok := <-ch:
		require.True(t, ok, "payload stream closed")
		return evt
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for payload")
		return types.Event{}
	}
}

func nextRaw(t *testing.T, ch <-chan types.RelayEvent) types.RelayEvent {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "raw stream closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for raw event")
		return types.RelayEvent{}
	}
}

// nextNotice skips relay traffic until a local notice arrives.
func nextNotice(t *testing.T, ch <-chan types.RelayEvent) types.RelayEvent {
	t.Helper()
	for {
		ev := nextRaw(t, ch)
		if ev.Local() {
			return ev
		}
	}
}
