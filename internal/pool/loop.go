package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"nostr-relaypool/internal/nostr"
	"nostr-relaypool/internal/relay"
	"nostr-relaypool/internal/types"
	"nostr-relaypool/internal/util"
)

// inbound is one item read from a handle by its forwarder. closed marks the
// end of the handle's event stream.
type inbound struct {
	handle relay.Handle
	event  types.RelayEvent
	closed bool
}

type dialResult struct {
	endpoint types.RelayEndpoint
	handle   relay.Handle
	err      error
}

// run is the dispatch loop. It services one item per iteration until a
// shutdown command has been handled.
func (p *Pool) run() {
	defer close(p.done)

	for {
		select {
		case in := <-p.inbound:
			p.handleInbound(in)
		case res := <-p.dials:
			p.handleDial(res)
		case <-p.publishQ.Ready():
			if evt, ok := p.publishQ.Pop(); ok {
				p.handlePublish(evt)
			}
		case <-p.subscribeQ.Ready():
			if sub, ok := p.subscribeQ.Pop(); ok {
				p.handleSubscribe(sub)
			}
		case <-p.unsubscribeQ.Ready():
			if id, ok := p.unsubscribeQ.Pop(); ok {
				p.handleUnsubscribe(id)
			}
		case <-p.shutdownQ.Ready():
			p.shutdownQ.Pop()
			p.handleShutdown()
			return
		}
	}
}

// dial connects to ep and hands the result to the loop. With redial set it
// keeps retrying until the pool shuts down.
func (p *Pool) dial(ep types.RelayEndpoint, redial bool) {
	var (
		h   relay.Handle
		err error
	)
	if redial {
		h, err = relay.Redial(p.ctx, p.cfg.Dialer, ep, p.cfg.Retry)
	} else {
		ctx, cancel := context.WithTimeout(p.ctx, p.cfg.DialTimeout)
		h, err = p.cfg.Dialer(ctx, ep)
		cancel()
	}
	if err != nil && p.ctx.Err() != nil {
		return
	}

	select {
	case p.dials <- dialResult{endpoint: ep, handle: h, err: err}:
	case <-p.ctx.Done():
		if h != nil {
			ctx, cancel := context.WithTimeout(context.Background(), p.cfg.ShutdownTimeout)
			_ = h.Close(ctx)
			cancel()
		}
	}
}

// forward copies a handle's events onto the shared inbound channel.
func (p *Pool) forward(h relay.Handle) {
	for ev := range h.Events() {
		select {
		case p.inbound <- inbound{handle: h, event: ev}:
		case <-p.ctx.Done():
			return
		}
	}
	select {
	case p.inbound <- inbound{handle: h, closed: true}:
	case <-p.ctx.Done():
	}
}

func (p *Pool) handleDial(res dialResult) {
	url := res.endpoint.URL
	if res.err != nil {
		p.log.Warn("relay connect failed", "relay", url, "error", res.err)
		p.metrics.connectErrors.WithLabelValues(url).Inc()
		err := res.err
		if !errors.Is(err, relay.ErrConnection) {
			err = fmt.Errorf("%w: %w", relay.ErrConnection, err)
		}
		p.notice(url, "connect failed", err)
		if p.cfg.Reconnect {
			go p.dial(res.endpoint, true)
		}
		return
	}

	p.handles[url] = res.handle
	go p.forward(res.handle)
	p.log.Info("relay connected",
		"relay", url,
		"read", res.endpoint.Read,
		"write", res.endpoint.Write)

	if res.endpoint.Read {
		for _, sub := range p.registry.All() {
			p.send(res.handle, "subscribe", nostr.ReqMessage(sub.ID, sub.Filter))
		}
	}
	p.publishState()
}

func (p *Pool) handleInbound(in inbound) {
	url := in.handle.Endpoint().URL
	if cur, ok := p.handles[url]; !ok || cur != in.handle {
		return
	}

	if in.closed {
		delete(p.handles, url)
		p.publishState()

		err := in.handle.Err()
		if err == nil {
			err = fmt.Errorf("%w: %s: connection closed", relay.ErrConnection, url)
		}
		p.log.Warn("relay disconnected", "relay", url, "error", err)
		p.metrics.connectErrors.WithLabelValues(url).Inc()
		p.notice(url, "disconnected", err)
		if p.cfg.Reconnect {
			go p.dial(in.handle.Endpoint(), true)
		}
		return
	}

	if in.handle.Endpoint().Inert() {
		return
	}

	ev := in.event
	p.metrics.received.WithLabelValues(url).Inc()
	p.raw.Emit(ev)

	if ev.Type != types.RelayEventEvent || ev.Event == nil {
		return
	}
	if !p.registry.Has(ev.SubscriptionID) {
		p.metrics.unattributed.Inc()
	}
	if !p.ledger.Mark(ev.Event.ID) {
		p.duplicates.Add(1)
		p.metrics.duplicate.Inc()
		return
	}
	p.unique.Add(1)
	p.metrics.unique.Inc()
	p.payloads.Emit(*ev.Event)
}

func (p *Pool) handlePublish(evt types.Event) {
	p.metrics.commands.WithLabelValues("publish").Inc()
	msg := nostr.EventMessage(evt)

	sent := 0
	for _, url := range util.SortedKeys(p.handles) {
		h := p.handles[url]
		if !h.Endpoint().Write {
			continue
		}
		if p.send(h, "publish", msg) {
			sent++
		}
	}
	p.log.Debug("event published", "id", nostr.ShortID(evt.ID), "relays", sent)
}

func (p *Pool) handleSubscribe(sub types.Subscription) {
	p.metrics.commands.WithLabelValues("subscribe").Inc()
	if p.registry.Put(sub) {
		p.log.Debug("subscription replaced", "subscription", sub.ID)
	}
	p.publishState()

	msg := nostr.ReqMessage(sub.ID, sub.Filter)
	for _, url := range util.SortedKeys(p.handles) {
		h := p.handles[url]
		if h.Endpoint().Read {
			p.send(h, "subscribe", msg)
		}
	}
}

func (p *Pool) handleUnsubscribe(id string) {
	p.metrics.commands.WithLabelValues("unsubscribe").Inc()
	if p.registry.Delete(id) {
		p.publishState()
	}

	msg := nostr.CloseMessage(id)
	for _, url := range util.SortedKeys(p.handles) {
		h := p.handles[url]
		if !h.Endpoint().Inert() {
			p.send(h, "unsubscribe", msg)
		}
	}
}

// handleShutdown closes every handle concurrently and waits at most
// ShutdownTimeout before dropping the rest.
func (p *Pool) handleShutdown() {
	p.metrics.commands.WithLabelValues("shutdown").Inc()
	p.log.Info("disconnecting relay pool", "relays", len(p.handles))
	start := time.Now()
	p.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.ShutdownTimeout)
	defer cancel()

	var (
		mu       sync.Mutex
		finished = make(map[string]error, len(p.handles))
		g        errgroup.Group
	)
	for url, h := range p.handles {
		g.Go(func() error {
			err := h.Close(ctx)
			mu.Lock()
			finished[url] = err
			mu.Unlock()
			return nil
		})
	}

	waited := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-ctx.Done():
	}

	var closeErr error
	mu.Lock()
	for _, url := range util.SortedKeys(p.handles) {
		err, ok := finished[url]
		if !ok || errors.Is(err, relay.ErrCloseTimeout) {
			// The timeout budget is spent; a full listener misses this one.
			p.raw.TryEmit(types.RelayEvent{
				Relay:   url,
				Type:    types.RelayEventNotice,
				Message: "shutdown timeout",
				Err:     fmt.Errorf("%w: %s", ErrShutdownTimeout, url),
			})
			closeErr = multierr.Append(closeErr, fmt.Errorf("%w: %s", ErrShutdownTimeout, url))
			continue
		}
		closeErr = multierr.Append(closeErr, err)
	}
	mu.Unlock()
	if closeErr != nil {
		p.log.Warn("relay pool closed with errors",
			"errors", len(multierr.Errors(closeErr)),
			"error", closeErr)
	}

	p.handles = map[string]relay.Handle{}
	p.publishState()
	p.raw.Close()
	p.payloads.Close()
	p.log.Info("relay pool stopped", "elapsed", time.Since(start).Round(time.Millisecond))
}

// send hands msg to h and reports a failure as a local notice.
func (p *Pool) send(h relay.Handle, op string, msg types.NostrMessage) bool {
	err := h.Send(msg)
	if err == nil {
		return true
	}
	url := h.Endpoint().URL
	p.log.Warn("relay send failed", "relay", url, "op", op, "error", err)
	p.metrics.sendErrors.WithLabelValues(url).Inc()
	p.notice(url, op+" failed", err)
	return false
}

// notice emits a locally generated notice on the raw stream.
func (p *Pool) notice(url, msg string, err error) {
	p.raw.Emit(types.RelayEvent{
		Relay:   url,
		Type:    types.RelayEventNotice,
		Message: msg,
		Err:     err,
	})
}
